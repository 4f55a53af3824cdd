package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// TemplateData holds everything the document template renders.
type TemplateData struct {
	Title      string
	Excerpt    string
	AuthorName string
	Status     string
	Version    int
	UpdatedAt  time.Time
	BodyHTML   template.HTML
	History    []TemplateHistoryEntry
}

// TemplateHistoryEntry is one row of the optional version log.
type TemplateHistoryEntry struct {
	Version   int
	ChangedBy string
	Summary   string
	Kind      string
	CreatedAt time.Time
}

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string { return t.Format(layout) },
}).Parse(documentTemplateSrc))

// RenderDocumentHTML renders the printable document page.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BodyToHTML turns the stored plain-text body into minimal HTML: blank lines
// separate paragraphs, everything else is escaped verbatim.
func BodyToHTML(body string) template.HTML {
	var out strings.Builder
	for _, para := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		out.WriteString("<p>")
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			if i > 0 {
				out.WriteString("<br>")
			}
			out.WriteString(template.HTMLEscapeString(line))
		}
		out.WriteString("</p>\n")
	}
	return template.HTML(out.String())
}

const documentTemplateSrc = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #2b6e4f; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .excerpt { font-style: italic; color: #444; }
    table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.AuthorName}} | {{.Status}} | v{{.Version}} | {{formatDate .UpdatedAt "Jan 2, 2006"}}</div>
  {{if .Excerpt}}<p class="excerpt">{{.Excerpt}}</p>{{end}}
  <div>{{.BodyHTML}}</div>
  {{if .History}}
  <h2>Version history</h2>
  <table>
    <tr><th>Version</th><th>Changed by</th><th>Kind</th><th>Summary</th><th>Date</th></tr>
    {{range .History}}<tr><td>{{.Version}}</td><td>{{.ChangedBy}}</td><td>{{.Kind}}</td><td>{{.Summary}}</td><td>{{formatDate .CreatedAt "Jan 2, 2006"}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
