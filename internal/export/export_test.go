package export

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Getting Started", "Getting-Started"},
		{"hello/../../etc", "helloetc"},
		{"", "content"},
		{"!!!", "content"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBodyToHTML(t *testing.T) {
	got := string(BodyToHTML("First paragraph.\n\nSecond one,\ntwo lines.\n\n\n"))
	want := "<p>First paragraph.</p>\n<p>Second one,<br>two lines.</p>\n"
	if got != want {
		t.Errorf("BodyToHTML = %q, want %q", got, want)
	}
}

func TestBodyToHTMLEscapes(t *testing.T) {
	got := string(BodyToHTML("<script>alert(1)</script>"))
	if strings.Contains(got, "<script>") {
		t.Errorf("body HTML must be escaped, got %q", got)
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:      "Field Guide",
		Excerpt:    "A short guide.",
		AuthorName: "Ada",
		Status:     "published",
		Version:    3,
		UpdatedAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		BodyHTML:   BodyToHTML("Hello world."),
		History: []TemplateHistoryEntry{
			{Version: 2, ChangedBy: "Ada", Summary: "tightened intro", Kind: "edit", CreatedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"<title>Field Guide</title>",
		"A short guide.",
		"Ada | published | v3",
		"Hello world.",
		"Version history",
		"tightened intro",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderDocumentHTMLWithoutHistory(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:     "Bare",
		UpdatedAt: time.Now(),
		BodyHTML:  BodyToHTML("x"),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "Version history") {
		t.Error("history section must be omitted when empty")
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("percentEncodeForDataURL = %q", got)
	}
}
