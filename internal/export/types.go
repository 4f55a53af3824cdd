// Package export renders content items to PDF and DOCX.
package export

import "errors"

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported export format")
	ErrPDFDependencyMissing  = errors.New("pdf export dependency missing")
	ErrDOCXDependencyMissing = errors.New("docx export dependency missing")
)

// Request describes an export job.
type Request struct {
	ContentID string
	// Version selects an archived snapshot; zero exports the current state.
	Version int
	Format  Format
	// IncludeHistory appends the version log to the document.
	IncludeHistory bool
}

// Result is a rendered export ready to stream to the client.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}
