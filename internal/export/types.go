// Package export renders documents to HTML, PDF and DOCX.
package export

import (
	"errors"
	"strings"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	case "":
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request names a stored document and, optionally, a version of it.
type Request struct {
	Key     string
	Version string // empty or "latest" for the current document
	Format  Format
}

type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	UpdatedAt time.Time
	// ArchiveURL is set when the result was also uploaded to the archive.
	ArchiveURL string
}

var (
	ErrUnsupportedFormat     = errors.New("unsupported export format")
	ErrContentUnavailable    = errors.New("export content unavailable")
	ErrPDFDependencyMissing  = errors.New("export pdf dependency missing")
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
