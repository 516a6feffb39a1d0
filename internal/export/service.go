package export

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"moodpad/internal/decorate"
	"moodpad/internal/document"
)

// Source loads a document by storage key, at a version when one is given.
type Source interface {
	LoadDocument(ctx context.Context, key, version string) (*document.Document, time.Time, error)
}

type Service struct {
	source  Source
	matcher *decorate.Matcher
	archive *Archive

	pdf  func(ctx context.Context, html, title string) (*Result, error)
	docx func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates an export service. archive may be nil.
func NewService(source Source, archive *Archive) *Service {
	return &Service{
		source:  source,
		matcher: decorate.NewMatcher(decorate.DefaultVocabulary...),
		archive: archive,
		pdf:     exportPDF,
		docx:    exportDOCX,
	}
}

func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	version := req.Version
	if version == "latest" {
		version = ""
	}
	doc, updatedAt, err := s.source.LoadDocument(ctx, req.Key, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}

	decorations := s.matcher.Document(doc)
	counts := make(map[string]int)
	for _, d := range decorations {
		counts[d.Emotion]++
	}
	mode, _, _ := strings.Cut(req.Key, "-")
	data := TemplateData{
		Title:       req.Key,
		Mode:        mode,
		Version:     version,
		ContentHTML: template.HTML(ContentHTML(doc, decorations)),
		UpdatedAt:   updatedAt,
		Emotions:    counts,
	}
	page, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var res *Result
	switch req.Format {
	case FormatHTML, "":
		res = &Result{Data: []byte(page), Filename: sanitizeFilename(req.Key) + ".html", MimeType: "text/html; charset=utf-8"}
	case FormatPDF:
		res, err = s.pdf(ctx, page, req.Key)
	case FormatDOCX:
		res, err = s.docx(ctx, page, req.Key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}
	res.UpdatedAt = updatedAt

	if s.archive != nil {
		url, err := s.archive.Put(ctx, req.Key, res)
		if err != nil {
			log.Printf("export: archive %s: %v", res.Filename, err)
		} else {
			res.ArchiveURL = url
		}
	}
	return res, nil
}
