package export

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"

	"moodpad/internal/decorate"
	"moodpad/internal/document"
)

func TestContentHTML(t *testing.T) {
	doc := document.New(
		document.Block(document.TypeParagraph,
			document.Text("So happy & "),
			document.Leaf("bold", document.Marks{Bold: true, Italic: true}),
		),
		document.Paragraph("then <sad>"),
	)
	got := ContentHTML(doc, decorate.Decorate(doc))

	want := []string{
		`<p>So <span class="emotion-happy">happy</span> &amp; <strong><em>bold</em></strong></p>`,
		`<p>then &lt;<span class="emotion-sad">sad</span>&gt;</p>`,
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Fatalf("ContentHTML() = %q, missing %q", got, w)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"happy-editor-content", "happy-editor-content"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := percentEncodeForDataURL(tt.input); got != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "happy-editor-content",
		Mode:        "happy",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
		UpdatedAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Emotions:    map[string]int{"happy": 2},
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	for _, want := range []string{`class="mode-happy"`, "<p>This is the content.</p>", "Mar 1, 2026 09:30", "&times; 2"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("content was escaped")
	}
}

type memSource map[string]*document.Document

func (m memSource) LoadDocument(_ context.Context, key, version string) (*document.Document, time.Time, error) {
	doc, ok := m[key+"@"+version]
	if !ok {
		return nil, time.Time{}, errors.New("missing")
	}
	return doc, time.Unix(0, 0), nil
}

func TestServiceExport(t *testing.T) {
	src := memSource{
		"sad-editor-content@":    document.New(document.Paragraph("a sad song")),
		"sad-editor-content@abc": document.New(document.Paragraph("older")),
	}
	s := NewService(src, nil)
	ctx := context.Background()

	res, err := s.Export(ctx, Request{Key: "sad-editor-content", Version: "latest", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "sad-editor-content.html" || !strings.Contains(string(res.Data), `<span class="emotion-sad">sad</span>`) {
		t.Fatalf("Export() = %s %s", res.Filename, res.Data)
	}

	res, err = s.Export(ctx, Request{Key: "sad-editor-content", Version: "abc"})
	if err != nil || !strings.Contains(string(res.Data), "older") {
		t.Fatalf("Export(abc) = %v, %v", res, err)
	}

	if _, err := s.Export(ctx, Request{Key: "nope"}); !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("Export(missing) error = %v", err)
	}
	if _, err := s.Export(ctx, Request{Key: "sad-editor-content", Format: "rtf"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export(rtf) error = %v", err)
	}

	s.pdf = func(_ context.Context, html, title string) (*Result, error) {
		return &Result{Data: []byte("%PDF"), Filename: title + ".pdf", MimeType: "application/pdf"}, nil
	}
	res, err = s.Export(ctx, Request{Key: "sad-editor-content", Format: FormatPDF})
	if err != nil || string(res.Data) != "%PDF" || !res.UpdatedAt.Equal(time.Unix(0, 0)) {
		t.Fatalf("Export(pdf) = %+v, %v", res, err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatHTML {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("PDF"); err != nil || f != FormatPDF {
		t.Fatalf("ParseFormat(PDF) = %q, %v", f, err)
	}
	if _, err := ParseFormat("rtf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFormat(rtf) error = %v", err)
	}
}
