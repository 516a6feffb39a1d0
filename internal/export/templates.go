package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate = template.Must(template.New("document.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string { return t.Format(layout) },
}).ParseFS(templateFS, "templates/document.html"))

type TemplateData struct {
	Title       string
	Mode        string
	Version     string
	ContentHTML template.HTML
	UpdatedAt   time.Time
	// Emotions counts decorated words by tag.
	Emotions map[string]int
}

func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
