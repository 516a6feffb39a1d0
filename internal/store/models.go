package store

import (
	"encoding/json"
	"time"
)

// Document is one persisted editor document. Body holds the node tree as
// JSON and Text its plain-text rendering, kept for full-text search.
type Document struct {
	Key       string
	Mode      string
	Body      json.RawMessage
	Text      string
	UpdatedAt time.Time
}
