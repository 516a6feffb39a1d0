// Package search indexes document text and answers full-text queries,
// through Meilisearch when it is reachable and PostgreSQL or an in-process
// index otherwise.
package search

import (
	"regexp"
	"strings"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Key      string   `json:"key"`
	Mode     string   `json:"mode"`
	Snippet  string   `json:"snippet"`
	Emotions []string `json:"emotions,omitempty"`
}

// Query describes a search request. An empty Mode searches every mode.
type Query struct {
	Text   string
	Mode   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is what gets indexed for one stored document.
type DocumentRecord struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Mode     string   `json:"mode"`
	Text     string   `json:"text"`
	Emotions []string `json:"emotions"`
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// RecordID turns a storage key into an id Meilisearch accepts.
func RecordID(key string) string {
	return unsafeID.ReplaceAllString(key, "_")
}

// NewRecord builds the record for a document stored under key.
func NewRecord(key, text string, emotions []string) DocumentRecord {
	mode, _, _ := strings.Cut(key, "-")
	return DocumentRecord{ID: RecordID(key), Key: key, Mode: mode, Text: text, Emotions: emotions}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
