package search

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Local is an in-process index used when no search backend is configured.
// It matches every query term as a case-insensitive substring.
type Local struct {
	mu      sync.RWMutex
	records map[string]DocumentRecord
}

func NewLocal() *Local {
	return &Local{records: map[string]DocumentRecord{}}
}

func (l *Local) Healthy() bool { return true }

func (l *Local) Index(docs ...DocumentRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range docs {
		l.records[d.Key] = d
	}
}

func (l *Local) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

func (l *Local) Search(q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	l.mu.RLock()
	var hits []DocumentRecord
	for _, d := range l.records {
		if q.Mode != "" && d.Mode != q.Mode {
			continue
		}
		if containsAll(strings.ToLower(d.Text), terms) {
			hits = append(hits, d)
		}
	}
	l.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Key < hits[j].Key })
	total := len(hits)
	start := min(max(q.Offset, 0), total)
	end := min(start+normalizeLimit(q.Limit), total)

	results := make([]Result, 0, end-start)
	for _, d := range hits[start:end] {
		results = append(results, Result{Key: d.Key, Mode: d.Mode, Snippet: snippet(d.Text, terms[0]), Emotions: d.Emotions})
	}
	return results, total, nil
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// snippet cuts about 30 runes of context either side of the first match.
func snippet(text, term string) string {
	runes := []rune(text)
	lower := strings.ToLower(text)
	at := 0
	if idx := strings.Index(lower, term); idx > 0 {
		at = min(utf8.RuneCountInString(lower[:idx]), len(runes))
	}
	from := max(at-30, 0)
	to := min(at+len([]rune(term))+30, len(runes))
	return strings.TrimSpace(string(runes[from:to]))
}
