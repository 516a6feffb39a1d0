package collab

import (
	"fmt"

	"moodpad/internal/document"
)

// Mutations turns a text delta into document mutations. The insert goes in
// at the end of the replaced span before the span is deleted, so neither
// point is invalidated by the other.
func Mutations(doc *document.Document, d Delta) ([]document.Mutation, error) {
	if d.Empty() {
		return nil, nil
	}
	start, err := doc.PointAt(d.Pos)
	if err != nil {
		return nil, fmt.Errorf("locate delta start %d: %w", d.Pos, err)
	}
	end := start
	if d.Delete > 0 {
		if end, err = doc.PointAt(d.Pos + d.Delete); err != nil {
			return nil, fmt.Errorf("locate delta end %d: %w", d.Pos+d.Delete, err)
		}
	}
	var ms []document.Mutation
	if d.Insert != "" {
		ms = append(ms, document.InsertText{At: end, Text: d.Insert})
	}
	if d.Delete > 0 {
		ms = append(ms, document.DeleteRange{At: document.Range{Anchor: start, Focus: end}})
	}
	return ms, nil
}
