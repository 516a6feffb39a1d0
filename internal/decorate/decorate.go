// Package decorate derives emotion annotations from document text. Nothing
// here mutates the document.
package decorate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"moodpad/internal/document"
)

// DefaultVocabulary is the set of emotion words recognized out of the box.
var DefaultVocabulary = []string{"happy", "sad"}

// Decoration marks a whole-word emotion match inside one leaf.
type Decoration struct {
	Range   document.Range
	Emotion string
}

// Matcher finds vocabulary words in leaf text.
type Matcher struct {
	re *regexp.Regexp
}

func NewMatcher(words ...string) *Matcher {
	if len(words) == 0 {
		words = DefaultVocabulary
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	return &Matcher{re: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)}
}

// Leaf returns the decorations for one leaf's text at path. Offsets are rune
// offsets into that leaf.
func (m *Matcher) Leaf(path document.Path, text string) []Decoration {
	var out []Decoration
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		start := utf8.RuneCountInString(text[:loc[0]])
		end := start + utf8.RuneCountInString(text[loc[0]:loc[1]])
		out = append(out, Decoration{
			Range: document.Range{
				Anchor: document.Point{Path: path.Clone(), Offset: start},
				Focus:  document.Point{Path: path.Clone(), Offset: end},
			},
			Emotion: strings.ToLower(text[loc[0]:loc[1]]),
		})
	}
	return out
}

// Document walks every leaf depth-first and collects decorations in order.
func (m *Matcher) Document(doc *document.Document) []Decoration {
	var out []Decoration
	for _, leaf := range doc.Leaves() {
		out = append(out, m.Leaf(leaf.Path, leaf.Text)...)
	}
	return out
}

var defaultMatcher = NewMatcher()

// Decorate runs the default vocabulary over doc.
func Decorate(doc *document.Document) []Decoration {
	return defaultMatcher.Document(doc)
}
