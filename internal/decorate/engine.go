package decorate

import "moodpad/internal/document"

// Engine keeps the decorations of the latest document state. It is the first
// listener on the document.
type Engine struct {
	matcher  *Matcher
	current  []Decoration
	onUpdate func([]Decoration)
}

func NewEngine(m *Matcher, onUpdate func([]Decoration)) *Engine {
	if m == nil {
		m = defaultMatcher
	}
	return &Engine{matcher: m, onUpdate: onUpdate}
}

// Refresh recomputes from doc without waiting for a change.
func (e *Engine) Refresh(doc *document.Document) {
	e.current = e.matcher.Document(doc)
	if e.onUpdate != nil {
		e.onUpdate(e.current)
	}
}

func (e *Engine) OnChange(c document.Change) {
	if c.SelectionOnly() {
		return
	}
	e.Refresh(c.Doc)
}

func (e *Engine) Current() []Decoration {
	return e.current
}
