package command

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"moodpad/internal/document"
)

var ErrNotComposing = errors.New("command menu is not open")

type State int

const (
	StateIdle State = iota
	StateComposing
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// TriggerState is what a menu needs to draw itself.
type TriggerState struct {
	State    State
	Range    document.Range
	Query    string
	Filtered []Command
	Selected int
}

func (s TriggerState) Active() bool { return s.State == StateComposing }

// slash followed by word characters, ending at the cursor
var triggerPattern = regexp.MustCompile(`/(\w*)$`)

// Trigger watches the text before the cursor for a slash command.
type Trigger struct {
	registry *Registry
	state    TriggerState
	onUpdate func(TriggerState)
}

func NewTrigger(r *Registry, onUpdate func(TriggerState)) *Trigger {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Trigger{registry: r, onUpdate: onUpdate}
}

func (t *Trigger) State() TriggerState {
	s := t.state
	s.Filtered = append([]Command(nil), s.Filtered...)
	return s
}

func (t *Trigger) OnChange(c document.Change) {
	if t.state.State == StateExecuting {
		return
	}
	t.detect(c.Doc)
}

func (t *Trigger) detect(doc *document.Document) {
	sel := doc.Selection()
	if !sel.IsCollapsed() || len(sel.Focus.Path) == 0 {
		t.reset()
		return
	}
	leaf, err := doc.Node(sel.Focus.Path)
	if err != nil {
		t.reset()
		return
	}
	before := string([]rune(leaf.Text)[:sel.Focus.Offset])
	loc := triggerPattern.FindStringSubmatchIndex(before)
	if loc == nil {
		t.reset()
		return
	}
	query := before[loc[2]:loc[3]]
	filtered := t.registry.Filter(query)
	if len(filtered) == 0 {
		t.reset()
		return
	}

	start := sel.Focus.Offset - utf8.RuneCountInString(before[loc[0]:])
	selected := t.state.Selected
	if t.state.State != StateComposing {
		selected = 0
	}
	if selected >= len(filtered) {
		selected = len(filtered) - 1
	}
	t.state = TriggerState{
		State: StateComposing,
		Range: document.Range{
			Anchor: document.Point{Path: sel.Focus.Path.Clone(), Offset: start},
			Focus:  sel.Focus.Clone(),
		},
		Query:    query,
		Filtered: filtered,
		Selected: selected,
	}
	t.emit()
}

func (t *Trigger) Next() error {
	if t.state.State != StateComposing {
		return ErrNotComposing
	}
	t.state.Selected = (t.state.Selected + 1) % len(t.state.Filtered)
	t.emit()
	return nil
}

func (t *Trigger) Prev() error {
	if t.state.State != StateComposing {
		return ErrNotComposing
	}
	n := len(t.state.Filtered)
	t.state.Selected = (t.state.Selected - 1 + n) % n
	t.emit()
	return nil
}

// Confirm moves to Executing and hands back the chosen command with the
// range of the trigger token.
func (t *Trigger) Confirm() (Command, document.Range, error) {
	if t.state.State != StateComposing {
		return Command{}, document.Range{}, ErrNotComposing
	}
	cmd := t.state.Filtered[t.state.Selected]
	rng := t.state.Range.Clone()
	t.state.State = StateExecuting
	t.emit()
	return cmd, rng, nil
}

// Cancel closes the menu without running anything.
func (t *Trigger) Cancel() {
	if t.state.State == StateComposing {
		t.reset()
	}
}

// Finish returns to Idle once the confirmed action completed.
func (t *Trigger) Finish() {
	if t.state.State == StateExecuting {
		t.state = TriggerState{}
		t.emit()
	}
}

func (t *Trigger) reset() {
	if t.state.State == StateIdle {
		return
	}
	t.state = TriggerState{}
	t.emit()
}

func (t *Trigger) emit() {
	if t.onUpdate != nil {
		t.onUpdate(t.State())
	}
}
