// Package command holds the slash-command registry, the built-in actions and
// the trigger state machine that drives the command menu.
package command

import (
	"errors"
	"fmt"
	"strings"

	"moodpad/internal/document"
)

var ErrUnknownCommand = errors.New("unknown command")

// Target is the editing surface an action runs against.
type Target interface {
	Doc() *document.Document
	Apply(ms ...document.Mutation) error
	// Rewrite starts an asynchronous rewrite of text. The result replaces the
	// whole document once it arrives.
	Rewrite(text string) error
}

// Action runs after the trigger token was deleted. at is where the token
// started.
type Action func(t Target, at document.Point) error

type Command struct {
	ID          string
	Label       string
	Description string
	Action      Action
}

type Registry struct {
	commands []Command
	byID     map[string]Command
}

func NewRegistry(cmds ...Command) *Registry {
	r := &Registry{byID: make(map[string]Command, len(cmds))}
	for _, c := range cmds {
		r.commands = append(r.commands, c)
		r.byID[c.ID] = c
	}
	return r
}

// DefaultRegistry holds Rewrite, Bold, Italic and Underline.
func DefaultRegistry() *Registry {
	return NewRegistry(Builtins()...)
}

func (r *Registry) All() []Command {
	return append([]Command(nil), r.commands...)
}

func (r *Registry) Get(id string) (Command, error) {
	c, ok := r.byID[id]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return c, nil
}

// Filter keeps commands whose label starts with query, ignoring case, in
// registry order.
func (r *Registry) Filter(query string) []Command {
	q := strings.ToLower(query)
	var out []Command
	for _, c := range r.commands {
		if strings.HasPrefix(strings.ToLower(c.Label), q) {
			out = append(out, c)
		}
	}
	return out
}

func Builtins() []Command {
	return []Command{
		{
			ID:          "rewrite",
			Label:       "Rewrite",
			Description: "Rewrite everything above in this page's tone",
			Action:      rewriteAbove,
		},
		{
			ID:          "bold",
			Label:       "Bold",
			Description: "Toggle bold on the text above",
			Action:      toggleAbove(document.MarkBold),
		},
		{
			ID:          "italic",
			Label:       "Italic",
			Description: "Toggle italic on the text above",
			Action:      toggleAbove(document.MarkItalic),
		},
		{
			ID:          "underline",
			Label:       "Underline",
			Description: "Toggle underline on the text above",
			Action:      toggleAbove(document.MarkUnderline),
		},
	}
}

func rewriteAbove(t Target, at document.Point) error {
	text, err := t.Doc().TextBefore(at)
	if err != nil {
		return fmt.Errorf("read text before trigger: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return t.Rewrite(text)
}

// toggleAbove flips mark over everything before the trigger and then moves
// the cursor to the end of the document.
func toggleAbove(mark document.Mark) Action {
	return func(t Target, at document.Point) error {
		doc := t.Doc()
		r := document.Range{Anchor: doc.Start(), Focus: at}
		if !r.IsCollapsed() {
			value := !doc.MarkActive(r, mark)
			if err := t.Apply(document.SetMark{At: r, Mark: mark, Value: value}); err != nil {
				return fmt.Errorf("set %s: %w", mark, err)
			}
		}
		end := doc.End()
		if err := t.Apply(document.SetSelection{Selection: document.Collapsed(end)}); err != nil {
			return fmt.Errorf("move cursor to end: %w", err)
		}
		return nil
	}
}
