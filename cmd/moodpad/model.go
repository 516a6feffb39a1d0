package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"moodpad/internal/collab"
	"moodpad/internal/document"
	"moodpad/internal/editor"
	"moodpad/internal/history"
)

type editorWakeMsg struct{}

type savedMsg struct {
	saved savedVersion
	err   error
}

// uiState is written by editor callbacks, which run inside Update.
type uiState struct {
	status    string
	statusErr bool
	link      collab.Status
}

func (u *uiState) setError(err error) {
	if err == nil {
		return
	}
	u.status = err.Error()
	u.statusErr = true
}

func (u *uiState) setStatus(s string) {
	u.status = s
	u.statusErr = false
}

type model struct {
	ed   *editor.Editor
	api  *apiClient
	key  string
	mode string
	room string
	ui   *uiState

	width  int
	height int
	saving bool
}

func newModel(ed *editor.Editor, api *apiClient, key, mode, room string, ui *uiState) model {
	if ui == nil {
		ui = &uiState{}
	}
	return model{ed: ed, api: api, key: key, mode: mode, room: room, ui: ui}
}

// waitEditor turns work posted to the editor, such as remote edits and
// rewrite results, into a message for Update.
func waitEditor(ed *editor.Editor) tea.Cmd {
	return func() tea.Msg {
		<-ed.Wake()
		return editorWakeMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return waitEditor(m.ed)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case editorWakeMsg:
		m.ed.Drain()
		return m, waitEditor(m.ed)
	case savedMsg:
		m.saving = false
		switch {
		case msg.err != nil:
			m.ui.setError(fmt.Errorf("save failed: %w", msg.err))
		case !msg.saved.Changed:
			m.ui.setStatus("No changes.")
		case msg.saved.Version != nil:
			m.ui.setStatus("Saved " + msg.saved.Version.Hash + ".")
		default:
			m.ui.setStatus("Saved.")
		}
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ed.Trigger().Active() {
		switch msg.Type {
		case tea.KeyUp:
			m.ui.setError(m.ed.PrevCommand())
			return m, nil
		case tea.KeyDown, tea.KeyTab:
			m.ui.setError(m.ed.NextCommand())
			return m, nil
		case tea.KeyEnter:
			m.ui.setError(m.ed.Confirm())
			return m, nil
		case tea.KeyEsc:
			m.ed.CancelCommand()
			return m, nil
		}
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit
	case tea.KeyCtrlS:
		if m.saving || m.api == nil {
			return m, nil
		}
		cmd, err := m.saveCmd()
		if err != nil {
			m.ui.setError(err)
			return m, nil
		}
		m.saving = true
		m.ui.setStatus("Saving...")
		return m, cmd
	case tea.KeyCtrlZ:
		m.ui.setError(ignoreEmpty(m.ed.Undo()))
	case tea.KeyCtrlY:
		m.ui.setError(ignoreEmpty(m.ed.Redo()))
	case tea.KeyBackspace:
		m.ui.setError(m.ed.Backspace())
	case tea.KeyEnter:
		m.ui.setError(m.newParagraph())
	case tea.KeyLeft:
		m.ui.setError(m.move(-1))
	case tea.KeyRight:
		m.ui.setError(m.move(1))
	case tea.KeyEnd:
		m.ui.setError(m.ed.MoveToEnd())
	case tea.KeySpace:
		m.ui.setError(m.ed.Insert(" "))
	case tea.KeyRunes:
		m.ui.setError(m.ed.Insert(string(msg.Runes)))
	}
	return m, nil
}

func ignoreEmpty(err error) error {
	if errors.Is(err, history.ErrEmpty) {
		return nil
	}
	return err
}

// newParagraph splits the block holding the cursor: text after the cursor,
// and any later leaves, move into a new block below it.
func (m model) newParagraph() error {
	doc := m.ed.Document()
	if sel := doc.Selection(); !sel.IsCollapsed() {
		if err := m.ed.Apply(document.DeleteRange{At: sel}); err != nil {
			return err
		}
	}
	focus := doc.Selection().Focus
	if len(focus.Path) != 2 {
		at := len(doc.Children())
		if len(focus.Path) > 0 {
			at = focus.Path[0] + 1
		}
		return m.ed.Apply(
			document.InsertNode{At: document.Path{at}, Node: document.Paragraph("")},
			document.SetSelection{Selection: document.Collapsed(document.Point{Path: document.Path{at, 0}})},
		)
	}

	block, err := doc.Node(document.Path{focus.Path[0]})
	if err != nil {
		return err
	}
	leaf := block.Children[focus.Path[1]]
	text := []rune(leaf.Text)
	tail := []document.Node{document.Leaf(string(text[focus.Offset:]), leaf.Marks)}
	tail = append(tail, block.Children[focus.Path[1]+1:]...)

	last := block.Children[len(block.Children)-1]
	if last.Kind != document.KindLeaf {
		return fmt.Errorf("split %s: nested blocks are not supported", block.Type)
	}
	typ := block.Type
	end := document.Point{Path: document.Path{focus.Path[0], len(block.Children) - 1}, Offset: len([]rune(last.Text))}
	if focus.Compare(end) == 0 {
		typ = document.TypeParagraph
	}
	below := document.Path{focus.Path[0] + 1}
	return m.ed.Apply(
		document.DeleteRange{At: document.Range{Anchor: focus, Focus: end}},
		document.InsertNode{At: below, Node: document.Block(typ, tail...)},
		document.SetSelection{Selection: document.Collapsed(document.Point{Path: document.Path{below[0], 0}})},
	)
}

func (m model) move(delta int) error {
	doc := m.ed.Document()
	pos, err := doc.Linear(doc.Selection().Focus)
	if err != nil {
		return err
	}
	end, err := doc.Linear(doc.End())
	if err != nil {
		return err
	}
	pos = min(max(pos+delta, 0), end)
	p, err := doc.PointAt(pos)
	if err != nil {
		return err
	}
	return m.ed.Select(document.Collapsed(p))
}

// saveCmd snapshots the document now and uploads it in the background.
func (m model) saveCmd() (tea.Cmd, error) {
	body, err := json.Marshal(m.ed.Document())
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	api, key := m.api, m.key
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		saved, err := api.save(ctx, key, body)
		return savedMsg{saved: saved, err: err}
	}, nil
}
