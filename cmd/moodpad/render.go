package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"moodpad/internal/collab"
	"moodpad/internal/command"
	"moodpad/internal/decorate"
	"moodpad/internal/document"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Padding(0, 2)
	menuStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	menuSelected  = lipgloss.NewStyle().Reverse(true)
	menuDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	emotionStyles = map[string]lipgloss.Style{
		"happy": lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		"sad":   lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Italic(true),
	}
	modeTitles = map[string]string{
		"happy": "Happy Editor",
		"sad":   "Sad Editor",
	}
)

func (m model) View() string {
	var b strings.Builder

	title := modeTitles[m.mode]
	if title == "" {
		title = "moodpad"
	}
	header := titleStyle.Render(title)
	if m.room != "" {
		header += statusStyle.Render("  room " + m.room + " · " + linkLabel(m.ui.link))
	}
	b.WriteString(header + "\n\n")

	doc := m.ed.Document()
	b.WriteString(renderDocument(doc, m.ed.Decorations(), doc.Selection().Focus))
	b.WriteString("\n")

	if menu := renderMenu(m.ed.Trigger(), m.ed.Rewriting()); menu != "" {
		b.WriteString(menu + "\n")
	}

	if m.ui.status != "" {
		style := statusStyle
		if m.ui.statusErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.ui.status) + "\n")
	}
	b.WriteString(footerStyle.Render("/ commands · ctrl+z undo · ctrl+y redo · ctrl+s save · ctrl+c quit"))
	return b.String()
}

func linkLabel(s collab.Status) string {
	switch s {
	case collab.StatusConnected:
		return "connected"
	case collab.StatusConnecting:
		return "connecting"
	default:
		return "offline"
	}
}

// renderDocument draws one line per top-level block, styling marks and
// emotion words and showing the cursor at focus.
func renderDocument(doc *document.Document, decorations []decorate.Decoration, focus document.Point) string {
	byLeaf := make(map[string][]decorate.Decoration)
	for _, d := range decorations {
		key := d.Range.Anchor.Path.String()
		byLeaf[key] = append(byLeaf[key], d)
	}

	var lines []string
	var line strings.Builder
	block := -1
	for _, leaf := range doc.Leaves() {
		if len(leaf.Path) == 0 {
			continue
		}
		if leaf.Path[0] != block {
			if block >= 0 {
				lines = append(lines, line.String())
				line.Reset()
			}
			block = leaf.Path[0]
		}
		cursor := -1
		if leaf.Path.Equal(focus.Path) {
			cursor = focus.Offset
		}
		line.WriteString(renderLeaf(leaf, byLeaf[leaf.Path.String()], cursor))
	}
	if block >= 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func markStyle(marks document.Marks) lipgloss.Style {
	s := lipgloss.NewStyle()
	if marks.Bold {
		s = s.Bold(true)
	}
	if marks.Italic {
		s = s.Italic(true)
	}
	if marks.Underline {
		s = s.Underline(true)
	}
	if marks.Strikethrough {
		s = s.Strikethrough(true)
	}
	if marks.Code {
		s = s.Foreground(lipgloss.Color("208"))
	}
	return s
}

// renderLeaf styles runs of runes that share an emotion, then overlays the
// cursor. cursor < 0 means the cursor is elsewhere.
func renderLeaf(leaf document.LeafInfo, decorations []decorate.Decoration, cursor int) string {
	runes := []rune(leaf.Text)
	emotion := make([]string, len(runes))
	for _, d := range decorations {
		for i := d.Range.Start().Offset; i < d.Range.End().Offset && i < len(runes); i++ {
			emotion[i] = d.Emotion
		}
	}

	base := markStyle(leaf.Marks)
	var b strings.Builder
	flush := func(from, to int) {
		if from >= to {
			return
		}
		style := base
		if es, ok := emotionStyles[emotion[from]]; ok {
			style = es.Inherit(base)
		}
		b.WriteString(style.Render(string(runes[from:to])))
	}

	start := 0
	for i := 0; i <= len(runes); i++ {
		boundary := i == len(runes) || i == cursor || (i > start && emotion[i] != emotion[i-1])
		if !boundary {
			continue
		}
		flush(start, i)
		start = i
		if i == cursor {
			ch := " "
			if i < len(runes) {
				ch = string(runes[i])
				start = i + 1
			}
			b.WriteString(cursorStyle.Render(ch))
		}
	}
	return b.String()
}

func renderMenu(state command.TriggerState, rewriting bool) string {
	if rewriting {
		return menuStyle.Render(menuDimStyle.Render("Rewriting..."))
	}
	if !state.Active() {
		return ""
	}
	rows := make([]string, 0, len(state.Filtered))
	for i, c := range state.Filtered {
		row := "/" + c.ID + "  " + menuDimStyle.Render(c.Description)
		if i == state.Selected {
			row = menuSelected.Render("/"+c.ID) + "  " + menuDimStyle.Render(c.Description)
		}
		rows = append(rows, row)
	}
	return menuStyle.Render(strings.Join(rows, "\n"))
}
