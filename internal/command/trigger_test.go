package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"moodpad/internal/document"
)

func labels(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Label
	}
	return out
}

func typeText(t *testing.T, doc *document.Document, text string) {
	t.Helper()
	at := doc.Selection().Focus
	require.NoError(t, doc.Apply(document.InsertText{At: at, Text: text}))
}

func newComposer(t *testing.T, text string) (*document.Document, *Trigger) {
	t.Helper()
	doc := document.New(document.Paragraph(text))
	require.NoError(t, doc.Apply(document.SetSelection{Selection: document.Collapsed(doc.End())}))
	reg := NewRegistry(Command{ID: "rewrite", Label: "Rewrite"}, Command{ID: "bold", Label: "Bold"})
	tr := NewTrigger(reg, nil)
	doc.Subscribe(tr)
	return doc, tr
}

func TestSlashOpensMenuWithEveryCommand(t *testing.T) {
	doc, tr := newComposer(t, "Today ")
	typeText(t, doc, "/")

	st := tr.State()
	require.Equal(t, StateComposing, st.State)
	require.Equal(t, []string{"Rewrite", "Bold"}, labels(st.Filtered))
	require.Equal(t, 0, st.Selected)
	require.Equal(t, 6, st.Range.Anchor.Offset)
	require.Equal(t, 7, st.Range.Focus.Offset)
}

func TestQueryFiltersByLabelPrefix(t *testing.T) {
	doc, tr := newComposer(t, "Today was bad")
	typeText(t, doc, "/")
	typeText(t, doc, "RE")

	st := tr.State()
	require.True(t, st.Active())
	require.Equal(t, "RE", st.Query)
	require.Equal(t, []string{"Rewrite"}, labels(st.Filtered))
}

func TestNoMatchGoesIdle(t *testing.T) {
	doc, tr := newComposer(t, "")
	typeText(t, doc, "/x")
	require.Equal(t, StateIdle, tr.State().State)
	require.ErrorIs(t, tr.Next(), ErrNotComposing)
}

func TestWhitespaceEndsTrigger(t *testing.T) {
	doc, tr := newComposer(t, "")
	typeText(t, doc, "/re")
	require.True(t, tr.State().Active())
	typeText(t, doc, " ")
	require.False(t, tr.State().Active())
}

func TestNavigationWraps(t *testing.T) {
	doc, tr := newComposer(t, "")
	typeText(t, doc, "/")

	require.NoError(t, tr.Next())
	require.Equal(t, 1, tr.State().Selected)
	require.NoError(t, tr.Next())
	require.Equal(t, 0, tr.State().Selected)
	require.NoError(t, tr.Prev())
	require.Equal(t, 1, tr.State().Selected)
}

func TestSelectedIndexClampsWhenFilterShrinks(t *testing.T) {
	doc, tr := newComposer(t, "")
	typeText(t, doc, "/")
	require.NoError(t, tr.Next())
	typeText(t, doc, "r")
	require.Equal(t, 0, tr.State().Selected)
	require.Equal(t, []string{"Rewrite"}, labels(tr.State().Filtered))
}

func TestConfirmExecutesThenFinishes(t *testing.T) {
	doc, tr := newComposer(t, "Hi ")
	typeText(t, doc, "/b")

	cmd, rng, err := tr.Confirm()
	require.NoError(t, err)
	require.Equal(t, "bold", cmd.ID)
	require.Equal(t, 3, rng.Start().Offset)
	require.Equal(t, StateExecuting, tr.State().State)

	// edits during execution do not reopen the menu
	require.NoError(t, doc.Apply(document.DeleteRange{At: rng}))
	require.Equal(t, StateExecuting, tr.State().State)

	tr.Finish()
	require.Equal(t, StateIdle, tr.State().State)
	_, _, err = tr.Confirm()
	require.ErrorIs(t, err, ErrNotComposing)
}

func TestCancelClosesMenu(t *testing.T) {
	doc, tr := newComposer(t, "")
	var seen []State
	tr.onUpdate = func(s TriggerState) { seen = append(seen, s.State) }
	typeText(t, doc, "/")
	tr.Cancel()
	require.Equal(t, []State{StateComposing, StateIdle}, seen)
}

func TestExpandedSelectionNeverTriggers(t *testing.T) {
	doc, tr := newComposer(t, "/re")
	require.NoError(t, doc.Apply(document.SetSelection{Selection: document.Range{
		Anchor: document.Point{Path: document.Path{0, 0}},
		Focus:  document.Point{Path: document.Path{0, 0}, Offset: 3},
	}}))
	require.False(t, tr.State().Active())
}
