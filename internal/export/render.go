package export

import (
	"html"
	"sort"
	"strings"

	"moodpad/internal/decorate"
	"moodpad/internal/document"
)

var markTags = []struct {
	mark document.Mark
	tag  string
}{
	{document.MarkBold, "strong"},
	{document.MarkItalic, "em"},
	{document.MarkUnderline, "u"},
	{document.MarkStrikethrough, "s"},
	{document.MarkCode, "code"},
}

// ContentHTML renders the node tree. Marked leaves are wrapped in their
// tags and decorated words in <span class="emotion-WORD">.
func ContentHTML(doc *document.Document, decorations []decorate.Decoration) string {
	byLeaf := make(map[string][]decorate.Decoration)
	for _, d := range decorations {
		k := d.Range.Anchor.Path.String()
		byLeaf[k] = append(byLeaf[k], d)
	}
	var b strings.Builder
	for i, child := range doc.Children() {
		renderNode(&b, child, document.Path{i}, byLeaf)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n document.Node, path document.Path, byLeaf map[string][]decorate.Decoration) {
	if !n.IsBlock() {
		renderLeaf(b, n, byLeaf[path.String()])
		return
	}
	tag := "div"
	if n.Type == document.TypeParagraph {
		tag = "p"
	}
	b.WriteString("<" + tag + ">")
	for i, child := range n.Children {
		renderNode(b, child, append(path.Clone(), i), byLeaf)
	}
	b.WriteString("</" + tag + ">\n")
}

func renderLeaf(b *strings.Builder, n document.Node, decs []decorate.Decoration) {
	var open, closing []string
	for _, mt := range markTags {
		if n.Marks.Has(mt.mark) {
			open = append(open, "<"+mt.tag+">")
			closing = append([]string{"</" + mt.tag + ">"}, closing...)
		}
	}
	b.WriteString(strings.Join(open, ""))

	runes := []rune(n.Text)
	sort.Slice(decs, func(i, j int) bool { return decs[i].Range.Anchor.Offset < decs[j].Range.Anchor.Offset })
	at := 0
	for _, d := range decs {
		from, to := d.Range.Anchor.Offset, d.Range.Focus.Offset
		if from < at || to > len(runes) {
			continue
		}
		b.WriteString(html.EscapeString(string(runes[at:from])))
		b.WriteString(`<span class="emotion-` + html.EscapeString(d.Emotion) + `">`)
		b.WriteString(html.EscapeString(string(runes[from:to])))
		b.WriteString("</span>")
		at = to
	}
	b.WriteString(html.EscapeString(string(runes[at:])))
	b.WriteString(strings.Join(closing, ""))
}
