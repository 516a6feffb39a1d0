package document

import "strings"

// Kind tells a Block from a Leaf.
type Kind int

const (
	KindBlock Kind = iota + 1
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindLeaf:
		return "leaf"
	default:
		return "invalid"
	}
}

// Block types used by the editor. The schema does not restrict the set.
const (
	TypeRoot      = "root"
	TypeParagraph = "paragraph"
)

// Mark names a boolean formatting attribute carried by a Leaf.
type Mark string

const (
	MarkBold          Mark = "bold"
	MarkItalic        Mark = "italic"
	MarkUnderline     Mark = "underline"
	MarkStrikethrough Mark = "strikethrough"
	MarkCode          Mark = "code"
)

func (m Mark) Valid() bool {
	switch m {
	case MarkBold, MarkItalic, MarkUnderline, MarkStrikethrough, MarkCode:
		return true
	default:
		return false
	}
}

// Marks is the closed set of formatting attributes on a Leaf. The emotion tag
// is never stored; it is derived from the text by the decorate package.
type Marks struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Code          bool
}

func (m Marks) Has(mark Mark) bool {
	switch mark {
	case MarkBold:
		return m.Bold
	case MarkItalic:
		return m.Italic
	case MarkUnderline:
		return m.Underline
	case MarkStrikethrough:
		return m.Strikethrough
	case MarkCode:
		return m.Code
	default:
		return false
	}
}

func (m Marks) With(mark Mark, on bool) Marks {
	switch mark {
	case MarkBold:
		m.Bold = on
	case MarkItalic:
		m.Italic = on
	case MarkUnderline:
		m.Underline = on
	case MarkStrikethrough:
		m.Strikethrough = on
	case MarkCode:
		m.Code = on
	}
	return m
}

// Node is the value form of a document subtree. It is what callers build,
// insert, and read back; the Document itself stores nodes in an arena.
type Node struct {
	Kind     Kind
	Type     string
	Children []Node
	Text     string
	Marks    Marks
}

func Block(typ string, children ...Node) Node {
	return Node{Kind: KindBlock, Type: typ, Children: children}
}

func Leaf(text string, marks Marks) Node {
	return Node{Kind: KindLeaf, Text: text, Marks: marks}
}

// Text returns an unformatted Leaf.
func Text(text string) Node {
	return Leaf(text, Marks{})
}

// Paragraph returns a paragraph Block holding a single unformatted Leaf.
func Paragraph(text string) Node {
	return Block(TypeParagraph, Text(text))
}

func (n Node) IsBlock() bool { return n.Kind == KindBlock }

// PlainText flattens the subtree with the same rules as Document.Text.
func (n Node) PlainText() string {
	if n.Kind == KindLeaf {
		return n.Text
	}
	var b strings.Builder
	for i, c := range n.Children {
		if i > 0 && (c.IsBlock() || n.Children[i-1].IsBlock()) {
			b.WriteByte('\n')
		}
		b.WriteString(c.PlainText())
	}
	return b.String()
}
