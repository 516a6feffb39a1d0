package document

import (
	"encoding/json"
	"fmt"
)

type blockJSON struct {
	Type     string `json:"type"`
	Children []Node `json:"children"`
}

type leafJSON struct {
	Text          string `json:"text"`
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Code          bool   `json:"code,omitempty"`
}

// MarshalJSON writes blocks as {"type","children"} and leaves as
// {"text", marks...}.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindBlock:
		children := n.Children
		if children == nil {
			children = []Node{}
		}
		return json.Marshal(blockJSON{Type: n.Type, Children: children})
	case KindLeaf:
		return json.Marshal(leafJSON{
			Text:          n.Text,
			Bold:          n.Marks.Bold,
			Italic:        n.Marks.Italic,
			Underline:     n.Marks.Underline,
			Strikethrough: n.Marks.Strikethrough,
			Code:          n.Marks.Code,
		})
	default:
		return nil, fmt.Errorf("marshal node: %w", ErrInvalidNode)
	}
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string  `json:"type"`
		Children []Node  `json:"children"`
		Text     *string `json:"text"`
		leafJSON
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Text != nil:
		*n = Leaf(*raw.Text, Marks{
			Bold:          raw.Bold,
			Italic:        raw.Italic,
			Underline:     raw.Underline,
			Strikethrough: raw.Strikethrough,
			Code:          raw.Code,
		})
	case raw.Children != nil || raw.Type != "":
		*n = Block(raw.Type, raw.Children...)
	default:
		return fmt.Errorf("unmarshal node: %w", ErrInvalidNode)
	}
	return nil
}

// MarshalJSON encodes the root's children as a JSON array.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Children())
}

// Parse decodes a JSON array of nodes into a new Document. Input without a
// single leaf, such as [] or null, parses as Default so there is always
// somewhere to type.
func Parse(data []byte) (*Document, error) {
	var children []Node
	if err := json.Unmarshal(data, &children); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	d := New(children...)
	if len(d.leafIDs()) == 0 {
		return Default(), nil
	}
	return d, nil
}
