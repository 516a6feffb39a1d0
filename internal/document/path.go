package document

import (
	"fmt"
	"strings"
)

// Path is a sequence of child indexes from the root. Paths are derived from
// the tree on demand and go stale after the next mutation.
type Path []int

func (p Path) Equal(o Path) bool {
	return p.Compare(o) == 0
}

// Compare orders paths in document order. A path sorts before its descendants.
func (p Path) Compare(o Path) int {
	for i := 0; i < len(p) && i < len(o); i++ {
		switch {
		case p[i] < o[i]:
			return -1
		case p[i] > o[i]:
			return 1
		}
	}
	switch {
	case len(p) < len(o):
		return -1
	case len(p) > len(o):
		return 1
	default:
		return 0
	}
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1].Clone()
}

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = fmt.Sprint(idx)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Point addresses a rune offset inside the Leaf at Path.
type Point struct {
	Path   Path
	Offset int
}

func (p Point) Compare(o Point) int {
	if c := p.Path.Compare(o.Path); c != 0 {
		return c
	}
	switch {
	case p.Offset < o.Offset:
		return -1
	case p.Offset > o.Offset:
		return 1
	default:
		return 0
	}
}

func (p Point) Clone() Point {
	return Point{Path: p.Path.Clone(), Offset: p.Offset}
}

func (p Point) String() string {
	return fmt.Sprintf("%s:%d", p.Path, p.Offset)
}

// Range is an anchor and a focus. The anchor may come after the focus.
type Range struct {
	Anchor Point
	Focus  Point
}

// Collapsed returns the empty Range at p.
func Collapsed(p Point) Range {
	return Range{Anchor: p.Clone(), Focus: p.Clone()}
}

func (r Range) IsCollapsed() bool {
	return r.Anchor.Compare(r.Focus) == 0
}

// Edges returns the range endpoints in document order.
func (r Range) Edges() (start, end Point) {
	if r.Anchor.Compare(r.Focus) <= 0 {
		return r.Anchor, r.Focus
	}
	return r.Focus, r.Anchor
}

func (r Range) Start() Point {
	start, _ := r.Edges()
	return start
}

func (r Range) End() Point {
	_, end := r.Edges()
	return end
}

func (r Range) Clone() Range {
	return Range{Anchor: r.Anchor.Clone(), Focus: r.Focus.Clone()}
}
