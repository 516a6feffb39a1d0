package document

import (
	"slices"
	"strings"
)

// NodeID identifies a node for its whole lifetime in one Document.
type NodeID uint64

type node struct {
	id       NodeID
	parent   NodeID
	kind     Kind
	typ      string
	children []NodeID
	text     []rune
	marks    Marks
}

// cursor is a selection endpoint held by leaf id, so it survives structural
// edits that change paths. A zero leaf means the document has no leaves.
type cursor struct {
	leaf   NodeID
	offset int
}

// Document is the authoritative tree plus the selection. It is not safe for
// concurrent use; the editor serializes every call onto one goroutine.
type Document struct {
	nodes     map[NodeID]*node
	root      NodeID
	nextID    NodeID
	anchor    cursor
	focus     cursor
	listeners []Listener
	notifying bool
}

// New builds a Document whose root holds children. The selection starts
// collapsed at the beginning of the first leaf.
func New(children ...Node) *Document {
	d := &Document{nodes: make(map[NodeID]*node)}
	root := d.alloc(&node{kind: KindBlock, typ: TypeRoot})
	d.root = root.id
	for _, c := range children {
		if c.Kind != KindBlock && c.Kind != KindLeaf {
			continue
		}
		root.children = append(root.children, d.build(c, d.root))
	}
	if leaves := d.leafIDs(); len(leaves) > 0 {
		d.anchor = cursor{leaf: leaves[0]}
		d.focus = d.anchor
	}
	return d
}

// Default is the document used whenever nothing was stored: one empty paragraph.
func Default() *Document {
	return New(Paragraph(""))
}

// Subscribe appends l to the listener list. Listeners are called in
// subscription order.
func (d *Document) Subscribe(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Root returns a deep copy of the whole tree.
func (d *Document) Root() Node {
	return d.snapshot(d.root)
}

// Children returns deep copies of the root's children.
func (d *Document) Children() []Node {
	return d.Root().Children
}

// Node returns a deep copy of the node at p.
func (d *Document) Node(p Path) (Node, error) {
	n, err := d.resolve(p)
	if err != nil {
		return Node{}, err
	}
	return d.snapshot(n.id), nil
}

// Selection returns the current selection with freshly computed paths.
func (d *Document) Selection() Range {
	return Range{Anchor: d.pointOf(d.anchor), Focus: d.pointOf(d.focus)}
}

// Text flattens the document: leaves concatenate, and siblings where either
// side is a block are separated by a newline.
func (d *Document) Text() string {
	var b strings.Builder
	d.walkText(d.root, &b)
	return b.String()
}

func (d *Document) walkText(id NodeID, b *strings.Builder) {
	n := d.nodes[id]
	if n.kind == KindLeaf {
		b.WriteString(string(n.text))
		return
	}
	for i, c := range n.children {
		if i > 0 && d.separated(n.children[i-1], c) {
			b.WriteByte('\n')
		}
		d.walkText(c, b)
	}
}

func (d *Document) separated(prev, next NodeID) bool {
	return d.nodes[prev].kind == KindBlock || d.nodes[next].kind == KindBlock
}

// LeafInfo describes one leaf in document order.
type LeafInfo struct {
	Path  Path
	Text  string
	Marks Marks
}

func (d *Document) Leaves() []LeafInfo {
	ids := d.leafIDs()
	out := make([]LeafInfo, 0, len(ids))
	for _, id := range ids {
		n := d.nodes[id]
		out = append(out, LeafInfo{Path: d.pathOf(id), Text: string(n.text), Marks: n.marks})
	}
	return out
}

// Start is the first position in the document.
func (d *Document) Start() Point {
	ids := d.leafIDs()
	if len(ids) == 0 {
		return Point{}
	}
	return Point{Path: d.pathOf(ids[0])}
}

// End is the last position in the document.
func (d *Document) End() Point {
	ids := d.leafIDs()
	if len(ids) == 0 {
		return Point{}
	}
	last := ids[len(ids)-1]
	return Point{Path: d.pathOf(last), Offset: len(d.nodes[last].text)}
}

type span struct {
	leaf  NodeID
	start int
	len   int
}

// spans lays the leaves out on the same linear axis as Text.
func (d *Document) spans() ([]span, int) {
	var out []span
	pos := 0
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := d.nodes[id]
		if n.kind == KindLeaf {
			out = append(out, span{leaf: id, start: pos, len: len(n.text)})
			pos += len(n.text)
			return
		}
		for i, c := range n.children {
			if i > 0 && d.separated(n.children[i-1], c) {
				pos++
			}
			walk(c)
		}
	}
	walk(d.root)
	return out, pos
}

// Linear converts p to a rune offset into Text.
func (d *Document) Linear(p Point) (int, error) {
	leaf, err := d.leafAt(p)
	if err != nil {
		return 0, err
	}
	spans, _ := d.spans()
	for _, s := range spans {
		if s.leaf == leaf.id {
			return s.start + p.Offset, nil
		}
	}
	return 0, ErrInvalidPath
}

// PointAt converts a rune offset into Text back to a Point. An offset on a
// leaf boundary resolves to the end of the earlier leaf.
func (d *Document) PointAt(pos int) (Point, error) {
	spans, total := d.spans()
	if len(spans) == 0 {
		return Point{}, ErrInvalidPath
	}
	if pos < 0 || pos > total {
		return Point{}, ErrOutOfBounds
	}
	for _, s := range spans {
		if pos >= s.start && pos <= s.start+s.len {
			return Point{Path: d.pathOf(s.leaf), Offset: pos - s.start}, nil
		}
	}
	// pos sits on a separator ahead of a leaf
	for _, s := range spans {
		if s.start > pos {
			return Point{Path: d.pathOf(s.leaf)}, nil
		}
	}
	return Point{}, ErrOutOfBounds
}

// TextBefore returns the flattened text strictly before p.
func (d *Document) TextBefore(p Point) (string, error) {
	pos, err := d.Linear(p)
	if err != nil {
		return "", err
	}
	return string([]rune(d.Text())[:pos]), nil
}

// MarkActive reports whether every non-empty leaf intersecting r carries mark.
func (d *Document) MarkActive(r Range, mark Mark) bool {
	start, end := r.Edges()
	from, err := d.Linear(start)
	if err != nil {
		return false
	}
	to, err := d.Linear(end)
	if err != nil {
		return false
	}
	spans, _ := d.spans()
	seen := false
	for _, s := range spans {
		if s.len == 0 || s.start >= to || s.start+s.len <= from {
			continue
		}
		seen = true
		if !d.nodes[s.leaf].marks.Has(mark) {
			return false
		}
	}
	return seen
}

// Apply applies ms as one local batch.
func (d *Document) Apply(ms ...Mutation) error {
	return d.ApplyFrom(OriginLocal, ms...)
}

// ApplyFrom applies ms in order as one atomic batch and notifies listeners
// once. If any mutation fails, the ones before it are rolled back and a
// *MutationError is returned.
func (d *Document) ApplyFrom(origin Origin, ms ...Mutation) error {
	if d.notifying {
		return ErrReentrant
	}
	if len(ms) == 0 {
		return nil
	}
	old := d.Selection()

	var inverse []Mutation
	structural := false
	for _, m := range ms {
		inv, err := d.apply(m)
		if err != nil {
			for _, u := range inverse {
				_, _ = d.apply(u)
			}
			_, _ = d.setSelection(SetSelection{Selection: old})
			return &MutationError{Mutation: m, Err: err}
		}
		if _, ok := m.(SetSelection); !ok {
			structural = true
		}
		inverse = append(slices.Clone(inv), inverse...)
	}
	if structural {
		inverse = append(inverse, SetSelection{Selection: old})
	}

	d.notify(Change{
		Origin:       origin,
		Forward:      ms,
		Inverse:      inverse,
		OldSelection: old,
		Doc:          d,
	})
	return nil
}

func (d *Document) notify(c Change) {
	d.notifying = true
	defer func() { d.notifying = false }()
	for _, l := range d.listeners {
		l.OnChange(c)
	}
}

func (d *Document) apply(m Mutation) ([]Mutation, error) {
	switch m := m.(type) {
	case InsertText:
		return d.insertText(m)
	case DeleteRange:
		return d.deleteRange(m)
	case SetMark:
		return d.setMark(m)
	case InsertNode:
		return d.insertNode(m)
	case RemoveNode:
		return d.removeNode(m)
	case SetSelection:
		return d.setSelection(m)
	default:
		return nil, ErrInvalidNode
	}
}

func (d *Document) insertText(m InsertText) ([]Mutation, error) {
	leaf, err := d.leafAt(m.At)
	if err != nil {
		return nil, err
	}
	rs := []rune(m.Text)
	if len(rs) == 0 {
		return nil, nil
	}
	off := m.At.Offset
	leaf.text = slices.Insert(leaf.text, off, rs...)
	d.eachCursor(func(c *cursor) {
		if c.leaf == leaf.id && c.offset >= off {
			c.offset += len(rs)
		}
	})
	at := m.At.Clone()
	end := Point{Path: m.At.Path.Clone(), Offset: off + len(rs)}
	return []Mutation{DeleteRange{At: Range{Anchor: at, Focus: end}}}, nil
}

func (d *Document) deleteRange(m DeleteRange) ([]Mutation, error) {
	start, end := m.At.Edges()
	s, err := d.leafAt(start)
	if err != nil {
		return nil, err
	}
	e, err := d.leafAt(end)
	if err != nil {
		return nil, err
	}
	so, eo := start.Offset, end.Offset

	if s == e {
		if so == eo {
			return nil, nil
		}
		removed := string(s.text[so:eo])
		s.text = slices.Delete(s.text, so, eo)
		d.eachCursor(func(c *cursor) {
			if c.leaf != s.id {
				return
			}
			switch {
			case c.offset > eo:
				c.offset -= eo - so
			case c.offset > so:
				c.offset = so
			}
		})
		return []Mutation{InsertText{At: start.Clone(), Text: removed}}, nil
	}

	before := d.snapshot(d.root).Children
	leaves := d.leafIDs()
	si, ei := slices.Index(leaves, s.id), slices.Index(leaves, e.id)
	between := make(map[NodeID]bool, ei-si)
	for _, id := range leaves[si+1 : ei] {
		between[id] = true
	}
	d.eachCursor(func(c *cursor) {
		switch {
		case c.leaf == s.id && c.offset > so:
			c.offset = so
		case between[c.leaf]:
			*c = cursor{leaf: s.id, offset: so}
		case c.leaf == e.id && c.offset <= eo:
			*c = cursor{leaf: s.id, offset: so}
		case c.leaf == e.id:
			*c = cursor{leaf: s.id, offset: so + c.offset - eo}
		}
	})
	s.text = append(s.text[:so:so], e.text[eo:]...)
	// the merged leaf carries the marks of the side the selection is anchored on
	if m.At.Anchor.Compare(start) != 0 {
		s.marks = e.marks
	}

	if e.parent != s.parent {
		ep := d.nodes[e.parent]
		idx := slices.Index(ep.children, e.id)
		tail := slices.Clone(ep.children[idx+1:])
		ep.children = ep.children[:idx+1]
		sp := d.nodes[s.parent]
		at := slices.Index(sp.children, s.id) + 1
		sp.children = slices.Insert(sp.children, at, tail...)
		for _, id := range tail {
			d.nodes[id].parent = sp.id
		}
	}
	for _, id := range leaves[si+1 : ei+1] {
		d.detach(id)
	}
	d.pruneEmpty(d.root)
	d.normalize()
	return d.restore(before), nil
}

func (d *Document) setMark(m SetMark) ([]Mutation, error) {
	if !m.Mark.Valid() {
		return nil, ErrUnknownMark
	}
	start, end := m.At.Edges()
	s, err := d.leafAt(start)
	if err != nil {
		return nil, err
	}
	e, err := d.leafAt(end)
	if err != nil {
		return nil, err
	}
	if start.Compare(end) == 0 {
		return nil, nil
	}
	before := d.snapshot(d.root).Children

	so, eo := start.Offset, end.Offset
	if right := d.splitLeaf(s, so); right != 0 && s == e {
		e = d.nodes[right]
		eo -= so
	}
	d.splitLeaf(e, eo)

	leaves := d.leafIDs()
	from := slices.Index(leaves, s.id)
	if so > 0 {
		from++
	}
	to := slices.Index(leaves, e.id)
	if eo > 0 {
		to++
	}
	for _, id := range leaves[from:to] {
		n := d.nodes[id]
		n.marks = n.marks.With(m.Mark, m.Value)
	}
	d.normalize()
	return d.restore(before), nil
}

func (d *Document) insertNode(m InsertNode) ([]Mutation, error) {
	if len(m.At) == 0 {
		return nil, ErrInvalidPath
	}
	if !validNode(m.Node) {
		return nil, ErrInvalidNode
	}
	parent, err := d.resolve(m.At[:len(m.At)-1])
	if err != nil {
		return nil, err
	}
	if parent.kind != KindBlock {
		return nil, ErrInvalidPath
	}
	idx := m.At[len(m.At)-1]
	if idx < 0 || idx > len(parent.children) {
		return nil, ErrInvalidPath
	}
	id := d.build(m.Node, parent.id)
	parent.children = slices.Insert(parent.children, idx, id)

	if d.anchor.leaf == 0 || d.focus.leaf == 0 {
		if leaves := d.leafIDs(); len(leaves) > 0 {
			d.anchor = cursor{leaf: leaves[0]}
			d.focus = d.anchor
		}
	}
	return []Mutation{RemoveNode{At: m.At.Clone()}}, nil
}

func (d *Document) removeNode(m RemoveNode) ([]Mutation, error) {
	if len(m.At) == 0 {
		return nil, ErrInvalidPath
	}
	target, err := d.resolve(m.At)
	if err != nil {
		return nil, err
	}
	at := m.At.Clone()
	// Removing the only child of a block removes the block too.
	for target.parent != d.root && len(d.nodes[target.parent].children) == 1 {
		target = d.nodes[target.parent]
		at = at[:len(at)-1]
	}
	snap := d.snapshot(target.id)
	d.evict(target.id)
	return []Mutation{InsertNode{At: at, Node: snap}}, nil
}

func (d *Document) setSelection(m SetSelection) ([]Mutation, error) {
	anchor, err := d.cursorAt(m.Selection.Anchor)
	if err != nil {
		return nil, err
	}
	focus, err := d.cursorAt(m.Selection.Focus)
	if err != nil {
		return nil, err
	}
	old := d.Selection()
	d.anchor, d.focus = anchor, focus
	return []Mutation{SetSelection{Selection: old}}, nil
}

func (d *Document) cursorAt(p Point) (cursor, error) {
	if len(p.Path) == 0 && p.Offset == 0 && len(d.leafIDs()) == 0 {
		return cursor{}, nil
	}
	leaf, err := d.leafAt(p)
	if err != nil {
		return cursor{}, err
	}
	return cursor{leaf: leaf.id, offset: p.Offset}, nil
}

// restore builds the mutations that put the root's children back to before.
func (d *Document) restore(before []Node) []Mutation {
	n := len(d.nodes[d.root].children)
	out := make([]Mutation, 0, n+len(before))
	for range n {
		out = append(out, RemoveNode{At: Path{0}})
	}
	for i, c := range before {
		out = append(out, InsertNode{At: Path{i}, Node: c})
	}
	return out
}

// splitLeaf cuts leaf at off and returns the id of the new right half, or 0
// when off is on an edge and nothing was split.
func (d *Document) splitLeaf(leaf *node, off int) NodeID {
	if off <= 0 || off >= len(leaf.text) {
		return 0
	}
	right := d.alloc(&node{
		parent: leaf.parent,
		kind:   KindLeaf,
		text:   slices.Clone(leaf.text[off:]),
		marks:  leaf.marks,
	})
	leaf.text = leaf.text[:off:off]
	p := d.nodes[leaf.parent]
	p.children = slices.Insert(p.children, slices.Index(p.children, leaf.id)+1, right.id)
	d.eachCursor(func(c *cursor) {
		if c.leaf == leaf.id && c.offset > off {
			*c = cursor{leaf: right.id, offset: c.offset - off}
		}
	})
	return right.id
}

// normalize merges adjacent leaves with equal marks and drops empty leaves
// that have siblings.
func (d *Document) normalize() {
	for _, n := range d.nodes {
		if n.kind != KindBlock || len(n.children) < 2 {
			continue
		}
		out := make([]NodeID, 0, len(n.children))
		for _, id := range n.children {
			cur := d.nodes[id]
			if len(out) > 0 {
				prev := d.nodes[out[len(out)-1]]
				if prev.kind == KindLeaf && cur.kind == KindLeaf {
					switch {
					case prev.marks == cur.marks || len(cur.text) == 0:
						d.absorb(prev, cur)
						continue
					case len(prev.text) == 0:
						d.retarget(prev.id, cursor{leaf: cur.id})
						delete(d.nodes, prev.id)
						out[len(out)-1] = id
						continue
					}
				}
			}
			out = append(out, id)
		}
		n.children = out
	}
}

// absorb appends next's text to prev and frees next. The caller fixes the
// parent's child list.
func (d *Document) absorb(prev, next *node) {
	base := len(prev.text)
	prev.text = append(prev.text, next.text...)
	d.eachCursor(func(c *cursor) {
		if c.leaf == next.id {
			*c = cursor{leaf: prev.id, offset: base + c.offset}
		}
	})
	delete(d.nodes, next.id)
}

func (d *Document) retarget(from NodeID, to cursor) {
	d.eachCursor(func(c *cursor) {
		if c.leaf == from {
			*c = to
		}
	})
}

// evict removes a subtree, moving cursors inside it to the nearest leaf
// outside.
func (d *Document) evict(id NodeID) {
	gone := make(map[NodeID]bool)
	var mark func(NodeID)
	mark = func(n NodeID) {
		gone[n] = true
		for _, c := range d.nodes[n].children {
			mark(c)
		}
	}
	mark(id)

	leaves := d.leafIDs()
	relocate := func(c *cursor) {
		if !gone[c.leaf] {
			return
		}
		i := slices.Index(leaves, c.leaf)
		for j := i - 1; j >= 0; j-- {
			if !gone[leaves[j]] {
				*c = cursor{leaf: leaves[j], offset: len(d.nodes[leaves[j]].text)}
				return
			}
		}
		for j := i + 1; j < len(leaves); j++ {
			if !gone[leaves[j]] {
				*c = cursor{leaf: leaves[j]}
				return
			}
		}
		*c = cursor{}
	}
	relocate(&d.anchor)
	relocate(&d.focus)
	d.detach(id)
}

// detach unlinks a subtree from its parent and frees it.
func (d *Document) detach(id NodeID) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	if p, ok := d.nodes[n.parent]; ok {
		if i := slices.Index(p.children, id); i >= 0 {
			p.children = slices.Delete(p.children, i, i+1)
		}
	}
	var free func(NodeID)
	free = func(x NodeID) {
		for _, c := range d.nodes[x].children {
			free(c)
		}
		delete(d.nodes, x)
	}
	free(id)
}

// pruneEmpty removes non-root blocks left without children.
func (d *Document) pruneEmpty(id NodeID) bool {
	n := d.nodes[id]
	if n.kind == KindLeaf {
		return false
	}
	for _, c := range slices.Clone(n.children) {
		d.pruneEmpty(c)
	}
	if id != d.root && len(n.children) == 0 {
		d.detach(id)
		return true
	}
	return false
}

func (d *Document) eachCursor(fn func(*cursor)) {
	fn(&d.anchor)
	fn(&d.focus)
}

func (d *Document) alloc(n *node) *node {
	d.nextID++
	n.id = d.nextID
	d.nodes[n.id] = n
	return n
}

// build copies a Node value into the arena. Empty blocks get an empty leaf.
func (d *Document) build(v Node, parent NodeID) NodeID {
	if v.Kind == KindLeaf {
		return d.alloc(&node{parent: parent, kind: KindLeaf, text: []rune(v.Text), marks: v.Marks}).id
	}
	n := d.alloc(&node{parent: parent, kind: KindBlock, typ: v.Type})
	for _, c := range v.Children {
		if c.Kind != KindBlock && c.Kind != KindLeaf {
			continue
		}
		n.children = append(n.children, d.build(c, n.id))
	}
	if len(n.children) == 0 {
		n.children = append(n.children, d.alloc(&node{parent: n.id, kind: KindLeaf}).id)
	}
	return n.id
}

func validNode(v Node) bool {
	switch v.Kind {
	case KindLeaf:
		return len(v.Children) == 0
	case KindBlock:
		for _, c := range v.Children {
			if !validNode(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (d *Document) snapshot(id NodeID) Node {
	n := d.nodes[id]
	if n.kind == KindLeaf {
		return Node{Kind: KindLeaf, Text: string(n.text), Marks: n.marks}
	}
	children := make([]Node, len(n.children))
	for i, c := range n.children {
		children[i] = d.snapshot(c)
	}
	return Node{Kind: KindBlock, Type: n.typ, Children: children}
}

func (d *Document) resolve(p Path) (*node, error) {
	n := d.nodes[d.root]
	for _, idx := range p {
		if n.kind != KindBlock || idx < 0 || idx >= len(n.children) {
			return nil, ErrInvalidPath
		}
		n = d.nodes[n.children[idx]]
	}
	return n, nil
}

func (d *Document) leafAt(p Point) (*node, error) {
	n, err := d.resolve(p.Path)
	if err != nil {
		return nil, err
	}
	if n.kind != KindLeaf {
		return nil, ErrInvalidPath
	}
	if p.Offset < 0 || p.Offset > len(n.text) {
		return nil, ErrOutOfBounds
	}
	return n, nil
}

func (d *Document) pathOf(id NodeID) Path {
	var rev Path
	for id != d.root {
		n := d.nodes[id]
		p := d.nodes[n.parent]
		rev = append(rev, slices.Index(p.children, id))
		id = n.parent
	}
	slices.Reverse(rev)
	return rev
}

func (d *Document) pointOf(c cursor) Point {
	if c.leaf == 0 {
		return Point{}
	}
	return Point{Path: d.pathOf(c.leaf), Offset: c.offset}
}

func (d *Document) leafIDs() []NodeID {
	var out []NodeID
	var walk func(NodeID)
	walk = func(id NodeID) {
		n := d.nodes[id]
		if n.kind == KindLeaf {
			out = append(out, id)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(d.root)
	return out
}
