package document

// Mutation is one of InsertText, DeleteRange, SetMark, InsertNode, RemoveNode
// or SetSelection. The set is closed.
type Mutation interface {
	Kind() string
	mutation()
}

type InsertText struct {
	At   Point
	Text string
}

type DeleteRange struct {
	At Range
}

type SetMark struct {
	At    Range
	Mark  Mark
	Value bool
}

type InsertNode struct {
	At   Path
	Node Node
}

type RemoveNode struct {
	At Path
}

type SetSelection struct {
	Selection Range
}

func (InsertText) Kind() string   { return "insert_text" }
func (DeleteRange) Kind() string  { return "delete_range" }
func (SetMark) Kind() string      { return "set_mark" }
func (InsertNode) Kind() string   { return "insert_node" }
func (RemoveNode) Kind() string   { return "remove_node" }
func (SetSelection) Kind() string { return "set_selection" }

func (InsertText) mutation()   {}
func (DeleteRange) mutation()  {}
func (SetMark) mutation()      {}
func (InsertNode) mutation()   {}
func (RemoveNode) mutation()   {}
func (SetSelection) mutation() {}

// Origin records who produced a change.
type Origin int

const (
	OriginLocal Origin = iota
	OriginHistory
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginHistory:
		return "history"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Change is delivered to every listener after a batch applies. Inverse undoes
// Forward when applied in order.
type Change struct {
	Origin       Origin
	Forward      []Mutation
	Inverse      []Mutation
	OldSelection Range
	Doc          *Document
}

// SelectionOnly reports whether the change moved the selection and nothing else.
func (c Change) SelectionOnly() bool {
	for _, m := range c.Forward {
		if _, ok := m.(SetSelection); !ok {
			return false
		}
	}
	return true
}

// Listener observes applied changes. Listeners run synchronously, in the
// order they subscribed, and must not call Apply.
type Listener interface {
	OnChange(Change)
}

type ListenerFunc func(Change)

func (f ListenerFunc) OnChange(c Change) { f(c) }
