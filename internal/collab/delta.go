package collab

import "unicode/utf8"

// Delta replaces Delete runes at Pos with Insert.
type Delta struct {
	Pos    int
	Delete int
	Insert string
}

func (d Delta) Empty() bool {
	return d.Delete == 0 && d.Insert == ""
}

// Apply returns s with the delta applied.
func (d Delta) Apply(s string) string {
	rs := []rune(s)
	out := make([]rune, 0, len(rs)-d.Delete+utf8.RuneCountInString(d.Insert))
	out = append(out, rs[:d.Pos]...)
	out = append(out, []rune(d.Insert)...)
	out = append(out, rs[d.Pos+d.Delete:]...)
	return string(out)
}

// Diff finds the single replacement that turns before into after by
// trimming the common prefix and suffix.
func Diff(before, after string) Delta {
	a, b := []rune(before), []rune(after)
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	s := 0
	for s < len(a)-p && s < len(b)-p && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}
	return Delta{Pos: p, Delete: len(a) - p - s, Insert: string(b[p : len(b)-s])}
}
