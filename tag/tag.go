// Package tag defines the opaque producer identity used to rename
// registers and track in-flight results across the core.
package tag

import "fmt"

// Tag identifies an in-flight producer: a reservation station, a load
// buffer, a store buffer, or a branch handler. Equality is by identity
// (the zero value NONE means "no outstanding producer").
type Tag struct {
	kind Kind
	id   int
}

// Kind identifies which pool a Tag was minted from.
type Kind uint8

// Pools a Tag can be minted from.
const (
	KindNone Kind = iota
	KindFPAddSub
	KindFPMulDiv
	KindIntALU
	KindLoad
	KindStore
	KindBranch
)

// NONE is the distinguished "no outstanding producer" value.
var NONE = Tag{kind: KindNone}

// New mints a Tag for the given pool and 1-based slot index.
func New(k Kind, id int) Tag {
	return Tag{kind: k, id: id}
}

// IsNone reports whether t is the distinguished NONE tag.
func (t Tag) IsNone() bool {
	return t.kind == KindNone
}

// Kind returns the pool this tag was minted from.
func (t Tag) Kind() Kind {
	return t.kind
}

// Equal reports whether two tags identify the same producer.
func (t Tag) Equal(o Tag) bool {
	return t.kind == o.kind && t.id == o.id
}

// String renders a tag the way the simulator's traces do: "A1", "M2",
// "I3", "L1", "S2", "B1". NONE renders as "-".
func (t Tag) String() string {
	if t.IsNone() {
		return "-"
	}
	return fmt.Sprintf("%s%d", t.kind.prefix(), t.id)
}

func (k Kind) prefix() string {
	switch k {
	case KindFPAddSub:
		return "A"
	case KindFPMulDiv:
		return "M"
	case KindIntALU:
		return "I"
	case KindLoad:
		return "L"
	case KindStore:
		return "S"
	case KindBranch:
		return "B"
	default:
		return "?"
	}
}
