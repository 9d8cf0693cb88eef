// Package cdb provides the Common Data Bus message type and the
// single-winner arbitration policy for a cycle's competing broadcasts.
package cdb

import "github.com/sarchlab/tomasim/tag"

// Message is the payload broadcast on the bus: a producer's tag, its
// result value, and (if any) the destination register it targets.
type Message struct {
	Tag     tag.Tag
	Value   float64
	DestReg int
	HasDest bool
}

// DependencyCounts summarizes, for one candidate message's tag, how many
// busy consumers are waiting directly on it (Primary key) and how many
// of those consumers would become fully operand-ready the
// instant this broadcast lands (Tie-break key).
type DependencyCounts struct {
	Dependents      int
	ReadyDependents int
}

// Candidate is a message ready to broadcast this cycle together with its
// arbitration inputs: dependency counts and insertion order (lower Seq
// is earlier — the final first-come-first-served tie-break).
type Candidate struct {
	Message Message
	Deps    DependencyCounts
	Seq     uint64
}

// Arbitrate picks exactly one winner from a non-empty set of ready
// candidates: most direct dependents first, then most ready-dependents,
// then earliest insertion order. Losers are returned
// in their original relative order so the caller can carry them into
// next cycle's ready set ahead of any newly-ready messages.
func Arbitrate(candidates []Candidate) (winner Candidate, losers []Candidate) {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if higherPriority(candidates[i], candidates[best]) {
			best = i
		}
	}

	winner = candidates[best]
	losers = make([]Candidate, 0, len(candidates)-1)
	for i, c := range candidates {
		if i != best {
			losers = append(losers, c)
		}
	}
	return winner, losers
}

// higherPriority reports whether a strictly outranks b.
func higherPriority(a, b Candidate) bool {
	if a.Deps.Dependents != b.Deps.Dependents {
		return a.Deps.Dependents > b.Deps.Dependents
	}
	if a.Deps.ReadyDependents != b.Deps.ReadyDependents {
		return a.Deps.ReadyDependents > b.Deps.ReadyDependents
	}
	return a.Seq < b.Seq
}
