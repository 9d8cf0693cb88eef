// Package rs provides reservation stations: slots that hold an issued
// instruction until its operands and a functional unit are available.
package rs

import (
	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/fu"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/tag"
)

// State is a reservation station's position in its one-issuance
// lifecycle: Free -> Issued -> (WaitingForOperands ->) WaitingForFU ->
// Executing -> Executed -> Free.
type State uint8

// Reservation station states.
const (
	Free State = iota
	Issued
	WaitingForOperands
	WaitingForFU
	Executing
	Executed
)

// Station holds one in-flight instruction. Its zero value is a Free
// station with tag.NONE, which is never observed in practice: every
// Station in a Pool is minted a stable tag at construction time.
type Station struct {
	tag   tag.Tag
	class fu.Class
	state State

	op      isa.Op
	vj, vk  float64
	qj, qk  tag.Tag
	imm     int64
	destReg int
	hasDest bool

	message cdb.Message
}

// Tag returns the station's stable identity.
func (s *Station) Tag() tag.Tag { return s.tag }

// Class reports which functional unit pool this station dispatches to.
func (s *Station) Class() fu.Class { return s.class }

// State returns the station's current lifecycle state.
func (s *Station) State() State { return s.state }

// Busy reports whether the station holds an in-flight instruction
// (invariant: busy <=> state != Free).
func (s *Station) Busy() bool { return s.state != Free }

// Op returns the issued instruction's opcode.
func (s *Station) Op() isa.Op { return s.op }

// Operands returns the current (possibly partially captured) operand
// values.
func (s *Station) Operands() (vj, vk float64) { return s.vj, s.vk }

// Qj returns the outstanding producer tag for the first operand, or
// tag.NONE if it is already resolved.
func (s *Station) Qj() tag.Tag { return s.qj }

// Qk returns the outstanding producer tag for the second operand, or
// tag.NONE if it is already resolved.
func (s *Station) Qk() tag.Tag { return s.qk }

// DestReg returns the destination register this station will produce
// for, and whether the instruction has one at all.
func (s *Station) DestReg() (int, bool) { return s.destReg, s.hasDest }

// OperandsReady reports whether both source operands are resolved
// (Qj = Qk = NONE), the precondition for WAITING_FOR_FU.
func (s *Station) OperandsReady() bool {
	return s.qj.IsNone() && s.qk.IsNone()
}

// IssueInput carries everything Issue needs to populate a freshly
// allocated station.
type IssueInput struct {
	Op      isa.Op
	Vj, Vk  float64
	Qj, Qk  tag.Tag
	Imm     int64
	DestReg int
	HasDest bool
}

// Issue populates a Free station and transitions it to Issued. The
// caller is responsible for the register-file renaming side effect:
// setting RegisterFile[dest].producer = S.tag.
func (s *Station) Issue(in IssueInput) {
	s.op = in.Op
	s.vj, s.vk = in.Vj, in.Vk
	s.qj, s.qk = in.Qj, in.Qk
	s.imm = in.Imm
	s.destReg = in.DestReg
	s.hasDest = in.HasDest
	s.message = cdb.Message{}
	s.state = Issued
}

// AdvanceIssued moves a station in Issued to WaitingForFU if both
// operands are already resolved, otherwise to WaitingForOperands.
// No-op if the station isn't Issued.
func (s *Station) AdvanceIssued() {
	if s.state != Issued {
		return
	}
	if s.OperandsReady() {
		s.state = WaitingForFU
	} else {
		s.state = WaitingForOperands
	}
}

// Wake captures a CDB broadcast for tag t: any operand slot waiting on t
// snaps from (t, stale-value) to (NONE, v). If this resolves the last
// outstanding operand and the station was WaitingForOperands, it
// transitions to WaitingForFU in the same call: the transition
// WAITING_FOR_OPERANDS -> WAITING_FOR_FU happens the same cycle as
// the broadcast that satisfies the last outstanding operand. Wake-up
// is monotonic: a tag already cleared is never reasserted for
// the same issuance, since once Qj/Qk is NONE it no longer matches any
// future broadcast's tag (NONE never equals a real producer tag).
func (s *Station) Wake(t tag.Tag, v float64) {
	woke := false
	if s.qj.Equal(t) {
		s.vj = v
		s.qj = tag.NONE
		woke = true
	}
	if s.qk.Equal(t) {
		s.vk = v
		s.qk = tag.NONE
		woke = true
	}
	if woke && s.state == WaitingForOperands && s.OperandsReady() {
		s.state = WaitingForFU
	}
}

// DependsOn reports whether this station has an outstanding operand
// waiting on t, for CDB dependency-counting.
func (s *Station) DependsOn(t tag.Tag) bool {
	return s.qj.Equal(t) || s.qk.Equal(t)
}

// WouldBeReadyAfter reports whether resolving t would leave this
// station fully operand-ready, the CDB tie-break's "ready dependents"
// count.
func (s *Station) WouldBeReadyAfter(t tag.Tag) bool {
	jOK := s.qj.Equal(t) || s.qj.IsNone()
	kOK := s.qk.Equal(t) || s.qk.IsNone()
	return jOK && kOK
}

// StartExecution transitions a dispatched station to Executing (called
// when a functional unit accepts it).
func (s *Station) StartExecution() {
	s.state = Executing
}

// Job builds the fu.Job this station hands to its functional unit at
// dispatch.
func (s *Station) Job() fu.Job {
	destReg, _ := s.DestReg()
	return fu.Job{
		Tag:     s.tag,
		Op:      s.op,
		Vj:      s.vj,
		Vk:      s.vk,
		Imm:     s.imm,
		DestReg: destReg,
	}
}

// FinishExecution records the functional unit's result and transitions
// to Executed.
func (s *Station) FinishExecution(result fu.Result) {
	destReg, hasDest := s.DestReg()
	s.message = cdb.Message{
		Tag:     s.tag,
		Value:   result.Value,
		DestReg: destReg,
		HasDest: hasDest,
	}
	s.state = Executed
}

// ResultReady reports whether this station has a result waiting to
// broadcast on the CDB.
func (s *Station) ResultReady() bool { return s.state == Executed }

// Message returns the CDB message for a station in Executed. Only valid
// when ResultReady is true.
func (s *Station) Message() cdb.Message { return s.message }

// FreeAfterBroadcast returns the station to Free. The stable tag and
// class survive; everything else resets.
func (s *Station) FreeAfterBroadcast() {
	t, c := s.tag, s.class
	*s = Station{tag: t, class: c}
}

// Pool is a fixed-size set of reservation stations of one class, each
// minted a stable tag at construction time.
type Pool struct {
	class    fu.Class
	stations []Station
}

// kindFor maps a functional unit class to its tag pool.
func kindFor(class fu.Class) tag.Kind {
	switch class {
	case fu.ClassIntALU:
		return tag.KindIntALU
	case fu.ClassFPAddSub:
		return tag.KindFPAddSub
	default:
		return tag.KindFPMulDiv
	}
}

// NewPool constructs n stations of class, each with a stable tag.
func NewPool(class fu.Class, n int) *Pool {
	p := &Pool{class: class, stations: make([]Station, n)}
	k := kindFor(class)
	for i := range p.stations {
		p.stations[i].tag = tag.New(k, i+1)
		p.stations[i].class = class
	}
	return p
}

// Class reports the functional unit class this pool issues to.
func (p *Pool) Class() fu.Class { return p.class }

// Len returns the pool's fixed size.
func (p *Pool) Len() int { return len(p.stations) }

// All returns every station in the pool, for iteration during the
// per-cycle phases.
func (p *Pool) All() []*Station {
	out := make([]*Station, len(p.stations))
	for i := range p.stations {
		out[i] = &p.stations[i]
	}
	return out
}

// FindFree returns a Free station, or nil if the pool is fully occupied
// (a structural stall).
func (p *Pool) FindFree() *Station {
	for i := range p.stations {
		if !p.stations[i].Busy() {
			return &p.stations[i]
		}
	}
	return nil
}
