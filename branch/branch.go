// Package branch provides the branch handler: a reservation-station-
// shaped unit for BEQ/BNE that captures its two operands, evaluates
// equality once both resolve, and signals the core to flush and
// reload the instruction queue when taken.
package branch

import (
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/tag"
)

// State is a branch handler's position in its lifecycle: Free ->
// Issued -> WaitingForOperands -> Ready -> Resolved -> Free.
type State uint8

// Branch handler states.
const (
	Free State = iota
	Issued
	WaitingForOperands
	Ready
	Resolved
)

// Handler holds one in-flight branch. Only one handler across the pool
// is ever busy at a time — the core's issue policy enforces "issue of
// a second branch stalls until the first resolves"; this type itself
// only implements one handler's own state machine.
type Handler struct {
	tag   tag.Tag
	state State

	op        isa.Op
	vj, vk    float64
	qj, qk    tag.Tag
	currentPC uint64
	targetPC  uint64

	latency   uint64
	remaining uint64

	taken  bool
	nextPC uint64
}

// Tag returns the handler's stable identity.
func (h *Handler) Tag() tag.Tag { return h.tag }

// State returns the handler's current lifecycle state.
func (h *Handler) State() State { return h.state }

// Busy reports whether the handler holds an in-flight branch.
func (h *Handler) Busy() bool { return h.state != Free }

// Op returns the issued opcode (OpBEQ or OpBNE).
func (h *Handler) Op() isa.Op { return h.op }

// OperandsReady reports whether both source operands are resolved.
func (h *Handler) OperandsReady() bool {
	return h.qj.IsNone() && h.qk.IsNone()
}

// Qj returns the outstanding producer tag for the first operand, or
// tag.NONE if it is already resolved.
func (h *Handler) Qj() tag.Tag { return h.qj }

// Qk returns the outstanding producer tag for the second operand, or
// tag.NONE if it is already resolved.
func (h *Handler) Qk() tag.Tag { return h.qk }

// Taken reports the evaluated branch outcome. Only meaningful once
// State is Resolved.
func (h *Handler) Taken() bool { return h.taken }

// NextPC returns the PC to resume fetching from after resolution:
// targetPC if taken, currentPC+instruction-width otherwise (the caller
// computes the fallthrough width; nextPC is pre-seeded with it at
// issue so a not-taken branch needs no further computation here).
func (h *Handler) NextPC() uint64 { return h.nextPC }

// IssueInput carries everything Issue needs to populate a freshly
// allocated handler.
type IssueInput struct {
	Op                isa.Op
	Vj, Vk            float64
	Qj, Qk            tag.Tag
	CurrentPC         uint64
	TargetPC          uint64
	FallthroughPC     uint64
}

// Issue populates a Free handler and transitions it to Issued.
func (h *Handler) Issue(in IssueInput) {
	h.op = in.Op
	h.vj, h.vk = in.Vj, in.Vk
	h.qj, h.qk = in.Qj, in.Qk
	h.currentPC = in.CurrentPC
	h.targetPC = in.TargetPC
	h.nextPC = in.FallthroughPC
	h.taken = false
	h.state = Issued
}

// AdvanceIssued moves a handler in Issued to Ready if both operands
// are already resolved, otherwise to WaitingForOperands. Entering
// Ready starts the handler's latency countdown, same as fu.Unit.Start
// does for a dispatched station.
func (h *Handler) AdvanceIssued() {
	if h.state != Issued {
		return
	}
	if h.OperandsReady() {
		h.state = Ready
		h.remaining = h.latency
	} else {
		h.state = WaitingForOperands
	}
}

// Wake captures a CDB broadcast for tag t, mirroring rs.Station.Wake:
// any operand slot waiting on t snaps to its value, and if this
// resolves the last outstanding operand the handler moves to Ready in
// the same call.
func (h *Handler) Wake(t tag.Tag, v float64) {
	woke := false
	if h.qj.Equal(t) {
		h.vj = v
		h.qj = tag.NONE
		woke = true
	}
	if h.qk.Equal(t) {
		h.vk = v
		h.qk = tag.NONE
		woke = true
	}
	if woke && h.state == WaitingForOperands && h.OperandsReady() {
		h.state = Ready
		h.remaining = h.latency
	}
}

// Tick advances a Ready handler's latency countdown by one cycle,
// mirroring fu.Unit.Tick. It reports whether the countdown has reached
// zero, i.e. whether the handler is now eligible for Evaluate.
func (h *Handler) Tick() bool {
	if h.state != Ready {
		return false
	}
	if h.remaining == 0 {
		return true
	}
	h.remaining--
	return h.remaining == 0
}

// DependsOn reports whether this handler has an outstanding operand
// waiting on t, for CDB dependency-counting.
func (h *Handler) DependsOn(t tag.Tag) bool {
	return h.qj.Equal(t) || h.qk.Equal(t)
}

// WouldBeReadyAfter reports whether resolving t would leave this
// handler fully operand-ready (the CDB arbitration tie-break).
func (h *Handler) WouldBeReadyAfter(t tag.Tag) bool {
	jOK := h.qj.Equal(t) || h.qj.IsNone()
	kOK := h.qk.Equal(t) || h.qk.IsNone()
	return jOK && kOK
}

// Evaluate resolves the branch outcome: taken = (Vj == Vk) for BEQ,
// taken = (Vj != Vk) for BNE. No-op unless the handler is Ready and its
// latency countdown (see Tick) has reached zero.
func (h *Handler) Evaluate() {
	if h.state != Ready || h.remaining > 0 {
		return
	}

	switch h.op {
	case isa.OpBEQ:
		h.taken = h.vj == h.vk
	case isa.OpBNE:
		h.taken = h.vj != h.vk
	}

	if h.taken {
		h.nextPC = h.targetPC
	}
	h.state = Resolved
}

// Resolved reports whether this handler has an outcome ready to signal
// to the core (an IQ flush/reload on taken, or simply freeing on not
// taken).
func (h *Handler) Resolved() bool { return h.state == Resolved }

// Free returns the handler to Free. The stable tag and configured
// latency survive; everything else resets.
func (h *Handler) Free() {
	t, lat := h.tag, h.latency
	*h = Handler{tag: t, latency: lat}
}

// Pool is a fixed-size set of branch handlers, each minted a stable tag
// at construction time.
type Pool struct {
	handlers []Handler
}

// NewPool constructs n branch handlers, each resolving over latency
// cycles once Ready (see Tick), mirroring fu.New's LatencyTable
// parameter.
func NewPool(n int, latency uint64) *Pool {
	p := &Pool{handlers: make([]Handler, n)}
	for i := range p.handlers {
		p.handlers[i].tag = tag.New(tag.KindBranch, i+1)
		p.handlers[i].latency = latency
	}
	return p
}

// Len returns the pool's fixed size.
func (p *Pool) Len() int { return len(p.handlers) }

// All returns every handler in the pool.
func (p *Pool) All() []*Handler {
	out := make([]*Handler, len(p.handlers))
	for i := range p.handlers {
		out[i] = &p.handlers[i]
	}
	return out
}

// FindFree returns a Free handler, or nil if the pool is fully
// occupied.
func (p *Pool) FindFree() *Handler {
	for i := range p.handlers {
		if !p.handlers[i].Busy() {
			return &p.handlers[i]
		}
	}
	return nil
}

// AnyPending reports whether any handler in the pool is currently
// holding a branch: only one branch may be pending at a time, so issue
// of a second branch stalls until the first resolves. The core's issue
// policy calls this before allocating a new branch.
func (p *Pool) AnyPending() bool {
	for i := range p.handlers {
		if p.handlers[i].Busy() {
			return true
		}
	}
	return false
}
