// Package lsq provides the load buffers, store buffers, and address
// units that make up the memory pipeline: computing effective
// addresses, enforcing ordering between concurrent loads and stores,
// and driving the cache on their behalf.
package lsq

import (
	"math"

	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/tag"
)

// State is a memory buffer's position in its lifecycle: Free -> Issued
// -> WaitingForAddress -> Executing -> Executed -> Free. Unlike a
// reservation station there is no separate WaitingForOperands state;
// the single addressReady/valueReady flags already distinguish "still
// waiting" from "ready to go".
type State uint8

// Memory buffer states.
const (
	Free State = iota
	Issued
	WaitingForAddress
	Executing
	Executed
)

// AddressTarget is the narrow view an AddressUnit needs of whichever
// buffer it has been assigned to: the base-register operand (captured
// the same way a reservation station captures Vj/Qj) and the offset to
// add once that operand resolves.
type AddressTarget interface {
	BaseReady() bool
	BaseValue() float64
	Offset() int64
	SetEffectiveAddress(addr uint64)
}

// AddressUnit computes one buffer's effective address over
// addressLatency cycles, holding without counting down until the base
// register operand it was assigned resolves: a memory instruction
// starts its address unit at issue, which after addressLatency cycles
// writes EA = baseValue + offset into the buffer.
type AddressUnit struct {
	busy      bool
	target    AddressTarget
	remaining uint64
	started   bool
}

// Busy reports whether the unit is computing an address.
func (u *AddressUnit) Busy() bool { return u.busy }

// Start assigns target to this unit with the given addressLatency.
func (u *AddressUnit) Start(target AddressTarget, addressLatency uint64) {
	u.busy = true
	u.target = target
	u.remaining = addressLatency
	if u.remaining == 0 {
		u.remaining = 1
	}
	u.started = target.BaseReady()
}

// Tick counts down once the base operand is ready, and on reaching
// zero writes the computed EA into the target and frees itself.
func (u *AddressUnit) Tick() {
	if !u.busy {
		return
	}
	if !u.started {
		if !u.target.BaseReady() {
			return
		}
		u.started = true
	}

	u.remaining--
	if u.remaining > 0 {
		return
	}

	base := int64(math.Float64bits(u.target.BaseValue()))
	ea := uint64(base + u.target.Offset())
	u.target.SetEffectiveAddress(ea)
	u.busy = false
	u.target = nil
}

// AddressUnitPool is a fixed-size set of address units, a structural
// resource allocated to a buffer at issue.
type AddressUnitPool struct {
	units []AddressUnit
}

// NewAddressUnitPool constructs n address units.
func NewAddressUnitPool(n int) *AddressUnitPool {
	return &AddressUnitPool{units: make([]AddressUnit, n)}
}

// Len returns the pool's fixed size.
func (p *AddressUnitPool) Len() int { return len(p.units) }

// All returns every unit in the pool.
func (p *AddressUnitPool) All() []*AddressUnit {
	out := make([]*AddressUnit, len(p.units))
	for i := range p.units {
		out[i] = &p.units[i]
	}
	return out
}

// FindFree returns a free address unit, or nil if the pool is fully
// occupied.
func (p *AddressUnitPool) FindFree() *AddressUnit {
	for i := range p.units {
		if !p.units[i].Busy() {
			return &p.units[i]
		}
	}
	return nil
}

// LoadBuffer holds one in-flight load: a memory read plus the register
// it will write back through the CDB.
type LoadBuffer struct {
	tag   tag.Tag
	state State

	op      isa.Op
	destReg int

	baseReg   int
	baseValue float64
	baseTag   tag.Tag
	offset    int64

	effectiveAddress uint64
	addressReady     bool

	remainingCycles uint64
	sequenceNumber  uint64

	message cdb.Message
}

// Tag returns the buffer's stable identity.
func (l *LoadBuffer) Tag() tag.Tag { return l.tag }

// State returns the buffer's current lifecycle state.
func (l *LoadBuffer) State() State { return l.state }

// Busy reports whether the buffer holds an in-flight load.
func (l *LoadBuffer) Busy() bool { return l.state != Free }

// Op returns the issued opcode (OpLD or OpLW).
func (l *LoadBuffer) Op() isa.Op { return l.op }

// DestReg returns the destination register this load will write.
func (l *LoadBuffer) DestReg() int { return l.destReg }

// SequenceNumber returns the program-order position assigned at issue.
func (l *LoadBuffer) SequenceNumber() uint64 { return l.sequenceNumber }

// EffectiveAddress returns the computed EA. Only meaningful once
// AddressReady is true.
func (l *LoadBuffer) EffectiveAddress() uint64 { return l.effectiveAddress }

// AddressReady reports whether the address unit has written an EA.
func (l *LoadBuffer) AddressReady() bool { return l.addressReady }

// BaseReady reports whether the base-register operand has resolved
// (AddressTarget interface).
func (l *LoadBuffer) BaseReady() bool { return l.baseTag.IsNone() }

// BaseValue returns the captured base-register value (AddressTarget
// interface).
func (l *LoadBuffer) BaseValue() float64 { return l.baseValue }

// Offset returns the byte offset to add to BaseValue (AddressTarget
// interface).
func (l *LoadBuffer) Offset() int64 { return l.offset }

// SetEffectiveAddress records addr and marks the address ready
// (AddressTarget interface, called by this buffer's AddressUnit).
func (l *LoadBuffer) SetEffectiveAddress(addr uint64) {
	l.effectiveAddress = addr
	l.addressReady = true
}

// DependsOn reports whether this load's base-register operand is
// waiting on t, for CDB dependency-counting.
func (l *LoadBuffer) DependsOn(t tag.Tag) bool { return l.baseTag.Equal(t) }

// WouldBeReadyAfter reports whether resolving t would leave this
// load's only operand ready (the CDB arbitration tie-break).
func (l *LoadBuffer) WouldBeReadyAfter(t tag.Tag) bool {
	return l.baseTag.Equal(t) || l.baseTag.IsNone()
}

// LoadIssueInput carries everything Issue needs to populate a freshly
// allocated load buffer.
type LoadIssueInput struct {
	Op             isa.Op
	BaseReg        int
	BaseValue      float64
	BaseTag        tag.Tag
	Offset         int64
	DestReg        int
	SequenceNumber uint64
}

// Issue populates a Free buffer and transitions it to Issued.
func (l *LoadBuffer) Issue(in LoadIssueInput) {
	l.op = in.Op
	l.baseReg = in.BaseReg
	l.baseValue = in.BaseValue
	l.baseTag = in.BaseTag
	l.offset = in.Offset
	l.destReg = in.DestReg
	l.sequenceNumber = in.SequenceNumber
	l.effectiveAddress = 0
	l.addressReady = false
	l.remainingCycles = 0
	l.message = cdb.Message{}
	l.state = Issued
}

// Wake resolves the base-register operand on a matching broadcast,
// mirroring rs.Station.Wake.
func (l *LoadBuffer) Wake(t tag.Tag, v float64) {
	if l.baseTag.Equal(t) {
		l.baseValue = v
		l.baseTag = tag.NONE
	}
}

// AdvancePhase1 handles the one-time ISSUED transition and the
// repeated re-check from WaitingForAddress, both gated on orderingOK
// (whatever the caller's memory-ordering check over the sibling store
// buffers decided).
func (l *LoadBuffer) AdvancePhase1(orderingOK bool) {
	switch l.state {
	case Issued:
		if l.addressReady && orderingOK {
			l.state = Executing
		} else {
			l.state = WaitingForAddress
		}
	case WaitingForAddress:
		if l.addressReady && orderingOK {
			l.state = Executing
		}
	}
}

// StartAccess records the cache's already-determined latency: a
// non-mutating hit/miss probe the core takes as soon as this buffer
// reaches Executing. The actual memory read happens later, at the end
// of the countdown, via Complete.
func (l *LoadBuffer) StartAccess(latency uint64) {
	l.remainingCycles = latency
	if l.remainingCycles == 0 {
		l.remainingCycles = 1
	}
}

// Tick advances the cache-access countdown and reports whether it
// just reached zero. The caller is then responsible
// for performing the actual (mutating) cache access and calling
// Complete with the bits it read.
func (l *LoadBuffer) Tick() bool {
	if l.state != Executing {
		return false
	}

	l.remainingCycles--
	return l.remainingCycles == 0
}

// Complete builds the CDB message from the bits the core just read
// from the cache and transitions to Executed.
func (l *LoadBuffer) Complete(bits uint64) {
	l.message = cdb.Message{
		Tag:     l.tag,
		Value:   math.Float64frombits(bits),
		DestReg: l.destReg,
		HasDest: true,
	}
	l.state = Executed
}

// ResultReady reports whether this load has a result waiting to
// broadcast on the CDB.
func (l *LoadBuffer) ResultReady() bool { return l.state == Executed }

// Message returns the CDB message for a load in Executed.
func (l *LoadBuffer) Message() cdb.Message { return l.message }

// FreeAfterBroadcast returns the buffer to Free. The stable tag
// survives; everything else resets.
func (l *LoadBuffer) FreeAfterBroadcast() {
	t := l.tag
	*l = LoadBuffer{tag: t}
}

// LoadPool is a fixed-size set of load buffers, each minted a stable
// tag at construction time.
type LoadPool struct {
	buffers []LoadBuffer
}

// NewLoadPool constructs n load buffers.
func NewLoadPool(n int) *LoadPool {
	p := &LoadPool{buffers: make([]LoadBuffer, n)}
	for i := range p.buffers {
		p.buffers[i].tag = tag.New(tag.KindLoad, i+1)
	}
	return p
}

// Len returns the pool's fixed size.
func (p *LoadPool) Len() int { return len(p.buffers) }

// All returns every buffer in the pool.
func (p *LoadPool) All() []*LoadBuffer {
	out := make([]*LoadBuffer, len(p.buffers))
	for i := range p.buffers {
		out[i] = &p.buffers[i]
	}
	return out
}

// FindFree returns a Free buffer, or nil if the pool is fully occupied.
func (p *LoadPool) FindFree() *LoadBuffer {
	for i := range p.buffers {
		if !p.buffers[i].Busy() {
			return &p.buffers[i]
		}
	}
	return nil
}

// StoreBuffer holds one in-flight store. It carries both an address
// dependency (base register) and a value dependency (source register);
// invariant: valueReady <=> sourceTag = NONE.
type StoreBuffer struct {
	tag   tag.Tag
	state State

	op     isa.Op
	srcReg int

	baseReg   int
	baseValue float64
	baseTag   tag.Tag
	offset    int64

	effectiveAddress uint64
	addressReady     bool

	valueToStore float64
	sourceTag    tag.Tag
	valueReady   bool
	captureDelay bool

	remainingCycles uint64
	sequenceNumber  uint64
}

// Tag returns the buffer's stable identity.
func (s *StoreBuffer) Tag() tag.Tag { return s.tag }

// State returns the buffer's current lifecycle state.
func (s *StoreBuffer) State() State { return s.state }

// Busy reports whether the buffer holds an in-flight store.
func (s *StoreBuffer) Busy() bool { return s.state != Free }

// Op returns the issued opcode (OpSD or OpSW).
func (s *StoreBuffer) Op() isa.Op { return s.op }

// SequenceNumber returns the program-order position assigned at issue.
func (s *StoreBuffer) SequenceNumber() uint64 { return s.sequenceNumber }

// EffectiveAddress returns the computed EA. Only meaningful once
// AddressReady is true.
func (s *StoreBuffer) EffectiveAddress() uint64 { return s.effectiveAddress }

// AddressReady reports whether the address unit has written an EA.
func (s *StoreBuffer) AddressReady() bool { return s.addressReady }

// ValueReady reports whether the value to store has resolved.
func (s *StoreBuffer) ValueReady() bool { return s.valueReady }

// ValueToStore returns the captured value, reinterpreted by the caller
// as raw bits per the op's width.
func (s *StoreBuffer) ValueToStore() float64 { return s.valueToStore }

// BaseReady reports whether the base-register operand has resolved
// (AddressTarget interface).
func (s *StoreBuffer) BaseReady() bool { return s.baseTag.IsNone() }

// BaseValue returns the captured base-register value (AddressTarget
// interface).
func (s *StoreBuffer) BaseValue() float64 { return s.baseValue }

// Offset returns the byte offset to add to BaseValue (AddressTarget
// interface).
func (s *StoreBuffer) Offset() int64 { return s.offset }

// SetEffectiveAddress records addr and marks the address ready
// (AddressTarget interface, called by this buffer's AddressUnit).
func (s *StoreBuffer) SetEffectiveAddress(addr uint64) {
	s.effectiveAddress = addr
	s.addressReady = true
}

// ReadyToExecute reports whether both the address and the value have
// resolved.
func (s *StoreBuffer) ReadyToExecute() bool {
	return s.addressReady && s.valueReady
}

// DependsOn reports whether this store has an outstanding base-address
// or source-value operand waiting on t, for CDB dependency-counting.
func (s *StoreBuffer) DependsOn(t tag.Tag) bool {
	return s.baseTag.Equal(t) || s.sourceTag.Equal(t)
}

// WouldBeReadyAfter reports whether resolving t would leave this store
// fully ready to execute (the CDB arbitration tie-break).
func (s *StoreBuffer) WouldBeReadyAfter(t tag.Tag) bool {
	baseOK := s.baseTag.Equal(t) || s.baseTag.IsNone()
	srcOK := s.sourceTag.Equal(t) || s.sourceTag.IsNone()
	return baseOK && srcOK
}

// StoreIssueInput carries everything Issue needs to populate a freshly
// allocated store buffer.
type StoreIssueInput struct {
	Op             isa.Op
	BaseReg        int
	BaseValue      float64
	BaseTag        tag.Tag
	Offset         int64
	SrcReg         int
	Value          float64
	SourceTag      tag.Tag
	SequenceNumber uint64
}

// Issue populates a Free buffer and transitions it to Issued. The
// value is read from the source register at issue if already
// available (SourceTag = NONE); otherwise it is captured later via
// Wake.
func (s *StoreBuffer) Issue(in StoreIssueInput) {
	s.op = in.Op
	s.baseReg = in.BaseReg
	s.baseValue = in.BaseValue
	s.baseTag = in.BaseTag
	s.offset = in.Offset
	s.srcReg = in.SrcReg
	s.valueToStore = in.Value
	s.sourceTag = in.SourceTag
	s.valueReady = in.SourceTag.IsNone()
	s.captureDelay = false
	s.sequenceNumber = in.SequenceNumber
	s.effectiveAddress = 0
	s.addressReady = false
	s.remainingCycles = 0
	s.state = Issued
}

// Wake resolves whichever of the base-register or source-value
// operands matches t. A source-value resolution via broadcast (as
// opposed to an issue-time direct read) sets captureDelay, deferring
// the execute transition one further cycle to model capture latency.
func (s *StoreBuffer) Wake(t tag.Tag, v float64) {
	if s.baseTag.Equal(t) {
		s.baseValue = v
		s.baseTag = tag.NONE
	}
	if s.sourceTag.Equal(t) {
		s.valueToStore = v
		s.sourceTag = tag.NONE
		s.valueReady = true
		s.captureDelay = true
	}
}

// AdvancePhase1 handles the one-time ISSUED transition and the
// repeated re-check from WaitingForAddress, both gated on orderingOK
// and on the one-cycle capture-latency deferral.
func (s *StoreBuffer) AdvancePhase1(orderingOK bool) {
	switch s.state {
	case Issued:
		if s.captureDelay {
			s.captureDelay = false
			s.state = WaitingForAddress
			return
		}
		if s.ReadyToExecute() && orderingOK {
			s.state = Executing
		} else {
			s.state = WaitingForAddress
		}
	case WaitingForAddress:
		if s.captureDelay {
			s.captureDelay = false
			return
		}
		if s.ReadyToExecute() && orderingOK {
			s.state = Executing
		}
	}
}

// StartAccess records the cache access's already-determined latency:
// a non-mutating probe the core takes as soon as this buffer reaches
// Executing. The actual write happens later, at the end of the
// countdown, via Complete.
func (s *StoreBuffer) StartAccess(latency uint64) {
	s.remainingCycles = latency
	if s.remainingCycles == 0 {
		s.remainingCycles = 1
	}
}

// Tick advances the cache-access countdown and reports whether it just
// reached zero. The caller then performs the actual (mutating) cache
// write and calls Complete.
func (s *StoreBuffer) Tick() bool {
	if s.state != Executing {
		return false
	}

	s.remainingCycles--
	return s.remainingCycles == 0
}

// Complete transitions to Executed once the core has written the value
// to the cache. The core frees this buffer unconditionally right
// after, in the same phase, since a store never broadcasts on the CDB.
func (s *StoreBuffer) Complete() {
	s.state = Executed
}

// Done reports whether the store has finished its cache access and is
// ready to free.
func (s *StoreBuffer) Done() bool { return s.state == Executed }

// Free returns the buffer to Free. The stable tag survives; everything
// else resets.
func (s *StoreBuffer) Free() {
	t := s.tag
	*s = StoreBuffer{tag: t}
}

// StorePool is a fixed-size set of store buffers, each minted a stable
// tag at construction time.
type StorePool struct {
	buffers []StoreBuffer
}

// NewStorePool constructs n store buffers.
func NewStorePool(n int) *StorePool {
	p := &StorePool{buffers: make([]StoreBuffer, n)}
	for i := range p.buffers {
		p.buffers[i].tag = tag.New(tag.KindStore, i+1)
	}
	return p
}

// Len returns the pool's fixed size.
func (p *StorePool) Len() int { return len(p.buffers) }

// All returns every buffer in the pool.
func (p *StorePool) All() []*StoreBuffer {
	out := make([]*StoreBuffer, len(p.buffers))
	for i := range p.buffers {
		out[i] = &p.buffers[i]
	}
	return out
}

// FindFree returns a Free buffer, or nil if the pool is fully occupied.
func (p *StorePool) FindFree() *StoreBuffer {
	for i := range p.buffers {
		if !p.buffers[i].Busy() {
			return &p.buffers[i]
		}
	}
	return nil
}

// conflicts reports whether a sibling buffer at (eaReady, ea) could
// alias the address under test. An unresolved EA is a conservative
// conflict: a buffer whose EA is not yet computed is treated as a
// potential conflict.
func conflicts(eaReady bool, ea, underTest uint64) bool {
	if !eaReady {
		return true
	}
	return ea == underTest
}

// CanLoadExecute reports whether l may start its memory access this
// cycle: every busy store with a smaller sequence number that
// conflicts with l's address must have completed. Completed stores
// are no longer Busy, so they are simply absent from the scan.
func CanLoadExecute(l *LoadBuffer, stores []*StoreBuffer) bool {
	if !l.addressReady {
		return false
	}
	for _, s := range stores {
		if !s.Busy() || s.sequenceNumber >= l.sequenceNumber {
			continue
		}
		if conflicts(s.addressReady, s.effectiveAddress, l.effectiveAddress) {
			return false
		}
	}
	return true
}

// CanStoreExecute reports whether s may start its memory access this
// cycle: every earlier busy store with a conflicting address must have
// completed, and no earlier busy load with a conflicting address may
// still be outstanding.
func CanStoreExecute(s *StoreBuffer, stores []*StoreBuffer, loads []*LoadBuffer) bool {
	if !s.ReadyToExecute() {
		return false
	}
	for _, other := range stores {
		if other == s || !other.Busy() || other.sequenceNumber >= s.sequenceNumber {
			continue
		}
		if conflicts(other.addressReady, other.effectiveAddress, s.effectiveAddress) {
			return false
		}
	}
	for _, l := range loads {
		if !l.Busy() || l.sequenceNumber >= s.sequenceNumber {
			continue
		}
		if conflicts(l.addressReady, l.effectiveAddress, s.effectiveAddress) {
			return false
		}
	}
	return true
}
