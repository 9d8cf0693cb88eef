// Package regfile provides the renamed register file: N_INT integer
// registers followed by N_FP floating-point registers, each holding a
// value and an optional producer tag.
package regfile

import (
	"math"

	"github.com/sarchlab/tomasim/tag"
)

// Register holds a value and the tag of its in-flight producer, if any.
type Register struct {
	Value    float64
	Producer tag.Tag
}

// RegisterFile is a flat array of N_INT+N_FP registers. Integer registers
// occupy [0, numInt); FP registers occupy [numInt, numInt+numFP).
// Register index 0 (integer R0) is hardwired to zero: WriteValue silently
// drops writes to it and SetProducer never sets its producer tag.
type RegisterFile struct {
	regs   []Register
	numInt int
	numFP  int
}

// New creates a RegisterFile with numInt integer and numFP floating-point
// registers, all initialized to zero value with no producer.
func New(numInt, numFP int) *RegisterFile {
	return &RegisterFile{
		regs:   make([]Register, numInt+numFP),
		numInt: numInt,
		numFP:  numFP,
	}
}

// NumInt returns the number of integer registers.
func (r *RegisterFile) NumInt() int { return r.numInt }

// NumFP returns the number of floating-point registers.
func (r *RegisterFile) NumFP() int { return r.numFP }

// Len returns the total number of registers (integer + FP).
func (r *RegisterFile) Len() int { return len(r.regs) }

// FPIndex maps a floating-point register number (0-based, as in F0, F1, …)
// to its flat index in the register file.
func (r *RegisterFile) FPIndex(f int) int { return r.numInt + f }

// isZeroReg reports whether idx is the hardwired-zero integer register.
func (r *RegisterFile) isZeroReg(idx int) bool {
	return idx == 0
}

// Value returns the current value held at idx.
func (r *RegisterFile) Value(idx int) float64 {
	return r.regs[idx].Value
}

// Producer returns the producer tag at idx, or tag.NONE if none.
func (r *RegisterFile) Producer(idx int) tag.Tag {
	return r.regs[idx].Producer
}

// SetProducer records that t will supply idx's next value. Writes to R0
// are silently dropped (its producer is never set).
func (r *RegisterFile) SetProducer(idx int, t tag.Tag) {
	if r.isZeroReg(idx) {
		return
	}
	r.regs[idx].Producer = t
}

// WriteValue stores v at idx unconditionally (used for initial state and
// direct writes). Writes to R0 are silently dropped.
func (r *RegisterFile) WriteValue(idx int, v float64) {
	if r.isZeroReg(idx) {
		return
	}
	r.regs[idx].Value = v
}

// Broadcast delivers a CDB result for tag t to idx. The value is applied
// only if idx's current producer still equals t (stale writes, from a
// register that has since been re-renamed by a later issue, are
// suppressed). The producer is cleared to NONE
// unconditionally on a matching broadcast arrival for that tag, whether
// or not the value itself is applied — but if the producer does not
// match t, this register was reassigned and neither value nor producer
// is touched.
func (r *RegisterFile) Broadcast(idx int, t tag.Tag, v float64) {
	if r.regs[idx].Producer.Equal(t) {
		if !r.isZeroReg(idx) {
			r.regs[idx].Value = v
		}
		r.regs[idx].Producer = tag.NONE
	}
}

// IntValue reads idx's value reinterpreted as a signed 64-bit integer —
// the bit pattern of the stored float64, not a numeric conversion.
func (r *RegisterFile) IntValue(idx int) int64 {
	return int64(math.Float64bits(r.regs[idx].Value))
}

// WriteIntValue stores v at idx by reinterpreting its bits as a float64,
// the inverse of IntValue. Writes to R0 are silently dropped.
func (r *RegisterFile) WriteIntValue(idx int, v int64) {
	if r.isZeroReg(idx) {
		return
	}
	r.regs[idx].Value = math.Float64frombits(uint64(v))
}

// BroadcastInt is Broadcast for an integer result: v is reinterpreted as
// a float64 bit pattern before the stale-producer check and store.
func (r *RegisterFile) BroadcastInt(idx int, t tag.Tag, v int64) {
	r.Broadcast(idx, t, math.Float64frombits(uint64(v)))
}

// Snapshot returns a copy of all registers for inclusion in a
// CycleSnapshot.
func (r *RegisterFile) Snapshot() []Register {
	out := make([]Register, len(r.regs))
	copy(out, r.regs)
	return out
}

// AllProducersNone reports whether every register's producer is NONE,
// the state the register file is in once the core has terminated.
func (r *RegisterFile) AllProducersNone() bool {
	for i := range r.regs {
		if !r.regs[i].Producer.IsNone() {
			return false
		}
	}
	return true
}
