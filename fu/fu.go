// Package fu provides the three functional unit classes — integer ALU,
// FP add/sub, and FP mul/div — that execute a dispatched reservation
// station's opcode after its configured latency.
package fu

import (
	"math"

	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/tag"
)

// Class identifies which functional unit pool a Unit belongs to.
type Class uint8

// Functional unit classes.
const (
	ClassIntALU Class = iota
	ClassFPAddSub
	ClassFPMulDiv
)

// Supports reports whether a unit of class c can execute op.
func Supports(c Class, op isa.Op) bool {
	switch c {
	case ClassIntALU:
		return isa.IsIntArith(op)
	case ClassFPAddSub:
		return isa.IsFpAddSub(op)
	case ClassFPMulDiv:
		return isa.IsFpMulDiv(op)
	default:
		return false
	}
}

// LatencyTable holds the per-operation latency a Unit looks up at
// dispatch time, drawn from config.CoreConfig at construction.
type LatencyTable struct {
	IntALU   uint64
	FPAddSub uint64
	FPMul    uint64
	FPDiv    uint64
}

// Latency returns the configured latency for op.
func (lt LatencyTable) Latency(op isa.Op) uint64 {
	switch op {
	case isa.OpDADD, isa.OpDADDI, isa.OpDSUB, isa.OpDSUBI, isa.OpAND, isa.OpOR, isa.OpXOR, isa.OpDMUL, isa.OpDDIV:
		return lt.IntALU
	case isa.OpADDD, isa.OpSUBD:
		return lt.FPAddSub
	case isa.OpMULD:
		return lt.FPMul
	case isa.OpDIVD:
		return lt.FPDiv
	default:
		return 1
	}
}

// Job is the narrow slice of a reservation station's state a Unit needs
// to execute it: tag, opcode, resolved operand values, and destination.
type Job struct {
	Tag     tag.Tag
	Op      isa.Op
	Vj, Vk  float64
	Imm     int64
	DestReg int
}

// Result is the outcome of executing a Job: the raw bit pattern to
// broadcast on the CDB, and whether a divide-by-zero anomaly occurred
// (surfaced by the caller as a log entry).
type Result struct {
	Tag           tag.Tag
	Value         float64
	DestReg       int
	DivideByZero  bool
}

// Unit models one functional unit instance of a given class.
type Unit struct {
	Class     Class
	latencies LatencyTable

	busy      bool
	current   Job
	remaining uint64
}

// New creates a Unit of the given class using lt for per-op latencies.
func New(class Class, lt LatencyTable) *Unit {
	return &Unit{Class: class, latencies: lt}
}

// Busy reports whether the unit is currently executing a job.
func (u *Unit) Busy() bool { return u.busy }

// Start dispatches job to this unit: captures the job, sets
// remainingCycles = latency(op), and marks the unit busy. The caller
// (reservation station) transitions its own state to EXECUTING at the
// same time.
func (u *Unit) Start(job Job) {
	u.busy = true
	u.current = job
	u.remaining = u.latencies.Latency(job.Op)
	if u.remaining == 0 {
		u.remaining = 1
	}
}

// Tick advances the unit by one cycle. When the countdown reaches zero
// the unit computes its result, frees itself, and returns (result,
// true); otherwise it returns (zero Result, false).
func (u *Unit) Tick() (Result, bool) {
	if !u.busy {
		return Result{}, false
	}

	u.remaining--
	if u.remaining > 0 {
		return Result{}, false
	}

	result := u.execute(u.current)
	u.busy = false
	u.current = Job{}
	return result, true
}

func (u *Unit) execute(job Job) Result {
	switch u.Class {
	case ClassIntALU:
		return u.executeInt(job)
	default:
		return u.executeFp(job)
	}
}

func (u *Unit) executeInt(job Job) Result {
	a := int64(math.Float64bits(job.Vj))

	var b int64
	if isa.IsIntImmediate(job.Op) {
		b = job.Imm
	} else {
		b = int64(math.Float64bits(job.Vk))
	}

	var r int64
	divByZero := false

	switch job.Op {
	case isa.OpDADD, isa.OpDADDI:
		r = a + b
	case isa.OpDSUB, isa.OpDSUBI:
		r = a - b
	case isa.OpAND:
		r = a & b
	case isa.OpOR:
		r = a | b
	case isa.OpXOR:
		r = a ^ b
	case isa.OpDMUL:
		r = a * b
	case isa.OpDDIV:
		if b == 0 {
			r = 0
			divByZero = true
		} else {
			r = a / b
		}
	default:
		r = 0
	}

	return Result{
		Tag:          job.Tag,
		Value:        math.Float64frombits(uint64(r)),
		DestReg:      job.DestReg,
		DivideByZero: divByZero,
	}
}

func (u *Unit) executeFp(job Job) Result {
	var v float64
	divByZero := false

	switch job.Op {
	case isa.OpADDD:
		v = job.Vj + job.Vk
	case isa.OpSUBD:
		v = job.Vj - job.Vk
	case isa.OpMULD:
		v = job.Vj * job.Vk
	case isa.OpDIVD:
		if job.Vk == 0 {
			divByZero = true
		}
		v = job.Vj / job.Vk // IEEE-754 yields +-Inf/NaN, never panics
	}

	return Result{
		Tag:          job.Tag,
		Value:        v,
		DestReg:      job.DestReg,
		DivideByZero: divByZero,
	}
}
