package core

import "github.com/sarchlab/tomasim/isa"

// instWidth is the fixed width of one decoded instruction, in bytes,
// used to compute the fallthrough PC and to index program by PC: the
// PC advances by one instruction slot per fetch.
const instWidth = 4

// fetched pairs a decoded instruction with the PC it was fetched from,
// so the issue phase can report both in a LogEntry and compute branch
// targets relative to it.
type fetched struct {
	inst isa.Instruction
	pc   uint64
}

// instructionQueue is the in-order fetch queue standing between the
// program and the issue phase: a FIFO that issue drains from the head,
// and that a taken branch flushes and reloads from its target PC.
type instructionQueue struct {
	items []fetched
}

func newInstructionQueue() *instructionQueue {
	return &instructionQueue{}
}

// Empty reports whether the queue has no more instructions to issue.
func (q *instructionQueue) Empty() bool { return len(q.items) == 0 }

// Head returns the instruction at the front of the queue without
// removing it, and whether one exists.
func (q *instructionQueue) Head() (fetched, bool) {
	if len(q.items) == 0 {
		return fetched{}, false
	}
	return q.items[0], true
}

// Dequeue removes and returns the instruction at the front of the
// queue.
func (q *instructionQueue) Dequeue() fetched {
	f := q.items[0]
	q.items = q.items[1:]
	return f
}

// Reload empties the queue and refills it from program starting at
// targetPC, treating PC as a byte offset in units of instWidth. A
// taken branch discards every instruction fetched past it and resumes
// fetching at the target.
func (q *instructionQueue) Reload(program []isa.Instruction, targetPC uint64) {
	start := int(targetPC / instWidth)
	q.items = q.items[:0]
	for i := start; i >= 0 && i < len(program); i++ {
		q.items = append(q.items, fetched{
			inst: program[i],
			pc:   uint64(i) * instWidth,
		})
	}
}
