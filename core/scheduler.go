package core

import (
	"math"

	"github.com/sarchlab/tomasim/branch"
	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/fu"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/lsq"
	"github.com/sarchlab/tomasim/rs"
	"github.com/sarchlab/tomasim/tag"
)

// Tick advances the core by exactly one cycle through nine fixed
// phases: advance issued instructions (incl. address units), execute,
// CDB-arbitrate, broadcast, free the winning producer, evaluate
// branches, dispatch to functional units, issue from the instruction
// queue, and finally snapshot the resulting state.
func (c *Core) Tick() CycleSnapshot {
	c.cycle++
	c.hasBroadcast = false

	var log []LogEntry

	c.phase1AdvanceIssued(&log)
	c.phase2Execute(&log)
	c.phase3to5Broadcast(&log)
	c.phase6Branches(&log)
	c.phase7Dispatch(&log)
	c.phase8Issue(&log)

	return c.buildSnapshot(log)
}

// phase1AdvanceIssued advances address units, then every station and
// buffer sitting in Issued or waiting for an operand/address/ordering
// condition. Memory buffers that transition into Executing this phase
// immediately have their access latency determined via a non-mutating
// cache probe.
func (c *Core) phase1AdvanceIssued(log *[]LogEntry) {
	for _, u := range c.addrUnits.All() {
		u.Tick()
	}

	for _, s := range c.allStations() {
		s.AdvanceIssued()
	}
	for _, h := range c.branches.All() {
		h.Tick()
		h.AdvanceIssued()
	}

	storesAll := c.stores.All()
	loadsAll := c.loads.All()

	for _, l := range loadsAll {
		if l.State() != lsq.Issued && l.State() != lsq.WaitingForAddress {
			continue
		}
		prev := l.State()
		ordering := lsq.CanLoadExecute(l, storesAll)
		l.AdvancePhase1(ordering)
		if prev != lsq.Executing && l.State() == lsq.Executing {
			probe := c.cache.Peek(l.EffectiveAddress())
			l.StartAccess(probe.Latency)
		}
	}

	for _, s := range storesAll {
		if s.State() != lsq.Issued && s.State() != lsq.WaitingForAddress {
			continue
		}
		prev := s.State()
		ordering := lsq.CanStoreExecute(s, storesAll, loadsAll)
		s.AdvancePhase1(ordering)
		if prev != lsq.Executing && s.State() == lsq.Executing {
			probe := c.cache.Peek(s.EffectiveAddress())
			s.StartAccess(probe.Latency)
		}
	}
}

// phase2Execute ticks every busy functional unit and memory buffer. A
// unit or buffer whose countdown reaches zero performs its result —
// the functional unit computes its arithmetic in the same Tick that
// ends its countdown, while a memory buffer performs its actual
// (mutating) cache access only now.
func (c *Core) phase2Execute(log *[]LogEntry) {
	for _, u := range c.allUnits() {
		result, done := u.Tick()
		if !done {
			continue
		}
		station := c.findStationByTag(result.Tag)
		if station == nil {
			continue
		}
		station.FinishExecution(result)
		c.markResultReady(station.Tag())
		if result.DivideByZero {
			if isa.IsFp(station.Op()) {
				logf(log, c.cycle, "%s: divide by zero, IEEE result %v", station.Tag(), result.Value)
			} else {
				logf(log, c.cycle, "%s: divide by zero, result forced to 0", station.Tag())
			}
		}
	}

	for _, l := range c.loads.All() {
		if !l.Tick() {
			continue
		}
		bits := c.readMemoryFor(l)
		l.Complete(bits)
		c.markResultReady(l.Tag())
	}

	for _, s := range c.stores.All() {
		if !s.Tick() {
			continue
		}
		c.writeMemoryFor(s)
		s.Complete()
		c.stats.InstructionsRetired++
		// A store never broadcasts on the CDB, so nothing downstream
		// ever calls FreeAfterBroadcast for it; it frees itself the
		// same cycle its write completes.
		s.Free()
	}
}

// markResultReady assigns t its arbitration sequence number the first
// time it becomes a ready CDB candidate.
func (c *Core) markResultReady(t tag.Tag) {
	if _, ok := c.resultReadySeq[t]; ok {
		return
	}
	c.nextCdbSeq++
	c.resultReadySeq[t] = c.nextCdbSeq
}

func (c *Core) findStationByTag(t tag.Tag) *rs.Station {
	for _, s := range c.allStations() {
		if s.Tag().Equal(t) {
			return s
		}
	}
	return nil
}

// readMemoryFor performs the mutating cache read a load buffer's
// countdown just finished waiting for, returning the raw bits to hand
// to LoadBuffer.Complete. L.W sign-extends its 32-bit word into the
// full 64-bit container before the round trip through
// math.Float64frombits/Float64bits that the register file relies on.
func (c *Core) readMemoryFor(l *lsq.LoadBuffer) uint64 {
	addr := l.EffectiveAddress()
	if l.Op() == isa.OpLW {
		bits, _ := c.cache.LoadWord(addr)
		return uint64(int64(int32(bits)))
	}
	bits, _ := c.cache.LoadDouble(addr)
	return bits
}

// writeMemoryFor performs the mutating cache write a store buffer's
// countdown just finished waiting for.
func (c *Core) writeMemoryFor(s *lsq.StoreBuffer) {
	addr := s.EffectiveAddress()
	bits := math.Float64bits(s.ValueToStore())
	if s.Op() == isa.OpSW {
		c.cache.StoreWord(addr, uint32(bits))
		return
	}
	c.cache.StoreDouble(addr, bits)
}

// phase3to5Broadcast arbitrates among every ready producer, broadcasts
// the winner's message to the register file and every waiting
// consumer, and frees the winner.
func (c *Core) phase3to5Broadcast(log *[]LogEntry) {
	var candidates []cdb.Candidate
	var producers []producer

	consider := func(p producer) {
		if !p.ResultReady() {
			return
		}
		c.markResultReady(p.Tag())
		candidates = append(candidates, cdb.Candidate{
			Message: p.Message(),
			Deps:    c.dependencyCounts(p.Tag()),
			Seq:     c.resultReadySeq[p.Tag()],
		})
		producers = append(producers, p)
	}

	for _, s := range c.allStations() {
		consider(s)
	}
	for _, l := range c.loads.All() {
		consider(l)
	}

	if len(candidates) == 0 {
		return
	}

	winner, losers := cdb.Arbitrate(candidates)
	if len(losers) > 0 {
		c.stats.CdbContentions++
	}

	var winnerProducer producer
	for _, p := range producers {
		if p.Tag().Equal(winner.Message.Tag) {
			winnerProducer = p
			break
		}
	}

	msg := winner.Message
	if msg.HasDest {
		c.regs.Broadcast(msg.DestReg, msg.Tag, msg.Value)
	}
	for _, s := range c.allStations() {
		s.Wake(msg.Tag, msg.Value)
	}
	for _, l := range c.loads.All() {
		l.Wake(msg.Tag, msg.Value)
	}
	for _, s := range c.stores.All() {
		s.Wake(msg.Tag, msg.Value)
	}
	for _, h := range c.branches.All() {
		h.Wake(msg.Tag, msg.Value)
	}

	logf(log, c.cycle, "%s: broadcasts on CDB", msg.Tag)

	if winnerProducer != nil {
		winnerProducer.FreeAfterBroadcast()
	}
	delete(c.resultReadySeq, msg.Tag)

	c.stats.InstructionsRetired++
	c.lastBroadcast = msg
	c.hasBroadcast = true
}

// dependencyCounts scans every consumer pool fresh each cycle to build
// tag's priority inputs for CDB arbitration: how many busy consumers
// wait on tag at all, and how many of those would
// become fully operand-ready the instant tag's broadcast lands.
func (c *Core) dependencyCounts(t tag.Tag) cdb.DependencyCounts {
	var counts cdb.DependencyCounts

	check := func(depends, readyAfter bool) {
		if !depends {
			return
		}
		counts.Dependents++
		if readyAfter {
			counts.ReadyDependents++
		}
	}

	for _, s := range c.allStations() {
		if !s.Busy() {
			continue
		}
		check(s.DependsOn(t), s.WouldBeReadyAfter(t))
	}
	for _, l := range c.loads.All() {
		if !l.Busy() {
			continue
		}
		check(l.DependsOn(t), l.WouldBeReadyAfter(t))
	}
	for _, s := range c.stores.All() {
		if !s.Busy() {
			continue
		}
		check(s.DependsOn(t), s.WouldBeReadyAfter(t))
	}
	for _, h := range c.branches.All() {
		if !h.Busy() {
			continue
		}
		check(h.DependsOn(t), h.WouldBeReadyAfter(t))
	}

	return counts
}

// phase6Branches evaluates every branch handler sitting in Ready whose
// latency countdown (ticked in phase1) has reached zero, and for each
// one that resolves this cycle, flushes and reloads the instruction
// queue on a taken outcome. A handler's own resolution always frees
// it, whether taken or not.
func (c *Core) phase6Branches(log *[]LogEntry) {
	for _, h := range c.branches.All() {
		if h.State() == branch.Ready {
			h.Evaluate()
		}
	}

	for _, h := range c.branches.All() {
		if !h.Resolved() {
			continue
		}

		c.stats.BranchesResolved++
		c.stats.InstructionsRetired++

		if h.Taken() {
			c.stats.BranchesTaken++
			c.iq.Reload(c.program, h.NextPC())
			logf(log, c.cycle, "%s: branch taken, flushing to pc=%d", h.Tag(), h.NextPC())
		} else {
			logf(log, c.cycle, "%s: branch not taken", h.Tag())
		}

		h.Free()
	}
}

// phase7Dispatch hands every station in WaitingForFU to a free
// functional unit of its class.
func (c *Core) phase7Dispatch(log *[]LogEntry) {
	c.dispatchClass(c.rsFpAddSub, c.fuFpAddSub)
	c.dispatchClass(c.rsFpMulDiv, c.fuFpMulDiv)
	c.dispatchClass(c.rsInt, c.fuInt)
}

func (c *Core) dispatchClass(pool *rs.Pool, units []*fu.Unit) {
	for _, s := range pool.All() {
		if s.State() != rs.WaitingForFU {
			continue
		}
		unit := findFreeUnit(units)
		if unit == nil {
			continue
		}
		unit.Start(s.Job())
		s.StartExecution()
	}
}

// phase8Issue attempts to issue the instruction at the head of the
// queue. Issue is entirely in order and single-width: at most one
// instruction issues per cycle, and a
// structural stall (no free station/buffer/address-unit/branch
// handler) or a pending branch leaves the head in place for next
// cycle's retry.
func (c *Core) phase8Issue(log *[]LogEntry) {
	if c.branches.AnyPending() {
		c.stats.Stalls++
		return
	}

	head, ok := c.iq.Head()
	if !ok {
		return
	}

	switch {
	case isa.IsMemory(head.inst.Op):
		c.issueMemory(head, log)
	case isa.IsBranch(head.inst.Op):
		c.issueBranch(head, log)
	default:
		c.issueArith(head, log)
	}
}

func classFor(op isa.Op) fu.Class {
	switch {
	case isa.IsFpAddSub(op):
		return fu.ClassFPAddSub
	case isa.IsFpMulDiv(op):
		return fu.ClassFPMulDiv
	default:
		return fu.ClassIntALU
	}
}

// operandIndex maps an architectural register number to its flat
// index in the register file: op's own classification says whether
// that register lives in the integer or floating-point half. This
// only holds for the registers an opcode interprets uniformly
// (Src1/Src2/Dest of an arithmetic op, or the value register of a
// load/store) — a memory instruction's base register is always
// integer and is resolved separately.
func (c *Core) operandIndex(op isa.Op, reg int) int {
	if isa.IsFp(op) {
		return c.regs.FPIndex(reg)
	}
	return reg
}

func (c *Core) readOperand(idx int) (float64, tag.Tag) {
	return c.regs.Value(idx), c.regs.Producer(idx)
}

func (c *Core) issueArith(head fetched, log *[]LogEntry) {
	inst := head.inst
	pool := c.rsPoolFor(classFor(inst.Op))
	station := pool.FindFree()
	if station == nil {
		c.stats.Stalls++
		return
	}

	src1Idx := c.operandIndex(inst.Op, inst.Src1)
	vj, qj := c.readOperand(src1Idx)

	vk := 0.0
	qk := tag.NONE
	if isa.UsesSecondSource(inst.Op) {
		src2Idx := c.operandIndex(inst.Op, inst.Src2)
		vk, qk = c.readOperand(src2Idx)
	}

	destIdx := c.operandIndex(inst.Op, inst.Dest)

	station.Issue(rs.IssueInput{
		Op:      inst.Op,
		Vj:      vj,
		Vk:      vk,
		Qj:      qj,
		Qk:      qk,
		Imm:     inst.Imm,
		DestReg: destIdx,
		HasDest: isa.HasDest(inst.Op),
	})
	c.regs.SetProducer(destIdx, station.Tag())

	c.iq.Dequeue()
	logf(log, c.cycle, "%s: issued %v at pc=%d", station.Tag(), inst.Op, head.pc)
}

func (c *Core) issueMemory(head fetched, log *[]LogEntry) {
	inst := head.inst

	addrUnit := c.addrUnits.FindFree()
	if addrUnit == nil {
		c.stats.Stalls++
		return
	}

	baseVal, baseTag := c.readOperand(inst.Base)

	if isa.IsLoad(inst.Op) {
		buf := c.loads.FindFree()
		if buf == nil {
			c.stats.Stalls++
			return
		}

		destIdx := c.operandIndex(inst.Op, inst.Dest)
		seq := c.nextSeq
		c.nextSeq++

		buf.Issue(lsq.LoadIssueInput{
			Op:             inst.Op,
			BaseReg:        inst.Base,
			BaseValue:      baseVal,
			BaseTag:        baseTag,
			Offset:         inst.Offset,
			DestReg:        destIdx,
			SequenceNumber: seq,
		})
		c.regs.SetProducer(destIdx, buf.Tag())
		addrUnit.Start(buf, c.config.AddressLatency)

		c.iq.Dequeue()
		logf(log, c.cycle, "%s: issued %v at pc=%d", buf.Tag(), inst.Op, head.pc)
		return
	}

	buf := c.stores.FindFree()
	if buf == nil {
		c.stats.Stalls++
		return
	}

	srcIdx := c.operandIndex(inst.Op, inst.Src1)
	val, srcTag := c.readOperand(srcIdx)
	seq := c.nextSeq
	c.nextSeq++

	buf.Issue(lsq.StoreIssueInput{
		Op:             inst.Op,
		BaseReg:        inst.Base,
		BaseValue:      baseVal,
		BaseTag:        baseTag,
		Offset:         inst.Offset,
		SrcReg:         inst.Src1,
		Value:          val,
		SourceTag:      srcTag,
		SequenceNumber: seq,
	})
	addrUnit.Start(buf, c.config.AddressLatency)

	c.iq.Dequeue()
	logf(log, c.cycle, "%s: issued %v at pc=%d", buf.Tag(), inst.Op, head.pc)
}

func (c *Core) issueBranch(head fetched, log *[]LogEntry) {
	inst := head.inst

	handler := c.branches.FindFree()
	if handler == nil {
		c.stats.Stalls++
		return
	}

	vj, qj := c.readOperand(inst.Src1)
	vk, qk := c.readOperand(inst.Src2)

	handler.Issue(branch.IssueInput{
		Op:            inst.Op,
		Vj:            vj,
		Vk:            vk,
		Qj:            qj,
		Qk:            qk,
		CurrentPC:     head.pc,
		TargetPC:      uint64(inst.Imm),
		FallthroughPC: head.pc + instWidth,
	})

	c.iq.Dequeue()
	logf(log, c.cycle, "%s: issued %v at pc=%d", handler.Tag(), inst.Op, head.pc)
}

// buildSnapshot assembles the immutable CycleSnapshot for this cycle.
func (c *Core) buildSnapshot(log []LogEntry) CycleSnapshot {
	snap := CycleSnapshot{
		Cycle:            c.cycle,
		Registers:        c.regs.Snapshot(),
		FpAddSubStations: stationSnapshots(c.rsFpAddSub.All()),
		FpMulDivStations: stationSnapshots(c.rsFpMulDiv.All()),
		IntStations:      stationSnapshots(c.rsInt.All()),
		LoadBuffers:       bufferSnapshotsLoad(c.loads.All()),
		StoreBuffers:      bufferSnapshotsStore(c.stores.All()),
		BranchHandlers:    branchSnapshots(c.branches.All()),
		CacheLines:        c.cache.Lines(),
		Log:              log,
	}

	if head, ok := c.iq.Head(); ok {
		snap.IQHasHead = true
		snap.IQHead = head.inst
		snap.IQHeadPC = head.pc
	}
	snap.IQRemaining = len(c.iq.items)

	if c.hasBroadcast {
		snap.Broadcast = c.lastBroadcast
		snap.HasBroadcast = true
	}

	snap.Done = c.Done()

	return snap
}
