// Package core wires every other package into the Tomasulo scheduler:
// the fixed nine-phase per-cycle orchestration that drives issue,
// dispatch, execution, CDB arbitration, and broadcast.
package core

import (
	"fmt"
	"math"

	"github.com/sarchlab/tomasim/branch"
	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/config"
	"github.com/sarchlab/tomasim/fu"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/lsq"
	"github.com/sarchlab/tomasim/mem"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/rs"
	"github.com/sarchlab/tomasim/tag"
)

// numInt and numFP are fixed at 32 integer and 32 FP registers —
// unlike pool sizes and latencies, register counts are not a
// CoreConfig knob.
const (
	numInt = 32
	numFP  = 32
)

// InitialState seeds the register file and backing memory before the
// first cycle: a sparse map of register index to value, and a sparse
// map of byte address to double value.
type InitialState struct {
	IntRegisters map[int]int64
	FPRegisters  map[int]float64
	Memory       map[uint64]float64
}

// Core is one Tomasulo scheduler instance: a register file, a backing
// memory and cache, three reservation-station pools, a load/store queue,
// an address-unit pool, a branch-handler pool, and the instruction
// queue that feeds them all.
type Core struct {
	config *config.CoreConfig

	regs    *regfile.RegisterFile
	backing *mem.Memory
	cache   *cache.Cache

	rsFpAddSub *rs.Pool
	rsFpMulDiv *rs.Pool
	rsInt      *rs.Pool

	fuFpAddSub []*fu.Unit
	fuFpMulDiv []*fu.Unit
	fuInt      []*fu.Unit

	loads     *lsq.LoadPool
	stores    *lsq.StorePool
	addrUnits *lsq.AddressUnitPool

	branches *branch.Pool

	program []isa.Instruction
	iq      *instructionQueue

	nextSeq    uint64
	nextCdbSeq uint64

	// resultReadySeq assigns a stable arbitration-order sequence number
	// to each producer the moment its result first becomes ready
	// (phase 2), and keeps it until the producer's message actually
	// broadcasts. This is what lets a CDB-arbitration loser carry into
	// the next cycle ahead of new arrivals without the core maintaining
	// a separate queue: the loser is simply the same producer,
	// re-scanned next cycle, still holding its original (earlier)
	// sequence number.
	resultReadySeq map[tag.Tag]uint64

	lastBroadcast cdb.Message
	hasBroadcast  bool

	cycle uint64
	stats Stats
}

// New constructs a Core from cfg and program, seeded with initial.
// cfg is validated first; an invalid configuration is rejected at
// construction with no simulation proceeding.
func New(cfg *config.CoreConfig, program []isa.Instruction, initial InitialState) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("core: config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("core: invalid config: %w", err)
	}

	backing := mem.New(cfg.MemorySize)
	c := &Core{
		config:  cfg,
		regs:    regfile.New(numInt, numFP),
		backing: backing,
		cache: cache.New(cache.Config{
			Size:        cfg.CacheSize,
			BlockSize:   cfg.BlockSize,
			HitLatency:  cfg.CacheHitLatency,
			MissPenalty: cfg.CacheMissPenalty,
		}, backing),

		rsFpAddSub: rs.NewPool(fu.ClassFPAddSub, cfg.NumFpAddSubRs),
		rsFpMulDiv: rs.NewPool(fu.ClassFPMulDiv, cfg.NumFpMulDivRs),
		rsInt:      rs.NewPool(fu.ClassIntALU, cfg.NumIntRs),

		loads:     lsq.NewLoadPool(cfg.NumLoadBuffers),
		stores:    lsq.NewStorePool(cfg.NumStoreBuffers),
		addrUnits: lsq.NewAddressUnitPool(cfg.NumAddressUnits),

		branches: branch.NewPool(cfg.NumBranchHandler, cfg.BranchLatency),

		program: program,
		iq:      newInstructionQueue(),

		resultReadySeq: make(map[tag.Tag]uint64),
	}

	lt := fu.LatencyTable{
		IntALU:   cfg.IntAluLatency,
		FPAddSub: cfg.FpAddSubLatency,
		FPMul:    cfg.FpMulLatency,
		FPDiv:    cfg.FpDivLatency,
	}
	c.fuFpAddSub = newUnits(fu.ClassFPAddSub, lt, cfg.NumFpAddSubRs)
	c.fuFpMulDiv = newUnits(fu.ClassFPMulDiv, lt, cfg.NumFpMulDivRs)
	c.fuInt = newUnits(fu.ClassIntALU, lt, cfg.NumIntRs)

	c.applyInitialState(initial)
	c.iq.Reload(program, 0)

	return c, nil
}

// newUnits constructs n functional units of class, one per reservation
// station in that class's pool — so any station that reaches
// WAITING_FOR_FU can, in principle, find a free unit the same cycle
// another does, letting multiple results of the same class complete
// in the same cycle. There is no separate "number of FUs" knob, so
// this ties the FU count to the already-configured RS pool size
// rather than inventing a new CoreConfig field.
func newUnits(class fu.Class, lt fu.LatencyTable, n int) []*fu.Unit {
	units := make([]*fu.Unit, n)
	for i := range units {
		units[i] = fu.New(class, lt)
	}
	return units
}

func (c *Core) applyInitialState(initial InitialState) {
	for idx, v := range initial.IntRegisters {
		c.regs.WriteIntValue(idx, v)
	}
	for idx, v := range initial.FPRegisters {
		c.regs.WriteValue(c.regs.FPIndex(idx), v)
	}
	for addr, v := range initial.Memory {
		c.backing.WriteDoubleBits(addr, math.Float64bits(v))
	}
}

// Config returns the configuration this core was constructed with.
func (c *Core) Config() *config.CoreConfig { return c.config }

// Registers returns the live register file, for inspection between
// Tick calls.
func (c *Core) Registers() *regfile.RegisterFile { return c.regs }

// Cycle returns the number of cycles executed so far.
func (c *Core) Cycle() uint64 { return c.cycle }

// Stats returns the core's accumulated statistics plus the CPI
// derived field.
func (c *Core) Stats() Stats {
	s := c.stats
	s.Cycles = c.cycle
	cacheStats := c.cache.Stats()
	s.CacheHits = cacheStats.Hits
	s.CacheMisses = cacheStats.Misses
	if s.InstructionsRetired > 0 {
		s.CPI = float64(s.Cycles) / float64(s.InstructionsRetired)
	}
	return s
}

// Done reports whether the simulation has reached termination: the IQ
// is empty, no station/buffer/FU is busy, and no branch is pending.
func (c *Core) Done() bool {
	if !c.iq.Empty() {
		return false
	}
	if c.branches.AnyPending() {
		return false
	}
	for _, s := range c.allStations() {
		if s.Busy() {
			return false
		}
	}
	for _, l := range c.loads.All() {
		if l.Busy() {
			return false
		}
	}
	for _, s := range c.stores.All() {
		if s.Busy() {
			return false
		}
	}
	for _, u := range c.allUnits() {
		if u.Busy() {
			return false
		}
	}
	for _, u := range c.addrUnits.All() {
		if u.Busy() {
			return false
		}
	}
	return len(c.resultReadySeq) == 0
}

func (c *Core) allStations() []*rs.Station {
	out := append([]*rs.Station{}, c.rsFpAddSub.All()...)
	out = append(out, c.rsFpMulDiv.All()...)
	out = append(out, c.rsInt.All()...)
	return out
}

func (c *Core) allUnits() []*fu.Unit {
	out := append([]*fu.Unit{}, c.fuFpAddSub...)
	out = append(out, c.fuFpMulDiv...)
	out = append(out, c.fuInt...)
	return out
}

func (c *Core) fuPoolFor(class fu.Class) []*fu.Unit {
	switch class {
	case fu.ClassFPAddSub:
		return c.fuFpAddSub
	case fu.ClassFPMulDiv:
		return c.fuFpMulDiv
	default:
		return c.fuInt
	}
}

func (c *Core) rsPoolFor(class fu.Class) *rs.Pool {
	switch class {
	case fu.ClassFPAddSub:
		return c.rsFpAddSub
	case fu.ClassFPMulDiv:
		return c.rsFpMulDiv
	default:
		return c.rsInt
	}
}

func findFreeUnit(units []*fu.Unit) *fu.Unit {
	for _, u := range units {
		if !u.Busy() {
			return u
		}
	}
	return nil
}

// Run advances the core until termination or maxCycles is reached,
// whichever comes first, and returns the final snapshot together with
// the full per-cycle trace — a caller may cap cycles and obtain the
// final snapshot, or walk the trace for deterministic replay.
func (c *Core) Run(maxCycles int) (CycleSnapshot, []CycleSnapshot, error) {
	if maxCycles <= 0 {
		return CycleSnapshot{}, nil, fmt.Errorf("core: maxCycles must be > 0, got %d", maxCycles)
	}

	trace := make([]CycleSnapshot, 0, maxCycles)
	var last CycleSnapshot
	for i := 0; i < maxCycles; i++ {
		last = c.Tick()
		trace = append(trace, last)
		if c.Done() {
			break
		}
	}
	return last, trace, nil
}

// producer is the narrow capability shared by things that may produce
// a CDB message — a reservation station via its FU, or a load buffer
// directly — without the core needing to union their storage.
type producer interface {
	Tag() tag.Tag
	ResultReady() bool
	Message() cdb.Message
	FreeAfterBroadcast()
}
