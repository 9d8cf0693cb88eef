package core

import (
	"fmt"

	"github.com/sarchlab/tomasim/branch"
	"github.com/sarchlab/tomasim/cache"
	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/lsq"
	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/rs"
	"github.com/sarchlab/tomasim/tag"
)

// LogEntry is one human-readable record of something that happened
// during a cycle: an issue, a broadcast, a branch resolution, or an
// anomaly such as a divide-by-zero. Dispatches are not logged.
type LogEntry struct {
	Cycle   uint64
	Message string
}

func logf(log *[]LogEntry, cycle uint64, format string, args ...interface{}) {
	*log = append(*log, LogEntry{Cycle: cycle, Message: fmt.Sprintf(format, args...)})
}

// StationSnapshot is a read-only view of one reservation station.
type StationSnapshot struct {
	Tag   tag.Tag
	State rs.State
	Op    isa.Op
}

// BufferSnapshot is a read-only view of one load or store buffer.
type BufferSnapshot struct {
	Tag            tag.Tag
	State          lsq.State
	Op             isa.Op
	SequenceNumber uint64
}

// BranchSnapshot is a read-only view of one branch handler.
type BranchSnapshot struct {
	Tag   tag.Tag
	State branch.State
	Op    isa.Op
}

// CycleSnapshot captures the entire machine state at the end of one
// Tick: an inspectable per-cycle trace a caller can replay or diff.
type CycleSnapshot struct {
	Cycle uint64

	IQHead     isa.Instruction
	IQHeadPC   uint64
	IQHasHead  bool
	IQRemaining int

	Registers []regfile.Register

	FpAddSubStations []StationSnapshot
	FpMulDivStations []StationSnapshot
	IntStations      []StationSnapshot

	LoadBuffers  []BufferSnapshot
	StoreBuffers []BufferSnapshot

	BranchHandlers []BranchSnapshot

	CacheLines []cache.LineSnapshot

	Broadcast   cdb.Message
	HasBroadcast bool

	Done bool

	Log []LogEntry
}

// Stats accumulates the core's running counters, returned by
// Core.Stats.
type Stats struct {
	Cycles              uint64
	InstructionsRetired  uint64
	Stalls              uint64
	CdbContentions      uint64
	CacheHits           uint64
	CacheMisses         uint64
	BranchesTaken       uint64
	BranchesResolved    uint64

	// CPI is cycles-per-instruction, derived on read: Cycles /
	// InstructionsRetired. Zero while no instruction has yet retired.
	CPI float64
}

func stationSnapshots(stations []*rs.Station) []StationSnapshot {
	out := make([]StationSnapshot, len(stations))
	for i, s := range stations {
		out[i] = StationSnapshot{Tag: s.Tag(), State: s.State(), Op: s.Op()}
	}
	return out
}

func bufferSnapshotsLoad(bufs []*lsq.LoadBuffer) []BufferSnapshot {
	out := make([]BufferSnapshot, len(bufs))
	for i, b := range bufs {
		out[i] = BufferSnapshot{Tag: b.Tag(), State: b.State(), Op: b.Op(), SequenceNumber: b.SequenceNumber()}
	}
	return out
}

func bufferSnapshotsStore(bufs []*lsq.StoreBuffer) []BufferSnapshot {
	out := make([]BufferSnapshot, len(bufs))
	for i, b := range bufs {
		out[i] = BufferSnapshot{Tag: b.Tag(), State: b.State(), Op: b.Op(), SequenceNumber: b.SequenceNumber()}
	}
	return out
}

func branchSnapshots(handlers []*branch.Handler) []BranchSnapshot {
	out := make([]BranchSnapshot, len(handlers))
	for i, h := range handlers {
		out[i] = BranchSnapshot{Tag: h.Tag(), State: h.State(), Op: h.Op()}
	}
	return out
}
