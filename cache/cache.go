// Package cache provides a direct-mapped, write-back, write-allocate
// data cache, built on Akita's set-associative cache directory with
// associativity pinned to 1 way — which is exactly what
// "direct-mapped" means: each block-aligned address maps to exactly one
// line, so the ordinary LRU victim finder degenerates to "evict the
// line already resident in that set."
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/tomasim/mem"
)

// Config holds the cache geometry and latency, mirroring the subset of
// config.CoreConfig this package needs.
type Config struct {
	// Size is the total cache size in bytes.
	Size int
	// BlockSize is the cache line size in bytes.
	BlockSize int
	// HitLatency is the access latency on a hit, in cycles.
	HitLatency uint64
	// MissPenalty is the EXTRA latency on a miss, in cycles
	// (total miss latency = HitLatency + MissPenalty).
	MissPenalty uint64
}

// Result is the outcome of a Load/Store access.
type Result struct {
	Hit     bool
	Latency uint64
}

// Cache is a single, direct-mapped write-back/write-allocate cache
// fronting a mem.Memory backing store.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	data      [][]byte
	backing   *mem.Memory

	stats Statistics
}

// Statistics accumulates cache access counters for CycleSnapshot/Stats.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// New constructs a Cache per config, backed by backing. config must
// already be validated (power-of-two Size/BlockSize, BlockSize <= Size);
// New does not re-validate, since that is config.CoreConfig's job.
func New(config Config, backing *mem.Memory) *Cache {
	numLines := config.Size / config.BlockSize

	data := make([][]byte, numLines)
	for i := range data {
		data[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numLines, 1, config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		data:    data,
		backing: backing,
	}
}

// Stats returns a copy of the cache's access statistics.
func (c *Cache) Stats() Statistics { return c.stats }

// LineSnapshot is a read-only view of one directory line's state: which
// block it holds (Tag, a block-aligned backing address), and whether
// that block is resident (Valid) and modified since fetch (Dirty).
type LineSnapshot struct {
	Valid bool
	Dirty bool
	Tag   uint64
}

// Lines returns a snapshot of every line in the cache, in directory
// set order, for a caller building a per-cycle trace of cache state
// without mutating it (no LRU touch, unlike access).
func (c *Cache) Lines() []LineSnapshot {
	out := make([]LineSnapshot, 0, len(c.data))
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			out = append(out, LineSnapshot{
				Valid: block.IsValid,
				Dirty: block.IsDirty,
				Tag:   block.Tag,
			})
		}
	}
	return out
}

// Peek reports the latency a subsequent access to addr would incur
// without mutating any cache state (no LRU touch, no eviction). This
// is how load/store buffers determine their access latency as soon as
// they become ready to execute, deferring the actual mutating access
// to when their countdown completes.
func (c *Cache) Peek(addr uint64) Result {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		return Result{Hit: true, Latency: c.config.HitLatency}
	}
	return Result{Hit: false, Latency: c.config.HitLatency + c.config.MissPenalty}
}

func (c *Cache) lineIndex(block *akitacache.Block) int {
	return block.SetID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	bs := uint64(c.config.BlockSize)
	return (addr / bs) * bs
}

// LoadDouble reads the 8 bytes at addr (raw bits; caller reinterprets
// as float64 or int64).
func (c *Cache) LoadDouble(addr uint64) (bits uint64, result Result) {
	b := c.access(addr, 8, false, 0)
	return bitsFromBytes(b.data, 8), b.Result
}

// StoreDouble writes 8 raw bits at addr.
func (c *Cache) StoreDouble(addr uint64, bits uint64) Result {
	var buf [8]byte
	putBits(buf[:], bits, 8)
	b := c.access(addr, 8, true, buf[:])
	return b.Result
}

// LoadWord reads the 4 bytes at addr.
func (c *Cache) LoadWord(addr uint64) (bits uint32, result Result) {
	b := c.access(addr, 4, false, 0)
	return uint32(bitsFromBytes(b.data, 4)), b.Result
}

// StoreWord writes the 4 bytes at addr.
func (c *Cache) StoreWord(addr uint64, v uint32) Result {
	var buf [4]byte
	putBits(buf[:], uint64(v), 4)
	b := c.access(addr, 4, true, buf[:])
	return b.Result
}

type accessOutcome struct {
	Result
	data []byte
}

// access implements the shared hit/miss path for loads and stores: on
// hit, read/update in place (dirty on write); on miss, write back the
// resident line if dirty, fetch the new block, then proceed with the
// operation.
func (c *Cache) access(addr uint64, size int, isWrite bool, writeData []byte) accessOutcome {
	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.blockAddr(addr)
	offset := addr - blockAddr

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		line := c.data[c.lineIndex(block)]

		if isWrite {
			copy(line[offset:offset+uint64(size)], writeData)
			block.IsDirty = true
			return accessOutcome{Result: Result{Hit: true, Latency: c.config.HitLatency}}
		}

		out := make([]byte, size)
		copy(out, line[offset:offset+uint64(size)])
		return accessOutcome{Result: Result{Hit: true, Latency: c.config.HitLatency}, data: out}
	}

	c.stats.Misses++
	return c.handleMiss(addr, blockAddr, offset, size, isWrite, writeData)
}

func (c *Cache) handleMiss(addr, blockAddr, offset uint64, size int, isWrite bool, writeData []byte) accessOutcome {
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		panic(fmt.Sprintf("cache: no victim line for address %#x; directory misconfigured", addr))
	}

	line := c.data[c.lineIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, line)
		}
	}

	fetched := c.backing.Read(blockAddr, c.config.BlockSize)
	copy(line, fetched)

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	latency := c.config.HitLatency + c.config.MissPenalty

	if isWrite {
		copy(line[offset:offset+uint64(size)], writeData)
		victim.IsDirty = true
		return accessOutcome{Result: Result{Hit: false, Latency: latency}}
	}

	out := make([]byte, size)
	copy(out, line[offset:offset+uint64(size)])
	return accessOutcome{Result: Result{Hit: false, Latency: latency}, data: out}
}

// Flush writes back every dirty line and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				line := c.data[c.lineIndex(block)]
				c.backing.Write(block.Tag, line)
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

func bitsFromBytes(b []byte, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putBits(dst []byte, v uint64, size int) {
	for i := 0; i < size; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
