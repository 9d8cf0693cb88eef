// Package config defines the core's immutable configuration record and
// its construction-time validation, JSON load/save, and defaults —
// built once by the caller before simulation starts. Retuning a
// running core is out of scope.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CoreConfig holds every tunable recognized by the core.
type CoreConfig struct {
	// Station and buffer pool sizes.
	NumFpAddSubRs    int `json:"num_fp_add_sub_rs"`
	NumFpMulDivRs    int `json:"num_fp_mul_div_rs"`
	NumIntRs         int `json:"num_int_rs"`
	NumLoadBuffers   int `json:"num_load_buffers"`
	NumStoreBuffers  int `json:"num_store_buffers"`
	NumBranchHandler int `json:"num_branch_handlers"`
	NumAddressUnits  int `json:"num_address_units"`

	// Latencies, in cycles.
	IntAluLatency   uint64 `json:"int_alu_latency"`
	FpAddSubLatency uint64 `json:"fp_add_sub_latency"`
	FpMulLatency    uint64 `json:"fp_mul_latency"`
	FpDivLatency    uint64 `json:"fp_div_latency"`
	AddressLatency  uint64 `json:"address_latency"`
	BranchLatency   uint64 `json:"branch_latency"`

	// Cache geometry and latency.
	CacheSize       int    `json:"cache_size"`
	BlockSize       int    `json:"block_size"`
	CacheHitLatency uint64 `json:"cache_hit_latency"`
	CacheMissPenalty uint64 `json:"cache_miss_penalty"`

	// Backing memory size, in bytes.
	MemorySize uint64 `json:"memory_size"`
}

// Default returns the baseline CoreConfig: 3 FP add/sub RS, 3 FP
// mul/div RS, 3 int RS, 2 load buffers, 2 store buffers, add/sub=2,
// mul=10, div=40, int=1, address=1, branch=1, load hit=1, miss=10,
// block=8B, cache=256B, 64KiB memory.
func Default() *CoreConfig {
	return &CoreConfig{
		NumFpAddSubRs:    3,
		NumFpMulDivRs:    3,
		NumIntRs:         3,
		NumLoadBuffers:   2,
		NumStoreBuffers:  2,
		NumBranchHandler: 1,
		NumAddressUnits:  2,

		IntAluLatency:   1,
		FpAddSubLatency: 2,
		FpMulLatency:    10,
		FpDivLatency:    40,
		AddressLatency:  1,
		BranchLatency:   1,

		CacheSize:        256,
		BlockSize:        8,
		CacheHitLatency:  1,
		CacheMissPenalty: 10,

		MemorySize: 64 * 1024,
	}
}

// Load reads a CoreConfig from a JSON file, starting from Default() so
// unspecified fields keep their default value, mirroring
// timing/latency.LoadConfig's partial-override behavior.
func Load(path string) (*CoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read core config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse core config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Save writes c to path as indented JSON.
func (c *CoreConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize core config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write core config file: %w", err)
	}

	return nil
}

// Validate rejects a configuration the core cannot construct from,
// with a descriptive error; no simulation proceeds on an invalid
// configuration.
func (c *CoreConfig) Validate() error {
	for name, n := range map[string]int{
		"num_fp_add_sub_rs":   c.NumFpAddSubRs,
		"num_fp_mul_div_rs":   c.NumFpMulDivRs,
		"num_int_rs":          c.NumIntRs,
		"num_load_buffers":    c.NumLoadBuffers,
		"num_store_buffers":   c.NumStoreBuffers,
		"num_branch_handlers": c.NumBranchHandler,
		"num_address_units":   c.NumAddressUnits,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, n)
		}
	}

	for name, v := range map[string]uint64{
		"int_alu_latency":    c.IntAluLatency,
		"fp_add_sub_latency": c.FpAddSubLatency,
		"fp_mul_latency":     c.FpMulLatency,
		"fp_div_latency":     c.FpDivLatency,
		"address_latency":    c.AddressLatency,
		"branch_latency":     c.BranchLatency,
		"cache_hit_latency":  c.CacheHitLatency,
		"cache_miss_penalty": c.CacheMissPenalty,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be a positive cycle count, got %d", name, v)
		}
	}

	if !isPowerOfTwo(c.CacheSize) {
		return fmt.Errorf("cache_size must be a power of two, got %d", c.CacheSize)
	}
	if !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("block_size must be a power of two, got %d", c.BlockSize)
	}
	if c.BlockSize > c.CacheSize {
		return fmt.Errorf("block_size (%d) must be <= cache_size (%d)", c.BlockSize, c.CacheSize)
	}
	if c.MemorySize == 0 {
		return fmt.Errorf("memory_size must be > 0")
	}

	return nil
}

// Clone returns a deep copy of c.
func (c *CoreConfig) Clone() *CoreConfig {
	clone := *c
	return &clone
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
