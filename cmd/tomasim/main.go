// Package main provides the entry point for tomasim, a cycle-accurate
// Tomasulo dynamic-scheduling core simulator.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/tomasim/config"
	"github.com/sarchlab/tomasim/core"
	"github.com/sarchlab/tomasim/isa"
)

var (
	configPath = flag.String("config", "", "Path to core configuration JSON file")
	maxCycles  = flag.Int("max-cycles", 100000, "Cycle budget; the run stops early on termination")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: tomasim [options] <program.json>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	program, initial, err := loadProgram(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Instructions: %d\n", len(program))
	}

	c, err := core.New(cfg, program, initial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing core: %v\n", err)
		os.Exit(1)
	}

	final, trace, err := c.Run(*maxCycles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running core: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		for _, snap := range trace {
			for _, entry := range snap.Log {
				fmt.Printf("cycle %d: %s\n", entry.Cycle, entry.Message)
			}
		}
	}

	printReport(final, c.Stats())
}

func loadConfig() (*config.CoreConfig, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.Load(*configPath)
}

// programFile is the on-disk JSON shape a caller hands tomasim: a
// decoded instruction list plus the initial register/memory state.
// Producing this file from assembly text is a front end's job and out
// of scope here, same as isa.Instruction's own doc comment says.
type programFile struct {
	Instructions []isa.Instruction  `json:"instructions"`
	IntRegisters map[int]int64      `json:"int_registers"`
	FPRegisters  map[int]float64    `json:"fp_registers"`
	Memory       map[string]float64 `json:"memory"`
}

func loadProgram(path string) ([]isa.Instruction, core.InitialState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.InitialState{}, fmt.Errorf("failed to read program file: %w", err)
	}

	var pf programFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, core.InitialState{}, fmt.Errorf("failed to parse program file: %w", err)
	}

	memory := make(map[uint64]float64, len(pf.Memory))
	for addr, v := range pf.Memory {
		var parsed uint64
		if _, err := fmt.Sscanf(addr, "%d", &parsed); err != nil {
			return nil, core.InitialState{}, fmt.Errorf("invalid memory address %q: %w", addr, err)
		}
		memory[parsed] = v
	}

	return pf.Instructions, core.InitialState{
		IntRegisters: pf.IntRegisters,
		FPRegisters:  pf.FPRegisters,
		Memory:       memory,
	}, nil
}

func printReport(final core.CycleSnapshot, stats core.Stats) {
	fmt.Printf("\n")
	fmt.Printf("Cycles: %d\n", stats.Cycles)
	fmt.Printf("Instructions retired: %d\n", stats.InstructionsRetired)
	fmt.Printf("CPI: %.2f\n", stats.CPI)
	fmt.Printf("Stalls: %d\n", stats.Stalls)
	fmt.Printf("CDB contentions: %d\n", stats.CdbContentions)
	fmt.Printf("Cache hits/misses: %d/%d\n", stats.CacheHits, stats.CacheMisses)
	fmt.Printf("Branches taken/resolved: %d/%d\n", stats.BranchesTaken, stats.BranchesResolved)
	fmt.Printf("Terminated: %t\n", final.Done)
}
