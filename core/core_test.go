package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/config"
	"github.com/sarchlab/tomasim/core"
	"github.com/sarchlab/tomasim/isa"
)

var _ = Describe("Core", func() {
	var cfg *config.CoreConfig

	BeforeEach(func() {
		cfg = config.Default()
	})

	It("resolves a simple integer RAW chain", func() {
		program := []isa.Instruction{
			{Op: isa.OpDADDI, Dest: 1, Src1: 0, Imm: 5},
			{Op: isa.OpDADDI, Dest: 2, Src1: 1, Imm: 3},
		}

		c, err := core.New(cfg, program, core.InitialState{})
		Expect(err).NotTo(HaveOccurred())

		_, _, err = c.Run(30)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Registers().IntValue(1)).To(Equal(int64(5)))
		Expect(c.Registers().IntValue(2)).To(Equal(int64(8)))
		Expect(c.Done()).To(BeTrue())
	})

	It("never writes through a register that has been renamed again (WAW)", func() {
		program := []isa.Instruction{
			// Long-latency producer targeting F2; a second, much
			// faster producer for the same register issues right
			// behind it and will have already broadcast and cleared
			// F2's producer tag by the time the first one finishes.
			{Op: isa.OpMULD, Dest: 2, Src1: 0, Src2: 1},
			{Op: isa.OpADDD, Dest: 2, Src1: 3, Src2: 4},
		}

		initial := core.InitialState{
			FPRegisters: map[int]float64{
				0: 2.0, 1: 3.0, // MUL.D would produce 6.0
				3: 10.0, 4: 1.0, // ADD.D produces 11.0
			},
		}

		c, err := core.New(cfg, program, initial)
		Expect(err).NotTo(HaveOccurred())

		_, _, err = c.Run(60)
		Expect(err).NotTo(HaveOccurred())

		fpIdx := c.Registers().FPIndex(2)
		Expect(c.Registers().Value(fpIdx)).To(Equal(11.0))
	})

	It("orders a load after an earlier store to the same address", func() {
		program := []isa.Instruction{
			{Op: isa.OpDADDI, Dest: 1, Src1: 0, Imm: 128}, // base address
			{Op: isa.OpSD, Src1: 0, Base: 1, Offset: 0},   // mem[128] = F0
			{Op: isa.OpLD, Dest: 5, Base: 1, Offset: 0},   // F5 = mem[128]
		}

		initial := core.InitialState{
			FPRegisters: map[int]float64{0: 42.5},
		}

		c, err := core.New(cfg, program, initial)
		Expect(err).NotTo(HaveOccurred())

		_, _, err = c.Run(40)
		Expect(err).NotTo(HaveOccurred())

		fpIdx := c.Registers().FPIndex(5)
		Expect(c.Registers().Value(fpIdx)).To(Equal(42.5))
	})

	It("flushes the fallthrough instruction on a taken branch", func() {
		program := []isa.Instruction{
			{Op: isa.OpBEQ, Src1: 1, Src2: 2, Imm: 8}, // pc=0, R1==R2==0 => taken, target pc=8
			{Op: isa.OpADDD, Dest: 6, Src1: 0, Src2: 1}, // pc=4, should never issue
			{Op: isa.OpDADDI, Dest: 3, Src1: 0, Imm: 42}, // pc=8
		}

		initial := core.InitialState{
			FPRegisters: map[int]float64{0: 1.0, 1: 2.0},
		}

		c, err := core.New(cfg, program, initial)
		Expect(err).NotTo(HaveOccurred())

		_, _, err = c.Run(40)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Registers().IntValue(3)).To(Equal(int64(42)))

		fpIdx := c.Registers().FPIndex(6)
		Expect(c.Registers().Value(fpIdx)).To(Equal(0.0))

		stats := c.Stats()
		Expect(stats.BranchesTaken).To(Equal(uint64(1)))
	})

	It("forces integer divide-by-zero to zero instead of panicking", func() {
		program := []isa.Instruction{
			{Op: isa.OpDDIV, Dest: 1, Src1: 2, Src2: 3},
		}

		c, err := core.New(cfg, program, core.InitialState{})
		Expect(err).NotTo(HaveOccurred())

		Expect(func() {
			_, _, err = c.Run(20)
		}).NotTo(Panic())
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Registers().IntValue(1)).To(Equal(int64(0)))
	})

	It("keeps R0 hardwired to zero despite an attempted write", func() {
		program := []isa.Instruction{
			{Op: isa.OpDADDI, Dest: 0, Src1: 0, Imm: 99},
		}

		c, err := core.New(cfg, program, core.InitialState{})
		Expect(err).NotTo(HaveOccurred())

		_, _, err = c.Run(20)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Registers().IntValue(0)).To(Equal(int64(0)))
	})

	It("rejects a nil configuration", func() {
		_, err := core.New(nil, nil, core.InitialState{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an invalid configuration", func() {
		bad := config.Default()
		bad.NumIntRs = 0

		_, err := core.New(bad, nil, core.InitialState{})
		Expect(err).To(HaveOccurred())
	})

	It("snapshots every cache line, with a stored block valid and dirty", func() {
		program := []isa.Instruction{
			{Op: isa.OpDADDI, Dest: 1, Src1: 0, Imm: 128},
			{Op: isa.OpSD, Src1: 0, Base: 1, Offset: 0},
		}

		initial := core.InitialState{
			FPRegisters: map[int]float64{0: 3.25},
		}

		c, err := core.New(cfg, program, initial)
		Expect(err).NotTo(HaveOccurred())

		last, _, err := c.Run(40)
		Expect(err).NotTo(HaveOccurred())

		Expect(last.CacheLines).To(HaveLen(cfg.CacheSize / cfg.BlockSize))

		var found bool
		for _, line := range last.CacheLines {
			if line.Valid && line.Tag == 128 {
				found = true
				Expect(line.Dirty).To(BeTrue())
			}
		}
		Expect(found).To(BeTrue())
	})
})
