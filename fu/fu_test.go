package fu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/fu"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/tag"
)

var lt = fu.LatencyTable{IntALU: 1, FPAddSub: 2, FPMul: 10, FPDiv: 40}

var _ = Describe("Unit", func() {
	It("Supports reports the right opcode/class pairing", func() {
		Expect(fu.Supports(fu.ClassIntALU, isa.OpDADD)).To(BeTrue())
		Expect(fu.Supports(fu.ClassIntALU, isa.OpADDD)).To(BeFalse())
		Expect(fu.Supports(fu.ClassFPAddSub, isa.OpADDD)).To(BeTrue())
		Expect(fu.Supports(fu.ClassFPMulDiv, isa.OpDIVD)).To(BeTrue())
		Expect(fu.Supports(fu.ClassFPMulDiv, isa.OpADDD)).To(BeFalse())
	})

	It("is not busy until started", func() {
		u := fu.New(fu.ClassIntALU, lt)
		Expect(u.Busy()).To(BeFalse())
		_, ready := u.Tick()
		Expect(ready).To(BeFalse())
	})

	It("produces a result exactly latency cycles after Start", func() {
		u := fu.New(fu.ClassFPMulDiv, lt)
		u.Start(fu.Job{Tag: tag.New(tag.KindFPMulDiv, 1), Op: isa.OpMULD, Vj: 2, Vk: 4})
		Expect(u.Busy()).To(BeTrue())

		for i := 0; i < 9; i++ {
			_, ready := u.Tick()
			Expect(ready).To(BeFalse())
			Expect(u.Busy()).To(BeTrue())
		}
		result, ready := u.Tick()
		Expect(ready).To(BeTrue())
		Expect(u.Busy()).To(BeFalse())
		Expect(result.Value).To(Equal(8.0))
	})

	It("computes integer arithmetic by reinterpreting operand bits", func() {
		u := fu.New(fu.ClassIntALU, lt)
		vj := math.Float64frombits(uint64(int64(10)))
		u.Start(fu.Job{Op: isa.OpDADDI, Vj: vj, Imm: 5})
		result, ready := u.Tick()
		Expect(ready).To(BeTrue())
		Expect(int64(math.Float64bits(result.Value))).To(Equal(int64(15)))
	})

	It("integer divide-by-zero yields 0 and flags the anomaly, not a panic", func() {
		u := fu.New(fu.ClassIntALU, lt)
		vj := math.Float64frombits(uint64(int64(10)))
		vk := math.Float64frombits(uint64(int64(0)))
		u.Start(fu.Job{Op: isa.OpDDIV, Vj: vj, Vk: vk})
		result, _ := u.Tick()
		Expect(int64(math.Float64bits(result.Value))).To(Equal(int64(0)))
		Expect(result.DivideByZero).To(BeTrue())
	})

	It("FP divide-by-zero yields IEEE infinity, not a panic", func() {
		u := fu.New(fu.ClassFPMulDiv, lt)
		u.Start(fu.Job{Op: isa.OpDIVD, Vj: 1.0, Vk: 0.0})
		result, _ := u.Tick()
		Expect(math.IsInf(result.Value, 1)).To(BeTrue())
		Expect(result.DivideByZero).To(BeTrue())
	})

	It("sources integer immediates from Imm, not Vk", func() {
		u := fu.New(fu.ClassIntALU, lt)
		u.Start(fu.Job{Op: isa.OpDADDI, Vj: math.Float64frombits(1), Vk: 999, Imm: 4})
		result, _ := u.Tick()
		Expect(int64(math.Float64bits(result.Value))).To(Equal(int64(5)))
	})
})
