package isa_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/isa"
)

var _ = Describe("classification predicates", func() {
	It("classifies loads and stores", func() {
		Expect(isa.IsLoad(isa.OpLD)).To(BeTrue())
		Expect(isa.IsLoad(isa.OpSD)).To(BeFalse())
		Expect(isa.IsStore(isa.OpSW)).To(BeTrue())
		Expect(isa.IsMemory(isa.OpLW)).To(BeTrue())
		Expect(isa.IsMemory(isa.OpDADD)).To(BeFalse())
	})

	It("classifies integer arithmetic and immediate forms", func() {
		Expect(isa.IsIntArith(isa.OpDADD)).To(BeTrue())
		Expect(isa.IsIntArith(isa.OpDMUL)).To(BeTrue())
		Expect(isa.IsIntArith(isa.OpDDIV)).To(BeTrue())
		Expect(isa.IsIntArith(isa.OpADDD)).To(BeFalse())
		Expect(isa.IsIntImmediate(isa.OpDADDI)).To(BeTrue())
		Expect(isa.IsIntImmediate(isa.OpDADD)).To(BeFalse())
	})

	It("classifies FP add/sub vs mul/div", func() {
		Expect(isa.IsFpAddSub(isa.OpADDD)).To(BeTrue())
		Expect(isa.IsFpAddSub(isa.OpMULD)).To(BeFalse())
		Expect(isa.IsFpMulDiv(isa.OpDIVD)).To(BeTrue())
	})

	It("classifies branches", func() {
		Expect(isa.IsBranch(isa.OpBEQ)).To(BeTrue())
		Expect(isa.IsBranch(isa.OpBNE)).To(BeTrue())
		Expect(isa.IsBranch(isa.OpDADD)).To(BeFalse())
	})

	It("UsesSecondSource matches opcode shape", func() {
		Expect(isa.UsesSecondSource(isa.OpDADD)).To(BeTrue())
		Expect(isa.UsesSecondSource(isa.OpDADDI)).To(BeFalse())
		Expect(isa.UsesSecondSource(isa.OpBEQ)).To(BeTrue())
		Expect(isa.UsesSecondSource(isa.OpLD)).To(BeFalse())
	})

	It("HasDest matches opcodes that write a register", func() {
		Expect(isa.HasDest(isa.OpLD)).To(BeTrue())
		Expect(isa.HasDest(isa.OpSD)).To(BeFalse())
		Expect(isa.HasDest(isa.OpBEQ)).To(BeFalse())
		Expect(isa.HasDest(isa.OpMULD)).To(BeTrue())
	})

	It("IsFp matches FP-register-file opcodes", func() {
		Expect(isa.IsFp(isa.OpLD)).To(BeTrue())
		Expect(isa.IsFp(isa.OpLW)).To(BeFalse())
		Expect(isa.IsFp(isa.OpADDD)).To(BeTrue())
		Expect(isa.IsFp(isa.OpDADD)).To(BeFalse())
	})
})
