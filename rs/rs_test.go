package rs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/fu"
	"github.com/sarchlab/tomasim/isa"
	"github.com/sarchlab/tomasim/rs"
	"github.com/sarchlab/tomasim/tag"
)

var _ = Describe("Pool", func() {
	It("mints stable tags at construction time", func() {
		p := rs.NewPool(fu.ClassIntALU, 3)
		all := p.All()
		Expect(all[0].Tag().String()).To(Equal("I1"))
		Expect(all[1].Tag().String()).To(Equal("I2"))
		Expect(all[2].Tag().String()).To(Equal("I3"))
	})

	It("FindFree returns nil when every station is busy", func() {
		p := rs.NewPool(fu.ClassIntALU, 1)
		s := p.FindFree()
		Expect(s).NotTo(BeNil())
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Qj: tag.NONE, Qk: tag.NONE})
		Expect(p.FindFree()).To(BeNil())
	})
})

var _ = Describe("Station", func() {
	var s *rs.Station

	BeforeEach(func() {
		p := rs.NewPool(fu.ClassIntALU, 1)
		s = p.All()[0]
	})

	It("starts Free and not busy", func() {
		Expect(s.Busy()).To(BeFalse())
		Expect(s.State()).To(Equal(rs.Free))
	})

	It("Issue with both operands ready advances straight to WaitingForFU", func() {
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Vj: 1, Vk: 2, Qj: tag.NONE, Qk: tag.NONE})
		Expect(s.State()).To(Equal(rs.Issued))
		s.AdvanceIssued()
		Expect(s.State()).To(Equal(rs.WaitingForFU))
	})

	It("Issue with an outstanding operand waits for it", func() {
		producer := tag.New(tag.KindIntALU, 7)
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Qj: producer, Qk: tag.NONE})
		s.AdvanceIssued()
		Expect(s.State()).To(Equal(rs.WaitingForOperands))
		Expect(s.OperandsReady()).To(BeFalse())
	})

	It("Wake resolves a matching operand and transitions when both resolve", func() {
		p1 := tag.New(tag.KindIntALU, 5)
		p2 := tag.New(tag.KindIntALU, 6)
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Qj: p1, Qk: p2})
		s.AdvanceIssued()

		s.Wake(p1, 10)
		Expect(s.State()).To(Equal(rs.WaitingForOperands))
		Expect(s.Qj().IsNone()).To(BeTrue())

		s.Wake(p2, 20)
		Expect(s.State()).To(Equal(rs.WaitingForFU))
		Expect(s.OperandsReady()).To(BeTrue())
	})

	It("Wake ignores a tag this station is not waiting on", func() {
		p1 := tag.New(tag.KindIntALU, 5)
		other := tag.New(tag.KindIntALU, 99)
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Qj: p1, Qk: tag.NONE})
		s.AdvanceIssued()
		s.Wake(other, 1)
		Expect(s.State()).To(Equal(rs.WaitingForOperands))
	})

	It("runs StartExecution -> FinishExecution -> ResultReady -> FreeAfterBroadcast", func() {
		s.Issue(rs.IssueInput{Op: isa.OpDADD, Vj: 1, Vk: 2, Qj: tag.NONE, Qk: tag.NONE, DestReg: 3, HasDest: true})
		s.AdvanceIssued()
		s.StartExecution()
		Expect(s.State()).To(Equal(rs.Executing))

		s.FinishExecution(fu.Result{Value: 3, DestReg: 3})
		Expect(s.State()).To(Equal(rs.Executed))
		Expect(s.ResultReady()).To(BeTrue())
		Expect(s.Message().Value).To(Equal(3.0))
		Expect(s.Message().DestReg).To(Equal(3))

		preservedTag := s.Tag()
		s.FreeAfterBroadcast()
		Expect(s.Busy()).To(BeFalse())
		Expect(s.Tag().Equal(preservedTag)).To(BeTrue())
	})
})
