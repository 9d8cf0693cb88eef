package regfile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/regfile"
	"github.com/sarchlab/tomasim/tag"
)

var _ = Describe("RegisterFile", func() {
	var rf *regfile.RegisterFile

	BeforeEach(func() {
		rf = regfile.New(32, 32)
	})

	It("lays out integer then FP registers flat", func() {
		Expect(rf.Len()).To(Equal(64))
		Expect(rf.FPIndex(0)).To(Equal(32))
		Expect(rf.FPIndex(3)).To(Equal(35))
	})

	It("hardwires R0 to zero on write", func() {
		rf.WriteValue(0, 42)
		Expect(rf.Value(0)).To(Equal(0.0))
	})

	It("hardwires R0's producer to NONE", func() {
		rf.SetProducer(0, tag.New(tag.KindIntALU, 1))
		Expect(rf.Producer(0).IsNone()).To(BeTrue())
	})

	It("round-trips a normal register write", func() {
		rf.WriteValue(5, 3.25)
		Expect(rf.Value(5)).To(Equal(3.25))
	})

	It("round-trips integer values via bit reinterpretation", func() {
		rf.WriteIntValue(5, -7)
		Expect(rf.IntValue(5)).To(Equal(int64(-7)))
	})

	Describe("Broadcast", func() {
		It("applies the value when the producer still matches", func() {
			t1 := tag.New(tag.KindIntALU, 1)
			rf.SetProducer(5, t1)
			rf.Broadcast(5, t1, 9.0)
			Expect(rf.Value(5)).To(Equal(9.0))
			Expect(rf.Producer(5).IsNone()).To(BeTrue())
		})

		It("suppresses a stale broadcast whose producer was overwritten (WAW)", func() {
			t1 := tag.New(tag.KindIntALU, 1)
			t2 := tag.New(tag.KindIntALU, 2)
			rf.SetProducer(5, t1)
			rf.SetProducer(5, t2) // second issue renames over t1
			rf.Broadcast(5, t1, 9.0)
			Expect(rf.Value(5)).To(Equal(0.0))
			Expect(rf.Producer(5).Equal(t2)).To(BeTrue())

			rf.Broadcast(5, t2, 6.0)
			Expect(rf.Value(5)).To(Equal(6.0))
			Expect(rf.Producer(5).IsNone()).To(BeTrue())
		})

		It("never writes a value into R0 even if somehow producer-tagged", func() {
			t1 := tag.New(tag.KindIntALU, 1)
			rf.Broadcast(0, t1, 9.0)
			Expect(rf.Value(0)).To(Equal(0.0))
		})
	})

	It("reports all-producers-none for termination checks", func() {
		Expect(rf.AllProducersNone()).To(BeTrue())
		rf.SetProducer(1, tag.New(tag.KindLoad, 1))
		Expect(rf.AllProducersNone()).To(BeFalse())
	})
})
