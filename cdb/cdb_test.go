package cdb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/cdb"
	"github.com/sarchlab/tomasim/tag"
)

var _ = Describe("Arbitrate", func() {
	It("picks the sole candidate when there is only one", func() {
		c := cdb.Candidate{Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 1)}}
		winner, losers := cdb.Arbitrate([]cdb.Candidate{c})
		Expect(winner.Message.Tag.Equal(c.Message.Tag)).To(BeTrue())
		Expect(losers).To(BeEmpty())
	})

	It("scenario C: the producer with more dependents wins", func() {
		threeDeps := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 1)},
			Deps:    cdb.DependencyCounts{Dependents: 3, ReadyDependents: 0},
			Seq:     0,
		}
		noDeps := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 2)},
			Deps:    cdb.DependencyCounts{Dependents: 0, ReadyDependents: 0},
			Seq:     1,
		}

		winner, losers := cdb.Arbitrate([]cdb.Candidate{noDeps, threeDeps})
		Expect(winner.Message.Tag.Equal(threeDeps.Message.Tag)).To(BeTrue())
		Expect(losers).To(HaveLen(1))
		Expect(losers[0].Message.Tag.Equal(noDeps.Message.Tag)).To(BeTrue())
	})

	It("breaks a dependent-count tie using ready-dependent count", func() {
		moreReady := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 1)},
			Deps:    cdb.DependencyCounts{Dependents: 2, ReadyDependents: 2},
			Seq:     5,
		}
		lessReady := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 2)},
			Deps:    cdb.DependencyCounts{Dependents: 2, ReadyDependents: 0},
			Seq:     0,
		}

		winner, _ := cdb.Arbitrate([]cdb.Candidate{lessReady, moreReady})
		Expect(winner.Message.Tag.Equal(moreReady.Message.Tag)).To(BeTrue())
	})

	It("falls back to first-come-first-served on a full tie", func() {
		first := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 1)},
			Seq:     0,
		}
		second := cdb.Candidate{
			Message: cdb.Message{Tag: tag.New(tag.KindIntALU, 2)},
			Seq:     1,
		}

		winner, losers := cdb.Arbitrate([]cdb.Candidate{second, first})
		Expect(winner.Message.Tag.Equal(first.Message.Tag)).To(BeTrue())
		Expect(losers).To(HaveLen(1))
		Expect(losers[0].Message.Tag.Equal(second.Message.Tag)).To(BeTrue())
	})
})
