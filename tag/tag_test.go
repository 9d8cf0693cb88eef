package tag_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomasim/tag"
)

var _ = Describe("Tag", func() {
	It("zero value is NONE", func() {
		var z tag.Tag
		Expect(z.IsNone()).To(BeTrue())
		Expect(z.Equal(tag.NONE)).To(BeTrue())
	})

	It("distinct tags from the same pool are not equal", func() {
		a1 := tag.New(tag.KindIntALU, 1)
		a2 := tag.New(tag.KindIntALU, 2)
		Expect(a1.Equal(a2)).To(BeFalse())
	})

	It("same kind and id are equal", func() {
		a1 := tag.New(tag.KindLoad, 3)
		a1b := tag.New(tag.KindLoad, 3)
		Expect(a1.Equal(a1b)).To(BeTrue())
	})

	It("tags from different pools with the same id are not equal", func() {
		l1 := tag.New(tag.KindLoad, 1)
		s1 := tag.New(tag.KindStore, 1)
		Expect(l1.Equal(s1)).To(BeFalse())
	})

	It("renders a human-readable identity", func() {
		Expect(tag.New(tag.KindIntALU, 2).String()).To(Equal("I2"))
		Expect(tag.New(tag.KindLoad, 1).String()).To(Equal("L1"))
		Expect(tag.NONE.String()).To(Equal("-"))
	})
})
