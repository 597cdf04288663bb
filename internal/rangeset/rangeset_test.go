package rangeset_test

import (
	"quiccore/internal/rangeset"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracker", func() {
	It("keeps sub-ranges disjoint and within capacity", func() {
		t := rangeset.New(16)
		for i := 0; i < 16; i++ {
			ok, _ := t.AddRange(uint64(i*10), 1)
			Expect(ok).To(BeTrue())
		}
		Expect(t.Size()).To(BeNumerically("<=", 16))
		ranges := t.Ranges()
		for i := 1; i < len(ranges); i++ {
			Expect(ranges[i-1].High()).To(BeNumerically("<", ranges[i].Low))
		}
	})

	It("round-trips add-then-remove to an empty tracker", func() {
		t := rangeset.New(32)
		t.AddRange(0, 50)
		t.AddRange(25, 50) // overlaps, extends to 75
		t.AddRange(100, 10)
		Expect(t.RemoveRange(0, 75)).To(BeTrue())
		Expect(t.RemoveRange(100, 10)).To(BeTrue())
		Expect(t.Size()).To(Equal(0))
	})

	It("matches the add-then-partial-remove scenario", func() {
		t := rangeset.New(16)
		t.AddRange(100, 100)
		ok := t.RemoveRange(100, 20)
		Expect(ok).To(BeTrue())

		min, ok := t.GetMin()
		Expect(ok).To(BeTrue())
		Expect(min).To(Equal(uint64(120)))

		max, ok := t.GetMax()
		Expect(ok).To(BeTrue())
		Expect(max).To(Equal(uint64(199)))

		Expect(t.Size()).To(Equal(1))
	})

	It("evicts the lowest sub-range when capacity overflows", func() {
		t := rangeset.New(16)
		for i := 0; i < 16; i++ {
			t.AddValue(uint64(i * 100))
		}
		min, _ := t.GetMin()
		Expect(min).To(Equal(uint64(0)))

		t.AddValue(uint64(16 * 100))
		Expect(t.Size()).To(Equal(16))

		newMin, ok := t.GetMin()
		Expect(ok).To(BeTrue())
		Expect(newMin).To(Equal(uint64(100)))
	})

	It("reports containment of a value and a sub-range", func() {
		t := rangeset.New(8)
		t.AddRange(10, 5)
		Expect(t.Contains(10)).To(BeTrue())
		Expect(t.Contains(14)).To(BeTrue())
		Expect(t.Contains(15)).To(BeFalse())
		Expect(t.ContainsRange(11, 2)).To(BeTrue())
		Expect(t.ContainsRange(12, 5)).To(BeFalse())
	})
})
