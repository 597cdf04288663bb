package congestion_test

import (
	"quiccore/internal/congestion"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WindowedFilter", func() {
	It("tracks the running max within the window and expires stale samples", func() {
		f := congestion.NewWindowedMax[int](100, func(a, b int) bool { return a < b })
		f.Update(5, 0)
		f.Update(9, 10)
		f.Update(3, 20)
		v, ok := f.Get()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(9))

		f.Update(1, 130) // past the window relative to t=10 where 9 was recorded
		v, ok = f.Get()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))
	})

	It("tracks the running min within the window", func() {
		f := congestion.NewWindowedMin[int](100, func(a, b int) bool { return a > b })
		f.Update(9, 0)
		f.Update(3, 10)
		f.Update(7, 20)
		v, ok := f.Get()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(3))
	})

	It("reports no value before any update", func() {
		f := congestion.NewWindowedMax[int](100, func(a, b int) bool { return a < b })
		_, ok := f.Get()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("RTTStats", func() {
	It("smooths RTT samples with the RFC-style EWMA", func() {
		r := congestion.NewRTTStats()
		r.UpdateRTT(100*msDuration, 0)
		Expect(r.SmoothedRTT()).To(Equal(100 * msDuration))
		Expect(r.MinRTT()).To(Equal(100 * msDuration))

		r.UpdateRTT(200*msDuration, 0)
		Expect(r.SmoothedRTT()).To(BeNumerically(">", 100*msDuration))
		Expect(r.SmoothedRTT()).To(BeNumerically("<", 200*msDuration))
		Expect(r.MinRTT()).To(Equal(100 * msDuration))
	})
})

const msDuration = 1_000_000 // nanoseconds per millisecond, as a time.Duration-compatible constant
