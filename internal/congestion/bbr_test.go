package congestion_test

import (
	"time"

	"quiccore/internal/congestion"
	"quiccore/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BBRSender", func() {
	It("starts with pacing and cwnd gain equal to kHighGain = 256*2885/1000 + 1", func() {
		rttStats := congestion.NewRTTStats()
		sender := congestion.NewBBRSender(rttStats, 10, 1200)
		pacing, cwnd := sender.Gains()
		const kHighGain = 256*2885/1000 + 1
		Expect(pacing).To(Equal(kHighGain))
		Expect(cwnd).To(Equal(kHighGain))
		Expect(kHighGain).To(Equal(739))
	})

	It("clamps GetCongestionWindow to the minimum-cwnd-in-mss value in ProbeRtt, below the initial cwnd", func() {
		rttStats := congestion.NewRTTStats()
		sender := congestion.NewBBRSender(rttStats, 10, 1200)
		initialCwnd := sender.GetCongestionWindow()
		Expect(initialCwnd).To(Equal(protocol.ByteCount(10) * 1200))

		// Acks with a flat bandwidth sample walk the sender from Startup
		// through Drain into ProbeBW. Their AckTime, and so the min-RTT
		// timestamp, lies more than probeRttInterval (10s) in the past, so
		// ProbeBW then enters ProbeRtt, and later acks stay inside its
		// 200ms dwell time measured from that same AckTime.
		past := time.Now().Add(-20 * time.Second)
		for i := 1; i <= 8; i++ {
			sender.OnDataAcknowledged(0, congestion.AckEvent{
				AckedPackets:   []congestion.AckedPacket{{PacketNumber: protocol.PacketNumber(i), BytesAcked: 1200, SentTime: past}},
				AckTime:        past,
				RTTSampleValid: true,
				RTTSample:      100 * time.Millisecond,
			})
		}
		Expect(sender.State()).To(Equal(congestion.BBRProbeRtt))

		// GetCongestionWindow's ProbeRtt branch floors the window at
		// kMinCwndInMss (4) packets regardless of the tracked cwnd, which for
		// InitialWindowPackets=10 is strictly below the Startup window.
		const kMinCwndInMss = 4
		probeRttFloor := protocol.ByteCount(kMinCwndInMss) * 1200
		Expect(sender.GetCongestionWindow()).To(Equal(probeRttFloor))
		Expect(probeRttFloor).To(BeNumerically("<", initialCwnd))
	})

	It("never reports a spurious congestion rollback", func() {
		rttStats := congestion.NewRTTStats()
		sender := congestion.NewBBRSender(rttStats, 10, 1200)
		Expect(sender.OnSpuriousCongestionEvent()).To(BeFalse())
	})
})
