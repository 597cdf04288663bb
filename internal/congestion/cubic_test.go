package congestion_test

import (
	"time"

	"quiccore/internal/congestion"
	"quiccore/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CubicSender", func() {
	var (
		rttStats *congestion.RTTStats
		sender   *congestion.CubicSender
	)

	BeforeEach(func() {
		rttStats = congestion.NewRTTStats()
		sender = congestion.NewCubicSender(rttStats, 10, 1200, true)
	})

	It("reports GetBytesInFlightMax as cwnd/2 immediately after init", func() {
		var stats congestion.NetworkStatistics
		sender.GetNetworkStatistics(&stats)
		Expect(sender.GetBytesInFlightMax()).To(Equal(stats.CongestionWindow / 2))
	})

	It("CanSend reflects bytes-in-flight vs cwnd, and exemptions override it", func() {
		cwnd := sender.GetCongestionWindow()
		Expect(sender.CanSend(cwnd - 1)).To(BeTrue())
		Expect(sender.CanSend(cwnd)).To(BeFalse())

		sender.SetExemption(1)
		Expect(sender.CanSend(cwnd)).To(BeTrue())
	})

	It("reduces cwnd and sets a bounded slow_start_threshold on non-persistent loss", func() {
		before := sender.GetCongestionWindow()
		sender.OnDataLost(before, congestion.LossEvent{
			LostPackets: []congestion.LostPacket{{PacketNumber: 5, BytesLost: 1200}},
		})
		var stats congestion.NetworkStatistics
		sender.GetNetworkStatistics(&stats)
		Expect(sender.GetCongestionWindow()).To(BeNumerically("<", before))
		Expect(stats.SlowStartThreshold).To(BeNumerically(">", 0))
		Expect(uint64(stats.SlowStartThreshold)).To(BeNumerically("<", uint64(1)<<32))
	})

	It("leaves bytes_in_flight unchanged on a partial reset, and zeroes it on a full reset", func() {
		sender.OnDataSent(5000)
		sender.Reset(false)
		var statsPartial congestion.NetworkStatistics
		sender.GetNetworkStatistics(&statsPartial)
		Expect(statsPartial.BytesInFlight).To(Equal(protocol.ByteCount(5000)))

		sender.Reset(true)
		var statsFull congestion.NetworkStatistics
		sender.GetNetworkStatistics(&statsFull)
		Expect(statsFull.BytesInFlight).To(Equal(protocol.ByteCount(0)))
	})

	It("restores the pre-loss window on a spurious congestion event", func() {
		before := sender.GetCongestionWindow()
		sender.OnDataLost(before, congestion.LossEvent{
			LostPackets: []congestion.LostPacket{{PacketNumber: 1, BytesLost: 1200}},
		})
		Expect(sender.GetCongestionWindow()).NotTo(Equal(before))
		Expect(sender.OnSpuriousCongestionEvent()).To(BeTrue())
		Expect(sender.GetCongestionWindow()).To(Equal(before))
	})

	It("grows the window on acknowledgement during slow start", func() {
		before := sender.GetCongestionWindow()
		sender.OnDataSent(1200)
		sender.OnPacketSent(1)
		updated := sender.OnDataAcknowledged(0, congestion.AckEvent{
			AckedPackets:   []congestion.AckedPacket{{PacketNumber: 1, BytesAcked: 1200, SentTime: time.Now()}},
			AckTime:        time.Now(),
			RTTSampleValid: true,
			RTTSample:      20 * time.Millisecond,
		})
		Expect(updated).To(BeTrue())
		Expect(sender.GetCongestionWindow()).To(BeNumerically(">", before))
	})

	It("advances the cubic curve by the caller-supplied ack time, not the wall clock", func() {
		// Drive the sender into congestion avoidance with a loss. The first
		// ack only ends recovery; the second starts the cubic epoch at base.
		// The third ack's AckTime is 30s later, far past K, so the cubic
		// target jumps well above the window. If congestionAvoidance
		// measured elapsed time on the wall clock instead, the third ack
		// would see ~0s and the window would grow by a single byte.
		base := time.Now()
		sender.OnDataSent(12000)
		sender.OnPacketSent(1)
		sender.OnDataLost(12000, congestion.LossEvent{
			LostPackets: []congestion.LostPacket{{PacketNumber: 1, BytesLost: 1200}},
		})

		sender.OnPacketSent(2)
		sender.OnDataAcknowledged(6000, congestion.AckEvent{
			AckedPackets:   []congestion.AckedPacket{{PacketNumber: 2, BytesAcked: 600, SentTime: base}},
			AckTime:        base,
			RTTSampleValid: true,
			RTTSample:      20 * time.Millisecond,
		})
		Expect(sender.InRecovery()).To(BeFalse())

		sender.OnPacketSent(3)
		sender.OnDataAcknowledged(6000, congestion.AckEvent{
			AckedPackets:   []congestion.AckedPacket{{PacketNumber: 3, BytesAcked: 600, SentTime: base}},
			AckTime:        base,
			RTTSampleValid: true,
			RTTSample:      20 * time.Millisecond,
		})
		afterFirst := sender.GetCongestionWindow()

		sender.OnPacketSent(4)
		sender.OnDataAcknowledged(6000, congestion.AckEvent{
			AckedPackets:   []congestion.AckedPacket{{PacketNumber: 4, BytesAcked: 600, SentTime: base}},
			AckTime:        base.Add(30 * time.Second),
			RTTSampleValid: true,
			RTTSample:      20 * time.Millisecond,
		})
		afterJump := sender.GetCongestionWindow()

		Expect(afterJump).To(BeNumerically(">", afterFirst+1200))
	})
})
