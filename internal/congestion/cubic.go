package congestion

import (
	"math"
	"time"

	"quiccore/internal/protocol"
)

// cubicC is the standard CUBIC scaling constant (RFC 8312 §4.1).
const cubicC = 0.4

// cubicBeta is the multiplicative-decrease factor spec.md §4.7 calls
// "β ≈ 0.7" — simpler than the teacher's N-connection-emulation RenoBeta
// (see DESIGN.md), since spec.md does not ask for connection emulation.
const cubicBeta = 0.7

// minCongestionWindowPackets is the floor the window never drops below.
const minCongestionWindowPackets = 2

// HyStartState is the HyStart++ slow-start-exit state machine (spec.md
// §3, §4.7).
type HyStartState int

const (
	HyStartNotStarted HyStartState = iota
	HyStartActive
	HyStartDone
)

// hystartLowWindow plus minCongestionWindowPackets is the cwnd (in
// packets) at or above which HyStart begins sampling per-round minimum RTT.
const hystartLowWindow = 16

// hystartRTTThreshold is the minimum RTT inflation across rounds that,
// sustained for hystartAckThreshold consecutive ACKs, triggers an early
// slow-start exit.
const hystartRTTThreshold = 4 * time.Millisecond
const hystartAckThreshold = 8

// CubicSender implements Controller using CUBIC congestion avoidance with
// a parallel Reno-friendly AIMD estimate and a HyStart++ early slow-start
// exit, per spec.md §4.7. Field names follow spec.md §3's Congestion
// State (Cubic) table.
type CubicSender struct {
	exemptionCounter
	ecn ecnTracker

	rttStats *RTTStats

	datagramPayloadSize protocol.ByteCount
	mss                 protocol.ByteCount

	congestionWindow     protocol.ByteCount
	bytesInFlight        protocol.ByteCount
	bytesInFlightMax     protocol.ByteCount
	slowStartThreshold   protocol.ByteCount

	windowMax     float64
	windowLastMax float64
	windowPrior   float64
	kCubic        float64

	timeOfLastAck        time.Time
	timeOfCongAvoidStart time.Time

	recoverySentPacketNumber protocol.PacketNumber
	largestSentPacketNumber  protocol.PacketNumber

	aimdWindow      float64
	aimdAccumulator float64

	lastSendAllowance protocol.ByteCount

	hystartEnabled           bool
	hystartState             HyStartState
	hystartRoundEndPacket    protocol.PacketNumber
	hystartAckCount          int
	minRTTInLastRound        time.Duration
	minRTTInCurrentRound     time.Duration
	cwndSlowStartGrowthDivisor float64

	isInRecovery          bool
	hasHadCongestionEvent bool

	appLimited bool

	// prev* snapshot taken at the start of the most recent congestion
	// event, restored verbatim by OnSpuriousCongestionEvent (spec.md §4.7
	// "Spurious congestion").
	havePrevState     bool
	prevCongestionWindow protocol.ByteCount
	prevSlowStartThreshold protocol.ByteCount
	prevWindowMax     float64
	prevWindowLastMax float64
	prevIsInRecovery  bool
}

// NewCubicSender creates a Cubic controller. initialWindowPackets and
// datagramPayloadSize together determine the initial congestion window
// (spec.md §4.7).
func NewCubicSender(rttStats *RTTStats, initialWindowPackets int, datagramPayloadSize protocol.ByteCount, hystartEnabled bool) *CubicSender {
	if datagramPayloadSize <= 0 {
		datagramPayloadSize = 1200
	}
	initCwnd := protocol.ByteCount(initialWindowPackets) * datagramPayloadSize
	return &CubicSender{
		rttStats:                   rttStats,
		datagramPayloadSize:        datagramPayloadSize,
		mss:                        datagramPayloadSize,
		congestionWindow:           initCwnd,
		bytesInFlightMax:           initCwnd / 2,
		slowStartThreshold:         protocol.ByteCount(math.MaxInt64),
		cwndSlowStartGrowthDivisor: 1,
		hystartEnabled:             hystartEnabled,
	}
}

var _ Controller = (*CubicSender)(nil)

func (c *CubicSender) CanSend(bytesInFlight protocol.ByteCount) bool {
	return bytesInFlight < c.congestionWindow || c.GetExemptions() > 0
}

func (c *CubicSender) SetExemption(n int) { c.set(n) }
func (c *CubicSender) GetExemptions() int { return c.get() }

func (c *CubicSender) GetSendAllowance(bytesInFlight protocol.ByteCount, dt time.Duration, dtValid bool) protocol.ByteCount {
	allowance, newLast := pacingDecision(c.congestionWindow, bytesInFlight, true, dt, dtValid, c.rttStats.SmoothedRTT(), c.lastSendAllowance)
	c.lastSendAllowance = newLast
	return allowance
}

func (c *CubicSender) OnDataSent(bytes protocol.ByteCount) {
	c.bytesInFlight += bytes
	c.consume()
}

func (c *CubicSender) OnDataInvalidated(bytes protocol.ByteCount) {
	c.bytesInFlight -= bytes
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
}

func (c *CubicSender) InSlowStart() bool {
	return c.congestionWindow < c.slowStartThreshold
}

func (c *CubicSender) InRecovery() bool { return c.isInRecovery }

func (c *CubicSender) GetCongestionWindow() protocol.ByteCount { return c.congestionWindow }
func (c *CubicSender) GetBytesInFlightMax() protocol.ByteCount { return c.bytesInFlightMax }
func (c *CubicSender) IsAppLimited() bool                      { return c.appLimited }
func (c *CubicSender) SetAppLimited()                          { c.appLimited = true }

func (c *CubicSender) OnDataAcknowledged(bytesInFlight protocol.ByteCount, event AckEvent) bool {
	c.appLimited = false
	before := c.congestionWindow
	c.bytesInFlight = bytesInFlight
	if c.bytesInFlight > c.bytesInFlightMax {
		c.bytesInFlightMax = c.bytesInFlight
	}

	if event.RTTSampleValid {
		c.runHyStart(event)
	}

	for _, acked := range event.AckedPackets {
		if c.isInRecovery {
			// Acks don't grow the window during recovery; an ack for a packet
			// numbered at or above the largest one sent when recovery began
			// ends it.
			if acked.PacketNumber >= c.recoverySentPacketNumber {
				c.isInRecovery = false
			}
			continue
		}
		c.onPacketAcked(acked.BytesAcked, event.AckTime)
	}
	c.timeOfLastAck = event.AckTime
	return c.congestionWindow != before
}

func (c *CubicSender) runHyStart(event AckEvent) {
	if !c.hystartEnabled || c.hystartState == HyStartDone || !c.InSlowStart() {
		return
	}
	if c.congestionWindow < minCongestionWindowPackets*c.mss+hystartLowWindow*c.mss {
		return
	}
	if c.hystartState == HyStartNotStarted {
		c.hystartState = HyStartActive
		c.hystartRoundEndPacket = c.largestSentPacketNumber
		c.minRTTInCurrentRound = 0
		c.hystartAckCount = 0
	}
	if c.minRTTInCurrentRound == 0 || event.RTTSample < c.minRTTInCurrentRound {
		c.minRTTInCurrentRound = event.RTTSample
	}
	if c.minRTTInLastRound > 0 && c.minRTTInCurrentRound-c.minRTTInLastRound > hystartRTTThreshold {
		c.hystartAckCount++
		if c.hystartAckCount >= hystartAckThreshold {
			c.hystartState = HyStartDone
			c.slowStartThreshold = c.congestionWindow
		}
	} else {
		c.hystartAckCount = 0
	}
	if c.largestSentPacketNumber >= c.hystartRoundEndPacket {
		c.minRTTInLastRound = c.minRTTInCurrentRound
		c.minRTTInCurrentRound = 0
		c.hystartRoundEndPacket = c.largestSentPacketNumber + protocol.PacketNumber(uint64(c.congestionWindow)/uint64(c.mss)+1)
	}
}

func (c *CubicSender) onPacketAcked(ackedBytes protocol.ByteCount, ackTime time.Time) {
	if c.InSlowStart() {
		growth := protocol.ByteCount(float64(ackedBytes) / c.cwndSlowStartGrowthDivisor)
		if growth < 1 {
			growth = 1
		}
		c.congestionWindow += growth
		return
	}
	c.congestionAvoidance(ackedBytes, ackTime)
}

// congestionAvoidance implements W(t) = C*(t-K)^3 + window_max, run in
// parallel with a Reno-friendly AIMD estimate; the larger wins. t is driven
// by the caller-supplied ack time rather than the wall clock, so replay and
// simulated-time tests observe the same trajectory a live connection would.
func (c *CubicSender) congestionAvoidance(ackedBytes protocol.ByteCount, ackTime time.Time) {
	if c.timeOfCongAvoidStart.IsZero() {
		c.timeOfCongAvoidStart = ackTime
		c.kCubic = c.computeK()
	}
	mssF := float64(c.mss)
	t := ackTime.Sub(c.timeOfCongAvoidStart).Seconds()
	target := cubicC*math.Pow(t-c.kCubic, 3)*mssF + c.windowMax

	// AIMD reno-friendly window, grown by one MSS for each aimdWindow's
	// worth of acked bytes.
	c.aimdAccumulator += float64(ackedBytes)
	if c.aimdWindow == 0 {
		c.aimdWindow = float64(c.congestionWindow)
	}
	if c.aimdAccumulator >= c.aimdWindow {
		n := math.Floor(c.aimdAccumulator / c.aimdWindow)
		c.aimdWindow += n * mssF
		c.aimdAccumulator -= n * c.aimdWindow
	}

	newWindow := math.Max(target, c.aimdWindow)
	if protocol.ByteCount(newWindow) > c.congestionWindow {
		c.congestionWindow = protocol.ByteCount(newWindow)
	} else {
		c.congestionWindow++
	}
}

// computeK solves K = cbrt((window_max - cwnd) / mss / C), i.e. with the
// window gap in packets, clamped at zero when cwnd exceeds window_max.
func (c *CubicSender) computeK() float64 {
	diff := (c.windowMax - float64(c.congestionWindow)) / float64(c.mss) / cubicC
	if diff < 0 {
		diff = 0
	}
	return math.Cbrt(diff)
}

func (c *CubicSender) OnDataLost(bytesInFlight protocol.ByteCount, event LossEvent) {
	if len(event.LostPackets) == 0 {
		return
	}
	c.bytesInFlight = bytesInFlight
	c.snapshotForRollback()
	c.hasHadCongestionEvent = true
	c.isInRecovery = true
	c.recoverySentPacketNumber = c.largestSentPacketNumber

	c.windowLastMax = c.windowMax
	c.windowMax = float64(c.congestionWindow)
	c.windowPrior = float64(c.congestionWindow)

	if c.InSlowStart() {
		c.hystartState = HyStartNotStarted
	}

	newCwnd := protocol.ByteCount(float64(c.congestionWindow) * cubicBeta)
	minCwnd := protocol.ByteCount(minCongestionWindowPackets) * c.mss
	if newCwnd < minCwnd {
		newCwnd = minCwnd
	}
	c.congestionWindow = newCwnd
	c.slowStartThreshold = newCwnd
	c.kCubic = c.computeK()
	c.timeOfCongAvoidStart = time.Time{}
	c.aimdWindow = 0
	c.aimdAccumulator = 0
}

func (c *CubicSender) OnEcn(event EcnEvent) {
	if !c.ecn.observe(event.CEMarkedPackets, c.largestSentPacketNumber) {
		return
	}
	c.OnDataLost(c.bytesInFlight, LossEvent{LostPackets: []LostPacket{{}}})
}

func (c *CubicSender) snapshotForRollback() {
	c.havePrevState = true
	c.prevCongestionWindow = c.congestionWindow
	c.prevSlowStartThreshold = c.slowStartThreshold
	c.prevWindowMax = c.windowMax
	c.prevWindowLastMax = c.windowLastMax
	c.prevIsInRecovery = c.isInRecovery
}

func (c *CubicSender) OnSpuriousCongestionEvent() bool {
	if !c.havePrevState {
		return false
	}
	c.congestionWindow = c.prevCongestionWindow
	c.slowStartThreshold = c.prevSlowStartThreshold
	c.windowMax = c.prevWindowMax
	c.windowLastMax = c.prevWindowLastMax
	c.isInRecovery = c.prevIsInRecovery
	c.havePrevState = false
	return true
}

func (c *CubicSender) Reset(full bool) {
	c.slowStartThreshold = protocol.ByteCount(math.MaxInt64)
	c.lastSendAllowance = 0
	c.isInRecovery = false
	c.hasHadCongestionEvent = false
	c.windowMax = 0
	c.windowLastMax = 0
	c.aimdWindow = 0
	c.aimdAccumulator = 0
	c.timeOfCongAvoidStart = time.Time{}
	if full {
		c.bytesInFlight = 0
	}
}

func (c *CubicSender) GetNetworkStatistics(out *NetworkStatistics) {
	out.CongestionWindow = c.congestionWindow
	out.BytesInFlight = c.bytesInFlight
	out.SlowStartThreshold = c.slowStartThreshold
	out.MinRTT = c.rttStats.MinRTT()
	out.SmoothedRTT = c.rttStats.SmoothedRTT()
	out.InSlowStart = c.InSlowStart()
	out.InRecovery = c.isInRecovery
	out.AppLimited = c.appLimited
	srtt := c.rttStats.SmoothedRTT()
	if srtt > 0 {
		out.BandwidthEstimate = uint64(float64(c.congestionWindow) / srtt.Seconds())
	}
}

// OnPacketSent records the largest packet number sent, used by HyStart
// round tracking and recovery detection.
func (c *CubicSender) OnPacketSent(packetNumber protocol.PacketNumber) {
	if packetNumber > c.largestSentPacketNumber {
		c.largestSentPacketNumber = packetNumber
	}
}

// bandwidthEstimate exposes cwnd/srtt for tests; kept unexported since
// it's informational only (GetNetworkStatistics is the public surface).
func (c *CubicSender) bandwidthEstimate() float64 {
	srtt := c.rttStats.SmoothedRTT()
	if srtt <= 0 {
		return 0
	}
	return float64(c.congestionWindow) / srtt.Seconds()
}
