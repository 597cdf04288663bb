package congestion

import (
	"time"

	"quiccore/internal/protocol"
)

// BBRState is the top-level BBR state machine (spec.md §4.8).
type BBRState int

const (
	BBRStartup BBRState = iota
	BBRDrain
	BBRProbeBW
	BBRProbeRtt
)

// RecoveryState tracks loss-triggered conservative/growth phases,
// independent of bbrState.
type RecoveryState int

const (
	RecoveryNone RecoveryState = iota
	RecoveryConservative
	RecoveryGrowth
)

// bbrGainScale is the fixed-point scale gains are expressed in, matching
// the integer arithmetic spec.md §8's testable property
// "kHighGain = 256·2885/1000 + 1" implies (a plain float constant would
// not reproduce that exact value).
const bbrGainScale = 256

// kHighGain is Startup's pacing/cwnd gain, scaled by bbrGainScale.
const kHighGain = bbrGainScale*2885/1000 + 1

// kDrainGain is Drain's pacing gain: 1/kHighGain, scaled.
const kDrainGain = (bbrGainScale * bbrGainScale) / kHighGain

// kProbeBWCwndGain is ProbeBW's cwnd gain (2x), scaled.
const kProbeBWCwndGain = 2 * bbrGainScale

// kMinCwndInMss is the floor ProbeRtt forces the window to.
const kMinCwndInMss = 4

// probeRttDuration is the minimum dwell time in ProbeRtt.
const probeRttDuration = 200 * time.Millisecond

// probeRttInterval is how often ProbeBW yields to a ProbeRtt excursion.
const probeRttInterval = 10 * time.Second

// minRTTExpiry bounds how long a min-RTT sample is trusted before BBR
// forces a fresh ProbeRtt to refresh it.
const minRTTExpiry = 10 * time.Second

// pacingGainCycle is the eight-phase ProbeBW pacing-gain cycle, scaled by
// bbrGainScale: one probing-up phase, one draining-down phase, six
// cruise phases.
var pacingGainCycle = [8]int{
	bbrGainScale * 5 / 4,
	bbrGainScale * 3 / 4,
	bbrGainScale, bbrGainScale, bbrGainScale, bbrGainScale, bbrGainScale, bbrGainScale,
}

// BBRSender implements Controller using the BBR state machine of spec.md
// §3/§4.8. Field names follow spec.md §3's Congestion State (BBR) table.
type BBRSender struct {
	exemptionCounter
	ecn ecnTracker

	rttStats *RTTStats
	mss      protocol.ByteCount

	bbrState      BBRState
	recoveryState RecoveryState

	bytesInFlight    protocol.ByteCount
	bytesInFlightMax protocol.ByteCount

	congestionWindow              protocol.ByteCount
	initialCongestionWindow       protocol.ByteCount
	initialCongestionWindowPackets int
	recoveryWindow                protocol.ByteCount

	pacingGain int // scaled by bbrGainScale
	cwndGain   int // scaled by bbrGainScale

	lastSendAllowance protocol.ByteCount

	minRTT          time.Duration
	minRTTTimestamp time.Time
	rttSampleExpired bool

	roundTripCounter  uint64
	endOfRoundTrip    protocol.PacketNumber
	largestSentPacketNumber protocol.PacketNumber
	largestAckedPacketNumber protocol.PacketNumber

	bandwidthFilter  *WindowedFilter[uint64] // bytes/sec
	maxAckHeightFilter *WindowedFilter[protocol.ByteCount]

	aggregatedAckBytes   protocol.ByteCount
	ackAggregationStart  time.Time

	sendQuantum protocol.ByteCount

	slowStartupRoundCounter int
	pacingCycleIndex        int
	cycleStart              time.Time
	exitingQuiescence       bool

	lastEstimatedStartupBandwidth uint64
	btlbwFound                    bool

	endOfRecovery protocol.PacketNumber

	probeRttEndTime time.Time
	probeRttRound   uint64

	appLimited bool
}

// NewBBRSender creates a BBR controller.
func NewBBRSender(rttStats *RTTStats, initialWindowPackets int, datagramPayloadSize protocol.ByteCount) *BBRSender {
	if datagramPayloadSize <= 0 {
		datagramPayloadSize = 1200
	}
	initCwnd := protocol.ByteCount(initialWindowPackets) * datagramPayloadSize
	now := time.Now()
	return &BBRSender{
		rttStats:                       rttStats,
		mss:                            datagramPayloadSize,
		bbrState:                       BBRStartup,
		congestionWindow:               initCwnd,
		initialCongestionWindow:        initCwnd,
		initialCongestionWindowPackets: initialWindowPackets,
		recoveryWindow:                 initCwnd,
		pacingGain:                     kHighGain,
		cwndGain:                       kHighGain,
		bandwidthFilter:                NewWindowedMax[uint64](int64(10*rttOrDefault(rttStats))/1000, func(a, b uint64) bool { return a < b }),
		maxAckHeightFilter:             NewWindowedMax[protocol.ByteCount](int64(10*rttOrDefault(rttStats))/1000, func(a, b protocol.ByteCount) bool { return a < b }),
		cycleStart:                     now,
		ackAggregationStart:            now,
		sendQuantum:                    datagramPayloadSize,
	}
}

func rttOrDefault(r *RTTStats) time.Duration {
	if r.SmoothedRTT() > 0 {
		return r.SmoothedRTT()
	}
	return 100 * time.Millisecond
}

var _ Controller = (*BBRSender)(nil)

func (b *BBRSender) CanSend(bytesInFlight protocol.ByteCount) bool {
	return bytesInFlight < b.GetCongestionWindow() || b.GetExemptions() > 0
}

func (b *BBRSender) SetExemption(n int) { b.set(n) }
func (b *BBRSender) GetExemptions() int { return b.get() }

func (b *BBRSender) GetSendAllowance(bytesInFlight protocol.ByteCount, dt time.Duration, dtValid bool) protocol.ByteCount {
	cwnd := b.GetCongestionWindow()
	allowance, newLast := pacingDecision(cwnd, bytesInFlight, true, dt, dtValid, b.rttStats.SmoothedRTT(), b.lastSendAllowance)
	b.lastSendAllowance = newLast
	return allowance
}

func (b *BBRSender) OnDataSent(bytes protocol.ByteCount) {
	b.bytesInFlight += bytes
	if b.bytesInFlight == bytes {
		b.exitingQuiescence = true
	}
	b.consume()
}

func (b *BBRSender) OnDataInvalidated(bytes protocol.ByteCount) {
	b.bytesInFlight -= bytes
	if b.bytesInFlight < 0 {
		b.bytesInFlight = 0
	}
}

// GetCongestionWindow implements the three-way rule of spec.md §4.8.
func (b *BBRSender) GetCongestionWindow() protocol.ByteCount {
	if b.bbrState == BBRProbeRtt {
		return kMinCwndInMss * b.mss
	}
	if b.recoveryState == RecoveryConservative || b.recoveryState == RecoveryGrowth {
		if b.recoveryWindow < b.congestionWindow {
			return b.recoveryWindow
		}
		return b.congestionWindow
	}
	return b.congestionWindow
}

func (b *BBRSender) GetBytesInFlightMax() protocol.ByteCount { return b.bytesInFlightMax }
func (b *BBRSender) IsAppLimited() bool                      { return b.appLimited }
func (b *BBRSender) SetAppLimited()                          { b.appLimited = true }

func (b *BBRSender) OnPacketSent(packetNumber protocol.PacketNumber) {
	if packetNumber > b.largestSentPacketNumber {
		b.largestSentPacketNumber = packetNumber
	}
}

func (b *BBRSender) bandwidthEstimate() uint64 {
	bw, ok := b.bandwidthFilter.Get()
	if !ok {
		return 0
	}
	return bw
}

func (b *BBRSender) OnDataAcknowledged(bytesInFlight protocol.ByteCount, event AckEvent) bool {
	b.appLimited = false
	beforeCwnd := b.congestionWindow
	b.bytesInFlight = bytesInFlight
	if b.bytesInFlight > b.bytesInFlightMax {
		b.bytesInFlightMax = b.bytesInFlight
	}

	nowRTT := b.updateRoundTrip()

	if event.RTTSampleValid {
		b.updateMinRTT(event.RTTSample, event.AckTime)
	}

	var ackedBytes protocol.ByteCount
	for _, a := range event.AckedPackets {
		ackedBytes += a.BytesAcked
		if a.PacketNumber > b.largestAckedPacketNumber {
			b.largestAckedPacketNumber = a.PacketNumber
		}
	}
	if ackedBytes > 0 && event.RTTSampleValid && event.RTTSample > 0 {
		sampleBW := uint64(float64(ackedBytes) / event.RTTSample.Seconds())
		if !b.IsAppLimited() || sampleBW > b.bandwidthEstimate() {
			b.bandwidthFilter.Update(sampleBW, time.Now().UnixMicro())
			if sampleBW > 0 {
				b.btlbwFound = true
			}
		}
	}

	b.updateRecoveryState(event)
	b.updateAckAggregation(ackedBytes, event.AckTime)

	switch b.bbrState {
	case BBRStartup:
		b.updateStartup()
	case BBRDrain:
		b.updateDrain()
	case BBRProbeBW:
		b.updateProbeBW(nowRTT)
	case BBRProbeRtt:
		b.updateProbeRtt(event.AckTime)
	}
	b.updateCongestionWindow(ackedBytes)

	return b.congestionWindow != beforeCwnd
}

func (b *BBRSender) updateRoundTrip() (newRound bool) {
	if b.largestAckedPacketNumber >= b.endOfRoundTrip || b.endOfRoundTrip == 0 {
		b.roundTripCounter++
		b.endOfRoundTrip = b.largestSentPacketNumber
		return true
	}
	return false
}

func (b *BBRSender) updateMinRTT(sample time.Duration, now time.Time) {
	b.rttSampleExpired = b.minRTT == 0 || now.Sub(b.minRTTTimestamp) > minRTTExpiry
	if sample < b.minRTT || b.minRTT == 0 || b.rttSampleExpired {
		b.minRTT = sample
		b.minRTTTimestamp = now
	}
}

func (b *BBRSender) updateStartup() {
	b.pacingGain = kHighGain
	b.cwndGain = kHighGain
	bw := b.bandwidthEstimate()
	if b.lastEstimatedStartupBandwidth > 0 && bw < b.lastEstimatedStartupBandwidth*5/4 {
		b.slowStartupRoundCounter++
	} else {
		b.slowStartupRoundCounter = 0
	}
	b.lastEstimatedStartupBandwidth = bw
	if b.btlbwFound && b.slowStartupRoundCounter >= 3 {
		b.bbrState = BBRDrain
		b.pacingGain = kDrainGain
		b.cwndGain = kHighGain
	}
}

func (b *BBRSender) updateDrain() {
	if b.bytesInFlight <= b.estimatedBDP() {
		b.bbrState = BBRProbeBW
		b.pacingGain = bbrGainScale
		b.cwndGain = kProbeBWCwndGain
		b.cycleStart = time.Now()
		b.pacingCycleIndex = 0
	}
}

func (b *BBRSender) estimatedBDP() protocol.ByteCount {
	bw := b.bandwidthEstimate()
	if bw == 0 || b.minRTT == 0 {
		return b.congestionWindow
	}
	return protocol.ByteCount(float64(bw) * b.minRTT.Seconds())
}

func (b *BBRSender) updateProbeBW(newRound bool) {
	if b.shouldEnterProbeRtt() {
		b.enterProbeRtt()
		return
	}
	if newRound {
		b.pacingCycleIndex = (b.pacingCycleIndex + 1) % len(pacingGainCycle)
		b.cycleStart = time.Now()
	}
	b.pacingGain = pacingGainCycle[b.pacingCycleIndex]
	b.cwndGain = kProbeBWCwndGain
}

func (b *BBRSender) shouldEnterProbeRtt() bool {
	if b.minRTT == 0 {
		return false
	}
	return time.Since(b.minRTTTimestamp) > probeRttInterval
}

func (b *BBRSender) enterProbeRtt() {
	b.bbrState = BBRProbeRtt
	b.pacingGain = bbrGainScale
	b.cwndGain = bbrGainScale
	b.probeRttEndTime = time.Time{}
}

func (b *BBRSender) updateProbeRtt(now time.Time) {
	if b.probeRttEndTime.IsZero() && b.bytesInFlight <= kMinCwndInMss*b.mss {
		b.probeRttEndTime = now.Add(probeRttDuration)
	}
	if !b.probeRttEndTime.IsZero() && now.After(b.probeRttEndTime) {
		b.minRTTTimestamp = now
		if b.btlbwFound {
			b.bbrState = BBRProbeBW
			b.pacingGain = bbrGainScale
			b.cwndGain = kProbeBWCwndGain
		} else {
			b.bbrState = BBRStartup
			b.pacingGain = kHighGain
			b.cwndGain = kHighGain
		}
	}
}

func (b *BBRSender) updateCongestionWindow(ackedBytes protocol.ByteCount) {
	target := b.targetCongestionWindow(b.cwndGain)
	if b.btlbwFound {
		target += b.aggregatedAckBytes
	}
	if b.congestionWindow < target {
		b.congestionWindow += ackedBytes
		if b.congestionWindow > target {
			b.congestionWindow = target
		}
	} else if ackedBytes > 0 {
		// When over target, drop straight to it; the min-window floor below
		// still applies.
		b.congestionWindow = target
	}
	minWindow := kMinCwndInMss * b.mss
	if b.congestionWindow < minWindow {
		b.congestionWindow = minWindow
	}
}

func (b *BBRSender) targetCongestionWindow(gain int) protocol.ByteCount {
	bdp := b.estimatedBDP()
	w := protocol.ByteCount(int64(bdp) * int64(gain) / bbrGainScale)
	if w < kMinCwndInMss*b.mss {
		return kMinCwndInMss * b.mss
	}
	return w
}

func (b *BBRSender) updateAckAggregation(ackedBytes protocol.ByteCount, now time.Time) {
	if ackedBytes == 0 {
		return
	}
	expectedBytes := protocol.ByteCount(float64(b.bandwidthEstimate()) * now.Sub(b.ackAggregationStart).Seconds())
	b.aggregatedAckBytes += ackedBytes
	if b.aggregatedAckBytes <= expectedBytes {
		b.aggregatedAckBytes = ackedBytes
		b.ackAggregationStart = now
	}
	b.maxAckHeightFilter.Update(b.aggregatedAckBytes, now.UnixMicro())
}

func (b *BBRSender) updateRecoveryState(event AckEvent) {
	if len(event.AckedPackets) == 0 {
		return
	}
	if b.recoveryState != RecoveryNone && b.largestAckedPacketNumber > b.endOfRecovery {
		b.recoveryState = RecoveryNone
	}
	if b.recoveryState == RecoveryConservative {
		b.recoveryState = RecoveryGrowth
	}
}

func (b *BBRSender) OnDataLost(bytesInFlight protocol.ByteCount, event LossEvent) {
	if len(event.LostPackets) == 0 {
		return
	}
	b.bytesInFlight = bytesInFlight
	if b.recoveryState == RecoveryNone {
		b.recoveryState = RecoveryConservative
		b.endOfRecovery = b.largestSentPacketNumber
		b.recoveryWindow = b.bytesInFlight
	}
	var lost protocol.ByteCount
	for _, l := range event.LostPackets {
		lost += l.BytesLost
	}
	// BBR's response to loss is conservative, not multiplicative: shrink
	// the recovery window by the lost bytes but never below the floor.
	b.recoveryWindow -= lost
	minWindow := kMinCwndInMss * b.mss
	if b.recoveryWindow < minWindow {
		b.recoveryWindow = minWindow
	}
}

func (b *BBRSender) OnEcn(event EcnEvent) {
	if !b.ecn.observe(event.CEMarkedPackets, b.largestSentPacketNumber) {
		return
	}
	if b.recoveryWindow > b.mss {
		b.recoveryWindow -= b.mss
	}
}

// OnSpuriousCongestionEvent always returns false: BBR's loss response is
// conservative rather than multiplicative, so it has nothing to roll back
// (spec.md §4.8).
func (b *BBRSender) OnSpuriousCongestionEvent() bool { return false }

func (b *BBRSender) Reset(full bool) {
	b.bbrState = BBRStartup
	b.recoveryState = RecoveryNone
	b.congestionWindow = b.initialCongestionWindow
	b.recoveryWindow = b.initialCongestionWindow
	b.pacingGain = kHighGain
	b.cwndGain = kHighGain
	b.btlbwFound = false
	b.slowStartupRoundCounter = 0
	b.lastSendAllowance = 0
	b.bandwidthFilter.Reset()
	b.maxAckHeightFilter.Reset()
	if full {
		b.bytesInFlight = 0
	}
}

func (b *BBRSender) GetNetworkStatistics(out *NetworkStatistics) {
	out.CongestionWindow = b.GetCongestionWindow()
	out.BytesInFlight = b.bytesInFlight
	out.SlowStartThreshold = 0
	out.MinRTT = b.minRTT
	out.SmoothedRTT = b.rttStats.SmoothedRTT()
	out.BandwidthEstimate = b.bandwidthEstimate()
	out.InSlowStart = b.bbrState == BBRStartup
	out.InRecovery = b.recoveryState != RecoveryNone
	out.AppLimited = b.appLimited
}

// State exposes the current top-level state for tests and diagnostics.
func (b *BBRSender) State() BBRState { return b.bbrState }

// Gains exposes the current (pacingGain, cwndGain) pair, scaled by
// bbrGainScale, for tests asserting spec.md §8's initial-gain property.
func (b *BBRSender) Gains() (pacing, cwnd int) { return b.pacingGain, b.cwndGain }
