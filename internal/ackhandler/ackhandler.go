// Package ackhandler holds the per-packet-number-space state spec.md §3
// describes: the next-send packet number, key-phase bookkeeping, and an
// ACK tracker built on a Range Tracker. It supersedes the teacher's
// entropy-bit/NACK-range gQUIC scheme (ackhandler/received_packet_handler.go,
// ackhandler/outgoing_packet_ack_handler.go), which doesn't exist in IETF
// QUIC; see DESIGN.md.
package ackhandler

import (
	"time"

	"quiccore/internal/protocol"
	"quiccore/internal/rangeset"
)

// SentPacketMetadata is created by the Packet Builder when a new QUIC
// packet starts; ownership transfers to loss detection on OnPacketSent
// (spec.md §3's "Sent-Packet Metadata").
type SentPacketMetadata struct {
	PacketNumber   protocol.PacketNumber
	KeyType        protocol.EncryptionLevel
	KeyPhase       protocol.KeyPhase
	IsAckEliciting bool
	IsPMTUD        bool
	SuspectedLost  bool
	SentTimeUs     int64
	PacketLength   protocol.ByteCount
	Frames         []interface{}
}

// AckTracker holds the Range Tracker of received packet numbers for one
// packet-number space, plus the count of ack-eliciting packets awaiting
// acknowledgement (spec.md §3).
type AckTracker struct {
	received             *rangeset.Tracker
	ackElicitingUnacked   int
	largestObserved       protocol.PacketNumber
	largestObservedTime   time.Time
}

// NewAckTracker creates an AckTracker with the default ACK arena capacity.
func NewAckTracker() *AckTracker {
	return &AckTracker{received: rangeset.New(rangeset.DefaultACKCapacity)}
}

// ReceivedPacket records an incoming packet number. It returns whether
// this packet was a duplicate of one already tracked.
func (t *AckTracker) ReceivedPacket(pn protocol.PacketNumber, isAckEliciting bool, receivedAt time.Time) (duplicate bool) {
	if t.received.Contains(uint64(pn)) {
		return true
	}
	t.received.AddValue(uint64(pn))
	if pn > t.largestObserved || t.largestObservedTime.IsZero() {
		t.largestObserved = pn
		t.largestObservedTime = receivedAt
	}
	if isAckEliciting {
		t.ackElicitingUnacked++
	}
	return false
}

// OnAckSent clears the ack-eliciting-unacked counter once an ACK frame
// carrying the current state has been sent.
func (t *AckTracker) OnAckSent() { t.ackElicitingUnacked = 0 }

// HasAckElicitingUnacked reports whether an ACK is owed.
func (t *AckTracker) HasAckElicitingUnacked() bool { return t.ackElicitingUnacked > 0 }

// LargestObserved returns the highest packet number received in this
// space, and the time it was received.
func (t *AckTracker) LargestObserved() (protocol.PacketNumber, time.Time) {
	return t.largestObserved, t.largestObservedTime
}

// Ranges returns the received sub-ranges, for building an ACK frame.
func (t *AckTracker) Ranges() []rangeset.SubRange { return t.received.Ranges() }

// PacketNumberSpaceState is the per-space send-side state of spec.md §3:
// next-send packet number, key-phase bookkeeping (1-RTT only), and the
// ACK tracker for this space.
type PacketNumberSpaceState struct {
	Space protocol.PacketNumberSpace

	nextSendPacketNumber protocol.PacketNumber

	KeyPhase                  protocol.KeyPhase
	BytesSentInCurrentKeyPhase protocol.ByteCount
	AwaitingKeyPhaseConfirmation bool

	Acks *AckTracker
}

// NewPacketNumberSpaceState creates a fresh per-space state; packet
// numbers in a space start at 0 and are strictly monotone thereafter.
func NewPacketNumberSpaceState(space protocol.PacketNumberSpace) *PacketNumberSpaceState {
	return &PacketNumberSpaceState{Space: space, Acks: NewAckTracker()}
}

// PeekNextPacketNumber returns the packet number the next Prepare call
// will assign, without consuming it.
func (s *PacketNumberSpaceState) PeekNextPacketNumber() protocol.PacketNumber {
	return s.nextSendPacketNumber
}

// PopNextPacketNumber consumes and returns the next packet number,
// advancing the space's monotone counter.
func (s *PacketNumberSpaceState) PopNextPacketNumber() protocol.PacketNumber {
	pn := s.nextSendPacketNumber
	s.nextSendPacketNumber++
	return pn
}

// UndoPacketNumber rolls back the most recent PopNextPacketNumber call,
// used by Finalize when a packet ends up with zero frames (spec.md §4.10
// step 1: "decrement next_packet_number").
func (s *PacketNumberSpaceState) UndoPacketNumber() {
	if s.nextSendPacketNumber > 0 {
		s.nextSendPacketNumber--
	}
}

// OnKeyPhaseUpdated flips the key phase and resets the per-phase byte
// counter, awaiting confirmation from the peer's first ACK in the new
// phase.
func (s *PacketNumberSpaceState) OnKeyPhaseUpdated() {
	s.KeyPhase = s.KeyPhase.Opposite()
	s.BytesSentInCurrentKeyPhase = 0
	s.AwaitingKeyPhaseConfirmation = true
}

// OnKeyPhaseConfirmed clears the awaiting-confirmation flag once the peer
// has acknowledged a packet sent in the new phase.
func (s *PacketNumberSpaceState) OnKeyPhaseConfirmed() {
	s.AwaitingKeyPhaseConfirmation = false
}
