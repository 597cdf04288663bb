package ackhandler_test

import (
	"time"

	"quiccore/internal/ackhandler"
	"quiccore/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AckTracker", func() {
	It("flags a repeated packet number as a duplicate", func() {
		t := ackhandler.NewAckTracker()
		Expect(t.ReceivedPacket(5, true, time.Now())).To(BeFalse())
		Expect(t.ReceivedPacket(5, true, time.Now())).To(BeTrue())
	})

	It("tracks ack-eliciting-unacked and clears it when an ACK is sent", func() {
		t := ackhandler.NewAckTracker()
		t.ReceivedPacket(1, true, time.Now())
		t.ReceivedPacket(2, false, time.Now())
		Expect(t.HasAckElicitingUnacked()).To(BeTrue())
		t.OnAckSent()
		Expect(t.HasAckElicitingUnacked()).To(BeFalse())
	})

	It("tracks the largest observed packet number", func() {
		t := ackhandler.NewAckTracker()
		t.ReceivedPacket(3, true, time.Now())
		t.ReceivedPacket(1, true, time.Now())
		t.ReceivedPacket(7, true, time.Now())
		largest, _ := t.LargestObserved()
		Expect(largest).To(Equal(protocol.PacketNumber(7)))
	})
})

var _ = Describe("PacketNumberSpaceState", func() {
	It("hands out strictly monotone packet numbers starting at zero", func() {
		s := ackhandler.NewPacketNumberSpaceState(protocol.PNSpaceAppData)
		Expect(s.PeekNextPacketNumber()).To(Equal(protocol.PacketNumber(0)))
		Expect(s.PopNextPacketNumber()).To(Equal(protocol.PacketNumber(0)))
		Expect(s.PopNextPacketNumber()).To(Equal(protocol.PacketNumber(1)))
	})

	It("rolls back the packet number an empty Finalize discarded", func() {
		s := ackhandler.NewPacketNumberSpaceState(protocol.PNSpaceAppData)
		s.PopNextPacketNumber()
		s.PopNextPacketNumber()
		s.UndoPacketNumber()
		Expect(s.PeekNextPacketNumber()).To(Equal(protocol.PacketNumber(1)))
	})

	It("flips key phase and awaits confirmation until the peer acks in the new phase", func() {
		s := ackhandler.NewPacketNumberSpaceState(protocol.PNSpaceAppData)
		s.OnKeyPhaseUpdated()
		Expect(s.KeyPhase).To(Equal(protocol.KeyPhaseOne))
		Expect(s.AwaitingKeyPhaseConfirmation).To(BeTrue())
		s.OnKeyPhaseConfirmed()
		Expect(s.AwaitingKeyPhaseConfirmation).To(BeFalse())
	})
})
