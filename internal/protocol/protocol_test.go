package protocol_test

import (
	"quiccore/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EncryptionLevel", func() {
	It("maps each level to its packet-number space", func() {
		Expect(protocol.SpaceForLevel(protocol.EncryptionInitial)).To(Equal(protocol.PNSpaceInitial))
		Expect(protocol.SpaceForLevel(protocol.EncryptionHandshake)).To(Equal(protocol.PNSpaceHandshake))
		Expect(protocol.SpaceForLevel(protocol.Encryption0RTT)).To(Equal(protocol.PNSpaceAppData))
		Expect(protocol.SpaceForLevel(protocol.Encryption1RTT)).To(Equal(protocol.PNSpaceAppData))
	})

	It("stringifies", func() {
		Expect(protocol.EncryptionInitial.String()).To(Equal("Initial"))
		Expect(protocol.Encryption1RTT.String()).To(Equal("1-RTT"))
	})
})

var _ = Describe("KeyPhase", func() {
	It("flips to its opposite", func() {
		Expect(protocol.KeyPhaseZero.Opposite()).To(Equal(protocol.KeyPhaseOne))
		Expect(protocol.KeyPhaseOne.Opposite()).To(Equal(protocol.KeyPhaseZero))
	})
})

var _ = Describe("Partition arithmetic", func() {
	It("round-trips an index through PartitionID and back", func() {
		const count = 8
		for idx := uint32(0); idx < count; idx++ {
			id := protocol.PartitionID(idx, count-1)
			Expect(protocol.PartitionIndex(id, count)).To(Equal(idx))
		}
	})
})
