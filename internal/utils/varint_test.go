package utils_test

import (
	"quiccore/internal/protocol"
	"quiccore/internal/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Varint", func() {
	roundTrip := func(v uint64) uint64 {
		b, ok := utils.EncodeVarInt(nil, v)
		Expect(ok).To(BeTrue())
		decoded, _, err := utils.DecodeVarInt(b, 0)
		Expect(err).NotTo(HaveOccurred())
		return decoded
	}

	It("round-trips values below 2^62", func() {
		for _, v := range []uint64{0, 1, 0x3F, 0x40, 0x3FFF, 0x4000, 0x3FFFFFFF, 0x40000000, 0x3FFFFFFFFFFFFFFF} {
			Expect(roundTrip(v)).To(Equal(v))
		}
	})

	It("matches the literal encodings", func() {
		b, _ := utils.EncodeVarInt(nil, 0x3F)
		Expect(b).To(Equal([]byte{0x3F}))

		b, _ = utils.EncodeVarInt(nil, 0x40)
		Expect(b).To(Equal([]byte{0x40, 0x40}))

		b, _ = utils.EncodeVarInt(nil, 0x3FFFFFFFFFFFFFFF)
		Expect(b).To(Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))
	})

	It("rejects a truncated buffer", func() {
		_, _, err := utils.DecodeVarInt([]byte{0x40}, 0)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("PacketNumberCodec", func() {
	It("decompresses back to p when expected is p+1", func() {
		for _, p := range []protocol.PacketNumber{0, 1, 100, 0xFFFF, 0xDEADBEEF} {
			truncated := utils.TruncatePacketNumber(p, protocol.MaxPacketNumberLength)
			got := utils.DecodePacketNumber(p+1, truncated, protocol.MaxPacketNumberLength)
			Expect(got).To(Equal(p))
		}
	})

	It("matches the RFC 9000 worked examples", func() {
		Expect(utils.DecodePacketNumber(0xDEADBEEF+1, 0xBEF0, 2)).To(Equal(protocol.PacketNumber(0xDEADBEF0)))
		Expect(utils.DecodePacketNumber(0xDEADBEEF+1, 0xBEEE, 2)).To(Equal(protocol.PacketNumber(0xDEADBEEE)))
		Expect(utils.DecodePacketNumber(0x35+1, 0xFFFFFFFF, 4)).To(Equal(protocol.PacketNumber(0xFFFFFFFF)))
	})
})
