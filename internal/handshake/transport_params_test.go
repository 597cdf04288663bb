package handshake_test

import (
	"quiccore/internal/handshake"
	"quiccore/internal/protocol"
	"quiccore/internal/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TransportParameters", func() {
	It("round-trips a typical client parameter set", func() {
		maxData := uint64(1 << 20)
		acidLimit := uint64(4)
		tp := &handshake.TransportParameters{
			InitialMaxData:          &maxData,
			ActiveConnectionIDLimit: &acidLimit,
			InitialSourceConnectionID: []byte{1, 2, 3, 4},
		}
		encoded := tp.Marshal(protocol.PerspectiveClient)
		decoded, err := handshake.Unmarshal(encoded, protocol.PerspectiveClient)
		Expect(err).NotTo(HaveOccurred())
		Expect(*decoded.InitialMaxData).To(Equal(maxData))
		Expect(*decoded.ActiveConnectionIDLimit).To(Equal(acidLimit))
		Expect(decoded.InitialSourceConnectionID).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("rejects active_connection_id_limit below 2", func() {
		bad := uint64(1)
		tp := &handshake.TransportParameters{ActiveConnectionIDLimit: &bad}
		encoded := tp.Marshal(protocol.PerspectiveClient)
		_, err := handshake.Unmarshal(encoded, protocol.PerspectiveClient)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate tag", func() {
		v := uint64(10)
		tp := &handshake.TransportParameters{InitialMaxData: &v}
		encoded := tp.Marshal(protocol.PerspectiveClient)
		doubled := append(encoded, encoded...)
		_, err := handshake.Unmarshal(doubled, protocol.PerspectiveClient)
		Expect(err).To(HaveOccurred())
	})

	It("rejects the disable_encryption tag outright", func() {
		var encoded []byte
		var ok bool
		encoded, ok = utils.EncodeVarInt(encoded, uint64(handshake.TagDisableEncryption))
		Expect(ok).To(BeTrue())
		encoded, ok = utils.EncodeVarInt(encoded, 0)
		Expect(ok).To(BeTrue())
		_, err := handshake.Unmarshal(encoded, protocol.PerspectiveClient)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a server-only tag received by a server", func() {
		token := make([]byte, 16)
		tp := &handshake.TransportParameters{StatelessResetToken: token}
		encoded := tp.Marshal(protocol.PerspectiveServer)
		_, err := handshake.Unmarshal(encoded, protocol.PerspectiveServer)
		Expect(err).To(HaveOccurred())
	})

	It("accepts a server-only tag received by a client", func() {
		token := make([]byte, 16)
		tp := &handshake.TransportParameters{StatelessResetToken: token}
		encoded := tp.Marshal(protocol.PerspectiveServer)
		decoded, err := handshake.Unmarshal(encoded, protocol.PerspectiveClient)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.StatelessResetToken).To(Equal(token))
	})

	It("skips unknown tags without error", func() {
		v := uint64(1)
		tp := &handshake.TransportParameters{InitialMaxData: &v}
		encoded := tp.Marshal(protocol.PerspectiveClient)
		encoded = append(encoded, 0x21, 0x02, 0xAA, 0xBB) // an unrecognized tag (0x21) with 2-byte value
		decoded, err := handshake.Unmarshal(encoded, protocol.PerspectiveClient)
		Expect(err).NotTo(HaveOccurred())
		Expect(*decoded.InitialMaxData).To(Equal(v))
	})
})
