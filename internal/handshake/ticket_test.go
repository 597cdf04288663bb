package handshake_test

import (
	"quiccore/internal/handshake"
	"quiccore/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ClientTicket", func() {
	It("round-trips through Marshal/Unmarshal", func() {
		in := handshake.ClientTicket{
			ServerTicket: []byte("opaque-server-ticket"),
			EncodedTP:    []byte{0x04, 0x01, 0x05},
			QUICVersion:  1,
		}
		out, err := handshake.UnmarshalClientTicket(handshake.MarshalClientTicket(in))
		Expect(err).NotTo(HaveOccurred())
		Expect(*out).To(Equal(in))
	})

	It("refuses an unrecognized version byte", func() {
		b := handshake.MarshalClientTicket(handshake.ClientTicket{})
		b[0] = 0x01
		_, err := handshake.UnmarshalClientTicket(b)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ServerTicket", func() {
	It("round-trips and validates the ALPN match", func() {
		in := handshake.ServerTicket{
			QUICVersion: 1,
			ALPN:        []byte("h3"),
			EncodedTP:   []byte{0x01, 0x02},
			AppData:     []byte("session-state"),
		}
		encoded := handshake.MarshalServerTicket(in)
		out, err := handshake.UnmarshalServerTicket(encoded, []byte("h3"))
		Expect(err).NotTo(HaveOccurred())
		Expect(*out).To(Equal(in))

		_, err = handshake.UnmarshalServerTicket(encoded, []byte("h2"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("VersionNegotiationInfo", func() {
	It("round-trips chosen and other versions", func() {
		in := handshake.VersionNegotiationInfo{ChosenVersion: 1, OtherVersions: []uint32{2, 3}}
		out, err := handshake.UnmarshalVersionNegotiationInfo(in.Marshal(), protocol.PerspectiveClient)
		Expect(err).NotTo(HaveOccurred())
		Expect(*out).To(Equal(in))
	})

	It("rejects a buffer whose tail isn't a multiple of 4", func() {
		_, err := handshake.UnmarshalVersionNegotiationInfo([]byte{0, 0, 0, 1, 0, 0}, protocol.PerspectiveServer)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ClientTicketCache", func() {
	It("stores and retrieves a ticket by server name", func() {
		c := handshake.NewClientTicketCache()
		ticket := handshake.ClientTicket{QUICVersion: 1}
		_, ok := c.Get("example.com")
		Expect(ok).To(BeFalse())

		c.Put("example.com", ticket)
		got, ok := c.Get("example.com")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(ticket))

		c.Delete("example.com")
		_, ok = c.Get("example.com")
		Expect(ok).To(BeFalse())
	})
})
