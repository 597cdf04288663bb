package handshake

import (
	"bytes"
	"encoding/binary"
	"time"

	"quiccore/internal/protocol"
	"quiccore/internal/qerr"
	"quiccore/internal/utils"

	cache "github.com/patrickmn/go-cache"
)

// TicketVersion is the leading version byte of a resumption-ticket blob
// (spec.md §6); only 0x00 is understood, and unknown versions must be
// refused for back-compat.
const TicketVersion byte = 0x00

var errUnsupportedTicketVersion = qerr.New(qerr.KindMalformed, "unsupported resumption ticket version")

// ClientTicket is the client-side resumption-ticket layout of spec.md
// §4.5: [ versioned header | varint(server_ticket_len) | server_ticket |
// varint(encoded_tp_len) | encoded_tp | u32(quic_version) ].
type ClientTicket struct {
	ServerTicket []byte
	EncodedTP    []byte
	QUICVersion  uint32
}

// MarshalClientTicket encodes t into the client-side ticket blob.
func MarshalClientTicket(t ClientTicket) []byte {
	b := []byte{TicketVersion}
	b, _ = utils.EncodeVarInt(b, uint64(len(t.ServerTicket)))
	b = append(b, t.ServerTicket...)
	b, _ = utils.EncodeVarInt(b, uint64(len(t.EncodedTP)))
	b = append(b, t.EncodedTP...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], t.QUICVersion)
	return append(b, v[:]...)
}

// UnmarshalClientTicket decodes a client-side ticket blob. Length prefixes
// must exactly account for the remaining buffer tail, per spec.md §4.5.
func UnmarshalClientTicket(data []byte) (*ClientTicket, error) {
	if len(data) < 1 || data[0] != TicketVersion {
		return nil, errUnsupportedTicketVersion
	}
	off := 1
	serverTicketLen, next, err := utils.DecodeVarInt(data, off)
	if err != nil {
		return nil, qerr.ErrMalformed
	}
	off = next
	if off+int(serverTicketLen) > len(data) {
		return nil, qerr.ErrMalformed
	}
	serverTicket := data[off : off+int(serverTicketLen)]
	off += int(serverTicketLen)

	tpLen, next, err := utils.DecodeVarInt(data, off)
	if err != nil {
		return nil, qerr.ErrMalformed
	}
	off = next
	if off+int(tpLen) > len(data) {
		return nil, qerr.ErrMalformed
	}
	encodedTP := data[off : off+int(tpLen)]
	off += int(tpLen)

	if len(data)-off != 4 {
		return nil, qerr.ErrMalformed
	}
	version := binary.BigEndian.Uint32(data[off:])

	return &ClientTicket{
		ServerTicket: append([]byte{}, serverTicket...),
		EncodedTP:    append([]byte{}, encodedTP...),
		QUICVersion:  version,
	}, nil
}

// ServerTicket is the server-side resumption-ticket layout of spec.md
// §4.5: [ versioned header | u32(quic_version) | varint(alpn_len) | alpn |
// varint(encoded_tp_len) | encoded_tp | varint(app_data_len) | app_data ].
type ServerTicket struct {
	QUICVersion uint32
	ALPN        []byte
	EncodedTP   []byte
	AppData     []byte
}

// MarshalServerTicket encodes t into the server-side ticket blob.
func MarshalServerTicket(t ServerTicket) []byte {
	b := []byte{TicketVersion}
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], t.QUICVersion)
	b = append(b, v[:]...)
	b, _ = utils.EncodeVarInt(b, uint64(len(t.ALPN)))
	b = append(b, t.ALPN...)
	b, _ = utils.EncodeVarInt(b, uint64(len(t.EncodedTP)))
	b = append(b, t.EncodedTP...)
	b, _ = utils.EncodeVarInt(b, uint64(len(t.AppData)))
	b = append(b, t.AppData...)
	return b
}

// UnmarshalServerTicket decodes a server-side ticket blob and verifies the
// ALPN matches the connection's negotiated ALPN byte-for-byte, per
// spec.md §4.5.
func UnmarshalServerTicket(data []byte, negotiatedALPN []byte) (*ServerTicket, error) {
	if len(data) < 1 || data[0] != TicketVersion {
		return nil, errUnsupportedTicketVersion
	}
	if len(data) < 5 {
		return nil, qerr.ErrMalformed
	}
	version := binary.BigEndian.Uint32(data[1:5])
	off := 5

	alpnLen, next, err := utils.DecodeVarInt(data, off)
	if err != nil {
		return nil, qerr.ErrMalformed
	}
	off = next
	if off+int(alpnLen) > len(data) {
		return nil, qerr.ErrMalformed
	}
	alpn := data[off : off+int(alpnLen)]
	off += int(alpnLen)
	if !bytes.Equal(alpn, negotiatedALPN) {
		return nil, qerr.New(qerr.KindMalformed, "resumption ticket ALPN mismatch")
	}

	tpLen, next, err := utils.DecodeVarInt(data, off)
	if err != nil {
		return nil, qerr.ErrMalformed
	}
	off = next
	if off+int(tpLen) > len(data) {
		return nil, qerr.ErrMalformed
	}
	encodedTP := data[off : off+int(tpLen)]
	off += int(tpLen)

	appLen, next, err := utils.DecodeVarInt(data, off)
	if err != nil {
		return nil, qerr.ErrMalformed
	}
	off = next
	if off+int(appLen) != len(data) {
		return nil, qerr.ErrMalformed
	}
	appData := data[off : off+int(appLen)]

	return &ServerTicket{
		QUICVersion: version,
		ALPN:        append([]byte{}, alpn...),
		EncodedTP:   append([]byte{}, encodedTP...),
		AppData:     append([]byte{}, appData...),
	}, nil
}

// VersionNegotiationInfo is the buffer of spec.md §4.5: [
// u32(chosen_version) | u32(other_versions)[] ].
type VersionNegotiationInfo struct {
	ChosenVersion uint32
	OtherVersions []uint32
}

// Marshal encodes v.
func (v VersionNegotiationInfo) Marshal() []byte {
	b := make([]byte, 4, 4+4*len(v.OtherVersions))
	binary.BigEndian.PutUint32(b, v.ChosenVersion)
	for _, o := range v.OtherVersions {
		var ov [4]byte
		binary.BigEndian.PutUint32(ov[:], o)
		b = append(b, ov[:]...)
	}
	return b
}

// UnmarshalVersionNegotiationInfo parses a version-info buffer. Parsing
// fails if the length after the first four bytes isn't a multiple of 4,
// or role-specific minima aren't met: a server requires at least the
// chosen version to be present among "other versions" is NOT required
// (chosen_version is separate), but spec.md requires the server side to
// have at least the chosen version recorded — modeled here as the buffer
// needing at least 4 bytes regardless of role; the client may have an
// empty other-versions list.
func UnmarshalVersionNegotiationInfo(data []byte, role protocol.Perspective) (*VersionNegotiationInfo, error) {
	if len(data) < 4 {
		return nil, qerr.ErrMalformed
	}
	if role == protocol.PerspectiveServer && len(data) < 4 {
		return nil, qerr.ErrMalformed
	}
	rest := data[4:]
	if len(rest)%4 != 0 {
		return nil, qerr.ErrMalformed
	}
	info := &VersionNegotiationInfo{ChosenVersion: binary.BigEndian.Uint32(data[:4])}
	for i := 0; i < len(rest); i += 4 {
		info.OtherVersions = append(info.OtherVersions, binary.BigEndian.Uint32(rest[i:i+4]))
	}
	return info, nil
}

// ticketCacheTTL bounds how long a resumption ticket is offered for 0-RTT
// before it's considered stale and dropped from the cache.
const ticketCacheTTL = 10 * time.Minute

// ClientTicketCache is a client-side cache of resumption tickets keyed by
// server name, so a reconnect can attempt 0-RTT without the caller
// threading ticket storage through every dial. Backed by
// github.com/patrickmn/go-cache, grounded in cppla-moto's go.mod.
type ClientTicketCache struct {
	c *cache.Cache
}

// NewClientTicketCache creates an empty cache with the default TTL and a
// janitor sweep every twice that interval.
func NewClientTicketCache() *ClientTicketCache {
	return &ClientTicketCache{c: cache.New(ticketCacheTTL, 2*ticketCacheTTL)}
}

// Put stores ticket for serverName, overwriting any prior entry.
func (c *ClientTicketCache) Put(serverName string, ticket ClientTicket) {
	c.c.Set(serverName, ticket, cache.DefaultExpiration)
}

// Get retrieves a still-valid ticket for serverName, if any.
func (c *ClientTicketCache) Get(serverName string) (ClientTicket, bool) {
	v, ok := c.c.Get(serverName)
	if !ok {
		return ClientTicket{}, false
	}
	return v.(ClientTicket), true
}

// Delete removes any cached ticket for serverName, e.g. after a failed
// 0-RTT attempt the server rejected.
func (c *ClientTicketCache) Delete(serverName string) { c.c.Delete(serverName) }
