// Package handshake implements the typed TLV serialization spec.md §4.5
// describes: transport parameters, resumption tickets (client and server
// side), and version-negotiation info. It supersedes the teacher's
// ConnectionParametersManager (handshake/connection_parameters_manager.go),
// which used fixed 4-byte gQUIC tags and a flat map[Tag][]byte; this module
// keeps that map-of-tags shape but switches to the IETF varint
// tag-length-value framing spec.md §4.5 requires. See DESIGN.md.
package handshake

import (
	"time"

	"quiccore/internal/protocol"
	"quiccore/internal/qerr"
	"quiccore/internal/utils"
)

// Tag identifies a transport parameter.
type Tag uint64

const (
	TagOriginalDestinationConnectionID Tag = 0x00
	TagMaxIdleTimeout                  Tag = 0x01
	TagStatelessResetToken              Tag = 0x02
	TagMaxUDPPayloadSize                 Tag = 0x03
	TagInitialMaxData                    Tag = 0x04
	TagInitialMaxStreamDataBidiLocal     Tag = 0x05
	TagInitialMaxStreamDataBidiRemote    Tag = 0x06
	TagInitialMaxStreamDataUni            Tag = 0x07
	TagInitialMaxStreamsBidi             Tag = 0x08
	TagInitialMaxStreamsUni               Tag = 0x09
	TagAckDelayExponent                   Tag = 0x0a
	TagMaxAckDelay                        Tag = 0x0b
	TagDisableActiveMigration             Tag = 0x0c
	TagPreferredAddress                   Tag = 0x0d
	TagActiveConnectionIDLimit            Tag = 0x0e
	TagInitialSourceConnectionID          Tag = 0x0f
	TagRetrySourceConnectionID            Tag = 0x10

	// TagDisableEncryption is a private test-only tag; compliant peers
	// MUST refuse it (spec.md §6).
	TagDisableEncryption Tag = 0xbaad
)

// serverOnlyTags lists tags spec.md §4.5 says may appear only when the
// local role is client (i.e. they were sent by a server).
var serverOnlyTags = map[Tag]bool{
	TagOriginalDestinationConnectionID: true,
	TagRetrySourceConnectionID:          true,
	TagStatelessResetToken:              true,
	TagPreferredAddress:                 true,
}

// TransportParameters holds every recognized parameter from spec.md §4.5.
// Pointer-typed fields distinguish "absent" from "present with zero
// value"; byte-slice fields are nil when absent.
type TransportParameters struct {
	InitialMaxData                 *uint64
	InitialMaxStreamDataBidiLocal   *uint64
	InitialMaxStreamDataBidiRemote  *uint64
	InitialMaxStreamDataUni         *uint64
	InitialMaxStreamsBidi           *uint64
	InitialMaxStreamsUni            *uint64
	MaxUDPPayloadSize               *uint64
	AckDelayExponent                *uint64
	MaxIdleTimeout                  *time.Duration
	MaxAckDelay                     *time.Duration
	ActiveConnectionIDLimit         *uint64
	DisableActiveMigration          bool

	InitialSourceConnectionID    []byte
	OriginalDestinationConnectionID []byte // server-only
	RetrySourceConnectionID      []byte    // server-only
	StatelessResetToken          []byte    // server-only, 16 bytes
	PreferredAddress             []byte    // server-only, opaque blob

}

const maxACID = 1<<62 - 1

// boundsFor validates integer parameters fit their domain-specified range,
// per spec.md §4.5 "Bounds validation".
func boundsFor(tag Tag, v uint64) error {
	switch tag {
	case TagActiveConnectionIDLimit:
		if v < 2 {
			return qerr.New(qerr.KindMalformed, "active_connection_id_limit must be >= 2")
		}
	case TagAckDelayExponent:
		if v > 20 {
			return qerr.New(qerr.KindMalformed, "ack_delay_exponent out of range")
		}
	case TagMaxUDPPayloadSize:
		if v < 1200 {
			return qerr.New(qerr.KindMalformed, "max_udp_payload_size below minimum")
		}
	}
	return nil
}

func appendTLV(b []byte, tag Tag, value []byte) []byte {
	b, _ = utils.EncodeVarInt(b, uint64(tag))
	b, _ = utils.EncodeVarInt(b, uint64(len(value)))
	return append(b, value...)
}

func appendVarIntParam(b []byte, tag Tag, v uint64) []byte {
	val, _ := utils.EncodeVarInt(nil, v)
	return appendTLV(b, tag, val)
}

func appendFlagParam(b []byte, tag Tag) []byte {
	return appendTLV(b, tag, nil)
}

// Marshal encodes tp as a sequence of (varint tag, varint length, bytes)
// triples (spec.md §4.5). role is the local role; server-only fields are
// only written when role is PerspectiveServer.
func (tp *TransportParameters) Marshal(role protocol.Perspective) []byte {
	var b []byte
	if tp.InitialMaxData != nil {
		b = appendVarIntParam(b, TagInitialMaxData, *tp.InitialMaxData)
	}
	if tp.InitialMaxStreamDataBidiLocal != nil {
		b = appendVarIntParam(b, TagInitialMaxStreamDataBidiLocal, *tp.InitialMaxStreamDataBidiLocal)
	}
	if tp.InitialMaxStreamDataBidiRemote != nil {
		b = appendVarIntParam(b, TagInitialMaxStreamDataBidiRemote, *tp.InitialMaxStreamDataBidiRemote)
	}
	if tp.InitialMaxStreamDataUni != nil {
		b = appendVarIntParam(b, TagInitialMaxStreamDataUni, *tp.InitialMaxStreamDataUni)
	}
	if tp.InitialMaxStreamsBidi != nil {
		b = appendVarIntParam(b, TagInitialMaxStreamsBidi, *tp.InitialMaxStreamsBidi)
	}
	if tp.InitialMaxStreamsUni != nil {
		b = appendVarIntParam(b, TagInitialMaxStreamsUni, *tp.InitialMaxStreamsUni)
	}
	if tp.MaxUDPPayloadSize != nil {
		b = appendVarIntParam(b, TagMaxUDPPayloadSize, *tp.MaxUDPPayloadSize)
	}
	if tp.AckDelayExponent != nil {
		b = appendVarIntParam(b, TagAckDelayExponent, *tp.AckDelayExponent)
	}
	if tp.MaxIdleTimeout != nil {
		b = appendVarIntParam(b, TagMaxIdleTimeout, uint64(tp.MaxIdleTimeout.Milliseconds()))
	}
	if tp.MaxAckDelay != nil {
		b = appendVarIntParam(b, TagMaxAckDelay, uint64(tp.MaxAckDelay.Milliseconds()))
	}
	if tp.ActiveConnectionIDLimit != nil {
		b = appendVarIntParam(b, TagActiveConnectionIDLimit, *tp.ActiveConnectionIDLimit)
	}
	if tp.DisableActiveMigration {
		b = appendFlagParam(b, TagDisableActiveMigration)
	}
	if tp.InitialSourceConnectionID != nil {
		b = appendTLV(b, TagInitialSourceConnectionID, tp.InitialSourceConnectionID)
	}
	if role == protocol.PerspectiveServer {
		if tp.OriginalDestinationConnectionID != nil {
			b = appendTLV(b, TagOriginalDestinationConnectionID, tp.OriginalDestinationConnectionID)
		}
		if tp.RetrySourceConnectionID != nil {
			b = appendTLV(b, TagRetrySourceConnectionID, tp.RetrySourceConnectionID)
		}
		if tp.StatelessResetToken != nil {
			b = appendTLV(b, TagStatelessResetToken, tp.StatelessResetToken)
		}
		if tp.PreferredAddress != nil {
			b = appendTLV(b, TagPreferredAddress, tp.PreferredAddress)
		}
	}
	return b
}

// Unmarshal decodes a transport-parameter TLV sequence. Unknown tags are
// skipped; a duplicate tag (known or unknown), an out-of-role server-only tag, or
// a value failing boundsFor all fail with qerr.ErrMalformed.
func Unmarshal(data []byte, role protocol.Perspective) (*TransportParameters, error) {
	tp := &TransportParameters{}
	seen := map[Tag]bool{}
	off := 0
	for off < len(data) {
		tagVal, next, err := utils.DecodeVarInt(data, off)
		if err != nil {
			return nil, qerr.ErrMalformed
		}
		off = next
		length, next, err := utils.DecodeVarInt(data, off)
		if err != nil {
			return nil, qerr.ErrMalformed
		}
		off = next
		if off+int(length) > len(data) {
			return nil, qerr.ErrMalformed
		}
		value := data[off : off+int(length)]
		off += int(length)

		tag := Tag(tagVal)
		if seen[tag] {
			return nil, qerr.New(qerr.KindMalformed, "duplicate transport parameter tag")
		}
		seen[tag] = true

		// Server-only tags may only be received by a client (role must be
		// client), and vice versa: a server receiving one from the client
		// is malformed.
		if serverOnlyTags[tag] && role != protocol.PerspectiveClient {
			return nil, qerr.New(qerr.KindMalformed, "server-only transport parameter seen by server")
		}

		if err := decodeOneTag(tp, tag, value); err != nil {
			return nil, err
		}
	}
	return tp, nil
}

func decodeOneTag(tp *TransportParameters, tag Tag, value []byte) error {
	readVarInt := func() (uint64, error) {
		v, next, err := utils.DecodeVarInt(value, 0)
		if err != nil || next != len(value) {
			return 0, qerr.ErrMalformed
		}
		if err := boundsFor(tag, v); err != nil {
			return 0, err
		}
		return v, nil
	}
	switch tag {
	case TagInitialMaxData:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxData = &v
	case TagInitialMaxStreamDataBidiLocal:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxStreamDataBidiLocal = &v
	case TagInitialMaxStreamDataBidiRemote:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxStreamDataBidiRemote = &v
	case TagInitialMaxStreamDataUni:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxStreamDataUni = &v
	case TagInitialMaxStreamsBidi:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxStreamsBidi = &v
	case TagInitialMaxStreamsUni:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.InitialMaxStreamsUni = &v
	case TagMaxUDPPayloadSize:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.MaxUDPPayloadSize = &v
	case TagAckDelayExponent:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.AckDelayExponent = &v
	case TagMaxIdleTimeout:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		d := time.Duration(v) * time.Millisecond
		tp.MaxIdleTimeout = &d
	case TagMaxAckDelay:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		d := time.Duration(v) * time.Millisecond
		tp.MaxAckDelay = &d
	case TagActiveConnectionIDLimit:
		v, err := readVarInt()
		if err != nil {
			return err
		}
		tp.ActiveConnectionIDLimit = &v
	case TagDisableActiveMigration:
		if len(value) != 0 {
			return qerr.ErrMalformed
		}
		tp.DisableActiveMigration = true
	case TagInitialSourceConnectionID:
		tp.InitialSourceConnectionID = append([]byte{}, value...)
	case TagOriginalDestinationConnectionID:
		tp.OriginalDestinationConnectionID = append([]byte{}, value...)
	case TagRetrySourceConnectionID:
		tp.RetrySourceConnectionID = append([]byte{}, value...)
	case TagStatelessResetToken:
		if len(value) != 16 {
			return qerr.ErrMalformed
		}
		tp.StatelessResetToken = append([]byte{}, value...)
	case TagPreferredAddress:
		tp.PreferredAddress = append([]byte{}, value...)
	case TagDisableEncryption:
		// spec.md §6: a private test-only tag that a compliant peer must
		// never accept; refuse the parameter set outright.
		return qerr.New(qerr.KindInvalidParameter, "disable_encryption transport parameter is not permitted")
	default:
		// unknown tag: skip, per spec.md §4.5.
	}
	return nil
}
