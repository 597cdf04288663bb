// Package protocol collects the numeric types and wire constants shared
// across the core: encryption levels, packet types, perspective, and the
// size limits the Packet Builder and Receive Buffer are built against.
package protocol

import "time"

// ByteCount counts bytes on the wire. Kept as its own type, as the teacher
// does, so a stray int can't be passed where a byte count is expected.
type ByteCount int64

// PacketNumber is a QUIC packet number. Monotone within a packet-number
// space; never reused.
type PacketNumber uint64

// Perspective distinguishes client and server roles.
type Perspective int

const (
	PerspectiveClient Perspective = iota
	PerspectiveServer
)

// EncryptionLevel names a packet-number space / key set.
type EncryptionLevel int

const (
	EncryptionInitial EncryptionLevel = iota
	EncryptionHandshake
	Encryption0RTT
	Encryption1RTT
)

func (e EncryptionLevel) String() string {
	switch e {
	case EncryptionInitial:
		return "Initial"
	case EncryptionHandshake:
		return "Handshake"
	case Encryption0RTT:
		return "0-RTT"
	case Encryption1RTT:
		return "1-RTT"
	default:
		return "unknown"
	}
}

// PacketNumberSpace identifies which of the three ACK/loss-tracking spaces
// a packet number belongs to. 0-RTT and 1-RTT share a packet-number space.
type PacketNumberSpace int

const (
	PNSpaceInitial PacketNumberSpace = iota
	PNSpaceHandshake
	PNSpaceAppData
)

// SpaceForLevel maps an encryption level to its packet-number space.
func SpaceForLevel(level EncryptionLevel) PacketNumberSpace {
	switch level {
	case EncryptionInitial:
		return PNSpaceInitial
	case EncryptionHandshake:
		return PNSpaceHandshake
	default:
		return PNSpaceAppData
	}
}

// PacketType is the long-header packet type, or PacketTypeShortHeader for
// 1-RTT packets.
type PacketType int

const (
	PacketTypeInitial PacketType = iota
	PacketTypeHandshake
	PacketType0RTT
	PacketTypeRetry
	PacketTypeShortHeader
)

// KeyPhase is the single bit carried on 1-RTT short headers.
type KeyPhase int

const (
	KeyPhaseZero KeyPhase = iota
	KeyPhaseOne
)

// Opposite returns the other key phase.
func (k KeyPhase) Opposite() KeyPhase {
	if k == KeyPhaseZero {
		return KeyPhaseOne
	}
	return KeyPhaseZero
}

const (
	// MinPacketNumberLength and MaxPacketNumberLength bound the encoded
	// packet number length in bytes.
	MinPacketNumberLength = 1
	MaxPacketNumberLength = 4

	// DefaultPacketNumberLength is what Prepare uses for every new packet;
	// see spec.md §6 and the "TODO — determine correct PN length based on
	// BDP" open question in §9, resolved here as fixed at 4 bytes.
	DefaultPacketNumberLength = 4

	// InitialPacketMinLength is the minimum UDP datagram size for a
	// client-sent Initial packet (RFC 9000 14.1).
	InitialPacketMinLength ByteCount = 1200

	// MinPacketSpareSpace is the threshold below which Finalize treats the
	// current datagram as full rather than coalescing another packet.
	MinPacketSpareSpace ByteCount = 128

	// StatelessResetProbeLength pads a TLP 1-RTT probe to look at least as
	// large as a stateless reset token so it isn't trivially distinguished.
	StatelessResetProbeLength ByteCount = 21
	// StatelessResetProbeFudge is extra padding added on top of
	// StatelessResetProbeLength.
	StatelessResetProbeFudge ByteCount = 5

	// MaxDatagramsPerSend bounds how many UDP datagrams a single flush may
	// batch before Prepare refuses to start another packet.
	MaxDatagramsPerSend = 16

	// MaxHPBatch bounds how many short-header packets accumulate their
	// header-protection samples before the mask is computed.
	MaxHPBatch = 16

	// SampleLength is the number of ciphertext bytes sampled for header
	// protection (RFC 9001 5.4.2).
	SampleLength = 16
	// HPMaskLength is the number of mask bytes produced from a sample.
	HPMaskLength = 5

	// MaxMTU is the largest UDP payload this core will ever build.
	MaxMTU ByteCount = 1452

	// MinPacingRTT is the RTT below which pacing is disabled and the full
	// congestion-window room is returned by GetSendAllowance.
	MinPacingRTT = time.Millisecond
)

// AmplificationFactor is the multiple of the bytes received from a peer
// whose address is not yet validated that may be sent back to it.
const AmplificationFactor = 3

// PartitionIndex maps a partition ID into [0, partitionCount) the same way
// the library-init partitioning in msquic's quic_trace.h comments does: a
// pure, allocation-free modulo. partitionCount must be > 0.
func PartitionIndex(partitionID uint32, partitionCount uint32) uint32 {
	return partitionID % partitionCount
}

// PartitionID recovers a representative partition ID for an index, given
// the partition mask (partitionCount - 1 for power-of-two counts), by
// returning index & mask. It inverts PartitionIndex for power-of-two
// counts, which is what the tests check; for other counts index & mask
// can differ from index, since no mask can invert a modulo losslessly
// (mirrors PartitionTest.cpp's power-of-two assumption).
func PartitionID(index uint32, mask uint32) uint32 {
	return index & mask
}
