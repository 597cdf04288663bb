// Package builder implements the Packet Builder of spec.md §4.10: it
// assembles outgoing QUIC packets into UDP datagrams under encryption,
// MTU, congestion, and amplification constraints, and hands finished
// datagrams off to the datapath. It supersedes the teacher's
// packet_packer.go, which built a single gQUIC packet per public header
// with no coalescing, no header protection, and no congestion gating; see
// DESIGN.md.
package builder

import (
	"time"

	"quiccore/internal/ackhandler"
	"quiccore/internal/congestion"
	"quiccore/internal/protocol"
)

// CongestionControlAlgo selects which pluggable controller a Builder's
// owning connection runs, per spec.md §6's configuration enum.
type CongestionControlAlgo int

const (
	AlgoCubic CongestionControlAlgo = iota
	AlgoBBR
)

// Config is the configuration enum spec.md §6 describes. It is
// constructed once by the caller and held read-only by the Builder.
type Config struct {
	EncryptionEnabled        bool
	MaxBytesPerKey           protocol.ByteCount
	PacingEnabled            bool
	InitialWindowPackets     int
	SendIdleTimeoutMs        int
	HystartEnabled           bool
	EcnEnabled               bool
	CongestionControlAlgo    CongestionControlAlgo
	DatagramPaddingPreferred bool
}

// Path holds the per-path facts Initialize and Prepare consult: the
// path's believed MTU, its amplification allowance, and whether the local
// address is explicitly bound (selecting SendTo vs SendFromTo at
// Finalize, per spec.md §4.10 step 11).
type Path struct {
	MTU                    protocol.ByteCount
	AmplificationAllowance protocol.ByteCount
	PeerMaxUDPPayloadSize  protocol.ByteCount
	LocalAddrBound         bool
	LocalAddr              string
}

// datagramSize returns the padding/allocation target for this path, the
// min(path.mtu, path.amplification_allowance) of spec.md §4.10 step 2.
func (p *Path) datagramSize() protocol.ByteCount {
	size := p.MTU
	if p.PeerMaxUDPPayloadSize > 0 && p.PeerMaxUDPPayloadSize < size {
		size = p.PeerMaxUDPPayloadSize
	}
	if p.AmplificationAllowance < size {
		size = p.AmplificationAllowance
	}
	return size
}

// Key is the per-encryption-level key handle the Packet Builder borrows
// from the crypto collaborator (spec.md §5 "keys are shared; ownership =
// crypto module; borrow = builder"). It bundles the AEAD used to encrypt
// the packet payload with the header-protection function RFC 9001 5.4
// derives from the same key schedule.
type Key interface {
	// Seal encrypts plaintext with the given nonce and additional data,
	// appending the sealed result to dst.
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	// Open is the inverse of Seal, used by tests that round-trip a sealed
	// payload.
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	// Overhead is the AEAD's fixed tag length in bytes.
	Overhead() int
	// IV is the per-key initialization vector; the packet nonce is IV
	// XOR packet-number, per spec.md §6.
	IV() []byte
	// HeaderProtectionMask derives the 5-byte HP mask from a ciphertext
	// sample, per RFC 9001 5.4.2.
	HeaderProtectionMask(sample []byte) ([]byte, error)
}

// KeyProvider is the crypto collaborator's contract for handing the
// Builder a write key for a requested encryption level (spec.md §4.10
// step 1's "if the write key for new_key_type is null") and for minting a
// fresh 1-RTT key pair on a key-phase update (spec.md §4.10 step 8).
type KeyProvider interface {
	WriteKey(level protocol.EncryptionLevel) (Key, bool)
	HandshakeConfirmed() bool
	RotateKeys() (Key, error)
}

// LossDetector is the loss-detection collaborator's contract: Finalize
// hands off sent-packet metadata before the datagram reaches the
// datapath (spec.md §4.10 step 9, §5 "OnPacketSent is called ... before
// the datagram is handed off"), and Cleanup asks it to refresh its timer
// after a retransmittable batch is sent (spec.md §4.10 Cleanup).
type LossDetector interface {
	OnPacketSent(meta *ackhandler.SentPacketMetadata) error
	UpdateTimer()
}

// SendContext is the opaque datapath send-batch handle spec.md §3
// describes; the Builder holds it between Alloc and the terminal SendTo
// / SendFromTo call and never inspects its contents.
type SendContext interface {
	// Full reports whether the datapath considers this batch complete,
	// per spec.md §4.10 step 11 ("or the send-context is full").
	Full() bool
}

// Datapath is the UDP-socket collaborator's contract (spec.md §1 names it
// out of scope; this is the minimal surface the Builder drives it
// through).
type Datapath interface {
	Alloc() (SendContext, error)
	SendTo(ctx SendContext, datagrams [][]byte) error
	SendFromTo(ctx SendContext, localAddr string, datagrams [][]byte) error
}

// Connection bundles the per-connection collaborator state Initialize
// borrows for the duration of a flush: the source connection ID,
// per-packet-number-space state, the key provider, the congestion
// controller, and loss detection. spec.md §5 models the connection as
// sole owner of this state; the Builder only ever borrows it.
type Connection struct {
	Perspective protocol.Perspective
	SourceCID   []byte
	DestCID     []byte
	Version     uint32

	Spaces map[protocol.PacketNumberSpace]*ackhandler.PacketNumberSpaceState
	Keys   KeyProvider

	Congestion   congestion.Controller
	LossDetector LossDetector
}

func (c *Connection) spaceState(level protocol.EncryptionLevel) *ackhandler.PacketNumberSpaceState {
	return c.Spaces[protocol.SpaceForLevel(level)]
}

// now is overridable in tests; production callers always use time.Now.
var now = time.Now
