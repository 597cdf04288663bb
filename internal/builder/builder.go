package builder

import (
	"encoding/binary"
	"time"

	"quiccore/internal/ackhandler"
	"quiccore/internal/congestion"
	"quiccore/internal/protocol"
	"quiccore/internal/qerr"
	"quiccore/internal/utils"
)

// packetState is the in-progress QUIC packet spec.md §3 describes as part
// of the Packet Builder's transient fields: packet_start, header_length,
// payload_length_offset, packet_type, encrypt_level, packet_number_length.
type packetState struct {
	packetNumber        protocol.PacketNumber
	packetType          protocol.PacketType
	encryptLevel        protocol.EncryptionLevel
	keyPhase            protocol.KeyPhase
	pnLength            int
	headerStart         int
	headerLength        int
	payloadLengthOffset int // -1 for short header, which carries no length field
	isAckEliciting      bool
	isPMTUD             bool
	key                 Key
}

// hpEntry is one queued header-protection batch entry: enough to sample
// the ciphertext and XOR the mask into the header bytes later, per
// spec.md §4.10 step 7's short-header batching.
type hpEntry struct {
	datagram        []byte
	firstByteOffset int
	pnOffset        int
	pnLength        int
	sampleOffset    int
	longHeader      bool
	key             Key
}

// Builder is the transient per-flush Packet Builder of spec.md §3/§4.10.
// A single Builder is reused flush after flush by one connection; its
// per-flush fields are reset in Initialize.
type Builder struct {
	cfg      Config
	datapath Datapath
	pool     *datagramPool

	conn *Connection
	path *Path

	sendAllowance      protocol.ByteCount
	lastFlushTime      time.Time
	lastFlushTimeValid bool

	sendCtx               SendContext
	datagram              []byte
	datagramLength        protocol.ByteCount
	minimumDatagramLength protocol.ByteCount

	cur *packetState

	pendingDatagrams [][]byte
	hpBatch          []hpEntry

	totalDatagrams             int
	packetBatchSent            bool
	packetBatchRetransmittable bool

	blocked BlockedFlags

	// keyOverrides holds key handles the builder has itself rotated to
	// (spec.md §4.10 step 8 "swap the builder's key handle"), consulted
	// before falling back to the crypto collaborator's WriteKey.
	keyOverrides map[protocol.EncryptionLevel]Key
}

// NewBuilder constructs a Builder bound to one datapath collaborator. The
// same Builder is reinitialized for each connection flush via Initialize.
func NewBuilder(cfg Config, datapath Datapath) *Builder {
	return &Builder{
		cfg:          cfg,
		datapath:     datapath,
		pool:         newDatagramPool(),
		keyOverrides: make(map[protocol.EncryptionLevel]Key),
	}
}

// Initialize binds the Builder to a connection and path for one flush,
// per spec.md §4.10: it fails with NoSourceCid if the connection has no
// source connection ID, and otherwise computes the flush's send
// allowance from the congestion controller and the path's amplification
// budget.
func (b *Builder) Initialize(conn *Connection, path *Path, t time.Time) error {
	if len(conn.SourceCID) == 0 {
		return qerr.ErrNoSourceCid
	}
	b.conn = conn
	b.path = path
	b.pendingDatagrams = nil
	b.hpBatch = b.hpBatch[:0]
	b.totalDatagrams = 0
	b.packetBatchSent = false
	b.packetBatchRetransmittable = false

	var stats congestion.NetworkStatistics
	conn.Congestion.GetNetworkStatistics(&stats)

	var deltaT time.Duration
	valid := b.lastFlushTimeValid
	if valid {
		deltaT = t.Sub(b.lastFlushTime)
	}
	allowance := conn.Congestion.GetSendAllowance(stats.BytesInFlight, deltaT, valid)
	if allowance > path.AmplificationAllowance {
		allowance = path.AmplificationAllowance
	}
	b.sendAllowance = allowance

	if allowance <= 0 || !conn.Congestion.CanSend(stats.BytesInFlight) {
		b.blocked.Set(BlockedCongestionControl)
	} else {
		b.blocked.Clear(BlockedCongestionControl)
	}
	if path.AmplificationAllowance <= 0 {
		b.blocked.Set(BlockedAmplificationProt)
	} else {
		b.blocked.Clear(BlockedAmplificationProt)
	}

	b.lastFlushTime = t
	b.lastFlushTimeValid = true
	return nil
}

// SendAllowance returns the bytes remaining in this flush's budget.
func (b *Builder) SendAllowance() protocol.ByteCount { return b.sendAllowance }

// Blocked returns the current send-blocked reason set (spec.md §4.11).
func (b *Builder) Blocked() BlockedFlags { return b.blocked }

// SetBlocked and ClearBlocked let the scheduler record/resolve blockers
// outside the Builder's own congestion/amplification bookkeeping
// (scheduling, pacing, flow control, app-limited).
func (b *Builder) SetBlocked(r BlockedReason)   { b.blocked.Set(r) }
func (b *Builder) ClearBlocked(r BlockedReason) { b.blocked.Clear(r) }

func (b *Builder) writeKeyFor(level protocol.EncryptionLevel) (Key, bool) {
	if k, ok := b.keyOverrides[level]; ok {
		return k, true
	}
	return b.conn.Keys.WriteKey(level)
}

func packetTypeForLevel(level protocol.EncryptionLevel) protocol.PacketType {
	switch level {
	case protocol.EncryptionInitial:
		return protocol.PacketTypeInitial
	case protocol.EncryptionHandshake:
		return protocol.PacketTypeHandshake
	case protocol.Encryption0RTT:
		return protocol.PacketType0RTT
	default:
		return protocol.PacketTypeShortHeader
	}
}

func longHeaderTypeBits(t protocol.PacketType) byte {
	switch t {
	case protocol.PacketTypeInitial:
		return 0
	case protocol.PacketType0RTT:
		return 1
	case protocol.PacketTypeHandshake:
		return 2
	default:
		return 3 // Retry
	}
}

// SelectControlKeyType implements spec.md §4.10's control-frame key-type
// selection: walk keys from Initial up to the current write level,
// skipping 0-RTT; return 1-RTT immediately if that's the current write
// level; otherwise prefer a level with an ACK owed, then Crypto at the
// next handshake level, then CONNECTION_CLOSE/PING at the current write
// key (or Initial if that's 0-RTT), finally falling back to 1-RTT.
func (b *Builder) SelectControlKeyType(currentWriteLevel protocol.EncryptionLevel, wantAck, wantCrypto bool) (protocol.EncryptionLevel, bool) {
	conn := b.conn

	if currentWriteLevel == protocol.Encryption1RTT {
		if _, ok := b.writeKeyFor(protocol.Encryption1RTT); ok {
			return protocol.Encryption1RTT, true
		}
	}

	if wantAck {
		for _, lvl := range []protocol.EncryptionLevel{protocol.EncryptionInitial, protocol.EncryptionHandshake, protocol.Encryption1RTT} {
			if _, ok := b.writeKeyFor(lvl); !ok {
				continue
			}
			if space := conn.spaceState(lvl); space != nil && space.Acks.HasAckElicitingUnacked() {
				return lvl, true
			}
		}
	}

	if wantCrypto {
		for _, lvl := range []protocol.EncryptionLevel{protocol.EncryptionInitial, protocol.EncryptionHandshake} {
			if _, ok := b.writeKeyFor(lvl); ok {
				return lvl, true
			}
		}
	}

	fallback := currentWriteLevel
	if fallback == protocol.Encryption0RTT {
		fallback = protocol.EncryptionInitial
	}
	if _, ok := b.writeKeyFor(fallback); ok {
		return fallback, true
	}
	if _, ok := b.writeKeyFor(protocol.Encryption1RTT); ok {
		return protocol.Encryption1RTT, true
	}
	return 0, false
}

// SelectStreamKeyType implements spec.md §4.10's stream-frame key-type
// selection: 1-RTT if available, else 0-RTT, else fail.
func (b *Builder) SelectStreamKeyType() (protocol.EncryptionLevel, bool) {
	if _, ok := b.writeKeyFor(protocol.Encryption1RTT); ok {
		return protocol.Encryption1RTT, true
	}
	if _, ok := b.writeKeyFor(protocol.Encryption0RTT); ok {
		return protocol.Encryption0RTT, true
	}
	return 0, false
}

func (b *Builder) computeMinimumDatagramLength(level protocol.EncryptionLevel, isTLP, isPMTUD bool, datagramSize protocol.ByteCount) protocol.ByteCount {
	switch {
	case isPMTUD:
		return datagramSize
	case isTLP && level == protocol.Encryption1RTT && b.conn.Perspective == protocol.PerspectiveClient:
		return protocol.StatelessResetProbeLength + protocol.StatelessResetProbeFudge
	case isTLP && (level == protocol.EncryptionInitial || level == protocol.EncryptionHandshake) && b.conn.Perspective == protocol.PerspectiveClient:
		return datagramSize
	case level == protocol.EncryptionInitial && b.conn.Perspective == protocol.PerspectiveClient:
		return protocol.InitialPacketMinLength
	default:
		return 0
	}
}

// Prepare is the core of spec.md §4.10's Prepare(new_key_type, is_tlp,
// is_pmtud): it resolves the write key for newLevel, coalesces into the
// current datagram or starts a new one, and writes a fresh QUIC packet
// header, returning false if the packet could not be started.
func (b *Builder) Prepare(newLevel protocol.EncryptionLevel, isTLP, isPMTUD bool) bool {
	key, ok := b.writeKeyFor(newLevel)
	if !ok {
		// The write key for this level is missing: silently abort the
		// connection is the collaborator's responsibility (this core has
		// no connection-abort path of its own); Prepare just refuses.
		return false
	}

	datagramSize := b.path.datagramSize()
	newType := packetTypeForLevel(newLevel)

	if b.cur != nil && (b.cur.packetType != newType || isPMTUD) {
		if err := b.Finalize(false); err != nil {
			return false
		}
		if b.totalDatagrams >= protocol.MaxDatagramsPerSend {
			return false
		}
	}

	if b.datagram == nil {
		if b.sendCtx == nil {
			ctx, err := b.datapath.Alloc()
			if err != nil {
				return false
			}
			b.sendCtx = ctx
		}
		b.datagram = b.pool.get()
		if cap(b.datagram) < int(protocol.MaxMTU) {
			b.datagram = make([]byte, 0, protocol.MaxMTU)
		}
		b.datagramLength = 0
		b.minimumDatagramLength = b.computeMinimumDatagramLength(newLevel, isTLP, isPMTUD, datagramSize)
	}

	return b.startPacket(newLevel, newType, key, isPMTUD)
}

// PrepareControl resolves the control-frame key type (ACK, Crypto, Ping,
// Connection-close) and calls Prepare.
func (b *Builder) PrepareControl(currentWriteLevel protocol.EncryptionLevel, wantAck, wantCrypto, isTLP bool) bool {
	level, ok := b.SelectControlKeyType(currentWriteLevel, wantAck, wantCrypto)
	if !ok {
		return false
	}
	return b.Prepare(level, isTLP, false)
}

// PrepareStream resolves the stream-frame key type and calls Prepare.
func (b *Builder) PrepareStream(isTLP bool) bool {
	level, ok := b.SelectStreamKeyType()
	if !ok {
		return false
	}
	return b.Prepare(level, isTLP, false)
}

// PreparePmtud starts a full-size PMTUD probe at the given level.
func (b *Builder) PreparePmtud(level protocol.EncryptionLevel) bool {
	return b.Prepare(level, false, true)
}

func appendTruncatedPN(dst []byte, pn protocol.PacketNumber, length int) []byte {
	v := utils.TruncatePacketNumber(pn, length)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[4-length:]...)
}

func putTruncatedPN(dst []byte, pn protocol.PacketNumber, length int) {
	v := utils.TruncatePacketNumber(pn, length)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	copy(dst, buf[4-length:])
}

// startPacket writes the QUIC packet header (spec.md §6's wire format)
// into the current datagram buffer and opens a new packetState, per
// spec.md §4.10 step 6-7.
func (b *Builder) startPacket(level protocol.EncryptionLevel, pktType protocol.PacketType, key Key, isPMTUD bool) bool {
	space := b.conn.spaceState(level)
	pn := space.PopNextPacketNumber()
	pnLength := protocol.DefaultPacketNumberLength

	headerStart := len(b.datagram)
	payloadLengthOffset := -1

	if pktType == protocol.PacketTypeShortHeader {
		firstByte := byte(0x40) | byte(space.KeyPhase)<<2 | byte(pnLength-1)
		b.datagram = append(b.datagram, firstByte)
		b.datagram = append(b.datagram, b.conn.DestCID...)
		b.datagram = appendTruncatedPN(b.datagram, pn, pnLength)
	} else {
		firstByte := byte(0xC0) | longHeaderTypeBits(pktType)<<4 | byte(pnLength-1)
		b.datagram = append(b.datagram, firstByte)
		var verBuf [4]byte
		binary.BigEndian.PutUint32(verBuf[:], b.conn.Version)
		b.datagram = append(b.datagram, verBuf[:]...)
		b.datagram = append(b.datagram, byte(len(b.conn.DestCID)))
		b.datagram = append(b.datagram, b.conn.DestCID...)
		b.datagram = append(b.datagram, byte(len(b.conn.SourceCID)))
		b.datagram = append(b.datagram, b.conn.SourceCID...)
		payloadLengthOffset = len(b.datagram)
		b.datagram = append(b.datagram, 0x40, 0x00) // reserved 2-byte varint length slot
		b.datagram = appendTruncatedPN(b.datagram, pn, pnLength)
	}

	b.datagramLength = protocol.ByteCount(len(b.datagram))

	b.cur = &packetState{
		packetNumber:        pn,
		packetType:          pktType,
		encryptLevel:        level,
		keyPhase:            space.KeyPhase,
		pnLength:            pnLength,
		headerStart:         headerStart,
		headerLength:        len(b.datagram) - headerStart,
		payloadLengthOffset: payloadLengthOffset,
		isPMTUD:             isPMTUD,
		key:                 key,
	}
	return true
}

// RemainingSpace reports how many more plaintext frame bytes can be
// appended to the packet currently open, leaving room for the AEAD tag.
func (b *Builder) RemainingSpace() protocol.ByteCount {
	if b.cur == nil {
		return 0
	}
	limit := b.path.datagramSize()
	overhead := protocol.ByteCount(b.cur.key.Overhead())
	used := protocol.ByteCount(len(b.datagram))
	if used+overhead >= limit {
		return 0
	}
	return limit - used - overhead
}

// AppendFrame writes a scheduler-produced frame's bytes into the reserved
// payload region of the currently open packet (spec.md §2 "writes frames
// into the reserved payload region"), reporting whether there was room.
func (b *Builder) AppendFrame(frame []byte, ackEliciting bool) bool {
	if b.cur == nil || protocol.ByteCount(len(frame)) > b.RemainingSpace() {
		return false
	}
	b.datagram = append(b.datagram, frame...)
	b.datagramLength = protocol.ByteCount(len(b.datagram))
	if ackEliciting {
		b.cur.isAckEliciting = true
	}
	return true
}

// HasOpenPacket reports whether a QUIC packet is currently being built.
func (b *Builder) HasOpenPacket() bool { return b.cur != nil }

// CurrentEncryptionLevel returns the encryption level of the packet
// currently open, and whether one is open at all.
func (b *Builder) CurrentEncryptionLevel() (protocol.EncryptionLevel, bool) {
	if b.cur == nil {
		return 0, false
	}
	return b.cur.encryptLevel, true
}

// ackhandlerSpace is a small helper so finalize.go doesn't need to reach
// back into Connection's unexported accessor directly from outside the
// package; kept here since it's a one-liner over exported state.
func (b *Builder) ackhandlerSpace(level protocol.EncryptionLevel) *ackhandler.PacketNumberSpaceState {
	return b.conn.spaceState(level)
}
