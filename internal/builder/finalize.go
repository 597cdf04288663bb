package builder

import (
	"quiccore/internal/ackhandler"
	"quiccore/internal/protocol"
	"quiccore/internal/qerr"
)

// nonceFor computes the AEAD nonce for a packet number under a key's IV,
// per spec.md §6: "nonce = iv XOR packet_number".
func nonceFor(iv []byte, pn protocol.PacketNumber) []byte {
	nonce := append([]byte{}, iv...)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(pn >> (8 * uint(i)))
	}
	return nonce
}

// patchLongHeaderLength writes the reserved 2-byte varint length slot
// spec.md §4.10 step 5 describes: packet_number_length + payload_length +
// encryption_overhead. The slot was reserved as a 2-byte varint in
// startPacket, which holds any value up to utils.MaxVarInt2Byte — ample
// for a datagram bounded by protocol.MaxMTU.
func patchLongHeaderLength(datagram []byte, offset int, length uint64) {
	datagram[offset] = byte(length>>8) | 0x40
	datagram[offset+1] = byte(length)
}

// finalizeCurrentPacket closes out the QUIC packet currently open in
// b.cur: it undoes an empty packet, otherwise pads, encrypts, and either
// masks the header immediately (long header) or queues it for batched
// masking (short header), per spec.md §4.10 step 1-8.
func (b *Builder) finalizeCurrentPacket(flush bool) (finalPacket bool, err error) {
	cur := b.cur
	payloadStart := cur.headerStart + cur.headerLength

	if len(b.datagram) == payloadStart {
		// Zero frames were written: undo the header and packet number,
		// per spec.md §4.10 step 1.
		space := b.conn.spaceState(cur.encryptLevel)
		space.UndoPacketNumber()
		b.datagram = b.datagram[:cur.headerStart]
		b.datagramLength = protocol.ByteCount(len(b.datagram))
		b.cur = nil
		if len(b.datagram) == 0 {
			b.pool.put(b.datagram)
			b.datagram = nil
		}
		return flush, nil
	}

	overhead := protocol.ByteCount(cur.key.Overhead())
	payloadLength := protocol.ByteCount(len(b.datagram) - payloadStart)
	expectedFinal := protocol.ByteCount(len(b.datagram)) + overhead

	shortHeader := cur.packetType == protocol.PacketTypeShortHeader
	finalPacket = flush || shortHeader || (b.path.datagramSize()-expectedFinal) < protocol.MinPacketSpareSpace
	forceFullPad := !flush && b.cfg.DatagramPaddingPreferred

	// (a) pad to the padding target computed at Prepare time.
	for protocol.ByteCount(len(b.datagram))+overhead < b.minimumDatagramLength {
		b.datagram = append(b.datagram, 0x00)
		payloadLength++
	}
	if forceFullPad {
		for protocol.ByteCount(len(b.datagram))+overhead < b.path.datagramSize() {
			b.datagram = append(b.datagram, 0x00)
			payloadLength++
		}
	}
	// (b) ensure at least 4 bytes of packet-number+payload for header
	// protection sampling (RFC 9001 5.4.2).
	for cur.pnLength+int(payloadLength) < 4 {
		b.datagram = append(b.datagram, 0x00)
		payloadLength++
	}

	if !shortHeader {
		patchLongHeaderLength(b.datagram, cur.payloadLengthOffset, uint64(protocol.ByteCount(cur.pnLength)+payloadLength+overhead))
	}

	header := append([]byte{}, b.datagram[cur.headerStart:payloadStart]...)
	plaintext := b.datagram[payloadStart:]
	nonce := nonceFor(cur.key.IV(), cur.packetNumber)

	sealed := cur.key.Seal(nil, nonce, plaintext, header)
	b.datagram = append(b.datagram[:payloadStart], sealed...)
	b.datagramLength = protocol.ByteCount(len(b.datagram))

	pnOffset := payloadStart - cur.pnLength
	entry := hpEntry{
		datagram:        b.datagram,
		firstByteOffset: cur.headerStart,
		pnOffset:        pnOffset,
		pnLength:        cur.pnLength,
		sampleOffset:    pnOffset + protocol.DefaultPacketNumberLength,
		longHeader:      !shortHeader,
		key:             cur.key,
	}
	if shortHeader {
		b.hpBatch = append(b.hpBatch, entry)
		if len(b.hpBatch) >= protocol.MaxHPBatch {
			// spec.md §4.10 step 7: "when batch is full or at flush" — mask
			// the queued headers now rather than waiting for Finalize(true).
			if maskErr := b.flushHeaderProtectionBatch(); maskErr != nil {
				return finalPacket, maskErr
			}
		}
	} else if maskErr := applyHeaderProtection(entry); maskErr != nil {
		return finalPacket, maskErr
	}

	if cur.encryptLevel == protocol.Encryption1RTT {
		space := b.conn.spaceState(cur.encryptLevel)
		space.BytesSentInCurrentKeyPhase += protocol.ByteCount(len(b.datagram) - cur.headerStart)
		b.maybeRotateKeys(space)
	}

	meta := &ackhandler.SentPacketMetadata{
		PacketNumber:   cur.packetNumber,
		KeyType:        cur.encryptLevel,
		KeyPhase:       cur.keyPhase,
		IsAckEliciting: cur.isAckEliciting,
		IsPMTUD:        cur.isPMTUD,
		SentTimeUs:     now().UnixMicro(),
		PacketLength:   protocol.ByteCount(len(b.datagram) - cur.headerStart),
	}
	if sentErr := b.conn.LossDetector.OnPacketSent(meta); sentErr != nil {
		// spec.md §4.10 step 9: on error from loss detection, abort the
		// finalize path but keep the connection alive; the datagram has
		// already been scheduled and still gets sent.
		b.cur = nil
		return finalPacket, nil
	}

	if cur.isAckEliciting {
		b.packetBatchRetransmittable = true
		b.sendAllowance -= meta.PacketLength
	}

	b.cur = nil
	return finalPacket, nil
}

// applyHeaderProtection computes the HP mask from the ciphertext sample
// and XORs it into the first byte and packet-number bytes, per spec.md
// §6: the low 5 bits of the first byte for short headers, the low 4 bits
// for long headers, and all packet-number bytes in both cases.
func applyHeaderProtection(e hpEntry) error {
	if e.sampleOffset+protocol.SampleLength > len(e.datagram) {
		return qerr.New(qerr.KindEncryptionFailure, "datagram too short for header-protection sample")
	}
	sample := e.datagram[e.sampleOffset : e.sampleOffset+protocol.SampleLength]
	mask, err := e.key.HeaderProtectionMask(sample)
	if err != nil {
		return err
	}
	if e.longHeader {
		e.datagram[e.firstByteOffset] ^= mask[0] & 0x0f
	} else {
		e.datagram[e.firstByteOffset] ^= mask[0] & 0x1f
	}
	for i := 0; i < e.pnLength; i++ {
		e.datagram[e.pnOffset+i] ^= mask[1+i]
	}
	return nil
}

// flushHeaderProtectionBatch applies the queued short-header HP masks, per
// spec.md §4.10 step 7: "when batch is full or at flush, compute HP mask
// from cipher samples ... of each batched header."
func (b *Builder) flushHeaderProtectionBatch() error {
	for _, e := range b.hpBatch {
		if err := applyHeaderProtection(e); err != nil {
			return err
		}
	}
	b.hpBatch = b.hpBatch[:0]
	return nil
}

// maybeRotateKeys implements spec.md §4.10 step 8: once a 1-RTT space has
// sent enough bytes in its current key phase that another full MTU could
// tip it over MaxBytesPerKey, and the handshake is confirmed, and the
// space isn't already waiting on the peer to confirm a prior update, mint
// a new key pair and flip the phase.
func (b *Builder) maybeRotateKeys(space *ackhandler.PacketNumberSpaceState) {
	if b.cfg.MaxBytesPerKey <= 0 {
		return
	}
	if space.BytesSentInCurrentKeyPhase+protocol.MaxMTU < b.cfg.MaxBytesPerKey {
		return
	}
	if !b.conn.Keys.HandshakeConfirmed() || space.AwaitingKeyPhaseConfirmation {
		return
	}
	newKey, err := b.conn.Keys.RotateKeys()
	if err != nil {
		return
	}
	b.keyOverrides[protocol.Encryption1RTT] = newKey
	space.OnKeyPhaseUpdated()
}

// completeBatch flushes any queued header-protection masking, hands the
// accumulated datagrams off to the datapath, and resets per-batch state,
// per spec.md §4.10 step 11.
func (b *Builder) completeBatch() error {
	if err := b.flushHeaderProtectionBatch(); err != nil {
		return err
	}
	if len(b.pendingDatagrams) == 0 {
		b.sendCtx = nil
		return nil
	}
	var err error
	if b.path.LocalAddrBound {
		err = b.datapath.SendFromTo(b.sendCtx, b.path.LocalAddr, b.pendingDatagrams)
	} else {
		err = b.datapath.SendTo(b.sendCtx, b.pendingDatagrams)
	}
	for _, dg := range b.pendingDatagrams {
		b.pool.put(dg)
	}
	b.pendingDatagrams = nil
	b.sendCtx = nil
	b.packetBatchSent = true
	return err
}

// Finalize is spec.md §4.10's Finalize(flush): it closes out the packet
// currently open (if any), and — once the datagram is complete — queues
// it for batched header protection and, when flush is requested or the
// send-context fills, hands the accumulated datagrams to the datapath.
func (b *Builder) Finalize(flush bool) error {
	if b.cur == nil {
		if flush {
			return b.completeBatch()
		}
		return nil
	}

	finalPacket, err := b.finalizeCurrentPacket(flush)
	if err != nil {
		return err
	}
	if !finalPacket {
		return nil
	}
	if b.datagram == nil {
		// The packet was undone and the datagram released empty.
		if flush {
			return b.completeBatch()
		}
		return nil
	}

	b.totalDatagrams++
	b.pendingDatagrams = append(b.pendingDatagrams, b.datagram)
	b.datagram = nil
	b.datagramLength = 0

	full := b.sendCtx != nil && b.sendCtx.Full()
	if flush || full {
		return b.completeBatch()
	}
	return nil
}

// Cleanup is spec.md §4.10's Cleanup: if a retransmittable batch was sent
// this flush, ask loss detection to refresh its timer.
func (b *Builder) Cleanup() {
	if b.packetBatchSent && b.packetBatchRetransmittable {
		b.conn.LossDetector.UpdateTimer()
	}
	b.cur = nil
	b.hpBatch = b.hpBatch[:0]
}
