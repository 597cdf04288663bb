// Package recvbuffer implements the receive-side reassembly buffer:
// out-of-order bytes land via Write, contiguous prefixes are served via
// Read, and the caller releases consumed bytes via Drain. Four delivery
// modes share one written-bytes tracker (internal/rangeset) but differ in
// how an absolute byte offset maps onto backing storage.
//
// Grounded on the teacher's stream.go reassembly (frameQueue / readOffset)
// for the general shape of "track what's arrived, serve what's
// contiguous", generalized to byte ranges and four storage strategies
// instead of one ordered frame channel.
package recvbuffer

import (
	"quiccore/internal/qerr"
	"quiccore/internal/rangeset"
)

// Mode selects how absolute offsets map onto backing chunks.
type Mode int

const (
	// Single backs the buffer with one chunk of initialAllocLen bytes,
	// grown when a write runs past its end; offsets map relative to the
	// base offset, and Drain compacts the chunk left.
	Single Mode = iota
	// Circular backs the buffer with one chunk used as a ring.
	Circular
	// Multiple appends tail chunks when the front chunk is externally
	// referenced and a write would overwrite live bytes.
	Multiple
	// AppOwned never allocates; the caller supplies fixed chunks via
	// ProvideChunks, each covering a declared absolute range.
	AppOwned
)

// chunk is one backing allocation. For Multiple/AppOwned, start is the
// absolute offset chunk index 0 represents and each chunk keeps its own.
// Single/Circular have exactly one chunk whose start stays zero: Single
// maps offsets relative to the buffer's base offset and Circular uses the
// ring formula.
type chunk struct {
	data        []byte
	start       uint64
	externalRef bool
	servedLen   int // bytes of this chunk currently handed to the caller (unreleased by Drain)
}

// Buffer is the receive reassembly buffer of spec.md §4.9.
type Buffer struct {
	mode          Mode
	baseOffset    uint64
	virtualLength uint64

	// initialAllocLen is the configured chunk size: the sole backing
	// chunk's size for Single/Circular, and the growth increment new
	// Multiple-mode tail chunks (and in-place chunk growth) use.
	initialAllocLen uint64

	chunks []*chunk
	written *rangeset.Tracker

	readStart         uint64 // Circular only: cumulative (unwrapped) ring read pointer
	readPendingLength uint64
	multipleEmitted   uint64 // Multiple only: bytes already emitted by a prior Read without an intervening Drain
}

// New creates a Buffer. initialAllocLen is the backing chunk size for
// Single/Circular and the size of each Multiple tail chunk and in-place
// growth step; Multiple starts with no chunks. AppOwned ignores it and
// starts with no chunks until ProvideChunks is called.
func New(mode Mode, virtualLength uint64, initialAllocLen uint64) *Buffer {
	b := &Buffer{
		mode:            mode,
		virtualLength:   virtualLength,
		initialAllocLen: initialAllocLen,
		written:         rangeset.New(rangeset.DefaultACKCapacity),
	}
	switch mode {
	case Single:
		b.chunks = []*chunk{{data: make([]byte, initialAllocLen)}}
	case Circular:
		b.chunks = []*chunk{{data: make([]byte, initialAllocLen)}}
	}
	return b
}

// readablePrefixLength returns the longest L such that written_ranges
// contains [base_offset, base_offset+L).
func (b *Buffer) readablePrefixLength() uint64 {
	low, ok := b.written.GetMin()
	if !ok || low != b.baseOffset {
		return 0
	}
	for _, r := range b.written.Ranges() {
		if r.Low == b.baseOffset {
			return r.Count
		}
	}
	return 0
}

// Write copies data into the chunk(s) covering [offset, offset+length)
// and reports whether a new contiguous prefix became available from
// base_offset.
func (b *Buffer) Write(offset uint64, length uint64, data []byte) (ok bool, newDataReady bool, err error) {
	if offset+length > b.baseOffset+b.virtualLength {
		return false, false, qerr.ErrBufferTooSmall
	}
	if offset+length <= b.baseOffset {
		return true, false, nil
	}
	// Clip the stale prefix, if any, before copying.
	writeOffset, writeData := offset, data
	if offset < b.baseOffset {
		skip := b.baseOffset - offset
		writeOffset = b.baseOffset
		writeData = data[skip:]
	}
	if err := b.copyInto(writeOffset, writeData); err != nil {
		return false, false, err
	}
	before := b.readablePrefixLength()
	b.written.AddRange(writeOffset, uint64(len(writeData)))
	after := b.readablePrefixLength()
	newDataReady = b.written.Contains(b.baseOffset) && after > before
	return true, newDataReady, nil
}

// copyInto dispatches the mode-specific chunk mapping of spec.md §4.9.
func (b *Buffer) copyInto(offset uint64, data []byte) error {
	switch b.mode {
	case Single:
		c := b.chunks[0]
		idx := offset - b.baseOffset
		need := idx + uint64(len(data))
		if need > uint64(len(c.data)) {
			grown := make([]byte, need)
			copy(grown, c.data)
			c.data = grown
		}
		copy(c.data[idx:], data)
		return nil
	case Circular:
		c := b.chunks[0]
		allocLen := uint64(len(c.data))
		for i := 0; i < len(data); {
			idx := (b.readStart + (offset - b.baseOffset) + uint64(i)) % allocLen
			n := copy(c.data[idx:], data[i:])
			i += n
		}
		return nil
	case Multiple:
		return b.copyIntoMultiple(offset, data)
	case AppOwned:
		return b.copyIntoAppOwned(offset, data)
	}
	return nil
}

// copyIntoMultiple walks the chunk list, splitting the write across
// chunk boundaries, and appends a tail chunk when the write would run
// past every existing chunk or collide with an externally referenced
// front chunk.
func (b *Buffer) copyIntoMultiple(offset uint64, data []byte) error {
	remaining := data
	cur := offset
	for len(remaining) > 0 {
		c, idx, ok := b.findOrGrowMultipleChunk(cur)
		if !ok {
			return qerr.ErrBufferTooSmall
		}
		room := len(c.data) - idx
		n := len(remaining)
		if n > room {
			n = room
		}
		copy(c.data[idx:idx+n], remaining[:n])
		remaining = remaining[n:]
		cur += uint64(n)
	}
	return nil
}

// findOrGrowMultipleChunk returns the chunk covering offset, growing the
// tail chunk or appending a new one as needed. It never writes into the
// live region of an externally referenced front chunk.
func (b *Buffer) findOrGrowMultipleChunk(offset uint64) (*chunk, int, bool) {
	for i, c := range b.chunks {
		end := c.start + uint64(len(c.data))
		if offset >= c.start && offset < end {
			if i == 0 && c.externalRef {
				break // front chunk is live; fall through to a tail chunk
			}
			return c, int(offset - c.start), true
		}
		if offset == end && i == len(b.chunks)-1 {
			// Grow the last chunk rather than starting a new one, unless
			// it's the externally referenced front chunk.
			if !(i == 0 && c.externalRef) {
				c.data = append(c.data, make([]byte, b.initialAllocLen)...)
				return c, int(offset - c.start), true
			}
		}
	}
	tail := &chunk{start: offset, data: make([]byte, b.initialAllocLen)}
	b.chunks = append(b.chunks, tail)
	return tail, 0, true
}

// copyIntoAppOwned splits the write across app-provided fixed chunks; it
// never grows or allocates.
func (b *Buffer) copyIntoAppOwned(offset uint64, data []byte) error {
	remaining := data
	cur := offset
	for len(remaining) > 0 {
		c := b.chunkCoveringAppOwned(cur)
		if c == nil {
			return qerr.ErrBufferTooSmall
		}
		idx := int(cur - c.start)
		room := len(c.data) - idx
		n := len(remaining)
		if n > room {
			n = room
		}
		copy(c.data[idx:idx+n], remaining[:n])
		remaining = remaining[n:]
		cur += uint64(n)
	}
	return nil
}

func (b *Buffer) chunkCoveringAppOwned(offset uint64) *chunk {
	for _, c := range b.chunks {
		if offset >= c.start && offset < c.start+uint64(len(c.data)) {
			return c
		}
	}
	return nil
}

// Read emits (pointer, length) slices covering the longest contiguous
// prefix available from base_offset (for Multiple, the part of it not
// already emitted by a prior Read without an intervening Drain), and
// marks the covering chunks externally referenced. Single returns one
// slice and Circular one or two (when the data wraps); Multiple returns
// up to bufferCount (no limit when bufferCount <= 0); AppOwned ignores
// bufferCount and returns one slice per chunk spanned. The returned
// offset is the absolute offset the first buffer begins at.
func (b *Buffer) Read(bufferCount int) (offset uint64, buffers [][]byte, err error) {
	if b.mode != Multiple && b.readPendingLength > 0 {
		return b.baseOffset, nil, nil
	}
	total := b.readablePrefixLength()
	already := uint64(0)
	if b.mode == Multiple {
		already = b.multipleEmitted
	}
	if total <= already {
		return b.baseOffset + already, nil, nil
	}
	start := b.baseOffset + already
	length := total - already

	switch b.mode {
	case Single:
		c := b.chunks[0]
		idx := start - b.baseOffset
		buffers = [][]byte{c.data[idx : idx+length]}
		c.externalRef = true
		c.servedLen += int(length)
	case Circular:
		c := b.chunks[0]
		allocLen := uint64(len(c.data))
		idx := (b.readStart + (start - b.baseOffset)) % allocLen
		if idx+length <= allocLen {
			buffers = [][]byte{c.data[idx : idx+length]}
		} else {
			firstLen := allocLen - idx
			buffers = [][]byte{c.data[idx:allocLen], c.data[0 : length-firstLen]}
		}
		c.externalRef = true
		c.servedLen += int(length)
	case Multiple:
		buffers = b.readMultiple(start, length, bufferCount)
		b.multipleEmitted = total
	case AppOwned:
		buffers = b.readAppOwned(start, length, bufferCount)
	}
	b.readPendingLength = total
	return start, buffers, nil
}

func (b *Buffer) readMultiple(start, length uint64, bufferCount int) [][]byte {
	var out [][]byte
	cur, remaining := start, length
	for remaining > 0 && (bufferCount <= 0 || len(out) < bufferCount) {
		c := b.chunkAtMultiple(cur)
		if c == nil {
			break
		}
		idx := int(cur - c.start)
		avail := uint64(len(c.data) - idx)
		n := remaining
		if n > avail {
			n = avail
		}
		out = append(out, c.data[idx:idx+int(n)])
		c.externalRef = true
		c.servedLen += int(n)
		cur += n
		remaining -= n
	}
	return out
}

func (b *Buffer) chunkAtMultiple(offset uint64) *chunk {
	for _, c := range b.chunks {
		if offset >= c.start && offset < c.start+uint64(len(c.data)) {
			return c
		}
	}
	return nil
}

func (b *Buffer) readAppOwned(start, length uint64, bufferCount int) [][]byte {
	var out [][]byte
	cur, remaining := start, length
	for remaining > 0 {
		c := b.chunkCoveringAppOwned(cur)
		if c == nil {
			break
		}
		idx := int(cur - c.start)
		avail := uint64(len(c.data) - idx)
		n := remaining
		if n > avail {
			n = avail
		}
		out = append(out, c.data[idx:idx+int(n)])
		c.externalRef = true
		c.servedLen += int(n)
		cur += n
		remaining -= n
	}
	_ = bufferCount // AppOwned yields ReadBufferNeededCount buffers, i.e. one per chunk spanned
	return out
}

// ReadBufferNeededCount reports how many chunks the next Read would span
// in AppOwned mode, per spec.md §4.9.
func (b *Buffer) ReadBufferNeededCount() int {
	if b.mode != AppOwned {
		return 1
	}
	total := b.readablePrefixLength()
	if total == 0 {
		return 0
	}
	cur, remaining, n := b.baseOffset, total, 0
	for remaining > 0 {
		c := b.chunkCoveringAppOwned(cur)
		if c == nil {
			break
		}
		idx := uint64(0)
		if cur > c.start {
			idx = cur - c.start
		}
		avail := uint64(len(c.data)) - idx
		if avail > remaining {
			avail = remaining
		}
		cur += avail
		remaining -= avail
		n++
	}
	return n
}

// Drain releases n bytes from the front of the most recent Read and
// reports whether every pending byte was drained.
func (b *Buffer) Drain(n uint64) bool {
	if n > b.readPendingLength {
		n = b.readPendingLength
	}
	switch b.mode {
	case Single:
		c := b.chunks[0]
		copy(c.data, c.data[n:])
		c.servedLen -= int(n)
		if c.servedLen <= 0 {
			c.externalRef = false
			c.servedLen = 0
		}
	case Circular:
		c := b.chunks[0]
		b.readStart += n
		c.servedLen -= int(n)
		if c.servedLen <= 0 {
			c.externalRef = false
			c.servedLen = 0
		}
	case Multiple:
		b.drainMultipleOrAppOwned(n)
		if n >= b.multipleEmitted {
			b.multipleEmitted = 0
		} else {
			b.multipleEmitted -= n
		}
	case AppOwned:
		b.drainMultipleOrAppOwned(n)
	}
	b.baseOffset += n
	b.written.RemoveRange(b.baseOffset-n, n)
	previous := b.readPendingLength
	b.readPendingLength -= n
	return n == previous
}

// drainMultipleOrAppOwned advances past fully-drained front chunks,
// removing them from the list once they're both behind base_offset and
// no longer externally referenced.
func (b *Buffer) drainMultipleOrAppOwned(n uint64) {
	remaining := n
	pos := b.baseOffset
	for remaining > 0 && len(b.chunks) > 0 {
		c := b.chunks[0]
		end := c.start + uint64(len(c.data))
		if end <= pos {
			if len(b.chunks) == 1 {
				break
			}
			b.chunks = b.chunks[1:]
			continue
		}
		avail := end - pos
		take := remaining
		if take > avail {
			take = avail
		}
		c.servedLen -= int(take)
		if c.servedLen <= 0 {
			c.servedLen = 0
			c.externalRef = false
		}
		remaining -= take
		pos += take
		if pos >= end && len(b.chunks) > 1 {
			b.chunks = b.chunks[1:]
		}
	}
}

// ProvideChunks appends chunks to the AppOwned pool, each placed at the
// current tail (the end of the last chunk, or the base offset when there
// is none). The virtual length is not changed: if the chunks' combined
// capacity from the base offset would exceed it, nothing is appended and
// ErrInvalidParameter is returned.
func (b *Buffer) ProvideChunks(bufs [][]byte) error {
	if b.mode != AppOwned {
		return qerr.ErrInvalidParameter
	}
	var tail uint64
	if len(b.chunks) > 0 {
		last := b.chunks[len(b.chunks)-1]
		tail = last.start + uint64(len(last.data))
	} else {
		tail = b.baseOffset
	}
	total := tail - b.baseOffset
	for _, buf := range bufs {
		total += uint64(len(buf))
	}
	if total > b.virtualLength {
		return qerr.ErrInvalidParameter
	}
	for _, buf := range bufs {
		b.chunks = append(b.chunks, &chunk{start: tail, data: buf})
		tail += uint64(len(buf))
	}
	return nil
}

// IncreaseVirtualBufferLength extends the tolerated offset ceiling; not
// permitted in AppOwned, whose ceiling is fixed by its provided chunks.
func (b *Buffer) IncreaseVirtualBufferLength(n uint64) error {
	if b.mode == AppOwned {
		return qerr.ErrInvalidParameter
	}
	b.virtualLength += n
	return nil
}

// BaseOffset returns the first offset not yet drained.
func (b *Buffer) BaseOffset() uint64 { return b.baseOffset }

// VirtualLength returns the current tolerated offset ceiling.
func (b *Buffer) VirtualLength() uint64 { return b.virtualLength }

// ReadPendingLength returns the number of bytes outstanding from the
// most recent Read that haven't yet been Drained.
func (b *Buffer) ReadPendingLength() uint64 { return b.readPendingLength }
