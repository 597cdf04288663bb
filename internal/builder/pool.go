package builder

import (
	"sync"

	"quiccore/internal/protocol"
)

// datagramPool recycles UDP payload buffers sized to protocol.MaxMTU, the
// allocation Prepare performs in spec.md §4.10 step 4. Adapted from the
// teacher's root-level buffer_pool.go sync.Pool of protocol.MaxPacketSize
// buffers; the shape is unchanged, only the fixed size and the absence of
// a global package-level pool (each Builder owns one, since concurrent
// Builders belong to different connections per spec.md §5).
type datagramPool struct {
	pool sync.Pool
}

func newDatagramPool() *datagramPool {
	return &datagramPool{
		pool: sync.Pool{New: func() interface{} {
			return make([]byte, 0, int(protocol.MaxMTU))
		}},
	}
}

func (p *datagramPool) get() []byte {
	return p.pool.Get().([]byte)[:0]
}

func (p *datagramPool) put(buf []byte) {
	if cap(buf) != int(protocol.MaxMTU) {
		return
	}
	p.pool.Put(buf[:0])
}
