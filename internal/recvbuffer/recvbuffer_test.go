package recvbuffer_test

import (
	"quiccore/internal/recvbuffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

var _ = Describe("Buffer — Single", func() {
	It("serves a contiguous write and fully drains it", func() {
		buf := recvbuffer.New(recvbuffer.Single, 64, 64)
		ok, ready, err := buf.Write(0, 30, bytesOf(30, 'a'))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(ready).To(BeTrue())

		offset, bufs, err := buf.Read(8)
		Expect(err).NotTo(HaveOccurred())
		Expect(offset).To(Equal(uint64(0)))
		Expect(bufs).To(HaveLen(1))
		Expect(bufs[0]).To(HaveLen(30))

		Expect(buf.Drain(30)).To(BeTrue())
		_, bufs, _ = buf.Read(8)
		Expect(bufs).To(BeEmpty())
	})

	It("does not mark data ready until the gap at base_offset fills", func() {
		buf := recvbuffer.New(recvbuffer.Single, 64, 64)
		_, ready, _ := buf.Write(10, 20, bytesOf(20, 'b'))
		Expect(ready).To(BeFalse())

		_, ready, _ = buf.Write(0, 10, bytesOf(10, 'a'))
		Expect(ready).To(BeTrue())

		_, bufs, _ := buf.Read(8)
		Expect(bufs).To(HaveLen(1))
		Expect(bufs[0]).To(HaveLen(30))
	})
})

var _ = Describe("Buffer — Multiple", func() {
	It("spans two chunks after a gap fills at a chunk edge", func() {
		buf := recvbuffer.New(recvbuffer.Multiple, 1024, 8)
		_, _, err := buf.Write(0, 4, bytesOf(4, 1))
		Expect(err).NotTo(HaveOccurred())
		_, _, _ = buf.Read(8) // externally references the first chunk

		// offset 4 lands inside the externally-referenced front chunk's
		// byte range, so findOrGrowMultipleChunk must spill it into a new
		// 8-byte tail chunk rather than writing into the live chunk.
		_, _, err = buf.Write(4, 3, bytesOf(3, 2))
		Expect(err).NotTo(HaveOccurred())
		_, _, err = buf.Write(9, 3, bytesOf(3, 3))
		Expect(err).NotTo(HaveOccurred())
		_, ready, err := buf.Write(7, 2, bytesOf(2, 4))
		Expect(err).NotTo(HaveOccurred())
		Expect(ready).To(BeTrue())

		// The second Read resumes at offset 4, after the 4 bytes the first
		// Read emitted, and returns the 8 newly contiguous bytes [4,12) as
		// two buffers: 4 from the front chunk's range and 4 from a tail chunk.
		_, bufs, err := buf.Read(8)
		Expect(err).NotTo(HaveOccurred())
		Expect(bufs).To(HaveLen(2))
		Expect(bufs[0]).To(HaveLen(4))
		Expect(bufs[1]).To(HaveLen(4))
	})

	It("releases the front chunk's external reference on an exact chunk-size drain", func() {
		buf := recvbuffer.New(recvbuffer.Multiple, 1024, 8)
		_, _, err := buf.Write(0, 8, bytesOf(8, 1))
		Expect(err).NotTo(HaveOccurred())
		_, _, _ = buf.Read(8)
		_, _, err = buf.Write(9, 4, bytesOf(4, 2))
		Expect(err).NotTo(HaveOccurred())

		fullyDrained := buf.Drain(8)
		Expect(fullyDrained).To(BeTrue())
		Expect(buf.BaseOffset()).To(Equal(uint64(8)))
		Expect(recvbuffer.ChunkCountForTest(buf)).To(Equal(1))
	})
})

var _ = Describe("Buffer — AppOwned", func() {
	It("spans two provided chunks and advances the active chunk on drain", func() {
		buf := recvbuffer.New(recvbuffer.AppOwned, 16, 0)
		err := buf.ProvideChunks([][]byte{make([]byte, 8), make([]byte, 8)})
		Expect(err).NotTo(HaveOccurred())

		_, ready, err := buf.Write(0, 12, bytesOf(12, 5))
		Expect(err).NotTo(HaveOccurred())
		Expect(ready).To(BeTrue())

		_, bufs, err := buf.Read(8)
		Expect(err).NotTo(HaveOccurred())
		Expect(bufs).To(HaveLen(2))
		Expect(bufs[0]).To(HaveLen(8))
		Expect(bufs[1]).To(HaveLen(4))

		Expect(buf.Drain(10)).To(BeFalse())
		Expect(buf.BaseOffset()).To(Equal(uint64(10)))
	})

	It("fails a write beyond the provided chunks until new chunks are provided", func() {
		buf := recvbuffer.New(recvbuffer.AppOwned, 64, 0)
		Expect(buf.ProvideChunks([][]byte{make([]byte, 64)})).To(Succeed())

		_, _, err := buf.Write(0, 64, bytesOf(64, 6))
		Expect(err).NotTo(HaveOccurred())
		_, bufs, _ := buf.Read(1)
		Expect(bufs).To(HaveLen(1))
		Expect(buf.Drain(64)).To(BeTrue())

		_, _, err = buf.Write(64, 1, bytesOf(1, 7))
		Expect(err).To(HaveOccurred())

		Expect(buf.IncreaseVirtualBufferLength(8)).To(HaveOccurred())
	})
})
