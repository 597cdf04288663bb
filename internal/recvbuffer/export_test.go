package recvbuffer

// ChunkCountForTest exposes the internal chunk-list length for
// white-box assertions from recvbuffer_test.go.
func ChunkCountForTest(b *Buffer) int {
	return len(b.chunks)
}
