// Package bufpool pools the byte slices internal/handler uses to read an
// incoming request, adapted from the teacher's core/pools/buffer_pool.go
// three-tier sync.Pool design. Trimmed to the one size class the
// request-read path actually needs (readBufSize in internal/handler);
// the teacher's medium/large tiers existed for variable-size JSON
// response bodies this server never builds.
package bufpool

import "sync"

const BufferSize = 8192

var pool = sync.Pool{
	New: func() any {
		buf := make([]byte, BufferSize)
		return &buf
	},
}

// Get returns a buffer of exactly BufferSize bytes, reused across
// requests to avoid a fresh allocation on every Handle call.
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns buf to the pool. Callers must not use buf after Put.
func Put(buf *[]byte) {
	pool.Put(buf)
}
