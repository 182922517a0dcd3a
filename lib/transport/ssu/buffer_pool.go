package ssu

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferPoolSize bounds the number of idle datagram buffers kept.
const DefaultBufferPoolSize = 256

// BufferPool hands out datagram buffers of MaxDatagramSize capacity. Idle
// buffers are kept on a bounded free list; returned buffers are zeroed
// before they are handed out again.
type BufferPool struct {
	mu   sync.Mutex
	free [][]byte
	max  int

	gets      uint64
	puts      uint64
	misses    uint64
	oversized uint64
	dropped   uint64
}

// NewBufferPool keeps at most max idle buffers.
func NewBufferPool(max int) *BufferPool {
	if max <= 0 {
		max = DefaultBufferPoolSize
	}
	return &BufferPool{max: max}
}

// Get returns an empty buffer with capacity for size bytes.
func (bp *BufferPool) Get(size int) []byte {
	if size > MaxDatagramSize {
		atomic.AddUint64(&bp.oversized, 1)
		return make([]byte, 0, size)
	}
	atomic.AddUint64(&bp.gets, 1)
	bp.mu.Lock()
	n := len(bp.free)
	if n == 0 {
		bp.mu.Unlock()
		atomic.AddUint64(&bp.misses, 1)
		return make([]byte, 0, MaxDatagramSize)
	}
	buf := bp.free[n-1]
	bp.free[n-1] = nil
	bp.free = bp.free[:n-1]
	bp.mu.Unlock()
	return buf[:0]
}

// Put returns a buffer obtained from Get. Buffers of another capacity are
// left to the garbage collector.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != MaxDatagramSize {
		return
	}
	buf = buf[:cap(buf)]
	clear(buf)
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if len(bp.free) >= bp.max {
		atomic.AddUint64(&bp.dropped, 1)
		return
	}
	atomic.AddUint64(&bp.puts, 1)
	bp.free = append(bp.free, buf[:0])
}

// BufferPoolStats is a snapshot of pool activity.
type BufferPoolStats struct {
	Gets      uint64
	Puts      uint64
	Misses    uint64
	Oversized uint64
	Dropped   uint64
	Idle      int
}

func (bp *BufferPool) Stats() BufferPoolStats {
	bp.mu.Lock()
	idle := len(bp.free)
	bp.mu.Unlock()
	return BufferPoolStats{
		Gets:      atomic.LoadUint64(&bp.gets),
		Puts:      atomic.LoadUint64(&bp.puts),
		Misses:    atomic.LoadUint64(&bp.misses),
		Oversized: atomic.LoadUint64(&bp.oversized),
		Dropped:   atomic.LoadUint64(&bp.dropped),
		Idle:      idle,
	}
}
