package bufpool

import (
	"sync"
)

// DefaultSize is the default buffer size: 64KB comfortably covers a
// player_profiles_list reply without forcing an oversized default.
const DefaultSize = 64 * 1024

// Pool is a size-class buffer pool used to keep per-frame allocation off the
// GC path while decoding Scaffolding request/response bodies.
type Pool struct {
	pool sync.Pool
}

// NewPool creates a pool whose buffers are all size bytes long.
func NewPool(size int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get takes a buffer from the pool.
func (p *Pool) Get() []byte {
	bufPtr := p.pool.Get().(*[]byte)
	return *bufPtr
}

// Put zeroes buf and returns it to the pool.
func (p *Pool) Put(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(&buf)
}

// Size-class pools backing the package-level Get/Put helpers. Scaffolding
// frame bodies are almost always small (pings, single-port replies) with an
// occasional larger player-profile roster, so four classes cover the spread
// without over-allocating on the common case.
var (
	// SmallPool holds 4KB buffers.
	SmallPool = NewPool(4 * 1024)

	// MediumPool holds 16KB buffers.
	MediumPool = NewPool(16 * 1024)

	// LargePool holds 64KB buffers.
	LargePool = NewPool(DefaultSize)

	// HugePool holds 128KB buffers.
	HugePool = NewPool(128 * 1024)
)

// Get returns a buffer of exactly size bytes, drawn from whichever
// size-class pool fits. ReadRequest/ReadResponse call this to decode a
// frame's body/data field without allocating one slice per frame.
func Get(size int) []byte {
	switch {
	case size <= 4*1024:
		return SmallPool.Get()[:size]
	case size <= 16*1024:
		return MediumPool.Get()[:size]
	case size <= 64*1024:
		return LargePool.Get()[:size]
	case size <= 128*1024:
		return HugePool.Get()[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns buf to the size-class pool matching its length.
func Put(buf []byte) {
	c := len(buf)
	switch {
	case c <= 4*1024:
		SmallPool.Put(buf[:c])
	case c <= 16*1024:
		MediumPool.Put(buf[:c])
	case c <= 64*1024:
		LargePool.Put(buf[:c])
	default:
		HugePool.Put(buf[:c])
	}
}
