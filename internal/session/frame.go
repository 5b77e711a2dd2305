package session

import (
	"sync"
	"time"

	"github.com/breeze-rmm/scrap/internal/dxgi"
)

// Frame is an owned copy of one captured desktop image in BGRA order.
// Rows are Stride bytes apart; Stride may exceed Width*4.
type Frame struct {
	Seq        uint64
	Display    DisplayInfo
	Rows       int
	Stride     int
	Pix        []byte
	Info       dxgi.FrameInfo
	CapturedAt time.Time

	pool *bufferPool
}

// Release returns the pixel buffer for reuse. Pix must not be used after.
func (f *Frame) Release() {
	if f.pool != nil && f.Pix != nil {
		f.pool.put(f.Pix)
	}
	f.Pix = nil
}

// bufferPool recycles frame buffers of a single size. A size change (mode
// switch, rotation) starts a new pool.
type bufferPool struct {
	mu   sync.Mutex
	size int
	pool *sync.Pool
}

func (p *bufferPool) get(n int) []byte {
	p.mu.Lock()
	if p.size != n || p.pool == nil {
		p.size = n
		p.pool = &sync.Pool{}
	}
	pool := p.pool
	p.mu.Unlock()

	if v := pool.Get(); v != nil {
		return *(v.(*[]byte))
	}
	return make([]byte, n)
}

func (p *bufferPool) put(b []byte) {
	p.mu.Lock()
	match := p.pool != nil && p.size == len(b)
	pool := p.pool
	p.mu.Unlock()
	if match {
		pool.Put(&b)
	}
}
