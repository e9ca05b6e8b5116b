package channel

import (
	"math"
	"sync"
)

const maxIdleBuffers = 4

// PoolStats counts buffer ownership transfers.
type PoolStats struct {
	Allocated   uint64
	CheckedOut  uint64
	Returned    uint64
	Transferred uint64
}

// Pool recycles value buffers for one channel's acquisition loop.
//
// A buffer is checked out before a frame is parsed. If the frame is rejected or
// decimated away, the loop checks the buffer back in. If it becomes a record,
// the loop calls Transfer and the buffer belongs to the record from then on: it
// is never handed out again, because consumers may still be reading it.
type Pool struct {
	arity int

	mu    sync.Mutex
	idle  [][]float64
	stats PoolStats
}

func NewPool(arity int) *Pool {
	return &Pool{arity: arity}
}

// Checkout returns a buffer of the pool's arity filled with NaN.
func (p *Pool) Checkout() []float64 {
	p.mu.Lock()
	p.stats.CheckedOut++
	var buf []float64
	if n := len(p.idle); n > 0 {
		buf = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	} else {
		p.stats.Allocated++
	}
	p.mu.Unlock()

	if buf == nil {
		buf = make([]float64, p.arity)
	}
	for i := range buf {
		buf[i] = math.NaN()
	}
	return buf
}

// Checkin returns a buffer that never became part of a record.
func (p *Pool) Checkin(buf []float64) {
	if len(buf) != p.arity {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Returned++
	if len(p.idle) < maxIdleBuffers {
		p.idle = append(p.idle, buf)
	}
}

// Transfer records that buf now belongs to a record.
func (p *Pool) Transfer(buf []float64) {
	p.mu.Lock()
	p.stats.Transferred++
	p.mu.Unlock()
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
