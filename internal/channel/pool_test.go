package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolReusesOnlyCheckedInBuffers(t *testing.T) {
	p := NewPool(3)

	a := p.Checkout()
	assert.Len(t, a, 3)
	for _, v := range a {
		assert.True(t, math.IsNaN(v))
	}
	a[0] = 42
	p.Checkin(a)

	b := p.Checkout()
	assert.Same(t, &a[0], &b[0], "checked-in buffer is recycled")
	assert.True(t, math.IsNaN(b[0]), "recycled buffer is reset")

	p.Transfer(b)
	c := p.Checkout()
	assert.NotSame(t, &b[0], &c[0], "transferred buffer is never handed out again")

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.CheckedOut)
	assert.Equal(t, uint64(1), stats.Returned)
	assert.Equal(t, uint64(1), stats.Transferred)
	assert.Equal(t, uint64(2), stats.Allocated)
}

func TestPoolIgnoresForeignBuffers(t *testing.T) {
	p := NewPool(2)
	p.Checkin(make([]float64, 5))
	assert.Zero(t, p.Stats().Returned)
}
