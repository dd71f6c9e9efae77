package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytePool(t *testing.T) {
	pool := NewBytePool(1500)
	assert.Equal(t, 1500, pool.Size())

	buf := pool.Get()
	require.NotNil(t, buf)
	assert.Len(t, *buf, 1500)

	*buf = (*buf)[:10]
	pool.Put(buf)

	again := pool.Get()
	assert.Len(t, *again, 1500)
}

func TestBytePool_DropsShortBuffers(t *testing.T) {
	pool := NewBytePool(64)
	short := make([]byte, 8)
	pool.Put(&short)
	pool.Put(nil)

	assert.Len(t, *pool.Get(), 64)
}
