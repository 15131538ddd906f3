package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferPool(t *testing.T) {
	bp := NewBufferPool()
	require.NotNil(t, bp)
	assert.Equal(t, []int{SmallBufferSize, MediumBufferSize, LargeBufferSize}, bp.Classes())

	custom := NewBufferPool(300, 100, 200)
	assert.Equal(t, []int{100, 200, 300}, custom.Classes())
}

func TestBufferPool_Get(t *testing.T) {
	bp := NewBufferPool()

	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"zero", 0, SmallBufferSize},
		{"small", 100, SmallBufferSize},
		{"exact small", SmallBufferSize, SmallBufferSize},
		{"medium", SmallBufferSize + 1, MediumBufferSize},
		{"large", MediumBufferSize + 1, LargeBufferSize},
		{"oversized", LargeBufferSize + 1, LargeBufferSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bp.Get(tt.size)
			assert.Equal(t, 0, len(buf))
			assert.Equal(t, tt.wantCap, cap(buf))
			bp.Put(buf)
		})
	}
}

func TestBufferPool_PutResetsLength(t *testing.T) {
	bp := NewBufferPool(16)

	buf := bp.Get(8)
	buf = append(buf, []byte("chunk data")...)
	assert.Equal(t, 10, len(buf))
	bp.Put(buf)

	again := bp.Get(8)
	assert.Equal(t, 0, len(again))
	assert.Equal(t, 16, cap(again))
}

func TestBufferPool_PutIgnoresForeignBuffers(t *testing.T) {
	bp := NewBufferPool(16)

	assert.NotPanics(t, func() {
		bp.Put(make([]byte, 5, 7))
		bp.Put(nil)
	})
}

func TestGlobalPool(t *testing.T) {
	buf := Get(10)
	require.NotNil(t, buf)
	assert.Equal(t, SmallBufferSize, cap(buf))
	Put(buf)
}
