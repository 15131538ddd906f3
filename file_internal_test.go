package uploader

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRanges(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		force     bool
		want      []byteRange
	}{
		{
			name:      "empty file has one empty chunk",
			size:      0,
			chunkSize: 10,
			want:      []byteRange{{0, 0}},
		},
		{
			name:      "smaller than chunk size",
			size:      5,
			chunkSize: 10,
			want:      []byteRange{{0, 5}},
		},
		{
			name:      "exact multiple",
			size:      30,
			chunkSize: 10,
			want:      []byteRange{{0, 10}, {10, 20}, {20, 30}},
		},
		{
			name:      "last chunk absorbs remainder",
			size:      25,
			chunkSize: 10,
			want:      []byteRange{{0, 10}, {10, 25}},
		},
		{
			name:      "forced sizes add a short chunk",
			size:      25,
			chunkSize: 10,
			force:     true,
			want:      []byteRange{{0, 10}, {10, 20}, {20, 25}},
		},
		{
			name:      "forced smaller than chunk size",
			size:      5,
			chunkSize: 10,
			force:     true,
			want:      []byteRange{{0, 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitRanges(tt.size, tt.chunkSize, tt.force))
		})
	}
}

func TestSplitRanges_EightyFiveBytes(t *testing.T) {
	ranges := splitRanges(85, 10, false)
	require.Len(t, ranges, 8)
	last := ranges[len(ranges)-1]
	assert.Equal(t, byteRange{70, 85}, last)

	assert.Len(t, splitRanges(85, 10, true), 9)
}

func TestSplitRanges_CoversFile(t *testing.T) {
	for size := int64(0); size <= 200; size++ {
		for _, chunkSize := range []int64{1, 3, 7, 10, 64, 256} {
			for _, force := range []bool{false, true} {
				ranges := splitRanges(size, chunkSize, force)
				require.NotEmpty(t, ranges)

				var next int64
				for i, r := range ranges {
					require.Equal(t, next, r.start, "size=%d chunk=%d force=%v range=%d", size, chunkSize, force, i)
					require.LessOrEqual(t, r.start, r.end)
					if force {
						require.LessOrEqual(t, r.end-r.start, chunkSize)
					} else {
						require.Less(t, r.end-r.start, 2*chunkSize+1)
					}
					next = r.end
				}
				require.Equal(t, size, next, "size=%d chunk=%d force=%v", size, chunkSize, force)
			}
		}
	}
}

func TestUploader_Classify(t *testing.T) {
	u := &Uploader{cfg: defaultConfig()}

	tests := []struct {
		code int
		want outcome
	}{
		{http.StatusOK, outcomeSuccess},
		{http.StatusCreated, outcomeSuccess},
		{http.StatusAccepted, outcomeSuccess},
		{http.StatusNotFound, outcomePermanent},
		{http.StatusUnsupportedMediaType, outcomePermanent},
		{http.StatusInternalServerError, outcomePermanent},
		{http.StatusNotImplemented, outcomePermanent},
		{http.StatusServiceUnavailable, outcomeRetryable},
		{http.StatusNoContent, outcomeRetryable},
		{0, outcomeRetryable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, u.classify(tt.code))
		})
	}
}

func TestDefaultIdentifier(t *testing.T) {
	a := defaultIdentifier(5, "dir/a.txt", []byte("hello"))
	assert.Equal(t, a, defaultIdentifier(5, "dir/a.txt", []byte("hello")))
	assert.NotEqual(t, a, defaultIdentifier(5, "dir/b.txt", []byte("hello")))
	assert.NotEqual(t, a, defaultIdentifier(5, "dir/a.txt", []byte("world")))
	assert.NotEqual(t, a, defaultIdentifier(6, "dir/a.txt", []byte("hello")))
	assert.Len(t, a, 36)
}

func TestChunk_ProgressLocked(t *testing.T) {
	f := &File{size: 100}
	tests := []struct {
		name  string
		chunk Chunk
		want  float64
	}{
		{name: "pending", chunk: Chunk{file: f}, want: 0},
		{name: "pending retry keeps zero", chunk: Chunk{file: f, pendingRetry: true, loaded: 5, total: 10}, want: 0},
		{name: "in flight", chunk: Chunk{file: f, xchg: &exchange{}, loaded: 5, total: 10}, want: 0.5},
		{name: "in flight without total", chunk: Chunk{file: f, xchg: &exchange{}}, want: 0},
		{name: "errored is frozen", chunk: Chunk{file: f, failure: assert.AnError, loaded: 3, total: 10}, want: 0.3},
		{name: "overreported is capped", chunk: Chunk{file: f, xchg: &exchange{}, loaded: 12, total: 10}, want: 1},
		{name: "success", chunk: Chunk{file: f, succeeded: true}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.chunk.progressLocked(), 1e-9)
		})
	}
}
