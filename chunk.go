package uploader

import (
	"context"
	"strconv"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/pool"
)

// Status is the lifecycle state of a chunk.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReading   Status = "reading"
	StatusTesting   Status = "testing"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

type stage uint8

const (
	stageNone stage = iota
	stageRunning
	stageDone
)

// exchange is the request currently outstanding for a chunk.
type exchange struct {
	test bool
}

// chunkRun is the token of one dispatch. A chunk whose run field no longer
// points at the token has been aborted and the run's results are discarded.
type chunkRun struct {
	cancel context.CancelFunc
}

// Chunk is one contiguous byte range of a file.
//
// Byte range fields are fixed at creation. Everything else is guarded by the
// owning uploader's mutex.
type Chunk struct {
	file      *File
	offset    int
	chunkSize int64
	startByte int64
	endByte   int64

	retries      int
	tested       bool
	pendingRetry bool
	preprocess   stage
	read         stage
	data         []byte
	pooled       bool
	loaded       int64
	total        int64
	xchg         *exchange
	run          *chunkRun
	resp         *Response
	succeeded    bool
	failure      error
}

// File returns the file the chunk belongs to.
func (c *Chunk) File() *File { return c.file }

// Offset returns the 0-based index of the chunk within its file.
func (c *Chunk) Offset() int { return c.offset }

// Number returns the 1-based chunk number sent to the server.
func (c *Chunk) Number() int { return c.offset + 1 }

// StartByte returns the first byte of the range.
func (c *Chunk) StartByte() int64 { return c.startByte }

// EndByte returns the byte after the last byte of the range.
func (c *Chunk) EndByte() int64 { return c.endByte }

// Size returns the number of bytes in the chunk.
func (c *Chunk) Size() int64 { return c.endByte - c.startByte }

// ChunkSize returns the nominal chunk size the file was split with.
func (c *Chunk) ChunkSize() int64 { return c.chunkSize }

// Status returns the current lifecycle state.
func (c *Chunk) Status() Status {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.statusLocked()
}

// Retries returns how many times the chunk has been resent.
func (c *Chunk) Retries() int {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.retries
}

// Tested reports whether the server was already asked about this chunk.
func (c *Chunk) Tested() bool {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.tested
}

// Loaded returns the bytes of the current request body sent so far.
func (c *Chunk) Loaded() int64 {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.loaded
}

// Total returns the size of the current request body.
func (c *Chunk) Total() int64 {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.total
}

// Progress returns the completed fraction of the chunk in [0, 1].
func (c *Chunk) Progress() float64 {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.progressLocked()
}

// SizeUploaded returns the bytes of the chunk counted as uploaded.
func (c *Chunk) SizeUploaded() int64 {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.sizeUploadedLocked()
}

// LastResponse returns the most recent response, or nil.
func (c *Chunk) LastResponse() *Response {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.resp
}

// Err returns the terminal error of a failed chunk.
func (c *Chunk) Err() error {
	c.file.u.mu.Lock()
	defer c.file.u.mu.Unlock()
	return c.failure
}

// Params returns the fields sent with the chunk before the query option and
// the params processor are applied.
func (c *Chunk) Params() Params {
	f := c.file
	return Params{
		ParamChunkNumber:      strconv.Itoa(c.Number()),
		ParamChunkSize:        strconv.FormatInt(c.chunkSize, 10),
		ParamCurrentChunkSize: strconv.FormatInt(c.Size(), 10),
		ParamTotalSize:        strconv.FormatInt(f.size, 10),
		ParamIdentifier:       f.identifier,
		ParamFilename:         f.name,
		ParamRelativePath:     f.relativePath,
		ParamTotalChunks:      strconv.Itoa(len(f.chunks)),
	}
}

func (c *Chunk) statusLocked() Status {
	switch {
	case c.succeeded:
		return StatusSuccess
	case c.failure != nil:
		return StatusError
	case c.read == stageRunning:
		return StatusReading
	case c.xchg != nil && c.xchg.test:
		return StatusTesting
	case c.xchg != nil, c.pendingRetry, c.preprocess == stageRunning, c.run != nil:
		return StatusUploading
	default:
		return StatusPending
	}
}

func (c *Chunk) progressLocked() float64 {
	switch {
	case c.succeeded:
		return 1
	case c.xchg == nil && c.failure == nil:
		// Pending, waiting for a retry, or not yet sending.
		return 0
	case c.total <= 0:
		return 0
	}
	p := float64(c.loaded) / float64(c.total)
	if p > 1 {
		p = 1
	}
	return p
}

func (c *Chunk) sizeUploadedLocked() int64 {
	if c.succeeded {
		return c.Size()
	}
	return int64(c.progressLocked() * float64(c.Size()))
}

// releaseDataLocked drops the chunk payload, returning pooled buffers.
func (c *Chunk) releaseDataLocked() {
	if c.pooled {
		pool.Put(c.data)
	}
	c.data = nil
	c.pooled = false
	c.read = stageNone
}
