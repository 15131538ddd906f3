package uploader

import (
	"math"
	"time"
)

// File is a source queued for upload, split into chunks.
type File struct {
	u            *Uploader
	source       Source
	name         string
	relativePath string
	identifier   string
	fileType     string
	size         int64
	chunkSize    int64
	chunks       []*Chunk

	// guarded by u.mu
	paused         bool
	err            error
	completed      bool
	removed        bool
	lastProgressAt time.Time
	prevUploaded   int64
	currentSpeed   float64
	averageSpeed   float64
}

// byteRange is a half-open interval [start, end).
type byteRange struct {
	start, end int64
}

// splitRanges computes the chunk ranges of a file.
//
// The chunk count is floor(size/chunkSize), or ceil when force is set, and
// never below one. Without force the last chunk absorbs the remainder and
// may reach just under twice the chunk size. A zero-byte file has a single
// empty chunk.
func splitRanges(size, chunkSize int64, force bool) []byteRange {
	count := size / chunkSize
	if force && size%chunkSize != 0 {
		count++
	}
	if count < 1 {
		count = 1
	}

	ranges := make([]byteRange, count)
	for i := range count {
		start := i * chunkSize
		end := min(size, (i+1)*chunkSize)
		if size-end < chunkSize && !force {
			end = size
		}
		ranges[i] = byteRange{start: start, end: end}
	}
	return ranges
}

func (f *File) bootstrap() {
	ranges := splitRanges(f.size, f.chunkSize, f.u.cfg.forceChunkSize)
	f.chunks = make([]*Chunk, len(ranges))
	for i, r := range ranges {
		f.chunks[i] = &Chunk{
			file:      f,
			offset:    i,
			chunkSize: f.chunkSize,
			startByte: r.start,
			endByte:   r.end,
		}
	}
}

// Name returns the base name of the file.
func (f *File) Name() string { return f.name }

// RelativePath returns the path reported to the server.
func (f *File) RelativePath() string { return f.relativePath }

// Identifier returns the unique key of the file.
func (f *File) Identifier() string { return f.identifier }

// FileType returns the detected MIME type.
func (f *File) FileType() string { return f.fileType }

// Size returns the size in bytes.
func (f *File) Size() int64 { return f.size }

// Source returns the content the file is read from.
func (f *File) Source() Source { return f.source }

// Chunks returns the chunks in offset order.
func (f *File) Chunks() []*Chunk {
	return append([]*Chunk(nil), f.chunks...)
}

// Progress returns the uploaded fraction in [0, 1]. It is 1 only once every
// chunk succeeded.
func (f *File) Progress() float64 {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.progressLocked()
}

func (f *File) progressLocked() float64 {
	complete := f.isCompleteLocked()
	if f.size == 0 {
		if complete {
			return 1
		}
		return 0
	}
	if complete {
		return 1
	}
	p := float64(f.sizeUploadedLocked()) / float64(f.size)
	return min(p, math.Nextafter(1, 0))
}

// SizeUploaded returns the bytes counted as uploaded.
func (f *File) SizeUploaded() int64 {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.sizeUploadedLocked()
}

func (f *File) sizeUploadedLocked() int64 {
	var n int64
	for _, c := range f.chunks {
		n += c.sizeUploadedLocked()
	}
	return min(n, f.size)
}

// IsComplete reports whether every chunk succeeded.
func (f *File) IsComplete() bool {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.isCompleteLocked()
}

func (f *File) isCompleteLocked() bool {
	for _, c := range f.chunks {
		if !c.succeeded {
			return false
		}
	}
	return true
}

// IsUploading reports whether any chunk is in flight.
func (f *File) IsUploading() bool {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	for _, c := range f.chunks {
		if c.run != nil {
			return true
		}
	}
	return false
}

// Paused reports whether the file is paused.
func (f *File) Paused() bool {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.paused
}

// Err returns the error that stopped the file, or nil.
func (f *File) Err() error {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.err
}

// Pause aborts the file's in-flight chunks and stops dispatching it.
// Chunks already stored are kept.
func (f *File) Pause() {
	u := f.u
	u.mu.Lock()
	defer u.mu.Unlock()

	if f.removed || f.paused {
		return
	}
	f.paused = true
	for _, c := range f.chunks {
		if c.run != nil {
			u.abortLocked(c)
		}
	}
	u.logger.Debug("file paused", "file", f.identifier)
	u.dispatchLocked()
}

// Resume makes a paused file eligible for dispatch again.
func (f *File) Resume() {
	u := f.u
	u.mu.Lock()
	defer u.mu.Unlock()

	if f.removed || !f.paused {
		return
	}
	f.paused = false
	u.completeSent = false
	u.logger.Debug("file resumed", "file", f.identifier)
	u.dispatchLocked()
}

// Retry clears the error of a failed file and resends its failed chunks
// with a fresh retry budget.
func (f *File) Retry() {
	u := f.u
	u.mu.Lock()
	defer u.mu.Unlock()

	if f.removed || f.err == nil {
		return
	}
	f.err = nil
	for _, c := range f.chunks {
		if c.failure != nil {
			c.failure = nil
			c.retries = 0
			c.loaded = 0
			c.total = 0
		}
	}
	u.completeSent = false
	u.logger.Info("retrying file", "file", f.identifier)
	u.dispatchLocked()
}

// Cancel removes the file from its uploader.
func (f *File) Cancel() {
	_ = f.u.RemoveFile(f)
}

// CurrentSpeed returns the latest measured upload speed in bytes per second.
func (f *File) CurrentSpeed() float64 {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.currentSpeed
}

// AverageSpeed returns the smoothed upload speed in bytes per second.
func (f *File) AverageSpeed() float64 {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	return f.averageSpeed
}

// TimeRemaining estimates the time left at the average speed.
// It is zero for complete files and when no speed was measured yet.
func (f *File) TimeRemaining() time.Duration {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()

	if f.isCompleteLocked() || f.averageSpeed <= 0 {
		return 0
	}
	left := float64(f.size - f.sizeUploadedLocked())
	return time.Duration(left / f.averageSpeed * float64(time.Second))
}

// measureSpeedLocked updates the speed estimates from bytes uploaded since
// the previous measurement.
func (f *File) measureSpeedLocked(now time.Time) {
	if f.lastProgressAt.IsZero() {
		f.lastProgressAt = now
		f.prevUploaded = f.sizeUploadedLocked()
		return
	}
	span := now.Sub(f.lastProgressAt).Seconds()
	if span <= 0 {
		return
	}
	uploaded := f.sizeUploadedLocked()
	f.currentSpeed = max(float64(uploaded-f.prevUploaded)/span, 0)
	factor := f.u.cfg.speedSmoothing
	f.averageSpeed = factor*f.currentSpeed + (1-factor)*f.averageSpeed
	f.prevUploaded = uploaded
	f.lastProgressAt = now
}

// emitProgressLocked publishes a file progress event, at most once per
// progress interval unless force is set.
func (f *File) emitProgressLocked(force bool) {
	now := time.Now()
	if !force && !f.lastProgressAt.IsZero() && now.Sub(f.lastProgressAt) < f.u.cfg.progressInterval {
		return
	}
	f.measureSpeedLocked(now)
	f.u.publishLocked(Event{Kind: EventFileProgress, File: f})
}
