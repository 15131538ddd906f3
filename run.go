package uploader

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/retry"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomePermanent
	outcomeRetryable
)

func (u *Uploader) classify(code int) outcome {
	switch {
	case slices.Contains(u.cfg.successStatuses, code):
		return outcomeSuccess
	case slices.Contains(u.cfg.permanentErrors, code):
		return outcomePermanent
	default:
		return outcomeRetryable
	}
}

// skippedBody is the body of responses synthesised for chunks the chunk
// checker reports as already stored.
const skippedBody = `{"skipped":true,"success":true}`

// execute drives one dispatch of c: preprocess, read, probe, then upload
// until the chunk reaches a terminal state or the run is aborted.
func (u *Uploader) execute(ctx context.Context, c *Chunk, run *chunkRun) {
	defer u.wg.Done()
	defer u.finish(c, run)

	if !u.preprocessChunk(ctx, c, run) {
		return
	}
	if !u.readChunk(ctx, c, run) {
		return
	}
	if !u.probe(ctx, c, run) {
		return
	}
	for {
		delay, again := u.send(ctx, c, run)
		if !again || !retry.Sleep(ctx, delay) {
			return
		}
	}
}

// finish releases the run's concurrency slot unless an abort already did.
func (u *Uploader) finish(c *Chunk, run *chunkRun) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run == run {
		c.run = nil
		c.pendingRetry = false
		u.active--
	}
	run.cancel()
	u.dispatchLocked()
}

func (u *Uploader) isCurrent(c *Chunk, run *chunkRun) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return c.run == run
}

// probe asks whether the chunk is already stored, by test request or by the
// chunk checker. With the test request skipped, test mode falls back to the
// checker alone. It reports whether the chunk still needs uploading.
func (u *Uploader) probe(ctx context.Context, c *Chunk, run *chunkRun) bool {
	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}

	switch {
	case c.tested:
		u.mu.Unlock()
		return true
	case u.cfg.testChunks && !u.cfg.skipTestRequest:
		u.mu.Unlock()
		return u.test(ctx, c, run)
	case u.cfg.checker != nil:
		c.tested = true
		u.mu.Unlock()
		if !u.cfg.checker(c, nil) {
			return true
		}
		return u.skip(ctx, c, run)
	default:
		u.mu.Unlock()
		return true
	}
}

// test sends a test request. A success status means stored, a permanent
// status fails the chunk and anything else means the chunk must be sent.
func (u *Uploader) test(ctx context.Context, c *Chunk, run *chunkRun) bool {
	req, err := u.buildRequest(ctx, c, true)
	if err != nil {
		u.failCurrent(c, run, "params", err)
		return false
	}

	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}
	c.xchg = &exchange{test: true}
	u.mu.Unlock()

	resp, err := u.transport.Do(ctx, req, nil)
	if err != nil {
		resp = &Response{Body: []byte(err.Error())}
	}

	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}
	c.xchg = nil
	c.resp = resp

	switch u.classify(resp.StatusCode) {
	case outcomeSuccess:
		if u.cfg.checker == nil {
			c.tested = true
			u.succeedLocked(c, resp)
			u.mu.Unlock()
			return false
		}
		u.mu.Unlock()
		return u.reconcile(c, run, resp)
	case outcomePermanent:
		u.failLocked(c, "test", errors.ErrPermanent, resp)
		u.mu.Unlock()
		return false
	default:
		c.tested = true
		u.mu.Unlock()
		return true
	}
}

// reconcile feeds a successful test response to the chunk checker for the
// tested chunk and every untested idle chunk of the same file. Chunks
// reported as stored succeed without a request. It reports whether the
// tested chunk still needs uploading.
func (u *Uploader) reconcile(c *Chunk, run *chunkRun, resp *Response) bool {
	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}
	var candidates []*Chunk
	for _, ch := range c.file.chunks {
		if ch == c || (!ch.tested && ch.run == nil && ch.statusLocked() == StatusPending) {
			candidates = append(candidates, ch)
		}
	}
	u.mu.Unlock()

	stored := make([]bool, len(candidates))
	for i, ch := range candidates {
		stored[i] = u.cfg.checker(ch, resp)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run {
		return false
	}

	needsUpload := false
	for i, ch := range candidates {
		if ch == c {
			c.tested = true
			if stored[i] {
				u.succeedLocked(c, resp)
			} else {
				needsUpload = true
			}
			continue
		}
		// Skip chunks that were dispatched or changed while unlocked.
		if ch.tested || ch.run != nil || ch.statusLocked() != StatusPending {
			continue
		}
		ch.tested = true
		if stored[i] {
			u.succeedLocked(ch, resp)
		}
	}
	return needsUpload
}

// skip completes a chunk the checker reported as stored by passing a
// synthesised response through the normal response path.
func (u *Uploader) skip(ctx context.Context, c *Chunk, run *chunkRun) bool {
	resp := &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(skippedBody),
		Skipped:    true,
	}
	resp, perr := u.processResponse(ctx, c, resp)

	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run {
		return false
	}
	c.resp = resp
	if perr != nil {
		u.failLocked(c, "upload", fmt.Errorf("%w: %w", errors.ErrRejected, perr), resp)
		return false
	}

	switch u.classify(resp.StatusCode) {
	case outcomeSuccess:
		u.succeedLocked(c, resp)
		return false
	case outcomePermanent:
		u.failLocked(c, "upload", errors.ErrPermanent, resp)
		return false
	default:
		return true
	}
}

func (u *Uploader) preprocessChunk(ctx context.Context, c *Chunk, run *chunkRun) bool {
	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}
	if u.cfg.preprocess == nil || c.preprocess == stageDone {
		c.preprocess = stageDone
		u.mu.Unlock()
		return true
	}
	c.preprocess = stageRunning
	u.mu.Unlock()

	err := u.cfg.preprocess(ctx, c)

	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run {
		return false
	}
	if err != nil {
		c.preprocess = stageNone
		u.failLocked(c, "preprocess", fmt.Errorf("%w: %w", errors.ErrPreprocessFailed, err), nil)
		return false
	}
	c.preprocess = stageDone
	return true
}

func (u *Uploader) readChunk(ctx context.Context, c *Chunk, run *chunkRun) bool {
	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return false
	}
	if c.read == stageDone {
		u.mu.Unlock()
		return true
	}
	c.read = stageRunning
	u.mu.Unlock()

	f := c.file
	var (
		data   []byte
		pooled bool
		err    error
	)
	if u.cfg.readFunc != nil {
		data, err = u.cfg.readFunc(ctx, f, f.fileType, c.startByte, c.endByte, c)
	} else {
		buf := pool.Get(int(c.Size()))
		data, err = readRange(f.source, buf, c.startByte, c.endByte)
		if err != nil {
			pool.Put(buf)
		} else {
			pooled = true
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run {
		if pooled {
			pool.Put(data)
		}
		return false
	}
	if err != nil {
		c.read = stageNone
		u.failLocked(c, "read", fmt.Errorf("%w: %w", errors.ErrReadFailed, err), nil)
		return false
	}
	c.data, c.pooled, c.read = data, pooled, stageDone
	return true
}

// send uploads the chunk once. It returns the delay before the next
// attempt and whether another attempt should be made.
func (u *Uploader) send(ctx context.Context, c *Chunk, run *chunkRun) (time.Duration, bool) {
	req, err := u.buildRequest(ctx, c, false)
	if err != nil {
		u.failCurrent(c, run, "params", err)
		return 0, false
	}

	u.mu.Lock()
	if c.run != run {
		u.mu.Unlock()
		return 0, false
	}
	c.xchg = &exchange{}
	c.pendingRetry = false
	c.loaded, c.total = 0, 0
	req.Data = c.data
	u.mu.Unlock()

	resp, err := u.transport.Do(ctx, req, func(loaded, total int64) {
		u.onProgress(c, run, loaded, total)
	})
	if !u.isCurrent(c, run) {
		return 0, false
	}
	if err != nil {
		u.logger.Debug("chunk request failed",
			"file", c.file.identifier,
			"chunk", c.Number(),
			"error", err,
		)
		resp = &Response{Body: []byte(err.Error())}
	}

	resp, perr := u.processResponse(ctx, c, resp)

	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run {
		return 0, false
	}
	c.xchg = nil
	c.resp = resp

	if perr != nil {
		u.failLocked(c, "upload", fmt.Errorf("%w: %w", errors.ErrRejected, perr), resp)
		return 0, false
	}

	switch u.classify(resp.StatusCode) {
	case outcomeSuccess:
		u.succeedLocked(c, resp)
		return 0, false
	case outcomePermanent:
		u.failLocked(c, "upload", errors.ErrPermanent, resp)
		return 0, false
	}

	if c.retries >= u.cfg.maxChunkRetries {
		u.failLocked(c, "upload", errors.ErrRetriesExhausted, resp)
		return 0, false
	}

	c.retries++
	c.pendingRetry = true
	c.loaded, c.total = 0, 0
	delay := u.cfg.retryPolicy.Delay(c.retries)

	u.logger.Warn("retrying chunk",
		"file", c.file.identifier,
		"chunk", c.Number(),
		"status", resp.StatusCode,
		"attempt", c.retries,
		"delay", delay,
	)
	u.publishLocked(Event{Kind: EventFileRetry, File: c.file, Chunk: c, Response: resp})
	return delay, true
}

func (u *Uploader) onProgress(c *Chunk, run *chunkRun, loaded, total int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if c.run != run || c.xchg == nil || c.xchg.test {
		return
	}
	c.loaded, c.total = loaded, total
	u.publishLocked(Event{Kind: EventChunkProgress, File: c.file, Chunk: c})
	c.file.emitProgressLocked(false)
}

func (u *Uploader) processResponse(ctx context.Context, c *Chunk, resp *Response) (*Response, error) {
	if u.cfg.processResponse == nil {
		return resp, nil
	}
	out, err := u.cfg.processResponse(ctx, resp, c.file, c)
	if err != nil {
		return resp, err
	}
	if out == nil {
		return resp, nil
	}
	return out, nil
}

// buildRequest resolves the dynamic options for c. The payload is attached
// by the caller.
func (u *Uploader) buildRequest(ctx context.Context, c *Chunk, test bool) (*Request, error) {
	f := c.file

	params := c.Params()
	for k, v := range u.cfg.query.Eval(f, c, test) {
		params[k] = v
	}
	if u.cfg.processParams != nil {
		p, err := u.cfg.processParams(ctx, params, f, c, test)
		if err != nil {
			return nil, err
		}
		if p != nil {
			params = p
		}
	}

	header := make(http.Header)
	for k, v := range u.cfg.headers.Eval(f, c, test) {
		header.Set(k, v)
	}

	method := u.cfg.uploadMethod.Eval(f, c, test)
	if test {
		method = u.cfg.testMethod.Eval(f, c, test)
	}

	return &Request{
		Method:            strings.ToUpper(method),
		URL:               u.cfg.target.Eval(f, c, test),
		Header:            header,
		Params:            params,
		Encoding:          u.cfg.encoding,
		FileParameterName: u.cfg.fileParameterName,
		FileName:          f.name,
		ContentType:       f.fileType,
		Test:              test,
	}, nil
}

func (u *Uploader) succeedLocked(c *Chunk, resp *Response) {
	f := c.file
	c.succeeded = true
	c.xchg = nil
	c.pendingRetry = false
	c.resp = resp
	c.releaseDataLocked()

	u.publishLocked(Event{Kind: EventChunkSuccess, File: f, Chunk: c, Response: resp})
	f.emitProgressLocked(true)

	if !f.completed && f.isCompleteLocked() {
		f.completed = true
		u.logger.Info("file uploaded",
			"file", f.identifier,
			"name", f.name,
			"size", f.size,
		)
		u.publishLocked(Event{Kind: EventFileSuccess, File: f, Chunk: c, Response: resp})
	}
}

// failLocked moves c to its terminal error state and fails its file, which
// aborts the file's other in-flight chunks.
func (u *Uploader) failLocked(c *Chunk, op string, cause error, resp *Response) {
	f := c.file
	err := errors.NewChunkError(op, f.identifier, c.Number(), cause)
	if resp != nil {
		err = err.WithStatus(resp.StatusCode)
		c.resp = resp
	}
	c.failure = err
	c.xchg = nil
	c.pendingRetry = false

	u.publishLocked(Event{Kind: EventChunkError, File: f, Chunk: c, Response: resp, Err: err})

	if f.err != nil {
		return
	}
	f.err = err
	for _, other := range f.chunks {
		if other != c && other.run != nil {
			u.abortLocked(other)
		}
	}
	u.logger.Error("file failed",
		"file", f.identifier,
		"chunk", c.Number(),
		"error", err,
	)
	u.publishLocked(Event{Kind: EventFileError, File: f, Chunk: c, Response: resp, Err: err})
}

func (u *Uploader) failCurrent(c *Chunk, run *chunkRun, op string, cause error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if c.run == run {
		u.failLocked(c, op, cause, nil)
	}
}
