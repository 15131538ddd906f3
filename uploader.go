package uploader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/eventbus"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/validation"
)

// Uploader schedules the chunks of queued files over a bounded number of
// concurrent requests.
//
// All file and chunk state is guarded by a single mutex. Each dispatched
// chunk runs on its own goroutine that performs hooks and I/O without the
// lock and re-enters the scheduler to record results. Events are delivered
// in order on a separate dispatcher goroutine.
type Uploader struct {
	cfg       *config
	transport Transport
	logger    *slog.Logger
	bus       *eventbus.Bus[Event]

	// ctx is the parent of every chunk run; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards everything below as well as File and Chunk state
	mu           sync.Mutex
	files        []*File
	byID         map[string]*File
	active       int
	started      bool
	completeSent bool
	closed       bool
	idle         chan struct{}
	idleClosed   bool
}

// New creates an uploader with the provided options.
//
// Example:
//
//	u, err := uploader.New(
//	    uploader.WithTarget("https://example.com/upload"),
//	    uploader.WithSimultaneousUploads(4),
//	    uploader.WithMaxChunkRetries(3),
//	)
func New(opts ...Option) (*Uploader, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	transport := cfg.transport
	if transport == nil {
		transport = NewHTTPTransport(cfg.httpClient)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Uploader{
		cfg:        cfg,
		transport:  transport,
		logger:     logger,
		bus:        eventbus.New[Event](),
		ctx:        ctx,
		cancel:     cancel,
		byID:       make(map[string]*File),
		idle:       idle,
		idleClosed: true,
	}, nil
}

func validateConfig(cfg *config) error {
	if err := validation.ValidateConcurrency(cfg.simultaneousUploads); err != nil {
		return err
	}
	if err := validation.ValidateMaxRetries(cfg.maxChunkRetries); err != nil {
		return err
	}
	if err := validation.ValidateStatuses(cfg.successStatuses, cfg.permanentErrors); err != nil {
		return err
	}
	if err := validation.ValidateParameterName(cfg.fileParameterName); err != nil {
		return err
	}
	if !cfg.chunkSize.IsResolver() {
		if err := validation.ValidateChunkSize(cfg.chunkSize.Eval(nil, nil, false)); err != nil {
			return err
		}
	}
	if !cfg.testMethod.IsResolver() {
		if err := validation.ValidateMethod(cfg.testMethod.Eval(nil, nil, true)); err != nil {
			return err
		}
	}
	if !cfg.uploadMethod.IsResolver() {
		if err := validation.ValidateMethod(cfg.uploadMethod.Eval(nil, nil, false)); err != nil {
			return err
		}
	}
	if cfg.encoding != EncodingMultipart && cfg.encoding != EncodingOctet {
		return errors.NewError("validateEncoding", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("unknown encoding %q", cfg.encoding))
	}
	if cfg.transport == nil && !cfg.target.IsResolver() {
		if err := validation.ValidateTarget(cfg.target.Eval(nil, nil, false)); err != nil {
			return err
		}
	}
	return nil
}

// FileOption configures a single added file.
type FileOption func(*fileOptions)

type fileOptions struct {
	relativePath string
	identifier   string
}

// WithRelativePath sets the path reported to the server. Default is the
// source name.
func WithRelativePath(p string) FileOption {
	return func(o *fileOptions) {
		o.relativePath = p
	}
}

// WithFileIdentifier sets the identifier instead of deriving it.
func WithFileIdentifier(id string) FileOption {
	return func(o *fileOptions) {
		o.identifier = id
	}
}

// AddFile queues src for upload. The file is split into chunks immediately;
// if Upload was already called, dispatch picks it up right away.
func (u *Uploader) AddFile(ctx context.Context, src Source, opts ...FileOption) (*File, error) {
	if src == nil {
		return nil, errors.NewError("addFile", errors.ErrInvalidInput).WithMessage("source cannot be nil")
	}

	fo := fileOptions{relativePath: src.Name()}
	for _, opt := range opts {
		opt(&fo)
	}
	if err := validation.ValidateRelativePath(fo.relativePath); err != nil {
		return nil, err
	}

	f := &File{
		u:            u,
		source:       src,
		name:         src.Name(),
		relativePath: fo.relativePath,
		size:         src.Size(),
	}

	sampleLen := min(f.size, pool.SmallBufferSize)
	buf := pool.Get(int(sampleLen))
	defer pool.Put(buf)
	sample, err := readRange(src, buf, 0, sampleLen)
	if err != nil {
		return nil, errors.NewError("addFile", fmt.Errorf("%w: %w", errors.ErrReadFailed, err))
	}
	f.fileType = mimetype.Detect(sample).String()

	switch {
	case fo.identifier != "":
		f.identifier = fo.identifier
	case u.cfg.identifier != nil:
		id, err := u.cfg.identifier(ctx, f)
		if err != nil {
			return nil, errors.NewError("identifier", err)
		}
		f.identifier = id
	default:
		f.identifier = defaultIdentifier(f.size, f.relativePath, sample)
	}
	if f.identifier == "" {
		return nil, errors.NewError("addFile", errors.ErrInvalidInput).WithMessage("identifier cannot be empty")
	}

	f.chunkSize = u.cfg.chunkSize.Eval(f, nil, false)
	if err := validation.ValidateChunkSize(f.chunkSize); err != nil {
		return nil, err
	}
	f.bootstrap()

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, errors.NewError("addFile", errors.ErrClosed)
	}
	if _, ok := u.byID[f.identifier]; ok && !u.cfg.allowDuplicateUploads {
		return nil, errors.NewError("addFile", errors.ErrDuplicateFile).WithFile(f.identifier)
	}

	f.paused = u.cfg.initialPaused
	u.files = append(u.files, f)
	if _, ok := u.byID[f.identifier]; !ok {
		u.byID[f.identifier] = f
	}

	u.logger.Debug("file added",
		"file", f.identifier,
		"name", f.name,
		"size", f.size,
		"chunks", len(f.chunks),
		"type", f.fileType,
	)
	u.publishLocked(Event{Kind: EventFileAdded, File: f})

	if u.started {
		u.completeSent = false
		u.dispatchLocked()
	}
	return f, nil
}

// AddFiles queues several sources. Sources that fail are skipped and their
// errors joined; the files that were added are returned.
func (u *Uploader) AddFiles(ctx context.Context, srcs ...Source) ([]*File, error) {
	var (
		added []*File
		errs  []error
	)
	for _, src := range srcs {
		f, err := u.AddFile(ctx, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		added = append(added, f)
	}
	return added, stderrors.Join(errs...)
}

// AddPath opens name on fsys and queues it. The relative path defaults to
// the cleaned name.
func (u *Uploader) AddPath(ctx context.Context, fsys billy.Filesystem, name string, opts ...FileOption) (*File, error) {
	src, err := OpenSource(fsys, name)
	if err != nil {
		return nil, errors.NewError("addPath", err)
	}

	opts = append([]FileOption{WithRelativePath(cleanRelativePath(name))}, opts...)
	f, err := u.AddFile(ctx, src, opts...)
	if err != nil {
		closeSource(src)
		return nil, err
	}
	return f, nil
}

// AddDir queues every regular file below root on fsys, walking in lexical
// order. Relative paths keep the directory structure.
func (u *Uploader) AddDir(ctx context.Context, fsys billy.Filesystem, root string) ([]*File, error) {
	var (
		added []*File
		errs  []error
	)
	err := util.Walk(fsys, root, func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := u.AddPath(ctx, fsys, name)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		added = append(added, f)
		return nil
	})
	if err != nil {
		errs = append(errs, errors.NewError("addDir", err))
	}
	return added, stderrors.Join(errs...)
}

func cleanRelativePath(name string) string {
	p := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// RemoveFile aborts and forgets f.
func (u *Uploader) RemoveFile(f *File) error {
	u.mu.Lock()

	idx := slices.Index(u.files, f)
	if idx < 0 {
		u.mu.Unlock()
		return errors.NewError("removeFile", errors.ErrFileNotFound)
	}

	for _, c := range f.chunks {
		if c.run != nil {
			u.abortLocked(c)
			// The aborted run may still read the payload.
			c.data, c.pooled = nil, false
			continue
		}
		c.releaseDataLocked()
	}

	u.files = slices.Delete(u.files, idx, idx+1)
	if u.byID[f.identifier] == f {
		delete(u.byID, f.identifier)
		for _, other := range u.files {
			if other.identifier == f.identifier {
				u.byID[f.identifier] = other
				break
			}
		}
	}
	f.removed = true

	u.logger.Debug("file removed", "file", f.identifier)
	u.publishLocked(Event{Kind: EventFileRemoved, File: f})
	u.dispatchLocked()
	u.mu.Unlock()

	closeSource(f.source)
	return nil
}

// GetFromIdentifier returns the file with the given identifier, or nil.
func (u *Uploader) GetFromIdentifier(id string) *File {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[id]
}

// Files returns the queued files in insertion order.
func (u *Uploader) Files() []*File {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*File(nil), u.files...)
}

// Upload starts dispatching chunks. Calling it while an upload is running
// is a no-op apart from re-scanning for pending chunks.
func (u *Uploader) Upload() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return errors.NewError("upload", errors.ErrClosed)
	}
	if u.active == 0 {
		u.publishLocked(Event{Kind: EventUploadStart})
	}
	u.started = true
	u.completeSent = false
	u.dispatchLocked()
	return nil
}

// Pause pauses every file.
func (u *Uploader) Pause() {
	for _, f := range u.Files() {
		f.Pause()
	}
}

// Resume resumes every file.
func (u *Uploader) Resume() {
	for _, f := range u.Files() {
		f.Resume()
	}
}

// Cancel removes every file.
func (u *Uploader) Cancel() {
	for _, f := range u.Files() {
		_ = u.RemoveFile(f)
	}
}

// IsUploading reports whether any chunk is in flight.
func (u *Uploader) IsUploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active > 0
}

// Progress returns the uploaded fraction over all files, weighted by size.
func (u *Uploader) Progress() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	var uploaded, total int64
	complete := len(u.files) > 0
	for _, f := range u.files {
		uploaded += f.sizeUploadedLocked()
		total += f.size
		if !f.isCompleteLocked() {
			complete = false
		}
	}
	switch {
	case complete:
		return 1
	case total == 0:
		return 0
	}
	return min(float64(uploaded)/float64(total), math.Nextafter(1, 0))
}

// SizeUploaded returns the bytes counted as uploaded over all files.
func (u *Uploader) SizeUploaded() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	var n int64
	for _, f := range u.files {
		n += f.sizeUploadedLocked()
	}
	return n
}

// TotalSize returns the combined size of all files.
func (u *Uploader) TotalSize() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	var n int64
	for _, f := range u.files {
		n += f.size
	}
	return n
}

// Subscribe registers h for every event. The returned function removes it.
func (u *Uploader) Subscribe(h Handler) func() {
	return u.bus.Subscribe(eventbus.Handler[Event](h))
}

// On registers h for events of the given kinds.
func (u *Uploader) On(h Handler, kinds ...EventKind) func() {
	return u.bus.Subscribe(func(e Event) {
		if slices.Contains(kinds, e.Kind) {
			h(e)
		}
	})
}

// Wait blocks until no chunk is in flight and every queued event has been
// delivered. It returns the joined errors of failed files.
//
// Paused files do not keep Wait blocked.
func (u *Uploader) Wait(ctx context.Context) error {
	u.mu.Lock()
	idle := u.idle
	u.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := u.bus.Flush(ctx); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	var errs []error
	for _, f := range u.files {
		if f.err != nil {
			errs = append(errs, f.err)
		}
	}
	return stderrors.Join(errs...)
}

// Close aborts in-flight chunks, waits for their goroutines, delivers the
// remaining events and closes sources opened by the uploader. It must not be
// called from an event handler.
func (u *Uploader) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	for _, f := range u.files {
		for _, c := range f.chunks {
			if c.run != nil {
				u.abortLocked(c)
			}
		}
	}
	u.markIdleLocked()
	files := append([]*File(nil), u.files...)
	u.mu.Unlock()

	u.cancel()
	u.wg.Wait()
	u.bus.Close()

	for _, f := range files {
		closeSource(f.source)
	}
	return nil
}

func closeSource(src Source) {
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
}

func (u *Uploader) publishLocked(e Event) {
	e.Time = time.Now()
	// The bus only fails once closed, when nobody is listening anymore.
	_ = u.bus.Publish(e)
}

// dispatchLocked starts pending chunks until the concurrency budget is used,
// then signals idleness and completion.
func (u *Uploader) dispatchLocked() {
	if !u.closed && u.started {
		for u.active < u.cfg.simultaneousUploads {
			c := u.nextPendingLocked()
			if c == nil {
				break
			}
			u.startLocked(c)
		}
	}

	if u.active > 0 {
		return
	}
	// Wait flushes the bus once idle, so complete is queued first.
	defer u.markIdleLocked()

	if u.closed || !u.started || u.completeSent || len(u.files) == 0 {
		return
	}
	for _, f := range u.files {
		if !f.completed {
			return
		}
	}
	u.completeSent = true
	u.logger.Info("upload complete", "files", len(u.files))
	u.publishLocked(Event{Kind: EventComplete})
}

// nextPendingLocked scans files in insertion order and chunks in offset
// order for the first pending chunk.
func (u *Uploader) nextPendingLocked() *Chunk {
	for _, f := range u.files {
		if f.paused || f.err != nil || f.completed {
			continue
		}
		if u.cfg.prioritizeFirstAndLastChunk {
			first, last := f.chunks[0], f.chunks[len(f.chunks)-1]
			if first.statusLocked() == StatusPending {
				return first
			}
			if last.statusLocked() == StatusPending {
				return last
			}
		}
		for _, c := range f.chunks {
			if c.statusLocked() == StatusPending {
				return c
			}
		}
	}
	return nil
}

func (u *Uploader) startLocked(c *Chunk) {
	ctx, cancel := context.WithCancel(u.ctx)
	run := &chunkRun{cancel: cancel}
	c.run = run
	u.active++
	if u.idleClosed {
		u.idle = make(chan struct{})
		u.idleClosed = false
	}

	u.logger.Debug("dispatching chunk",
		"file", c.file.identifier,
		"chunk", c.Number(),
		"active", u.active,
	)

	u.wg.Add(1)
	go u.execute(ctx, c, run)
}

// abortLocked cancels the chunk's run, releases its concurrency slot and
// returns it to pending unless it already finished.
func (u *Uploader) abortLocked(c *Chunk) {
	if c.run != nil {
		c.run.cancel()
		c.run = nil
		u.active--
	}
	c.xchg = nil
	c.pendingRetry = false
	if c.read == stageRunning {
		c.read = stageNone
	}
	if c.preprocess == stageRunning {
		c.preprocess = stageNone
	}
	if !c.succeeded && c.failure == nil {
		c.loaded = 0
		c.total = 0
	}
}

func (u *Uploader) markIdleLocked() {
	if !u.idleClosed {
		close(u.idle)
		u.idleClosed = true
	}
}
