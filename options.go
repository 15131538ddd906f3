package uploader

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/retry"
)

// ReadFunc reads bytes [start, end) of f for chunk c. fileType is the
// detected MIME type of the file.
type ReadFunc func(ctx context.Context, f *File, fileType string, start, end int64, c *Chunk) ([]byte, error)

// PreprocessFunc runs once per chunk before its bytes are read.
type PreprocessFunc func(ctx context.Context, c *Chunk) error

// ChunkChecker reports whether c is already stored on the server.
// resp is nil when the check runs before any request was made for the file.
type ChunkChecker func(c *Chunk, resp *Response) bool

// ResponseProcessor inspects or rewrites an upload response before it is
// classified. A non-nil error fails the chunk permanently.
type ResponseProcessor func(ctx context.Context, resp *Response, f *File, c *Chunk) (*Response, error)

// ParamsProcessor rewrites the params of a request before it is sent.
type ParamsProcessor func(ctx context.Context, params Params, f *File, c *Chunk, isTest bool) (Params, error)

// IdentifierFunc derives the unique identifier of a file.
type IdentifierFunc func(ctx context.Context, f *File) (string, error)

// Option configures an Uploader.
type Option func(*config)

type config struct {
	target       Value[string]
	headers      Value[map[string]string]
	query        Value[map[string]string]
	testMethod   Value[string]
	uploadMethod Value[string]
	chunkSize    Value[int64]

	forceChunkSize              bool
	simultaneousUploads         int
	fileParameterName           string
	encoding                    Encoding
	testChunks                  bool
	skipTestRequest             bool
	maxChunkRetries             int
	retryPolicy                 retry.Policy
	successStatuses             []int
	permanentErrors             []int
	prioritizeFirstAndLastChunk bool
	allowDuplicateUploads       bool
	initialPaused               bool
	progressInterval            time.Duration
	speedSmoothing              float64

	readFunc        ReadFunc
	preprocess      PreprocessFunc
	checker         ChunkChecker
	processResponse ResponseProcessor
	processParams   ParamsProcessor
	identifier      IdentifierFunc

	transport  Transport
	httpClient *http.Client
	logger     *slog.Logger
}

func defaultConfig() *config {
	return &config{
		testMethod:          Literal(http.MethodGet),
		uploadMethod:        Literal(http.MethodPost),
		chunkSize:           Literal[int64](1024 * 1024),
		simultaneousUploads: 3,
		fileParameterName:   "file",
		encoding:            EncodingMultipart,
		retryPolicy:         retry.Fixed(0),
		successStatuses:     []int{http.StatusOK, http.StatusCreated, http.StatusAccepted},
		permanentErrors: []int{
			http.StatusNotFound,
			http.StatusUnsupportedMediaType,
			http.StatusInternalServerError,
			http.StatusNotImplemented,
		},
		progressInterval: 500 * time.Millisecond,
		speedSmoothing:   0.1,
	}
}

// WithTarget sets the URL chunks are sent to.
func WithTarget(target string) Option {
	return func(c *config) {
		c.target = Literal(target)
	}
}

// WithTargetResolver computes the target per chunk and request kind.
func WithTargetResolver(fn ResolverFunc[string]) Option {
	return func(c *config) {
		c.target = Resolver(fn)
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *config) {
		c.headers = Literal(headers)
	}
}

// WithHeadersResolver computes the extra headers per chunk and request kind.
func WithHeadersResolver(fn ResolverFunc[map[string]string]) Option {
	return func(c *config) {
		c.headers = Resolver(fn)
	}
}

// WithQuery sets extra params merged into every request's params.
func WithQuery(query map[string]string) Option {
	return func(c *config) {
		c.query = Literal(query)
	}
}

// WithQueryResolver computes the extra params per chunk and request kind.
func WithQueryResolver(fn ResolverFunc[map[string]string]) Option {
	return func(c *config) {
		c.query = Resolver(fn)
	}
}

// WithChunkSize sets the nominal chunk size in bytes. Default is 1MB.
func WithChunkSize(size int64) Option {
	return func(c *config) {
		c.chunkSize = Literal(size)
	}
}

// WithChunkSizeResolver computes the chunk size per file. The resolver is
// called with a nil chunk when the file is added.
func WithChunkSizeResolver(fn ResolverFunc[int64]) Option {
	return func(c *config) {
		c.chunkSize = Resolver(fn)
	}
}

// WithForceChunkSize keeps every chunk at most the chunk size instead of
// merging a short remainder into the last chunk.
func WithForceChunkSize(force bool) Option {
	return func(c *config) {
		c.forceChunkSize = force
	}
}

// WithSimultaneousUploads sets how many chunks may be in flight at once.
// Default is 3.
func WithSimultaneousUploads(n int) Option {
	return func(c *config) {
		c.simultaneousUploads = n
	}
}

// WithFileParameterName sets the multipart field name of the chunk payload.
// Default is "file".
func WithFileParameterName(name string) Option {
	return func(c *config) {
		c.fileParameterName = name
	}
}

// WithEncoding selects multipart or raw octet upload bodies.
func WithEncoding(e Encoding) Option {
	return func(c *config) {
		c.encoding = e
	}
}

// WithTestChunks sends a test request before uploading each chunk.
func WithTestChunks(enabled bool) Option {
	return func(c *config) {
		c.testChunks = enabled
	}
}

// WithSkipTestRequest keeps test mode but asks the chunk checker with a nil
// response instead of sending the test request.
func WithSkipTestRequest(skip bool) Option {
	return func(c *config) {
		c.skipTestRequest = skip
	}
}

// WithTestMethod sets the HTTP method of test requests. Default is GET.
func WithTestMethod(method string) Option {
	return func(c *config) {
		c.testMethod = Literal(method)
	}
}

// WithTestMethodResolver computes the test method per chunk.
func WithTestMethodResolver(fn ResolverFunc[string]) Option {
	return func(c *config) {
		c.testMethod = Resolver(fn)
	}
}

// WithUploadMethod sets the HTTP method of upload requests. Default is POST.
func WithUploadMethod(method string) Option {
	return func(c *config) {
		c.uploadMethod = Literal(method)
	}
}

// WithUploadMethodResolver computes the upload method per chunk.
func WithUploadMethodResolver(fn ResolverFunc[string]) Option {
	return func(c *config) {
		c.uploadMethod = Resolver(fn)
	}
}

// WithMaxChunkRetries sets how many times a chunk is resent after a
// retryable failure. Default is 0.
func WithMaxChunkRetries(n int) Option {
	return func(c *config) {
		c.maxChunkRetries = n
	}
}

// WithChunkRetryInterval waits a fixed interval before each retry.
func WithChunkRetryInterval(d time.Duration) Option {
	return func(c *config) {
		c.retryPolicy = retry.Fixed(d)
	}
}

// WithRetryBackoff waits base * 2^(n-1) with jitter before retry n, capped
// at maxDelay.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *config) {
		c.retryPolicy = retry.NewExponential(base, maxDelay)
	}
}

// WithSuccessStatuses replaces the statuses that mark a chunk as stored.
// Default is 200, 201 and 202.
func WithSuccessStatuses(codes ...int) Option {
	return func(c *config) {
		c.successStatuses = codes
	}
}

// WithPermanentErrors replaces the statuses that fail a chunk without retry.
// Default is 404, 415, 500 and 501.
func WithPermanentErrors(codes ...int) Option {
	return func(c *config) {
		c.permanentErrors = codes
	}
}

// WithPrioritizeFirstAndLastChunk sends the first and last chunk of a file
// before the others, so servers can inspect headers and trailers early.
func WithPrioritizeFirstAndLastChunk(enabled bool) Option {
	return func(c *config) {
		c.prioritizeFirstAndLastChunk = enabled
	}
}

// WithAllowDuplicateUploads accepts files whose identifier is already queued.
func WithAllowDuplicateUploads(allow bool) Option {
	return func(c *config) {
		c.allowDuplicateUploads = allow
	}
}

// WithInitialPaused adds files in the paused state.
func WithInitialPaused(paused bool) Option {
	return func(c *config) {
		c.initialPaused = paused
	}
}

// WithProgressInterval sets the minimum time between file progress events
// caused by byte progress. Default is 500ms.
func WithProgressInterval(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.progressInterval = d
		}
	}
}

// WithSpeedSmoothingFactor sets the weight of the latest measurement in the
// average speed. Default is 0.1.
func WithSpeedSmoothingFactor(f float64) Option {
	return func(c *config) {
		if f > 0 && f <= 1 {
			c.speedSmoothing = f
		}
	}
}

// WithReadFunc replaces how chunk bytes are read from the source.
func WithReadFunc(fn ReadFunc) Option {
	return func(c *config) {
		c.readFunc = fn
	}
}

// WithPreprocess sets a hook run once per chunk before reading.
func WithPreprocess(fn PreprocessFunc) Option {
	return func(c *config) {
		c.preprocess = fn
	}
}

// WithChunkChecker sets the existence check used to skip stored chunks.
func WithChunkChecker(fn ChunkChecker) Option {
	return func(c *config) {
		c.checker = fn
	}
}

// WithResponseProcessor sets a hook applied to upload responses.
func WithResponseProcessor(fn ResponseProcessor) Option {
	return func(c *config) {
		c.processResponse = fn
	}
}

// WithParamsProcessor sets a hook applied to request params.
func WithParamsProcessor(fn ParamsProcessor) Option {
	return func(c *config) {
		c.processParams = fn
	}
}

// WithIdentifierFunc replaces the default content based file identifier.
func WithIdentifierFunc(fn IdentifierFunc) Option {
	return func(c *config) {
		c.identifier = fn
	}
}

// WithTransport replaces the HTTP transport, for example with an object
// store backed one.
func WithTransport(t Transport) Option {
	return func(c *config) {
		c.transport = t
	}
}

// WithHTTPClient sets the client used by the default HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
