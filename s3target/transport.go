package s3target

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/validation"
)

const (
	// MinPartSize is the smallest part S3 accepts, except for the last part
	// of an upload. Chunk sizes below it fail at completion.
	MinPartSize = 5 * 1024 * 1024

	// maxParts is the S3 limit on parts per multipart upload.
	maxParts = 10000
)

// PermanentErrors are the statuses the transport produces for requests that
// will not succeed when repeated.
var PermanentErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusMethodNotAllowed,
	http.StatusUnsupportedMediaType,
	http.StatusNotImplemented,
}

// Transport implements uploader.Transport on S3 multipart uploads.
type Transport struct {
	client s3api.S3API
	bucket string
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	uploads map[string]*multipartUpload
}

// multipartUpload tracks the parts stored for one file identifier.
type multipartUpload struct {
	// ready is closed once creation finished; err holds its failure
	ready    chan struct{}
	err      error
	key      string
	uploadID string

	mu         sync.Mutex
	parts      map[int32]string
	completing bool
	completed  bool
}

var _ uploader.Transport = (*Transport)(nil)

// New creates a transport for bucket, loading AWS credentials from the
// default chain unless WithAWSConfig is given.
func New(ctx context.Context, bucket string, opts ...Option) (*Transport, error) {
	o := applyOptions(opts)

	var cfg aws.Config
	if o.awsConfig != nil {
		cfg = *o.awsConfig
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		var err error
		cfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.NewError("s3target.new", err)
		}
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
		}
		so.UsePathStyle = o.forcePathStyle
	})

	return newTransport(client, bucket, o)
}

// NewWithClient creates a transport on an existing client.
// This is primarily useful for testing with mock clients.
func NewWithClient(client s3api.S3API, bucket string, opts ...Option) (*Transport, error) {
	return newTransport(client, bucket, applyOptions(opts))
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newTransport(client s3api.S3API, bucket string, o *options) (*Transport, error) {
	if client == nil {
		return nil, errors.NewError("s3target.new", errors.ErrInvalidInput).WithMessage("client cannot be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.NewError("s3target.new", errors.ErrInvalidInput).WithMessage("bucket cannot be empty")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Transport{
		client:  client,
		bucket:  bucket,
		prefix:  o.prefix,
		logger:  logger,
		uploads: make(map[string]*multipartUpload),
	}, nil
}

// Do implements uploader.Transport.
func (t *Transport) Do(
	ctx context.Context,
	req *uploader.Request,
	progress uploader.ProgressFunc,
) (*uploader.Response, error) {
	id := req.Params[uploader.ParamIdentifier]
	number, err := strconv.Atoi(req.Params[uploader.ParamChunkNumber])
	if id == "" || err != nil || number < 1 || number > maxParts {
		return textResponse(http.StatusBadRequest, "identifier and a chunk number between 1 and 10000 are required"), nil
	}

	if req.Test {
		return t.test(ctx, id, int32(number))
	}

	total, err := strconv.Atoi(req.Params[uploader.ParamTotalChunks])
	if err != nil || total < number || total > maxParts {
		return textResponse(http.StatusBadRequest, "invalid totalChunks"), nil
	}

	key := t.prefix + objectName(req)
	if err := validation.ValidateObjectKey(key); err != nil {
		return textResponse(http.StatusBadRequest, err.Error()), nil
	}

	up, err := t.start(ctx, id, key, req.ContentType)
	if err != nil {
		return errorResponse(err)
	}
	return t.put(ctx, up, int32(number), total, req, progress)
}

func objectName(req *uploader.Request) string {
	if p := req.Params[uploader.ParamRelativePath]; p != "" {
		return strings.TrimPrefix(p, "/")
	}
	return req.Params[uploader.ParamFilename]
}

// start returns the multipart upload of id, creating it on first use.
func (t *Transport) start(ctx context.Context, id, key, contentType string) (*multipartUpload, error) {
	t.mu.Lock()
	up, ok := t.uploads[id]
	if !ok {
		up = &multipartUpload{ready: make(chan struct{}), key: key, parts: make(map[int32]string)}
		t.uploads[id] = up
	}
	t.mu.Unlock()

	if ok {
		select {
		case <-up.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if up.err != nil {
			// Let the next request try again.
			return t.start(ctx, id, key, contentType)
		}
		return up, nil
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := t.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		up.err = err
		t.mu.Lock()
		delete(t.uploads, id)
		t.mu.Unlock()
		close(up.ready)
		return nil, err
	}

	up.uploadID = aws.ToString(out.UploadId)
	close(up.ready)

	t.logger.Debug("multipart upload created",
		"bucket", t.bucket,
		"key", key,
		"upload_id", up.uploadID,
	)
	return up, nil
}

func (t *Transport) lookup(id string) *multipartUpload {
	t.mu.Lock()
	up := t.uploads[id]
	t.mu.Unlock()

	if up == nil {
		return nil
	}
	<-up.ready
	if up.err != nil {
		return nil
	}
	return up
}

func (t *Transport) test(ctx context.Context, id string, number int32) (*uploader.Response, error) {
	up := t.lookup(id)
	if up == nil {
		return &uploader.Response{StatusCode: http.StatusNoContent}, nil
	}

	up.mu.Lock()
	_, stored := up.parts[number]
	up.mu.Unlock()
	if stored {
		return jsonResponse(http.StatusOK, map[string]any{"stored": true})
	}

	input := &s3.ListPartsInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(up.key),
		UploadId: aws.String(up.uploadID),
	}
	for {
		out, err := t.client.ListParts(ctx, input)
		if err != nil {
			return errorResponse(err)
		}
		for _, p := range out.Parts {
			if aws.ToInt32(p.PartNumber) == number {
				up.mu.Lock()
				up.parts[number] = aws.ToString(p.ETag)
				up.mu.Unlock()
				return jsonResponse(http.StatusOK, map[string]any{"stored": true})
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.PartNumberMarker = out.NextPartNumberMarker
	}

	return &uploader.Response{StatusCode: http.StatusNoContent}, nil
}

func (t *Transport) put(
	ctx context.Context,
	up *multipartUpload,
	number int32,
	total int,
	req *uploader.Request,
	progress uploader.ProgressFunc,
) (*uploader.Response, error) {
	size := int64(len(req.Data))
	if progress != nil {
		progress(0, size)
	}

	body := &partBody{r: bytes.NewReader(req.Data)}
	out, err := t.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(up.key),
		UploadId:      aws.String(up.uploadID),
		PartNumber:    aws.Int32(number),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	body.close()
	if err != nil {
		return errorResponse(err)
	}
	if progress != nil {
		progress(size, size)
	}

	etag := aws.ToString(out.ETag)

	up.mu.Lock()
	up.parts[number] = etag
	finish := len(up.parts) == total && !up.completing && !up.completed
	if finish {
		up.completing = true
	}
	up.mu.Unlock()

	if !finish {
		return jsonResponse(http.StatusOK, map[string]any{"etag": etag, "complete": false})
	}

	location, err := t.complete(ctx, up)
	up.mu.Lock()
	up.completing = false
	if err == nil {
		up.completed = true
	}
	up.mu.Unlock()
	if err != nil {
		return errorResponse(err)
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"etag":     etag,
		"complete": true,
		"key":      up.key,
		"location": location,
	})
}

func (t *Transport) complete(ctx context.Context, up *multipartUpload) (string, error) {
	up.mu.Lock()
	parts := make([]types.CompletedPart, 0, len(up.parts))
	for n, etag := range up.parts {
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(n),
		})
	}
	up.mu.Unlock()

	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	out, err := t.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(t.bucket),
		Key:             aws.String(up.key),
		UploadId:        aws.String(up.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return "", err
	}

	t.logger.Info("multipart upload completed",
		"bucket", t.bucket,
		"key", up.key,
		"parts", len(parts),
	)
	return aws.ToString(out.Location), nil
}

// Abort aborts the multipart upload of a file, discarding its stored parts.
// Completed uploads are only forgotten.
func (t *Transport) Abort(ctx context.Context, identifier string) error {
	up := t.lookup(identifier)
	if up == nil {
		return nil
	}

	t.mu.Lock()
	delete(t.uploads, identifier)
	t.mu.Unlock()

	up.mu.Lock()
	completed := up.completed
	up.mu.Unlock()
	if completed {
		return nil
	}

	_, err := t.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(up.key),
		UploadId: aws.String(up.uploadID),
	})
	if err != nil {
		return errors.NewError("s3target.abort", err).WithFile(identifier)
	}

	t.logger.Debug("multipart upload aborted", "key", up.key, "upload_id", up.uploadID)
	return nil
}

// Key returns the object key used for identifier, if an upload was started.
func (t *Transport) Key(identifier string) (string, bool) {
	up := t.lookup(identifier)
	if up == nil {
		return "", false
	}
	return up.key, true
}

// errorResponse turns S3 API errors into responses carrying their HTTP status
// so the uploader's status lists classify them. Errors without a response
// are returned unchanged and retried as network failures.
func errorResponse(err error) (*uploader.Response, error) {
	var statusErr interface{ HTTPStatusCode() int }
	if stderrors.As(err, &statusErr) && statusErr.HTTPStatusCode() > 0 {
		return textResponse(statusErr.HTTPStatusCode(), apiMessage(err)), nil
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return textResponse(statusForCode(apiErr.ErrorCode()), apiMessage(err)), nil
	}

	return nil, err
}

func apiMessage(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}

func statusForCode(code string) int {
	switch code {
	case "NoSuchUpload", "NoSuchBucket", "NoSuchKey":
		return http.StatusNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return http.StatusForbidden
	case "SlowDown", "ServiceUnavailable":
		return http.StatusServiceUnavailable
	case "RequestTimeout":
		return http.StatusRequestTimeout
	case "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func textResponse(code int, msg string) *uploader.Response {
	return &uploader.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:       []byte(msg),
	}
}

func jsonResponse(code int, v any) (*uploader.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &uploader.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
	}, nil
}

var errPartBodyClosed = stderrors.New("part body closed")

// partBody is a seekable part payload that stops serving reads once the
// UploadPart call has returned, since the uploader recycles req.Data after
// Do.
type partBody struct {
	mu     sync.Mutex
	closed bool
	r      *bytes.Reader
}

func (b *partBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errPartBodyClosed
	}
	return b.r.Read(p)
}

func (b *partBody) Seek(offset int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errPartBodyClosed
	}
	return b.r.Seek(offset, whence)
}

func (b *partBody) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
