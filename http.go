package uploader

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/internal/pool"
)

const (
	// maxResponseBody bounds how much of a response body is kept.
	maxResponseBody = 10 * 1024 * 1024

	// progressStep is the minimum number of bytes between progress reports.
	progressStep = 64 * 1024
)

// HTTPTransport sends chunk requests with net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport using client, or http.DefaultClient
// when client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *Request, progress ProgressFunc) (*Response, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", req.URL, err)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	var (
		body        *progressBody
		size        int64
		contentType string
	)

	switch {
	case req.Test || method == http.MethodGet || method == http.MethodHead:
		target.RawQuery = mergeQuery(target.Query(), req.Params)
	case req.Encoding == EncodingOctet:
		target.RawQuery = mergeQuery(target.Query(), req.Params)
		body = newProgressBody(req.Data, nil, progress)
		size = int64(len(req.Data))
		contentType = req.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	default:
		buf, ct, err := encodeMultipart(req)
		if err != nil {
			return nil, err
		}
		body = newProgressBody(buf.Bytes(), buf.release, progress)
		size = int64(buf.Len())
		contentType = ct
	}

	var reqBody io.Reader
	if body != nil {
		// net/http may keep reading the body after the response arrives.
		// Closing it here stops those reads before req.Data and the pooled
		// buffer are handed back to the caller.
		defer func() { _ = body.Close() }()
		reqBody = body
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.ContentLength = size
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func mergeQuery(q url.Values, params Params) string {
	for _, k := range params.Keys() {
		q.Set(k, params[k])
	}
	return q.Encode()
}

var errBodyClosed = stderrors.New("request body closed")

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// pooledBuffer is a bytes.Buffer whose initial storage comes from the pool.
type pooledBuffer struct {
	*bytes.Buffer
	backing []byte
}

func (b *pooledBuffer) release() {
	pool.Put(b.backing)
}

func encodeMultipart(req *Request) (*pooledBuffer, string, error) {
	backing := pool.Get(len(req.Data) + 4096)
	buf := &pooledBuffer{Buffer: bytes.NewBuffer(backing), backing: backing}

	w := multipart.NewWriter(buf)
	for _, k := range req.Params.Keys() {
		if err := w.WriteField(k, req.Params[k]); err != nil {
			buf.release()
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	name := req.FileParameterName
	if name == "" {
		name = "file"
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = "blob"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		buf.release()
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		buf.release()
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		buf.release()
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}

// progressBody reports upload progress as net/http reads the request body.
// Once closed it refuses further reads, and the release func runs after any
// read in progress has returned.
type progressBody struct {
	mu       sync.Mutex
	closed   bool
	r        *bytes.Reader
	total    int64
	loaded   int64
	reported int64
	progress ProgressFunc
	release  func()
}

func newProgressBody(data []byte, release func(), progress ProgressFunc) *progressBody {
	return &progressBody{
		r:        bytes.NewReader(data),
		total:    int64(len(data)),
		progress: progress,
		release:  release,
	}
}

func (p *progressBody) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errBodyClosed
	}
	n, err := p.r.Read(b)
	p.loaded += int64(n)
	report := p.progress != nil && (p.loaded-p.reported >= progressStep || (p.loaded == p.total && p.reported != p.total))
	if report {
		p.reported = p.loaded
	}
	loaded := p.loaded
	p.mu.Unlock()

	if report {
		p.progress(loaded, p.total)
	}
	return n, err
}

func (p *progressBody) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.release != nil {
		p.release()
	}
	return nil
}
