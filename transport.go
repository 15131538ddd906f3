package uploader

import (
	"context"
	"net/http"
	"net/url"
	"sort"
)

// Encoding selects how an upload request carries the chunk bytes.
type Encoding string

const (
	// EncodingMultipart sends params as form fields and the bytes as a file part.
	EncodingMultipart Encoding = "multipart"
	// EncodingOctet sends params in the query string and the bytes as the raw body.
	EncodingOctet Encoding = "octet"
)

// Params are the fields sent with every test and upload request.
type Params map[string]string

// Well known param names.
const (
	ParamChunkNumber      = "chunkNumber"
	ParamChunkSize        = "chunkSize"
	ParamCurrentChunkSize = "currentChunkSize"
	ParamTotalSize        = "totalSize"
	ParamIdentifier       = "identifier"
	ParamFilename         = "filename"
	ParamRelativePath     = "relativePath"
	ParamTotalChunks      = "totalChunks"
)

// Keys returns the param names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that can be modified independently.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Values converts the params to url.Values.
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// Request is a single test or upload exchange for one chunk.
type Request struct {
	// Method is the HTTP method (GET for test requests by default)
	Method string

	// URL is the resolved target
	URL string

	// Header holds the resolved custom headers
	Header http.Header

	// Params are the chunk fields after the params processor ran
	Params Params

	// Data is the chunk payload; nil for test requests
	Data []byte

	// Encoding selects the body layout for upload requests
	Encoding Encoding

	// FileParameterName is the multipart field holding the payload
	FileParameterName string

	// FileName is the name reported in the multipart file part
	FileName string

	// ContentType is the detected type of the source file
	ContentType string

	// Test marks an existence probe that carries no payload
	Test bool
}

// Response is the outcome of a request as seen by the uploader.
type Response struct {
	// StatusCode is the HTTP status, or 0 when no response was received
	StatusCode int

	// Header holds the response headers, if any
	Header http.Header

	// Body is the response payload
	Body []byte

	// Skipped is set on responses synthesised for chunks found on the server
	// by the chunk checker
	Skipped bool
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// ProgressFunc receives the number of payload bytes sent so far.
type ProgressFunc func(loaded, total int64)

// Transport sends chunk requests.
//
// Do returns an error only when no response could be obtained. Such failures
// are treated as status 0 and retried within the chunk's retry budget.
// Implementations must honour ctx cancellation; the uploader cancels ctx to
// abort a chunk. req.Data may be recycled once Do returns, so nothing may
// read it afterwards.
type Transport interface {
	Do(ctx context.Context, req *Request, progress ProgressFunc) (*Response, error)
}
