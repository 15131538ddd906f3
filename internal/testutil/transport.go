package testutil

import (
	"context"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
)

// MockTransport is a mock implementation of uploader.Transport.
// It records every request and tracks how many were in flight at once.
// Without DoFunc every request succeeds with status 200.
type MockTransport struct {
	DoFunc func(context.Context, *uploader.Request, uploader.ProgressFunc) (*uploader.Response, error)

	mu          sync.Mutex
	requests    []*uploader.Request
	inFlight    int
	maxInFlight int
}

// Do records req and delegates to DoFunc.
func (m *MockTransport) Do(
	ctx context.Context,
	req *uploader.Request,
	progress uploader.ProgressFunc,
) (*uploader.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.DoFunc != nil {
		return m.DoFunc(ctx, req, progress)
	}
	if progress != nil {
		n := int64(len(req.Data))
		progress(n, n)
	}
	return &uploader.Response{StatusCode: 200}, nil
}

// Requests returns every recorded request in arrival order.
func (m *MockTransport) Requests() []*uploader.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*uploader.Request(nil), m.requests...)
}

// UploadRequests returns the recorded requests that carried a payload.
func (m *MockTransport) UploadRequests() []*uploader.Request {
	var out []*uploader.Request
	for _, r := range m.Requests() {
		if !r.Test {
			out = append(out, r)
		}
	}
	return out
}

// TestRequests returns the recorded test requests.
func (m *MockTransport) TestRequests() []*uploader.Request {
	var out []*uploader.Request
	for _, r := range m.Requests() {
		if r.Test {
			out = append(out, r)
		}
	}
	return out
}

// MaxInFlight returns the highest number of concurrent requests seen.
func (m *MockTransport) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// ChunkLabel formats a request as "identifier#chunkNumber".
func ChunkLabel(r *uploader.Request) string {
	return r.Params[uploader.ParamIdentifier] + "#" + r.Params[uploader.ParamChunkNumber]
}
