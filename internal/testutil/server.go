package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// ChunkRequest is a request as received by ChunkServer.
type ChunkRequest struct {
	Method      string
	Test        bool
	Params      map[string]string
	Header      http.Header
	Data        []byte
	FileName    string
	ContentType string
}

// ChunkNumber returns the parsed chunkNumber param, or 0.
func (r ChunkRequest) ChunkNumber() int {
	n, _ := strconv.Atoi(r.Params["chunkNumber"])
	return n
}

// ChunkServer is an in-process chunk receiver. It stores uploaded chunks
// per identifier and answers test requests with 200 for stored chunks and
// 204 otherwise.
type ChunkServer struct {
	*httptest.Server

	// FileParameterName is the multipart field holding the payload.
	FileParameterName string

	// StatusFunc, when set, can override the status of a request by
	// returning a non-zero code. The chunk is not stored in that case.
	StatusFunc func(ChunkRequest) int

	mu       sync.Mutex
	requests []ChunkRequest
	chunks   map[string]map[int][]byte
}

// NewChunkServer starts a receiver that is closed when the test ends.
func NewChunkServer(t *testing.T) *ChunkServer {
	t.Helper()

	s := &ChunkServer{
		FileParameterName: "file",
		chunks:            make(map[string]map[int][]byte),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *ChunkServer) handle(w http.ResponseWriter, r *http.Request) {
	req, err := s.parse(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	statusFunc := s.StatusFunc
	s.mu.Unlock()

	if statusFunc != nil {
		if code := statusFunc(req); code != 0 {
			w.WriteHeader(code)
			return
		}
	}

	id := req.Params["identifier"]
	num := req.ChunkNumber()

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Test {
		if _, ok := s.chunks[id][num]; ok {
			writeJSON(w, http.StatusOK, map[string]any{"stored": true, "chunks": s.storedLocked(id)})
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s.chunks[id] == nil {
		s.chunks[id] = make(map[int][]byte)
	}
	s.chunks[id][num] = req.Data
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *ChunkServer) parse(r *http.Request) (ChunkRequest, error) {
	req := ChunkRequest{
		Method: r.Method,
		Test:   r.Method == http.MethodGet,
		Params: make(map[string]string),
		Header: r.Header.Clone(),
	}
	for k, v := range r.URL.Query() {
		req.Params[k] = v[0]
	}

	if req.Test {
		return req, nil
	}

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, err
		}
		for k, v := range r.MultipartForm.Value {
			req.Params[k] = v[0]
		}
		file, hdr, err := r.FormFile(s.FileParameterName)
		if err != nil {
			return req, err
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			return req, err
		}
		req.Data = data
		req.FileName = hdr.Filename
		req.ContentType = hdr.Header.Get("Content-Type")
		return req, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	req.Data = data
	req.ContentType = ct
	return req, nil
}

func (s *ChunkServer) storedLocked(id string) []int {
	nums := make([]int, 0, len(s.chunks[id]))
	for n := range s.chunks[id] {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Requests returns every received request in arrival order.
func (s *ChunkServer) Requests() []ChunkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChunkRequest(nil), s.requests...)
}

// UploadRequests returns the received requests that carried a payload.
func (s *ChunkServer) UploadRequests() []ChunkRequest {
	var out []ChunkRequest
	for _, r := range s.Requests() {
		if !r.Test {
			out = append(out, r)
		}
	}
	return out
}

// Store marks chunk num of identifier as already received.
func (s *ChunkServer) Store(id string, num int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[id] == nil {
		s.chunks[id] = make(map[int][]byte)
	}
	s.chunks[id][num] = data
}

// Assemble concatenates the stored chunks of identifier in chunk order.
func (s *ChunkServer) Assemble(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []byte
	for _, n := range s.storedLocked(id) {
		out = append(out, s.chunks[id][n]...)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
