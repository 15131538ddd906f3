package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBody_Close(t *testing.T) {
	var released int
	body := newProgressBody([]byte("0123456789"), func() { released++ }, nil)

	buf := make([]byte, 4)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, body.Close())
	require.NoError(t, body.Close())
	assert.Equal(t, 1, released)

	n, err = body.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, errBodyClosed)
}

func TestProgressBody_CloseWaitsForRead(t *testing.T) {
	data := make([]byte, 1<<20)
	var released sync.WaitGroup
	released.Add(1)
	body := newProgressBody(data, released.Done, func(int64, int64) {})

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := body.Read(buf); err != nil {
				done <- err
				return
			}
		}
	}()

	require.NoError(t, body.Close())
	released.Wait()
	clear(data)

	err := <-done
	assert.True(t, err == io.EOF || err == errBodyClosed, "unexpected error %v", err)
}

func TestHTTPTransport_StopsReadingBodyOnReturn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	data := make([]byte, 4<<20)
	for i := range data {
		data[i] = byte(i)
	}

	tr := NewHTTPTransport(srv.Client())
	resp, err := tr.Do(context.Background(), &Request{
		Method:   http.MethodPost,
		URL:      srv.URL,
		Encoding: EncodingOctet,
		Data:     data,
	}, nil)
	if err == nil {
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// The caller recycles the payload once Do returns.
	clear(data)
}
