package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "op only",
			err:  NewError("upload", ErrClosed),
			want: "upload.upload: upload: uploader closed",
		},
		{
			name: "file and chunk",
			err:  NewChunkError("upload", "file-1", 3, ErrPermanent),
			want: "upload.upload file-1#3: upload: permanent error status",
		},
		{
			name: "file with status",
			err:  NewError("test", ErrRetriesExhausted).WithFile("file-1").WithStatus(503),
			want: "upload.test file-1: status 503: upload: retries exhausted",
		},
		{
			name: "chunk without file",
			err:  NewError("read", ErrReadFailed).WithChunk(2),
			want: "upload.read chunk 2: upload: read failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewChunkError("upload", "id", 1, ErrPermanent).WithMessage("server said 415")

	assert.True(t, IsPermanent(err))
	assert.False(t, IsRetriesExhausted(err))
	assert.Contains(t, err.Error(), "server said 415")

	var target *Error
	wrapped := fmt.Errorf("file failed: %w", err)
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "id", target.File)
	assert.Equal(t, CodePermanent, target.Code())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"invalid input", NewError("validate", ErrInvalidInput), CodeInvalidInput},
		{"retries", fmt.Errorf("wrap: %w", ErrRetriesExhausted), CodeRetriesExhausted},
		{"rejected", ErrRejected, CodeRejected},
		{"closed", ErrClosed, CodeClosed},
		{"chunk error", NewChunkError("upload", "id", 2, ErrPermanent).WithStatus(415), CodePermanent},
		{"unknown", errors.New("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
