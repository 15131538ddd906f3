package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
)

func TestValidateChunkSize(t *testing.T) {
	assert.NoError(t, ValidateChunkSize(1))
	assert.NoError(t, ValidateChunkSize(1<<20))

	err := ValidateChunkSize(0)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "chunk size must be positive")
	assert.Error(t, ValidateChunkSize(-5))
}

func TestValidateConcurrency(t *testing.T) {
	assert.NoError(t, ValidateConcurrency(1))
	assert.Error(t, ValidateConcurrency(0))
}

func TestValidateMaxRetries(t *testing.T) {
	assert.NoError(t, ValidateMaxRetries(0))
	assert.NoError(t, ValidateMaxRetries(3))
	assert.Error(t, ValidateMaxRetries(-1))
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantError bool
		errMsg    string
	}{
		{"valid_http", "http://localhost:8080/upload", false, ""},
		{"valid_https", "https://example.com/upload?x=1", false, ""},
		{"empty", "", true, "target cannot be empty"},
		{"relative", "/upload", true, "target must use http or https"},
		{"ftp", "ftp://example.com/upload", true, "target must use http or https"},
		{"no_host", "http:///upload", true, "target must include a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.target)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateMethod(t *testing.T) {
	for _, m := range []string{"GET", "post", "PUT", "PATCH", "HEAD"} {
		assert.NoError(t, ValidateMethod(m), m)
	}
	assert.Error(t, ValidateMethod("DELETE"))
	assert.Error(t, ValidateMethod(""))
}

func TestValidateStatuses(t *testing.T) {
	tests := []struct {
		name      string
		success   []int
		permanent []int
		errMsg    string
	}{
		{"defaults", []int{200, 201, 202}, []int{404, 415, 500, 501}, ""},
		{"no permanent", []int{200}, nil, ""},
		{"empty success", nil, []int{404}, "at least one success status is required"},
		{"bad success", []int{99}, nil, "invalid success status 99"},
		{"bad permanent", []int{200}, []int{600}, "invalid permanent error status 600"},
		{"overlap", []int{200, 404}, []int{404}, "status 404 is both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatuses(tt.success, tt.permanent)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestValidateParameterName(t *testing.T) {
	assert.NoError(t, ValidateParameterName("file"))
	assert.Error(t, ValidateParameterName(" "))
	assert.Error(t, ValidateParameterName(`fi"le`))
	assert.Error(t, ValidateParameterName("fi\nle"))
}

func TestValidateRelativePath(t *testing.T) {
	tests := []struct {
		path      string
		wantError bool
	}{
		{"", false},
		{"a.txt", false},
		{"dir/sub/a.txt", false},
		{"dir/..hidden", false},
		{"../a.txt", true},
		{"dir/../../a.txt", true},
		{`dir\..\a.txt`, true},
		{"a\x00.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateRelativePath(tt.path)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	assert.NoError(t, ValidateObjectKey("uploads/a.txt"))
	assert.ErrorContains(t, ValidateObjectKey(""), "object key cannot be empty")
	assert.ErrorContains(t, ValidateObjectKey("a/../b"), "path traversal")
	assert.ErrorContains(t, ValidateObjectKey(strings.Repeat("k", 1025)), "cannot exceed 1024")
	assert.ErrorContains(t, ValidateObjectKey("a\tb"), "control characters")
}
