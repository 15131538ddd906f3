package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/uploader/errors"
)

// ValidateChunkSize ensures the chunk size is positive.
func ValidateChunkSize(size int64) error {
	if size <= 0 {
		return errors.NewError("validateChunkSize", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("chunk size must be positive, got %d", size))
	}
	return nil
}

// ValidateConcurrency ensures at least one chunk can be in flight.
func ValidateConcurrency(n int) error {
	if n < 1 {
		return errors.NewError("validateConcurrency", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("simultaneous uploads must be at least 1, got %d", n))
	}
	return nil
}

// ValidateMaxRetries ensures the retry budget is not negative.
func ValidateMaxRetries(n int) error {
	if n < 0 {
		return errors.NewError("validateMaxRetries", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("max chunk retries cannot be negative, got %d", n))
	}
	return nil
}

// ValidateTarget ensures the upload target is an absolute http(s) URL.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.NewError("validateTarget", errors.ErrInvalidInput).
			WithMessage("target cannot be empty")
	}

	u, err := url.Parse(target)
	if err != nil {
		return errors.NewError("validateTarget", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("target is not a valid URL: %v", err))
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewError("validateTarget", errors.ErrInvalidInput).
			WithMessage("target must use http or https")
	}

	if u.Host == "" {
		return errors.NewError("validateTarget", errors.ErrInvalidInput).
			WithMessage("target must include a host")
	}

	return nil
}

var allowedMethods = map[string]bool{
	http.MethodGet:   true,
	http.MethodHead:  true,
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// ValidateMethod ensures an HTTP method is one the transport can send.
func ValidateMethod(method string) error {
	if !allowedMethods[strings.ToUpper(method)] {
		return errors.NewError("validateMethod", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("unsupported HTTP method %q", method))
	}
	return nil
}

// ValidateStatuses ensures the success and permanent status lists hold valid
// HTTP codes and do not overlap.
func ValidateStatuses(success, permanent []int) error {
	if len(success) == 0 {
		return errors.NewError("validateStatuses", errors.ErrInvalidInput).
			WithMessage("at least one success status is required")
	}

	seen := make(map[int]bool, len(success))
	for _, code := range success {
		if !validStatus(code) {
			return errors.NewError("validateStatuses", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("invalid success status %d", code))
		}
		seen[code] = true
	}

	for _, code := range permanent {
		if !validStatus(code) {
			return errors.NewError("validateStatuses", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("invalid permanent error status %d", code))
		}
		if seen[code] {
			return errors.NewError("validateStatuses", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("status %d is both a success and a permanent error", code))
		}
	}

	return nil
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}

// ValidateParameterName ensures a form field name is usable in a multipart body.
func ValidateParameterName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewError("validateParameterName", errors.ErrInvalidInput).
			WithMessage("file parameter name cannot be empty")
	}
	if strings.ContainsAny(name, "\"\r\n") {
		return errors.NewError("validateParameterName", errors.ErrInvalidInput).
			WithMessage("file parameter name cannot contain quotes or line breaks")
	}
	return nil
}

// ValidateRelativePath rejects relative paths that escape their root.
// Empty paths are allowed; the file name is used instead.
func ValidateRelativePath(path string) error {
	if hasPathTraversal(path) {
		return errors.NewError("validateRelativePath", errors.ErrInvalidInput).
			WithMessage("relative path cannot contain path traversal sequences")
	}
	if hasControlCharacters(path) {
		return errors.NewError("validateRelativePath", errors.ErrInvalidInput).
			WithMessage("relative path cannot contain control characters")
	}
	return nil
}

// ValidateObjectKey validates an object key derived from a relative path.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithMessage("object key cannot be empty")
	}

	if hasPathTraversal(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithMessage("object key cannot contain path traversal sequences")
	}

	// S3 supports keys up to 1024 bytes
	if len(key) > 1024 {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithMessage("object key cannot exceed 1024 characters")
	}

	if hasControlCharacters(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

func hasPathTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func hasControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
