package errors

import "errors"

// ErrorCode classifies why a chunk or file upload failed.
// Codes are string-based so they read well in logs and JSON event payloads.
type ErrorCode string

const (
	// Validation errors.

	// CodeInvalidInput indicates an option or argument was rejected.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeDuplicate indicates a file with the same identifier is already queued.
	CodeDuplicate ErrorCode = "DUPLICATE_FILE"

	// CodeNotFound indicates the referenced file is not tracked by the uploader.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Transfer errors.

	// CodePermanent indicates the server answered with a permanent error status.
	CodePermanent ErrorCode = "PERMANENT_STATUS"

	// CodeRetriesExhausted indicates a chunk failed more times than allowed.
	CodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// CodeRejected indicates the response processor refused a response.
	CodeRejected ErrorCode = "RESPONSE_REJECTED"

	// Source errors.

	// CodeReadFailed indicates reading the chunk bytes failed.
	CodeReadFailed ErrorCode = "READ_FAILED"

	// CodePreprocessFailed indicates the preprocess hook failed.
	CodePreprocessFailed ErrorCode = "PREPROCESS_FAILED"

	// Lifecycle errors.

	// CodeClosed indicates the uploader was closed.
	CodeClosed ErrorCode = "CLOSED"

	// CodeUnknown indicates an unclassified error.
	CodeUnknown ErrorCode = "UNKNOWN"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrDuplicateFile, CodeDuplicate},
	{ErrFileNotFound, CodeNotFound},
	{ErrPermanent, CodePermanent},
	{ErrRetriesExhausted, CodeRetriesExhausted},
	{ErrRejected, CodeRejected},
	{ErrReadFailed, CodeReadFailed},
	{ErrPreprocessFailed, CodePreprocessFailed},
	{ErrClosed, CodeClosed},
}

// CodeOf returns the ErrorCode of the first sentinel found in err's chain.
// A nil error has an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
