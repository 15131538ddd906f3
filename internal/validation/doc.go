// Package validation checks uploader options and file metadata before they
// are used to build requests.
//
// All failures wrap errors.ErrInvalidInput so callers can test for them with
// errors.IsInvalidInput.
package validation
