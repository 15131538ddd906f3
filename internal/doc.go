// Package internal contains implementation details of the uploader that are
// not part of its public API.
package internal
