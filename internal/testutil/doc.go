// Package testutil provides mocks, an in-process chunk receiver and
// LocalStack helpers for testing the uploader.
// This package is internal and should only be used from tests.
package testutil
