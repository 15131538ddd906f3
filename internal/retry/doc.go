// Package retry computes the delay before a failed chunk is sent again.
package retry
