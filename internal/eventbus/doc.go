// Package eventbus delivers events to subscribers in publish order on a
// single dispatcher goroutine.
//
// Publish never blocks: the queue is unbounded, so producers may publish
// while holding their own locks and handlers may call back into them.
package eventbus
