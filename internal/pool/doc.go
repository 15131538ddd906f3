// Package pool recycles the byte buffers that hold chunk payloads and encoded
// request bodies.
//
// Buffers are grouped in size classes. A buffer is only returned to a class
// when its capacity matches that class exactly, so oversized one-off buffers
// are left to the garbage collector.
package pool
