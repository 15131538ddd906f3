package uploader

import "time"

// EventKind names an uploader event.
type EventKind string

const (
	EventFileAdded     EventKind = "fileAdded"
	EventFileRemoved   EventKind = "fileRemoved"
	EventUploadStart   EventKind = "uploadStart"
	EventChunkProgress EventKind = "chunkProgress"
	EventFileProgress  EventKind = "fileProgress"
	EventChunkSuccess  EventKind = "chunkSuccess"
	EventFileSuccess   EventKind = "fileSuccess"
	EventChunkError    EventKind = "chunkError"
	EventFileError     EventKind = "fileError"
	EventFileRetry     EventKind = "fileRetry"
	EventComplete      EventKind = "complete"
)

// Event is delivered to subscribers in the order state changed.
// File and Chunk are nil when not applicable; Response is the response that
// caused the event, synthesised for chunks skipped by the chunk checker.
type Event struct {
	Kind     EventKind
	File     *File
	Chunk    *Chunk
	Response *Response
	Err      error
	Time     time.Time
}

// Handler receives events on the uploader's dispatcher goroutine.
// Handlers may call Uploader, File and Chunk methods, but not Close.
type Handler func(Event)
