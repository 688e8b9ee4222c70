package watcher

import (
	"fmt"
	"time"
)

// EventKind identifies the variant of a WatchEvent.
type EventKind int

const (
	// Created indicates a path came into existence.
	Created EventKind = iota

	// Modified indicates an existing path changed.
	Modified

	// Deleted indicates a path was removed.
	Deleted

	// Renamed indicates a path moved. Not produced by the current sources.
	Renamed

	// Error indicates a runtime watch failure. Carries a message, never a path.
	Error
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// WatchEvent is a public, immutable filesystem event. Fields are only
// reachable through accessors so a value cannot be altered after it has been
// handed to a consumer.
type WatchEvent struct {
	kind    EventKind
	path    string
	from    string
	message string
	time    time.Time
}

// NewCreated returns a Created event for path.
func NewCreated(path string) WatchEvent {
	return WatchEvent{kind: Created, path: path, time: time.Now()}
}

// NewModified returns a Modified event for path.
func NewModified(path string) WatchEvent {
	return WatchEvent{kind: Modified, path: path, time: time.Now()}
}

// NewDeleted returns a Deleted event for path.
func NewDeleted(path string) WatchEvent {
	return WatchEvent{kind: Deleted, path: path, time: time.Now()}
}

// NewRenamed returns a Renamed event from one path to another.
func NewRenamed(from, to string) WatchEvent {
	return WatchEvent{kind: Renamed, from: from, path: to, time: time.Now()}
}

// NewError returns an Error event with the given message.
func NewError(message string) WatchEvent {
	return WatchEvent{kind: Error, message: message, time: time.Now()}
}

// Kind returns the event variant.
func (e WatchEvent) Kind() EventKind { return e.kind }

// Path returns the affected path. For Renamed it is the destination; for
// Error it is always empty.
func (e WatchEvent) Path() string { return e.path }

// From returns the source path of a Renamed event.
func (e WatchEvent) From() string { return e.from }

// To returns the destination path of a Renamed event.
func (e WatchEvent) To() string {
	if e.kind != Renamed {
		return ""
	}
	return e.path
}

// Message returns the error text of an Error event.
func (e WatchEvent) Message() string { return e.message }

// Time returns when the event was constructed.
func (e WatchEvent) Time() time.Time { return e.time }

// IsError reports whether this is an Error event.
func (e WatchEvent) IsError() bool { return e.kind == Error }

func (e WatchEvent) String() string {
	switch e.kind {
	case Renamed:
		return fmt.Sprintf("renamed %s -> %s", e.from, e.path)
	case Error:
		return fmt.Sprintf("error: %s", e.message)
	default:
		return fmt.Sprintf("%s %s", e.kind, e.path)
	}
}

// RawKind is the kind of a notification as reported by an event source.
type RawKind int

const (
	// RawCreate indicates a path was created.
	RawCreate RawKind = iota

	// RawModify indicates a path's content changed.
	RawModify

	// RawRemove indicates a path was removed or moved away.
	RawRemove

	// RawAny is an ambiguous notification (metadata, unknown op).
	RawAny
)

func (k RawKind) String() string {
	switch k {
	case RawCreate:
		return "create"
	case RawModify:
		return "modify"
	case RawRemove:
		return "remove"
	default:
		return "any"
	}
}

// RawEvent is a source notification before translation.
type RawEvent struct {
	Paths []string
	Kind  RawKind
}
