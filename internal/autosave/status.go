package autosave

import (
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/drafthouse/internal/model"
)

// Phase is the controller's position in the save cycle.
type Phase int

const (
	// Idle: no pending timer and no call in flight.
	Idle Phase = iota
	// PendingSave: the debounce timer is armed.
	PendingSave
	// Saving: a persistence call is in flight.
	Saving
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PendingSave:
		return "pending"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Kind string

const (
	KindSave    Kind = "save"
	KindPublish Kind = "publish"
)

// Trigger records what caused a persistence call.
type Trigger string

const (
	TriggerDebounce Trigger = "debounce"
	TriggerBackstop Trigger = "backstop"
	TriggerManual   Trigger = "manual"
)

// Status is what the presentation layer renders.
type Status struct {
	Phase Phase

	// Zero until the first successful call of this session.
	LastSaved time.Time
	LastErr   error

	// Dirty is set while the draft holds edits that were not saved yet.
	Dirty bool

	// Queued is set while a manual save or publish waits for the in-flight
	// call to resolve.
	Queued bool
}

func (s Status) equal(o Status) bool {
	return s.Phase == o.Phase &&
		s.LastSaved.Equal(o.LastSaved) &&
		s.LastErr == o.LastErr &&
		s.Dirty == o.Dirty &&
		s.Queued == o.Queued
}

// SaveEvent is the outcome of one persistence call.
type SaveEvent struct {
	Kind    Kind
	Trigger Trigger
	At      time.Time

	// ID of the draft after the call. Set on success only.
	ID model.PostID

	Err error
}

type (
	StatusFunc func(Status)
	EventFunc  func(SaveEvent)
)

var (
	ErrClosed     = errors.New("autosave: controller closed")
	ErrEmptyDraft = errors.New("autosave: draft is empty")
)

// SaveError wraps a failed persistence call. Op is "save" or "publish".
type SaveError struct {
	Op  Kind
	Err error
}

func (e *SaveError) Error() string {
	return string(e.Op) + " failed: " + e.Err.Error()
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
