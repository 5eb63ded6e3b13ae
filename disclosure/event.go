package disclosure

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType mirrors the three kinds of output the session endpoint streams
type EventType string

const (
	EventMessage EventType = "message"
	EventLogging EventType = "logging"
	EventError   EventType = "error"
)

// Stage is the session step an event reports on
type Stage string

const (
	StageConfigured Stage = "configured"
	StageNotarized  Stage = "notarized"
	StageParsed     Stage = "parsed"
	StageResolved   Stage = "resolved"
	StageCommitted  Stage = "committed"
	StageFailed     Stage = "failed"
)

// Event is a progress, log or error report for one session
type Event struct {
	Type      EventType      `json:"type"`
	Stage     Stage          `json:"stage"`
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Error     *Error         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// String renders a single log line
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", e.Timestamp.Format(time.RFC3339), e.Type, e.Stage)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", e.SessionID)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Error != nil {
		fmt.Fprintf(&b, " (%s)", e.Error.Error())
	}
	return b.String()
}

// JSON renders the wire form
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventSink receives session events in order
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// MarshalJSON adds the rendered cause, which is otherwise dropped
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    ErrorKind `json:"kind"`
		Stage   Stage     `json:"stage"`
		Reason  string    `json:"reason"`
		Message string    `json:"message"`
		Cause   string    `json:"cause,omitempty"`
	}
	w := wire{Kind: e.Kind, Stage: e.Stage, Reason: string(e.Reason), Message: e.Message}
	if e.Cause != nil {
		w.Cause = e.Cause.Error()
	}
	return json.Marshal(w)
}

// emitter stamps events with a session id and time
type emitter struct {
	sink      EventSink
	sessionID string
	now       func() time.Time
}

func (em *emitter) emit(typ EventType, stage Stage, details map[string]any, format string, args ...any) {
	em.sink.Emit(Event{
		Type:      typ,
		Stage:     stage,
		SessionID: em.sessionID,
		Message:   fmt.Sprintf(format, args...),
		Details:   details,
		Timestamp: em.now(),
	})
}

func (em *emitter) fail(err *Error) {
	em.sink.Emit(Event{
		Type:      EventError,
		Stage:     StageFailed,
		SessionID: em.sessionID,
		Message:   err.Message,
		Error:     err,
		Timestamp: em.now(),
	})
}
