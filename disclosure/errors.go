package disclosure

import (
	"context"
	"errors"
	"fmt"
	"net"

	"selective-disclosure/document"
	"selective-disclosure/grammar"
	"selective-disclosure/rangeset"
	"selective-disclosure/shared"
)

// ErrorKind classifies why a session was aborted
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration" // bad URI, header syntax, missing host
	KindSession       ErrorKind = "session"       // notarization service or network failure
	KindParse         ErrorKind = "parse"         // transcript does not match its grammar
	KindResolve       ErrorKind = "resolve"       // keypath or range invariant failure
	KindDisclosure    ErrorKind = "disclosure"    // commitment rejected
)

// Error is the error type returned by Session.Run
type Error struct {
	Kind    ErrorKind                `json:"kind"`
	Stage   Stage                    `json:"stage"`
	Reason  shared.TerminationReason `json:"reason"`
	Message string                   `json:"message"`
	Cause   error                    `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Cause
}

func newConfigError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Stage:   StageConfigured,
		Reason:  shared.ReasonInvalidConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

func newSessionError(stage Stage, message string, cause error) *Error {
	reason := shared.ReasonNotaryFailure
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		reason = shared.ReasonTimeoutExceeded
	case isNetworkError(cause):
		reason = shared.ReasonNetworkFailure
	}
	return &Error{Kind: KindSession, Stage: stage, Reason: reason, Message: message, Cause: cause}
}

func newParseError(direction string, cause error) *Error {
	return &Error{
		Kind:    KindParse,
		Stage:   StageParsed,
		Reason:  shared.ReasonTranscriptParseFailed,
		Message: fmt.Sprintf("%s transcript rejected", direction),
		Cause:   cause,
	}
}

func newResolveError(direction string, cause error) *Error {
	reason := shared.ReasonRangeInvariantViolated
	var kerr *document.KeypathError
	if errors.As(cause, &kerr) {
		reason = shared.ReasonInvalidConfiguration
	}
	return &Error{
		Kind:    KindResolve,
		Stage:   StageResolved,
		Reason:  reason,
		Message: fmt.Sprintf("%s ranges could not be resolved", direction),
		Cause:   cause,
	}
}

func newDisclosureError(message string, cause error) *Error {
	return &Error{
		Kind:    KindDisclosure,
		Stage:   StageCommitted,
		Reason:  shared.ReasonDisclosureFailed,
		Message: message,
		Cause:   cause,
	}
}

func isNetworkError(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr)
}

// asError wraps anything that escaped the typed constructors
func asError(err error) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}
	return &Error{
		Kind:    KindSession,
		Stage:   StageFailed,
		Reason:  shared.ReasonInternalError,
		Message: "session failed",
		Cause:   err,
	}
}

// IsParseError reports whether err carries a grammar failure
func IsParseError(err error) bool {
	var perr *grammar.ParseError
	return errors.As(err, &perr)
}

// IsInvariantError reports whether err carries a range invariant violation
func IsInvariantError(err error) bool {
	var ierr *rangeset.InvariantError
	return errors.As(err, &ierr)
}
