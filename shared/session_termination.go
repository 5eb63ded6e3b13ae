package shared

import (
	"sync"

	"go.uber.org/zap"
)

// TerminationReason represents the reason a session or connection was aborted
type TerminationReason string

const (
	// Configuration problems in a session request
	ReasonInvalidConfiguration  TerminationReason = "invalid_configuration"
	ReasonInvalidSessionRequest TerminationReason = "invalid_session_request"

	// Failures reported by or while talking to the notarization service
	ReasonNotaryFailure    TerminationReason = "notary_failure"
	ReasonNetworkFailure   TerminationReason = "network_failure"
	ReasonWebSocketFailure TerminationReason = "websocket_failure"
	ReasonTimeoutExceeded  TerminationReason = "timeout_exceeded"

	// Transcript problems, never downgraded
	ReasonTranscriptParseFailed  TerminationReason = "transcript_parse_failed"
	ReasonUnexpectedStatus       TerminationReason = "unexpected_response_status"
	ReasonRangeInvariantViolated TerminationReason = "range_invariant_violated"
	ReasonDisclosureFailed       TerminationReason = "disclosure_commit_failed"

	// Protocol violations on the session endpoint
	ReasonUnknownMessageType    TerminationReason = "unknown_message_type"
	ReasonTooManyProtocolErrors TerminationReason = "too_many_protocol_errors"

	ReasonInternalError TerminationReason = "internal_error"
)

// TerminationSeverity indicates how critical the termination reason is
type TerminationSeverity int

const (
	// SeverityLow - counted per connection, tolerated up to a threshold
	SeverityLow TerminationSeverity = iota
	// SeverityMedium - aborts the session, the service continues
	SeverityMedium
	// SeverityHigh - disclosure correctness is at stake, aborts the session
	SeverityHigh
)

func (s TerminationSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "unknown"
}

// Severity returns the severity level for a termination reason
func (r TerminationReason) Severity() TerminationSeverity {
	switch r {
	case ReasonTranscriptParseFailed,
		ReasonRangeInvariantViolated,
		ReasonDisclosureFailed:
		return SeverityHigh

	case ReasonInvalidSessionRequest,
		ReasonUnknownMessageType:
		return SeverityLow

	default:
		return SeverityMedium
	}
}

// IsTranscriptError reports reasons caused by the transcript contents
func (r TerminationReason) IsTranscriptError() bool {
	switch r {
	case ReasonTranscriptParseFailed, ReasonUnexpectedStatus, ReasonRangeInvariantViolated:
		return true
	default:
		return false
	}
}

// SessionTerminator decides whether a failure ends a connection. Low severity
// protocol errors are counted per key and tolerated up to maxErrors.
type SessionTerminator struct {
	logger      *Logger
	errorCounts map[string]int
	errorMutex  sync.Mutex
	maxErrors   int
}

// NewSessionTerminator creates a new session terminator
func NewSessionTerminator(logger *Logger) *SessionTerminator {
	return &SessionTerminator{
		logger:      logger,
		errorCounts: make(map[string]int),
		maxErrors:   3,
	}
}

// SetMaxErrors sets the maximum number of protocol errors before termination
func (st *SessionTerminator) SetMaxErrors(max int) {
	st.maxErrors = max
}

// ShouldTerminate logs the failure and reports whether the caller must stop
func (st *SessionTerminator) ShouldTerminate(key string, reason TerminationReason, err error) bool {
	if reason.Severity() != SeverityLow {
		st.logger.SessionTerminated(key, reason, zap.Error(err))
		return true
	}

	st.errorMutex.Lock()
	st.errorCounts[key]++
	count := st.errorCounts[key]
	st.errorMutex.Unlock()

	if count >= st.maxErrors {
		st.logger.SessionTerminated(key, ReasonTooManyProtocolErrors,
			zap.Int("error_count", count),
			zap.String("original_reason", string(reason)),
			zap.Error(err))
		return true
	}

	st.logger.WithSession(key).Warn("Protocol error (counted)",
		zap.String("reason", string(reason)),
		zap.Int("count", count),
		zap.Int("max_errors", st.maxErrors),
		zap.Error(err))
	return false
}

// ErrorCount returns the current error count for a key
func (st *SessionTerminator) ErrorCount(key string) int {
	st.errorMutex.Lock()
	defer st.errorMutex.Unlock()
	return st.errorCounts[key]
}

// Cleanup removes error tracking for a key
func (st *SessionTerminator) Cleanup(key string) {
	st.errorMutex.Lock()
	delete(st.errorCounts, key)
	st.errorMutex.Unlock()
}
