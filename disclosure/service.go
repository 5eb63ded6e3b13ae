package disclosure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"selective-disclosure/shared"
)

// Service runs disclosure sessions one after another. A failed session is
// reported as an error event and never stops the loop.
type Service struct {
	notary   Notary
	defaults Defaults
	log      *shared.Logger
	timeout  time.Duration
}

// NewService creates a service. A nil log discards service-level logging.
func NewService(notary Notary, defaults Defaults, log *shared.Logger) *Service {
	if log == nil {
		log = shared.NewNopLogger()
	}
	return &Service{notary: notary, defaults: defaults, log: log}
}

// SetSessionTimeout bounds each session; zero means no bound beyond the Run context
func (s *Service) SetSessionTimeout(d time.Duration) {
	s.timeout = d
}

// Run serves requests until ctx is cancelled or requests is closed. Each
// iteration owns its own session state.
func (s *Service) Run(ctx context.Context, requests <-chan SessionRequest, sink EventSink) error {
	s.log.Info("Disclosure service loop started")
	defer s.log.Info("Disclosure service loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			s.Serve(ctx, req, sink)
		}
	}
}

// Serve runs a single session and reports its outcome to sink
func (s *Service) Serve(ctx context.Context, req SessionRequest, sink EventSink) (result *Result, err error) {
	id, idErr := uuid.NewRandom()
	if idErr != nil {
		err := &Error{
			Kind:    KindSession,
			Stage:   StageFailed,
			Reason:  shared.ReasonInternalError,
			Message: "failed to generate session ID",
			Cause:   idErr,
		}
		s.log.Critical("Failed to generate session ID", zap.Error(idErr))
		(&emitter{sink: sink, now: time.Now}).fail(err)
		return nil, err
	}
	sessionID := id.String()
	em := &emitter{sink: sink, sessionID: sessionID, now: time.Now}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &Error{
				Kind:    KindSession,
				Stage:   StageFailed,
				Reason:  shared.ReasonInternalError,
				Message: "session panicked",
				Cause:   fmt.Errorf("%v", r),
			}
			s.log.Critical("Session panicked", zap.String("session_id", sessionID), zap.Any("panic", r))
			em.fail(err.(*Error))
		}
	}()

	s.log.WithSession(sessionID).Info("Session started", zap.String("server_uri", req.ServerURI))
	result, runErr := NewSession(sessionID, s.notary, s.defaults, sink).Run(ctx, req)
	if runErr != nil {
		derr := asError(runErr)
		s.log.SessionTerminated(sessionID, derr.Reason,
			zap.String("kind", string(derr.Kind)),
			zap.String("stage", string(derr.Stage)),
			zap.Error(runErr))
		em.fail(derr)
		return nil, derr
	}

	s.log.WithSession(sessionID).Info("Session completed",
		zap.Int("sent_bytes_revealed", result.Sent.Covered()),
		zap.Int("received_bytes_revealed", result.Received.Covered()))
	return result, nil
}
