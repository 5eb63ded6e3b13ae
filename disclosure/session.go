package disclosure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"selective-disclosure/document"
	"selective-disclosure/grammar"
	"selective-disclosure/rangeset"
	"selective-disclosure/shared"
)

// Result is what a successful session hands back
type Result struct {
	SessionID string
	Sent      rangeset.Set
	Received  rangeset.Set
	Proof     *Proof
}

// Session runs one notarize, parse, resolve, commit cycle. It carries no state
// beyond a single Run.
type Session struct {
	ID       string
	notary   Notary
	defaults Defaults
	em       *emitter
}

// NewSession creates a session that reports progress to sink
func NewSession(id string, notary Notary, defaults Defaults, sink EventSink) *Session {
	return &Session{
		ID:       id,
		notary:   notary,
		defaults: defaults,
		em:       &emitter{sink: sink, sessionID: id, now: time.Now},
	}
}

// Run executes the session. Any failure aborts it and nothing is disclosed;
// the returned error is always a *Error.
func (s *Session) Run(ctx context.Context, req SessionRequest) (*Result, error) {
	log := logger.With(zap.String("session_id", s.ID))

	cfg, err := NewSessionConfig(req, s.defaults)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultPort {
		s.em.emit(EventLogging, StageConfigured, nil, "No port found, using default port %d", defaultHTTPSPort)
	}
	s.em.emit(EventMessage, StageConfigured, map[string]any{
		"host":             cfg.Host,
		"port":             cfg.Port,
		"verifier_address": cfg.VerifierAddress,
	}, "Session configured for %s", cfg.ServerURI.Redacted())

	if err := ctx.Err(); err != nil {
		return nil, newSessionError(StageConfigured, "session cancelled before notarization", err)
	}
	transcript, err := s.notary.Notarize(ctx, NotarizeRequest{
		SessionID:       s.ID,
		ServerHost:      cfg.Host,
		ServerPort:      cfg.Port,
		VerifierAddress: cfg.VerifierAddress,
		Request:         cfg.BuildRequest(),
		MaxSentData:     cfg.MaxSentData,
		MaxRecvData:     cfg.MaxRecvData,
	})
	if err != nil {
		return nil, newSessionError(StageNotarized, "notarization failed", err)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			if err := transcript.Close(); err != nil {
				log.Warn("Failed to release transcript", zap.Error(err))
			}
		}
	}()

	sent, received := transcript.Sent(), transcript.Received()
	s.em.emit(EventMessage, StageNotarized, map[string]any{
		"sent_bytes":     len(sent),
		"received_bytes": len(received),
	}, "Transcript received from notarization service")

	request, err := document.ParseRequest(sent, grammar.Options{MaxSize: cfg.MaxSentData})
	if err != nil {
		return nil, newParseError("sent", err)
	}
	response, err := document.ParseResponse(received, grammar.Options{MaxSize: cfg.MaxRecvData})
	if err != nil {
		return nil, newParseError("received", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:    KindSession,
			Stage:   StageParsed,
			Reason:  shared.ReasonUnexpectedStatus,
			Message: fmt.Sprintf("server answered %d %s, expected 200", response.StatusCode, response.Reason),
		}
	}
	s.em.emit(EventMessage, StageParsed, map[string]any{
		"status":         response.StatusCode,
		"request_target": request.Target,
	}, "Transcripts parsed")

	sentRanges, err := cfg.Policy.Sent.Reveal(request)
	if err != nil {
		return nil, newResolveError("sent", err)
	}
	receivedRanges, err := cfg.Policy.Received.Reveal(response)
	if err != nil {
		return nil, newResolveError("received", err)
	}
	s.em.emit(EventMessage, StageResolved, map[string]any{
		"sent_ranges":     sentRanges.Len(),
		"sent_bytes":      sentRanges.Covered(),
		"received_ranges": receivedRanges.Len(),
		"received_bytes":  receivedRanges.Covered(),
	}, "Disclosure ranges resolved")
	log.Debug("Resolved disclosure ranges",
		zap.Stringer("sent", sentRanges),
		zap.Stringer("received", receivedRanges))

	if err := ctx.Err(); err != nil {
		return nil, newSessionError(StageResolved, "session cancelled before commitment", err)
	}
	handedOff = true
	proof, err := transcript.CommitDisclosure(ctx, sentRanges, receivedRanges)
	if err != nil {
		return nil, newDisclosureError("disclosure commitment failed", err)
	}
	if proof == nil || !proof.Accepted {
		return nil, newDisclosureError("notarization service rejected the disclosure", nil)
	}
	s.em.emit(EventMessage, StageCommitted, map[string]any{
		"proof_bytes": len(proof.Data),
	}, "Disclosure committed")

	return &Result{
		SessionID: s.ID,
		Sent:      sentRanges,
		Received:  receivedRanges,
		Proof:     proof,
	}, nil
}
