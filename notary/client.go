// Package notary talks to the notarization service over a websocket. One
// connection carries one exchange: a notarize request answered by a
// transcript, then a disclosure commitment answered by a proof.
package notary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"selective-disclosure/disclosure"
	"selective-disclosure/rangeset"
	"selective-disclosure/shared"
)

const (
	DefaultPath             = "/notarize"
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultTimeout          = 60 * time.Second
)

// Config controls how the client reaches the notarization service
type Config struct {
	Scheme           string // ws or wss
	Path             string
	HandshakeTimeout time.Duration
	Timeout          time.Duration // per read, tightened by the context deadline
}

// RemoteError is a failure reported by the notarization service itself
type RemoteError struct {
	Message string
	Reason  string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("notarization service error (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("notarization service error: %s", e.Message)
}

// Client implements disclosure.Notary
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

var _ disclosure.Notary = (*Client)(nil)

// NewClient fills in missing Config fields with defaults
func NewClient(cfg Config) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "ws"
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Notarize opens a connection to req.VerifierAddress and waits for the transcript
func (c *Client) Notarize(ctx context.Context, req disclosure.NotarizeRequest) (disclosure.Transcript, error) {
	u := url.URL{Scheme: c.cfg.Scheme, Host: req.VerifierAddress, Path: c.cfg.Path}
	log := logger.With(zap.String("session_id", req.SessionID), zap.String("url", u.String()))

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to notarization service: %w", err)
	}
	log.Debug("Connected to notarization service")

	t := &transcript{conn: conn, sessionID: req.SessionID, timeout: c.cfg.Timeout}
	msg := shared.CreateSessionMessage(shared.MsgNotarize, req.SessionID, shared.NotarizeData{
		ServerHost:      req.ServerHost,
		ServerPort:      req.ServerPort,
		VerifierAddress: req.VerifierAddress,
		Request:         req.Request,
		MaxSentData:     req.MaxSentData,
		MaxRecvData:     req.MaxRecvData,
	})
	reply, err := t.roundTrip(ctx, msg, shared.MsgTranscript)
	if err != nil {
		t.Close()
		return nil, err
	}

	var data shared.TranscriptData
	if err := reply.UnmarshalData(&data); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	if len(data.Sent) > req.MaxSentData || len(data.Received) > req.MaxRecvData {
		t.Close()
		return nil, fmt.Errorf("transcript of %d/%d bytes exceeds ceilings %d/%d",
			len(data.Sent), len(data.Received), req.MaxSentData, req.MaxRecvData)
	}
	t.sent, t.received = data.Sent, data.Received
	log.Info("Transcript received",
		zap.Int("sent_bytes", len(data.Sent)),
		zap.Int("received_bytes", len(data.Received)))
	return t, nil
}

type transcript struct {
	conn      *websocket.Conn
	sessionID string
	timeout   time.Duration
	sent      []byte
	received  []byte

	closeOnce sync.Once
	closeErr  error
}

func (t *transcript) Sent() []byte     { return t.sent }
func (t *transcript) Received() []byte { return t.received }

// CommitDisclosure sends the ranges and waits for the proof. The connection is
// closed afterwards whatever the outcome.
func (t *transcript) CommitDisclosure(ctx context.Context, sent, received rangeset.Set) (*disclosure.Proof, error) {
	defer t.Close()

	msg := shared.CreateSessionMessage(shared.MsgCommitDisclosure, t.sessionID, shared.CommitDisclosureData{
		Sent:     toWire(sent),
		Received: toWire(received),
	})
	reply, err := t.roundTrip(ctx, msg, shared.MsgProof)
	if err != nil {
		return nil, err
	}
	var data shared.ProofData
	if err := reply.UnmarshalData(&data); err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	logger.Info("Disclosure commitment answered",
		zap.String("session_id", t.sessionID),
		zap.Bool("accepted", data.Accepted),
		zap.Int("proof_bytes", len(data.Proof)))
	return &disclosure.Proof{Accepted: data.Accepted, Data: data.Proof}, nil
}

// Close sends a close frame and drops the connection; later calls are no-ops
func (t *transcript) Close() error {
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// roundTrip writes msg and reads the next message, which must be of type want
// or an error report
func (t *transcript) roundTrip(ctx context.Context, msg *shared.Message, want shared.MessageType) (*shared.Message, error) {
	deadline := time.Now().Add(t.timeout)
	ctxDeadline := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		ctxDeadline = true
	}
	// a cancelled context unblocks the pending read
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("failed to send %s message: %w", msg.Type, err)
	}

	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, raw, err := t.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for %s: %w", want, ctxErr)
		}
		if ctxDeadline && !time.Now().Before(deadline) {
			return nil, fmt.Errorf("waiting for %s: %w", want, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("failed to read %s message: %w", want, err)
	}
	reply, err := shared.ParseMessage(raw)
	if err != nil {
		return nil, err
	}

	switch reply.Type {
	case want:
		return reply, nil
	case shared.MsgError:
		var data shared.ErrorData
		if err := reply.UnmarshalData(&data); err != nil {
			return nil, fmt.Errorf("failed to decode error message: %w", err)
		}
		return nil, &RemoteError{Message: data.Message, Reason: data.Reason}
	default:
		return nil, fmt.Errorf("expected %s message, got %s", want, reply.Type)
	}
}

func toWire(set rangeset.Set) []shared.DisclosureRange {
	spans := set.Spans()
	out := make([]shared.DisclosureRange, 0, len(spans))
	for _, sp := range spans {
		out = append(out, shared.DisclosureRange{Start: sp.Start, Length: sp.End - sp.Start})
	}
	return out
}
