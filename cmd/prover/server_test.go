package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"selective-disclosure/disclosure"
	"selective-disclosure/rangeset"
	"selective-disclosure/shared"
)

type stubNotary struct{}

func (stubNotary) Notarize(_ context.Context, req disclosure.NotarizeRequest) (disclosure.Transcript, error) {
	body := `{"state":"done","amount":"10.00"}`
	received := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	return &stubTranscript{sent: req.Request, received: []byte(received)}, nil
}

type stubTranscript struct {
	sent, received []byte
}

func (t *stubTranscript) Sent() []byte     { return t.sent }
func (t *stubTranscript) Received() []byte { return t.received }
func (t *stubTranscript) Close() error     { return nil }

func (t *stubTranscript) CommitDisclosure(context.Context, rangeset.Set, rangeset.Set) (*disclosure.Proof, error) {
	return &disclosure.Proof{Accepted: true}, nil
}

func dialSession(t *testing.T) *websocket.Conn {
	t.Helper()
	logger := shared.NewNopLogger()
	service := disclosure.NewService(stubNotary{}, disclosure.DefaultSettings(), logger)
	server := httptest.NewServer(newServer(service, logger).routes())
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/session"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to session endpoint: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *shared.Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) *shared.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	msg, err := shared.ParseMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

// receiveUntil reads session events until one of the given stage arrives
func receiveUntil(t *testing.T, conn *websocket.Conn, stage disclosure.Stage) []disclosure.Event {
	t.Helper()
	var events []disclosure.Event
	for i := 0; i < 20; i++ {
		msg := receive(t, conn)
		if msg.Type != shared.MsgSessionEvent {
			t.Fatalf("expected session event, got %s", msg.Type)
		}
		var e disclosure.Event
		if err := msg.UnmarshalData(&e); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		events = append(events, e)
		if e.Stage == stage {
			return events
		}
	}
	t.Fatalf("stage %s never arrived", stage)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	service := disclosure.NewService(stubNotary{}, disclosure.DefaultSettings(), nil)
	rec := httptest.NewRecorder()
	newServer(service, shared.NewNopLogger()).routes().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 || rec.Body.String() != "Prover Healthy" {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestSessionOverWebSocket(t *testing.T) {
	conn := dialSession(t)
	send(t, conn, shared.CreateMessage(shared.MsgSessionRequest, map[string]interface{}{
		"server_uri": "https://example.com/a",
	}))

	events := receiveUntil(t, conn, disclosure.StageCommitted)
	if events[0].Type != disclosure.EventLogging || events[0].Message != "No port found, using default port 443" {
		t.Errorf("expected the default port notice first, got %+v", events[0])
	}
	for _, e := range events {
		if e.Type == disclosure.EventError {
			t.Fatalf("unexpected error event %+v", e)
		}
		if e.SessionID != events[0].SessionID {
			t.Errorf("events of one session carry different ids")
		}
	}
}

func TestSessionFailureKeepsConnection(t *testing.T) {
	conn := dialSession(t)

	send(t, conn, shared.CreateMessage(shared.MsgSessionRequest, map[string]interface{}{
		"server_uri": "http://example.com/",
	}))
	events := receiveUntil(t, conn, disclosure.StageFailed)
	last := events[len(events)-1]
	if last.Type != disclosure.EventError || last.Error == nil || last.Error.Kind != disclosure.KindConfiguration {
		t.Fatalf("expected a configuration error event, got %+v", last)
	}

	send(t, conn, shared.CreateMessage(shared.MsgSessionRequest, map[string]interface{}{
		"server_uri": "https://example.com/b",
	}))
	receiveUntil(t, conn, disclosure.StageCommitted)
}

func TestProtocolErrors(t *testing.T) {
	conn := dialSession(t)

	send(t, conn, shared.CreateMessage(shared.MsgSessionRequest, map[string]interface{}{
		"server_uri": "https://example.com/",
		"unknown":    true,
	}))
	msg := receive(t, conn)
	var data shared.ErrorData
	if msg.Type != shared.MsgError || msg.UnmarshalData(&data) != nil || data.Reason != string(shared.ReasonInvalidSessionRequest) {
		t.Fatalf("expected invalid session request error, got %+v", msg)
	}

	send(t, conn, shared.CreateMessage(shared.MsgProof, map[string]interface{}{"accepted": true}))
	if msg := receive(t, conn); msg.Type != shared.MsgError {
		t.Fatalf("expected error for unknown message type, got %s", msg.Type)
	}

	// the third protocol error ends the connection
	send(t, conn, shared.CreateMessage(shared.MsgTranscript, map[string]interface{}{}))
	if msg := receive(t, conn); msg.Type != shared.MsgError {
		t.Fatalf("expected a final error, got %s", msg.Type)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the server to close the connection")
	}
}
