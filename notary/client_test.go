package notary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"selective-disclosure/disclosure"
	"selective-disclosure/rangeset"
	"selective-disclosure/shared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// fakeService answers each incoming message with the next scripted reply
type fakeService struct {
	replies  []*shared.Message
	received chan *shared.Message
}

func newFakeService(replies ...*shared.Message) *fakeService {
	return &fakeService{replies: replies, received: make(chan *shared.Message, 4)}
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, reply := range f.replies {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := shared.ParseMessage(raw)
		if err != nil {
			return
		}
		f.received <- msg
		if reply == nil {
			// stall until the client goes away
			conn.ReadMessage()
			return
		}
		payload, _ := json.Marshal(reply)
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	conn.ReadMessage()
}

func startService(t *testing.T, f *fakeService) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultPath, f.handle)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func notarizeRequest(addr string) disclosure.NotarizeRequest {
	return disclosure.NotarizeRequest{
		SessionID:       "s-1",
		ServerHost:      "example.com",
		ServerPort:      443,
		VerifierAddress: addr,
		Request:         []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		MaxSentData:     4096,
		MaxRecvData:     16384,
	}
}

func TestNotarizeAndCommit(t *testing.T) {
	sent := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	received := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n{}")
	f := newFakeService(
		shared.CreateMessage(shared.MsgTranscript, shared.TranscriptData{Sent: sent, Received: received}),
		shared.CreateMessage(shared.MsgProof, shared.ProofData{Accepted: true, Proof: []byte("proof")}),
	)
	addr := startService(t, f)

	client := NewClient(Config{Timeout: 5 * time.Second})
	tr, err := client.Notarize(context.Background(), notarizeRequest(addr))
	if err != nil {
		t.Fatalf("Notarize failed: %v", err)
	}
	if string(tr.Sent()) != string(sent) || string(tr.Received()) != string(received) {
		t.Fatalf("transcript mismatch: %q / %q", tr.Sent(), tr.Received())
	}

	first := <-f.received
	if first.Type != shared.MsgNotarize || first.SessionID != "s-1" {
		t.Fatalf("expected notarize message for s-1, got %s/%s", first.Type, first.SessionID)
	}
	var nd shared.NotarizeData
	if err := first.UnmarshalData(&nd); err != nil {
		t.Fatal(err)
	}
	if nd.ServerHost != "example.com" || nd.ServerPort != 443 || nd.MaxRecvData != 16384 {
		t.Errorf("unexpected notarize data %+v", nd)
	}

	sentSet, err := rangeset.Merge([]rangeset.Span{{Start: 0, End: 22}, {Start: 33, End: len(sent)}}, len(sent))
	if err != nil {
		t.Fatal(err)
	}
	recvSet, err := rangeset.Merge(nil, len(received))
	if err != nil {
		t.Fatal(err)
	}
	proof, err := tr.CommitDisclosure(context.Background(), sentSet, recvSet)
	if err != nil {
		t.Fatalf("CommitDisclosure failed: %v", err)
	}
	if !proof.Accepted || string(proof.Data) != "proof" {
		t.Errorf("unexpected proof %+v", proof)
	}

	second := <-f.received
	var cd shared.CommitDisclosureData
	if err := second.UnmarshalData(&cd); err != nil {
		t.Fatal(err)
	}
	want := []shared.DisclosureRange{{Start: 0, Length: 22}, {Start: 33, Length: len(sent) - 33}}
	if !reflect.DeepEqual(cd.Sent, want) {
		t.Errorf("expected sent ranges %v, got %v", want, cd.Sent)
	}
	if len(cd.Received) != 0 {
		t.Errorf("expected no received ranges, got %v", cd.Received)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close after commit must be a no-op, got %v", err)
	}
}

func TestNotarizeRemoteError(t *testing.T) {
	f := newFakeService(
		shared.CreateMessage(shared.MsgError, shared.ErrorData{Message: "server unreachable", Reason: "network_failure"}),
	)
	addr := startService(t, f)

	_, err := NewClient(Config{Timeout: 5 * time.Second}).Notarize(context.Background(), notarizeRequest(addr))
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RemoteError, got %v", err)
	}
	if rerr.Message != "server unreachable" || rerr.Reason != "network_failure" {
		t.Errorf("unexpected remote error %+v", rerr)
	}
}

func TestNotarizeUnexpectedMessage(t *testing.T) {
	f := newFakeService(shared.CreateMessage(shared.MsgProof, shared.ProofData{Accepted: true}))
	addr := startService(t, f)

	_, err := NewClient(Config{Timeout: 5 * time.Second}).Notarize(context.Background(), notarizeRequest(addr))
	if err == nil || !strings.Contains(err.Error(), "expected transcript") {
		t.Fatalf("expected an unexpected message error, got %v", err)
	}
}

func TestNotarizeTranscriptOverCeiling(t *testing.T) {
	f := newFakeService(shared.CreateMessage(shared.MsgTranscript, shared.TranscriptData{
		Sent:     []byte("GET"),
		Received: []byte(strings.Repeat("x", 100)),
	}))
	addr := startService(t, f)

	req := notarizeRequest(addr)
	req.MaxRecvData = 10
	if _, err := NewClient(Config{}).Notarize(context.Background(), req); err == nil {
		t.Fatal("expected an error for a transcript over the ceiling")
	}
}

func TestNotarizeHonoursDeadline(t *testing.T) {
	f := newFakeService(nil)
	addr := startService(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := NewClient(Config{}).Notarize(ctx, notarizeRequest(addr))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("deadline was not honoured, waited %v", elapsed)
	}
}

func TestNotarizeDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	if _, err := NewClient(Config{HandshakeTimeout: time.Second}).Notarize(context.Background(), notarizeRequest(addr)); err == nil {
		t.Fatal("expected a dial error")
	}
}
