package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"selective-disclosure/disclosure"
	"selective-disclosure/shared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// server exposes the disclosure service on a websocket endpoint. Each
// connection gets its own request queue and service loop.
type server struct {
	service    *disclosure.Service
	logger     *shared.Logger
	terminator *shared.SessionTerminator
}

func newServer(service *disclosure.Service, logger *shared.Logger) *server {
	return &server{
		service:    service,
		logger:     logger,
		terminator: shared.NewSessionTerminator(logger),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Prover Healthy")
	})
	return mux
}

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg *shared.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade session websocket",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}
	ws := &wsConn{conn: conn}
	connKey := r.RemoteAddr
	log := s.logger.WithConnection(connKey)
	log.Debug("Session connection established")

	ctx, cancel := context.WithCancel(r.Context())
	requests := make(chan disclosure.SessionRequest, 4)
	done := make(chan error, 1)

	sink := disclosure.EventSinkFunc(func(e disclosure.Event) {
		if err := ws.send(shared.CreateSessionMessage(shared.MsgSessionEvent, e.SessionID, e)); err != nil {
			log.Warn("Failed to deliver session event", zap.String("stage", string(e.Stage)), zap.Error(err))
		}
	})
	go func() {
		done <- s.service.Run(ctx, requests, sink)
	}()

	defer func() {
		close(requests)
		cancel()
		if err := <-done; err != nil && ctx.Err() == nil {
			log.Warn("Service loop ended with error", zap.Error(err))
		}
		s.terminator.Cleanup(connKey)
		conn.Close()
		log.Debug("Session connection closed")
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Client closed connection")
			} else {
				log.Warn("Session connection lost", zap.Error(err))
			}
			return
		}

		req, reason, err := decodeRequest(msgBytes)
		if err != nil {
			s.sendError(ws, reason, err)
			if s.terminator.ShouldTerminate(connKey, reason, err) {
				return
			}
			continue
		}

		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// decodeRequest turns a frame into a session request, classifying failures
func decodeRequest(msgBytes []byte) (disclosure.SessionRequest, shared.TerminationReason, error) {
	msg, err := shared.ParseMessage(msgBytes)
	if err != nil {
		return disclosure.SessionRequest{}, shared.ReasonInvalidSessionRequest, err
	}
	if msg.Type != shared.MsgSessionRequest {
		return disclosure.SessionRequest{}, shared.ReasonUnknownMessageType,
			fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.Data == nil {
		return disclosure.SessionRequest{}, shared.ReasonInvalidSessionRequest,
			fmt.Errorf("session request carries no data")
	}
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return disclosure.SessionRequest{}, shared.ReasonInvalidSessionRequest, err
	}
	req, err := disclosure.DecodeSessionRequest(data)
	if err != nil {
		return disclosure.SessionRequest{}, shared.ReasonInvalidSessionRequest, err
	}
	return req, "", nil
}

func (s *server) sendError(ws *wsConn, reason shared.TerminationReason, err error) {
	msg := shared.CreateMessage(shared.MsgError, shared.ErrorData{
		Message: err.Error(),
		Reason:  string(reason),
	})
	if sendErr := ws.send(msg); sendErr != nil {
		s.logger.Warn("Failed to send error message", zap.Error(sendErr))
	}
}
