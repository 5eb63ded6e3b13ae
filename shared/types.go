package shared

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types for websocket communication
type MessageType string

const (
	// Prover to notarization service
	MsgNotarize         MessageType = "notarize"
	MsgCommitDisclosure MessageType = "commit_disclosure"

	// Notarization service to prover
	MsgTranscript MessageType = "transcript"
	MsgProof      MessageType = "proof"

	// Session endpoint
	MsgSessionRequest MessageType = "session_request"
	MsgSessionEvent   MessageType = "session_event"

	// Either direction
	MsgError MessageType = "error"
)

// Message represents a protocol message with session context
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParseMessage decodes a websocket frame into a Message
func ParseMessage(msgBytes []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(msgBytes, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// UnmarshalData decodes the Data field into v. Data arrives from the wire as
// generic JSON, so it is re-encoded first.
func (m *Message) UnmarshalData(v interface{}) error {
	if m == nil {
		return fmt.Errorf("nil message")
	}
	if m.Data == nil {
		return fmt.Errorf("no data in %s message", m.Type)
	}

	var jsonData []byte
	switch data := m.Data.(type) {
	case []byte:
		jsonData = data
	case json.RawMessage:
		jsonData = data
	case string:
		jsonData = []byte(data)
	default:
		var err error
		jsonData, err = json.Marshal(data)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(jsonData, v)
}

// DisclosureRange is a transcript byte range on the wire
type DisclosureRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// NotarizeData asks the notarization service to run the protected exchange
type NotarizeData struct {
	ServerHost      string `json:"server_host"`
	ServerPort      int    `json:"server_port"`
	VerifierAddress string `json:"verifier_address"`
	Request         []byte `json:"request"`
	MaxSentData     int    `json:"max_sent_data"`
	MaxRecvData     int    `json:"max_recv_data"`
}

// TranscriptData carries both directions of the exchange
type TranscriptData struct {
	Sent     []byte `json:"sent"`
	Received []byte `json:"received"`
}

// CommitDisclosureData lists the ranges to reveal in each direction
type CommitDisclosureData struct {
	Sent     []DisclosureRange `json:"sent"`
	Received []DisclosureRange `json:"received"`
}

// ProofData is the outcome of a disclosure commitment
type ProofData struct {
	Accepted bool   `json:"accepted"`
	Proof    []byte `json:"proof,omitempty"`
}

// ErrorData reports a failure
type ErrorData struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// CreateMessage builds a timestamped message, optionally bound to a session
func CreateMessage(msgType MessageType, data interface{}, sessionID ...string) *Message {
	msg := &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
	if len(sessionID) > 0 && sessionID[0] != "" {
		msg.SessionID = sessionID[0]
	}
	return msg
}

// CreateSessionMessage calls CreateMessage
func CreateSessionMessage(msgType MessageType, sessionID string, data interface{}) *Message {
	return CreateMessage(msgType, data, sessionID)
}
