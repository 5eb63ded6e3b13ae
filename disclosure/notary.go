package disclosure

import (
	"context"

	"selective-disclosure/rangeset"
)

// NotarizeRequest describes the protected exchange the notarization service runs
type NotarizeRequest struct {
	SessionID       string
	ServerHost      string
	ServerPort      int
	VerifierAddress string
	Request         []byte
	MaxSentData     int
	MaxRecvData     int
}

// Notary is the external notarization service. It owns the multiparty
// handshake and proof computation; this package only supplies byte ranges.
type Notary interface {
	Notarize(ctx context.Context, req NotarizeRequest) (Transcript, error)
}

// Transcript is one finished exchange awaiting a disclosure decision
type Transcript interface {
	Sent() []byte
	Received() []byte

	// CommitDisclosure commits to revealing exactly the given ranges
	CommitDisclosure(ctx context.Context, sent, received rangeset.Set) (*Proof, error)

	// Close releases the exchange without committing
	Close() error
}

// Proof is the notarization service's verdict on a disclosure
type Proof struct {
	Accepted bool
	Data     []byte
}
