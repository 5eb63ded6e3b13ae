package disclosure

import (
	"fmt"

	"selective-disclosure/document"
	"selective-disclosure/rangeset"
)

// Mode says whether resolved spans are the ones revealed or the ones hidden
type Mode string

const (
	// Allowlist reveals exactly the resolved spans
	Allowlist Mode = "allowlist"
	// Denylist reveals everything except the resolved spans
	Denylist Mode = "denylist"
)

// DirectionPolicy is the keypath policy for one transcript direction
type DirectionPolicy struct {
	Mode     Mode     `json:"mode"`
	Keypaths []string `json:"keypaths"`
}

// Policy holds one DirectionPolicy per transcript direction
type Policy struct {
	Sent     DirectionPolicy `json:"sent"`
	Received DirectionPolicy `json:"received"`
}

// DefaultReceivedKeypaths are the response fields revealed when no policy is given
var DefaultReceivedKeypaths = []string{
	"state",
	"comment",
	"currency",
	"amount",
	"recipient.account",
	"recipient.username",
	"recipient.code",
	"beneficiary.account",
}

// DefaultPolicy hides the request's host and reveals the payment fields of the response
func DefaultPolicy() Policy {
	return Policy{
		Sent: DirectionPolicy{Mode: Denylist, Keypaths: []string{"host"}},
		Received: DirectionPolicy{
			Mode:     Allowlist,
			Keypaths: append([]string(nil), DefaultReceivedKeypaths...),
		},
	}
}

// Validate checks the mode and every keypath
func (p DirectionPolicy) Validate() error {
	switch p.Mode {
	case Allowlist, Denylist:
	default:
		return fmt.Errorf("unknown policy mode %q", p.Mode)
	}
	_, err := document.ParseKeypaths(p.Keypaths)
	return err
}

// Reveal resolves the policy against a document and returns the ranges to disclose
func (p DirectionPolicy) Reveal(doc document.Document) (rangeset.Set, error) {
	keypaths, err := document.ParseKeypaths(p.Keypaths)
	if err != nil {
		return rangeset.Set{}, err
	}

	switch p.Mode {
	case Allowlist:
		return doc.ResolveKeypaths(keypaths, nil)
	case Denylist:
		hidden, err := doc.ResolveKeypaths(nil, keypaths)
		if err != nil {
			return rangeset.Set{}, err
		}
		return hidden.Complement(), nil
	default:
		return rangeset.Set{}, fmt.Errorf("unknown policy mode %q", p.Mode)
	}
}
