// Package gate defines the wire contract between two gate bridges.
//
// A bridge forwards each call crossing its boundary as a flat Descriptor and
// correlates the answer using bridge-local ids:
//   - a request carries, in ID, the id the sender stored its pending call under
//   - a reply or refusal names that pending call in InReplyTo
//   - a reply that itself expects an answer carries a fresh ID of its own
//
// Transports only move descriptors; they never interpret them:
//
//	type loopback struct{ peer *gate.Bridge }
//
//	func (l loopback) Transfer(d gate.Descriptor) error {
//		l.peer.Receive(d)
//		return nil
//	}
package gate

import (
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// Descriptor is the cross boundary shape of a call. Field names are part of
// the wire format.
type Descriptor struct {
	ID                uint64          `json:"id"`
	InReplyTo         uint64          `json:"inReplyTo,omitempty"`
	Node              string          `json:"node"`
	Data              any             `json:"data"`
	Sender            network.Address `json:"sender"`
	Topic             string          `json:"topic"`
	HasSuccessHandler bool            `json:"hasSuccessHandler"`
	HasErrorHandler   bool            `json:"hasErrorHandler"`
	IsRequest         bool            `json:"isRequest"`
	IsReply           bool            `json:"isReply"`
	IsRefuse          bool            `json:"isRefuse"`
}

// Intent is the kind of message a descriptor carries.
type Intent int

const (
	// IntentRequest opens a call on the far side.
	IntentRequest Intent = iota
	// IntentReply answers a pending call.
	IntentReply
	// IntentRefuse fails a pending call.
	IntentRefuse
)

func (i Intent) String() string {
	switch i {
	case IntentRequest:
		return "request"
	case IntentReply:
		return "reply"
	case IntentRefuse:
		return "refuse"
	default:
		return "unknown"
	}
}

// Intent returns the intent encoded by the descriptor flags.
func (d Descriptor) Intent() Intent {
	switch {
	case d.IsRequest:
		return IntentRequest
	case d.IsRefuse:
		return IntentRefuse
	default:
		return IntentReply
	}
}

// Transport moves descriptors to the peer bridge. A returned error means the
// descriptor was not delivered.
type Transport interface {
	Transfer(d Descriptor) error
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(d Descriptor) error

func (f TransportFunc) Transfer(d Descriptor) error {
	return f(d)
}
