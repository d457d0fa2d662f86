package discovery

import (
	"context"
	"errors"
)

// Transports a peer can be linked over
const (
	TransportGRPC      = "grpc"
	TransportWebsocket = "websocket"
)

var (
	// ErrMissingPeerName is returned when a peer has no gate name
	ErrMissingPeerName = errors.New("peer name is required")
	// ErrMissingPeerAddress is returned when a peer has no address
	ErrMissingPeerAddress = errors.New("peer address is required")
	// ErrDuplicatePeer is returned when two peers share a gate name
	ErrDuplicatePeer = errors.New("duplicate peer name")
	// ErrUnknownTransport is returned for transports other than grpc and websocket
	ErrUnknownTransport = errors.New("unknown peer transport")
)

// Peer is a remote network reached through a gate.
type Peer struct {
	// Name is the local gate name the peer is connected under
	Name string `yaml:"name"`
	// Address is host:port for grpc peers, a ws:// url for websocket peers
	Address string `yaml:"address"`
	// Transport is grpc or websocket, derived from Address when empty
	Transport string `yaml:"transport"`
}

// Discovery defines the interface for peer discovery mechanisms
type Discovery interface {
	// FindPeers discovers and returns the peers to link to
	FindPeers(ctx context.Context) ([]Peer, error)
}
