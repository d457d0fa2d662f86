package discovery

import (
	"context"
	"fmt"
	"strings"
)

// StaticDiscovery implements Discovery using a fixed list of peers
type StaticDiscovery struct {
	peers []Peer
}

// NewStaticDiscovery creates a new static discovery service with the given peers
func NewStaticDiscovery(peers ...Peer) *StaticDiscovery {
	return &StaticDiscovery{
		peers: peers,
	}
}

// ParseSeeds reads peers written as name=address, the form used on the
// command line.
func ParseSeeds(seeds []string) ([]Peer, error) {
	peers := make([]Peer, 0, len(seeds))
	for _, seed := range seeds {
		name, address, ok := strings.Cut(seed, "=")
		if !ok {
			return nil, fmt.Errorf("invalid seed %q, expected name=address", seed)
		}
		peers = append(peers, Peer{Name: strings.TrimSpace(name), Address: strings.TrimSpace(address)})
	}
	return peers, nil
}

// FindPeers returns the configured peers with their transport resolved
func (s *StaticDiscovery) FindPeers(ctx context.Context) ([]Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(s.peers))
	seen := make(map[string]bool, len(s.peers))
	for _, peer := range s.peers {
		if peer.Name == "" {
			return nil, ErrMissingPeerName
		}
		if peer.Address == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPeerAddress, peer.Name)
		}
		if seen[peer.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, peer.Name)
		}
		seen[peer.Name] = true

		transport, err := transportOf(peer)
		if err != nil {
			return nil, err
		}
		peer.Transport = transport
		peers = append(peers, peer)
	}
	return peers, nil
}

func transportOf(peer Peer) (string, error) {
	switch peer.Transport {
	case TransportGRPC, TransportWebsocket:
		return peer.Transport, nil
	case "":
		if strings.HasPrefix(peer.Address, "ws://") || strings.HasPrefix(peer.Address, "wss://") {
			return TransportWebsocket, nil
		}
		return TransportGRPC, nil
	default:
		return "", fmt.Errorf("%w: %s for peer %s", ErrUnknownTransport, peer.Transport, peer.Name)
	}
}
