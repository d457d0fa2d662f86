package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDiscoveryInterface_FindPeers tests the discovery interface contract
func TestDiscoveryInterface_FindPeers(t *testing.T) {
	discovery := NewStaticDiscovery(
		Peer{Name: "east", Address: "node1:7070"},
		Peer{Name: "west", Address: "ws://node2:8080/api/v1/gate"},
		Peer{Name: "north", Address: "node3:8080", Transport: TransportWebsocket},
	)

	peers, err := discovery.FindPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Peer{
		{Name: "east", Address: "node1:7070", Transport: TransportGRPC},
		{Name: "west", Address: "ws://node2:8080/api/v1/gate", Transport: TransportWebsocket},
		{Name: "north", Address: "node3:8080", Transport: TransportWebsocket},
	}, peers)
}

// TestDiscoveryInterface_EmptySeedNodes tests discovery without peers
func TestDiscoveryInterface_EmptySeedNodes(t *testing.T) {
	peers, err := NewStaticDiscovery().FindPeers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, peers)
}

// TestStaticDiscovery_Invalid tests rejected peer lists
func TestStaticDiscovery_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		peers []Peer
		err   error
	}{
		{"missing name", []Peer{{Address: "a:1"}}, ErrMissingPeerName},
		{"missing address", []Peer{{Name: "east"}}, ErrMissingPeerAddress},
		{"duplicate", []Peer{{Name: "east", Address: "a:1"}, {Name: "east", Address: "b:1"}}, ErrDuplicatePeer},
		{"transport", []Peer{{Name: "east", Address: "a:1", Transport: "quic"}}, ErrUnknownTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticDiscovery(tt.peers...).FindPeers(context.Background())
			assert.ErrorIs(t, err, tt.err)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticDiscovery().FindPeers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestParseSeeds tests the command line peer form
func TestParseSeeds(t *testing.T) {
	peers, err := ParseSeeds([]string{"east=node1:7070", " west = ws://node2:8080/api/v1/gate"})
	require.NoError(t, err)
	assert.Equal(t, []Peer{
		{Name: "east", Address: "node1:7070"},
		{Name: "west", Address: "ws://node2:8080/api/v1/gate"},
	}, peers)

	_, err = ParseSeeds([]string{"node1:7070"})
	assert.Error(t, err)
}

// TestDiscoveryInterface_InterfaceCompliance tests that StaticDiscovery implements Discovery
func TestDiscoveryInterface_InterfaceCompliance(t *testing.T) {
	var _ Discovery = (*StaticDiscovery)(nil)
}
