package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// TestMemoryGate_Link tests pairing rules
func TestMemoryGate_Link(t *testing.T) {
	a := NewMemoryGate(Config{Name: "a"})
	b := NewMemoryGate(Config{Name: "b"})
	c := NewMemoryGate(Config{Name: "c"})

	assert.ErrorIs(t, a.Link(nil), ErrNotLinked)
	assert.ErrorIs(t, a.Link(a), ErrSelfLink)

	require.NoError(t, a.Link(b))
	assert.Same(t, b, a.Peer())
	assert.Same(t, a, b.Peer())

	require.NoError(t, b.Link(a), "linking a couple again is a no-op")
	assert.ErrorIs(t, a.Link(c), ErrAlreadyLinked)
	assert.ErrorIs(t, c.Link(b), ErrAlreadyLinked)
	assert.Nil(t, c.Peer())

	b.Unlink()
	assert.Nil(t, a.Peer())
	assert.Nil(t, b.Peer())
	b.Unlink()

	require.NoError(t, a.Link(c))
	assert.Same(t, a, c.Peer())
}

// TestMemoryGate_UnlinkedIsUnreachable tests sends through an unpaired gate
func TestMemoryGate_UnlinkedIsUnreachable(t *testing.T) {
	a, _ := newRouterPair(t)
	east := NewMemoryGate(Config{Name: "east"})
	require.NoError(t, a.Connect("east", east))
	client := connectNode(t, a, "client")

	refusals := make(chan *failure.Error, 1)
	require.NoError(t, client.Send(network.Via("east", "calc"), "sum", nil,
		network.WithError(func(err *failure.Error) { refusals <- err }),
	))

	refusal := receive(t, refusals)
	assert.ErrorIs(t, refusal, failure.ErrDisconnected)
	assert.Equal(t, "peer unreachable", refusal.Message)
	assert.Zero(t, east.Pending())
}

// TestMemoryGate_CloseAfterUnlink tests that unlinking keeps
// waiting calls until the gate closes
func TestMemoryGate_CloseAfterUnlink(t *testing.T) {
	a, b := newRouterPair(t)
	east := NewMemoryGate(Config{Name: "east"})
	west := NewMemoryGate(Config{Name: "west"})
	require.NoError(t, east.Link(west))
	require.NoError(t, a.Connect("east", east))
	require.NoError(t, b.Connect("west", west))

	calc := connectNode(t, b, "calc")
	client := connectNode(t, a, "client")

	served := make(chan *network.Call, 1)
	_, err := calc.ListenFunc(network.Via("west", "client"), "hold", func(call *network.Call) {
		served <- call
	})
	require.NoError(t, err)

	refusals := make(chan *failure.Error, 1)
	require.NoError(t, client.Send(network.Via("east", "calc"), "hold", nil,
		network.WithError(func(err *failure.Error) { refusals <- err }),
	))
	held := receive(t, served)
	assert.Equal(t, 1, east.Pending())

	east.Unlink()
	require.NoError(t, east.Close())
	assert.ErrorIs(t, receive(t, refusals), failure.ErrDisconnected)

	// The far side answering an unlinked gate goes nowhere.
	assert.True(t, held.Refuse("too late"))
	assert.Zero(t, east.Pending())
	_ = west.Close()
}
