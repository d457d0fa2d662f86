package gate

import (
	"bytes"
	"sync"

	wire "github.com/rmacdonaldsmith/meshbus-go/pkg/gate"
)

// MemoryGate is a bridge whose far side is another MemoryGate of the same
// process. Links are symmetric: linking or unlinking either side affects
// both.
type MemoryGate struct {
	*Bridge

	mu   sync.Mutex
	peer *MemoryGate
}

// NewMemoryGate creates an unlinked memory gate.
func NewMemoryGate(cfg Config) *MemoryGate {
	g := &MemoryGate{}
	g.Bridge = NewBridge(cfg, wire.TransportFunc(g.deliver))
	return g
}

// Link pairs g with peer. Linking an already paired couple is a no-op.
func (g *MemoryGate) Link(peer *MemoryGate) error {
	if peer == nil {
		return ErrNotLinked
	}
	if peer == g {
		return ErrSelfLink
	}

	unlock := lockPair(g, peer)
	defer unlock()

	if g.peer == peer && peer.peer == g {
		return nil
	}
	if g.peer != nil || peer.peer != nil {
		return ErrAlreadyLinked
	}
	g.peer, peer.peer = peer, g

	g.logger.Debug("memory gate linked")
	return nil
}

// Unlink breaks the pairing on both sides. Unlinking an unlinked gate is a
// no-op.
func (g *MemoryGate) Unlink() {
	g.mu.Lock()
	peer := g.peer
	g.mu.Unlock()
	if peer == nil {
		return
	}

	unlock := lockPair(g, peer)
	defer unlock()

	if g.peer == peer {
		g.peer = nil
	}
	if peer.peer == g {
		peer.peer = nil
	}
}

// Peer returns the linked gate, nil when unlinked.
func (g *MemoryGate) Peer() *MemoryGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peer
}

func (g *MemoryGate) deliver(d wire.Descriptor) error {
	peer := g.Peer()
	if peer == nil {
		return ErrNotLinked
	}
	peer.Receive(d)
	return nil
}

// lockPair locks both gates ordered by bridge id.
func lockPair(a, b *MemoryGate) (unlock func()) {
	aID, bID := a.ID(), b.ID()
	first, second := a, b
	if bytes.Compare(aID[:], bID[:]) > 0 {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
