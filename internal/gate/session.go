package gate

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	wire "github.com/rmacdonaldsmith/meshbus-go/pkg/gate"
)

// sessions tracks the gates a server accepted, keyed by the name the remote
// side gave itself.
type sessions struct {
	network Network
	cfg     Config
	table   *xsync.MapOf[string, *Bridge]
}

func newSessions(n Network, cfg Config) *sessions {
	cfg.SetDefaults()
	return &sessions{
		network: n,
		cfg:     cfg,
		table:   xsync.NewMapOf[string, *Bridge](),
	}
}

// open connects a bridge named name to the network. The returned function
// disconnects it and refuses its pending calls.
func (s *sessions) open(name string, transport wire.Transport) (*Bridge, func(), error) {
	if name == "" {
		return nil, nil, ErrMissingName
	}

	bridge := NewBridge(s.cfg.named(name), transport)
	if _, loaded := s.table.LoadOrStore(name, bridge); loaded {
		return nil, nil, fmt.Errorf("gate %q already has a session", name)
	}

	if err := s.network.Connect(name, bridge); err != nil {
		s.table.Delete(name)
		return nil, nil, fmt.Errorf("failed to connect gate %q: %w", name, err)
	}

	closeFn := func() {
		_ = s.network.Disconnect(name)
		_ = bridge.Close()
		s.table.Delete(name)
	}
	return bridge, closeFn, nil
}

func (s *sessions) has(name string) bool {
	_, ok := s.table.Load(name)
	return ok
}

func (s *sessions) names() []string {
	var names []string
	s.table.Range(func(name string, _ *Bridge) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
