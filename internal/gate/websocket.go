package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	wire "github.com/rmacdonaldsmith/meshbus-go/pkg/gate"
)

// WebsocketGateParam is the query parameter naming the dialing gate.
const WebsocketGateParam = "gate"

// wsTransport writes descriptors as JSON text frames. A connection supports
// one concurrent writer.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Transfer(d wire.Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(d)
}

func (t *wsTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteMessage(websocket.CloseMessage, msg)
	return t.conn.Close()
}

// pumpWebsocket feeds every received descriptor to the bridge until the
// connection ends. A normal closure returns nil.
func pumpWebsocket(conn *websocket.Conn, b *Bridge) error {
	for {
		var d wire.Descriptor
		if err := conn.ReadJSON(&d); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isDecodeError(err) {
				b.logger.Warn("dropping malformed descriptor", telemetry.LabelError.L(err))
				continue
			}
			return err
		}
		b.Receive(d)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// WebsocketHandler accepts gate links over websockets and connects every
// linked gate to a network under the name given in the gate query parameter.
type WebsocketHandler struct {
	sessions *sessions
	upgrader websocket.Upgrader
}

// NewWebsocketHandler creates a websocket gate endpoint attaching gates to n.
func NewWebsocketHandler(n Network, cfg Config) *WebsocketHandler {
	return &WebsocketHandler{sessions: newSessions(n, cfg)}
}

// Gates returns the names of the linked gates, sorted.
func (h *WebsocketHandler) Gates() []string {
	return h.sessions.names()
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get(WebsocketGateParam)
	if name == "" {
		http.Error(w, "gate query parameter is required", http.StatusBadRequest)
		return
	}
	if h.sessions.has(name) {
		http.Error(w, fmt.Sprintf("gate %q is already linked", name), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}

	transport := &wsTransport{conn: conn}
	defer transport.close()

	bridge, closeFn, err := h.sessions.open(name, transport)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		transport.mu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		transport.mu.Unlock()
		return
	}
	defer closeFn()

	bridge.logger.Info("gate linked over websocket", telemetry.LabelPeerAddr.L(r.RemoteAddr))
	err = pumpWebsocket(conn, bridge)
	bridge.logger.Info("gate link ended", telemetry.LabelError.L(err))
}

// WebsocketGate is the dialing side of a websocket gate link.
type WebsocketGate struct {
	*Bridge

	transport *wsTransport
	done      chan struct{}
	err       error
}

// DialWebsocket opens a link to the websocket gate endpoint at rawURL, naming
// this side name for the remote network.
func DialWebsocket(ctx context.Context, rawURL, name string, cfg Config) (*WebsocketGate, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gate url: %w", err)
	}
	q := u.Query()
	q.Set(WebsocketGateParam, name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open gate link: %w", err)
	}

	transport := &wsTransport{conn: conn}
	g := &WebsocketGate{
		Bridge:    NewBridge(cfg, transport),
		transport: transport,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(g.done)
		g.err = pumpWebsocket(conn, g.Bridge)
		_ = g.Bridge.Close()
	}()
	return g, nil
}

// Done is closed once the link has ended.
func (g *WebsocketGate) Done() <-chan struct{} {
	return g.done
}

// Err waits for the link to end and returns the error that ended it, nil for
// a clean end.
func (g *WebsocketGate) Err() error {
	<-g.done
	return g.err
}

// Close ends the link and refuses the pending calls.
func (g *WebsocketGate) Close() error {
	_ = g.transport.close()
	<-g.done
	return g.Bridge.Close()
}
