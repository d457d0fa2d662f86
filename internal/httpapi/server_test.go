package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshbus-go/internal/gate"
	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// TestNewServer tests server construction
func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, Config{})
	assert.ErrorIs(t, err, ErrNilRouter)

	r, err := router.New(router.Config{Name: "test-router"})
	require.NoError(t, err)
	defer r.Close()

	s, err := NewServer(r, Config{})
	require.NoError(t, err)
	assert.Equal(t, ":8080", s.server.Addr)
	assert.Equal(t, DefaultSendTimeout, s.cfg.SendTimeout)
	assert.Equal(t, []string{DefaultNodeName}, r.Connected())

	_, err = NewServer(r, Config{})
	assert.ErrorIs(t, err, router.ErrNameTaken, "one http node per name")

	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, r.Connected())
}

// TestHealth tests the health endpoint
func TestHealth(t *testing.T) {
	setup := newTestServerSetup(t)

	var resp HealthResponse
	assert.Equal(t, http.StatusOK, setup.getJSON(t, "/api/v1/health", &resp))
	assert.True(t, resp.Healthy)
	assert.Equal(t, "test-router", resp.Name)
	assert.Equal(t, setup.Router.ID().String(), resp.RouterID)
	assert.Equal(t, 2, resp.Nodes)
	assert.Zero(t, resp.Gates)
	assert.Equal(t, 3, resp.Registrations)
}

// TestNodes tests the connected names listing
func TestNodes(t *testing.T) {
	setup := newTestServerSetup(t)

	var resp NodesResponse
	assert.Equal(t, http.StatusOK, setup.getJSON(t, "/api/v1/nodes", &resp))
	assert.Equal(t, []NodeInfo{{Name: "echo"}, {Name: "http"}}, resp.Nodes)
}

// TestSend_Outcomes tests the status codes of answered sends
func TestSend_Outcomes(t *testing.T) {
	setup := newTestServerSetup(t)

	t.Run("reply", func(t *testing.T) {
		var resp SendResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{
			To:    network.Node("echo"),
			Topic: "echo",
			Data:  map[string]any{"greeting": "hello"},
		}, &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, network.Local("echo"), resp.From)
		assert.Equal(t, map[string]any{"greeting": "hello"}, resp.Data)
	})

	t.Run("wildcard reply", func(t *testing.T) {
		var resp SendResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.All(), Topic: "echo", Data: "hi"}, &resp)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "hi", resp.Data)
	})

	t.Run("refusal", func(t *testing.T) {
		var resp ErrorResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.Node("echo"), Topic: "fail", Data: "why"}, &resp)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "Base", resp.Kind)
		assert.Equal(t, "refused by echo", resp.Message)
		assert.Equal(t, "why", resp.Data)
	})

	t.Run("unreachable", func(t *testing.T) {
		var resp ErrorResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.Node("ghost"), Topic: "echo"}, &resp)
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "Disconnected", resp.Kind)
		assert.Equal(t, "peer unreachable", resp.Message)
	})

	t.Run("timeout", func(t *testing.T) {
		var resp ErrorResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.Node("echo"), Topic: "drop", Timeout: "30ms"}, &resp)
		assert.Equal(t, http.StatusGatewayTimeout, code)
		assert.Equal(t, "Timeout", resp.Kind)
	})

	t.Run("wildcard without listeners", func(t *testing.T) {
		var resp ErrorResponse
		start := time.Now()
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.All(), Topic: "nobody", Timeout: "50ms"}, &resp)
		assert.Equal(t, http.StatusGatewayTimeout, code)
		assert.Equal(t, "Timeout", resp.Kind)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("no reply", func(t *testing.T) {
		var resp AcceptedResponse
		code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.Node("echo"), Topic: "drop", NoReply: true}, &resp)
		assert.Equal(t, http.StatusAccepted, code)
		assert.Equal(t, AcceptedResponse{Accepted: true, Topic: "drop"}, resp)
	})
}

// TestSend_Validation tests rejected send requests
func TestSend_Validation(t *testing.T) {
	setup := newTestServerSetup(t)

	tests := []struct {
		name string
		req  any
		code int
	}{
		{"missing to", SendRequest{Topic: "echo"}, http.StatusBadRequest},
		{"missing topic", SendRequest{To: network.Node("echo")}, http.StatusBadRequest},
		{"bad timeout", SendRequest{To: network.Node("echo"), Topic: "echo", Timeout: "soon"}, http.StatusBadRequest},
		{"negative timeout", SendRequest{To: network.Node("echo"), Topic: "echo", Timeout: "-1s"}, http.StatusBadRequest},
		{"malformed to", map[string]any{"to": 42, "topic": "echo"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			assert.Equal(t, tt.code, setup.postJSON(t, "/api/v1/send", tt.req, &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	resp, err := http.Post(setup.HTTP.URL+"/api/v1/send", "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusMethodNotAllowed, setup.getJSON(t, "/api/v1/send", nil))
}

// TestRoot tests the API info and unknown paths
func TestRoot(t *testing.T) {
	setup := newTestServerSetup(t)

	var info map[string]any
	assert.Equal(t, http.StatusOK, setup.getJSON(t, "/", &info))
	assert.Equal(t, "meshbus HTTP API", info["service"])

	var resp ErrorResponse
	assert.Equal(t, http.StatusNotFound, setup.getJSON(t, "/api/v1/unknown", &resp))
}

// TestGateEndpoint tests gates linked over the websocket endpoint
func TestGateEndpoint(t *testing.T) {
	setup := newTestServerSetup(t)
	url := "ws" + strings.TrimPrefix(setup.HTTP.URL, "http") + "/api/v1/gate"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	remote, err := gate.DialWebsocket(ctx, url, "remote", gate.Config{Name: "home"})
	require.NoError(t, err)
	defer remote.Close()

	require.Eventually(t, func() bool { return setup.Router.IsGate("remote") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"remote"}, setup.Server.Gates())

	var nodes NodesResponse
	setup.getJSON(t, "/api/v1/nodes", &nodes)
	assert.Contains(t, nodes.Nodes, NodeInfo{Name: "remote", Gate: true})

	// The far side of the gate is attached to no network and rejects.
	var resp ErrorResponse
	code := setup.postJSON(t, "/api/v1/send", SendRequest{
		To:    network.Via("remote", "anyone"),
		Topic: "echo",
	}, &resp)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Base", resp.Kind)
}

// TestMiddleware_Metrics tests request counting
func TestMiddleware_Metrics(t *testing.T) {
	setup := newTestServerSetup(t)

	setup.getJSON(t, "/api/v1/health", nil)
	setup.getJSON(t, "/api/v1/nodes", nil)

	requests := func() int {
		total := 0
		for _, interval := range setup.Sink.Data() {
			for key, counter := range interval.Counters {
				if strings.HasPrefix(key, strings.Join(telemetry.MetricHTTPRequestCount, ".")) {
					total += counter.Count
				}
			}
		}
		return total
	}
	// Requests are counted after their response is written.
	assert.Eventually(t, func() bool { return requests() == 2 }, 2*time.Second, 10*time.Millisecond)
}

// TestMetrics tests the metrics summary endpoint
func TestMetrics(t *testing.T) {
	setup := newTestServerSetup(t)
	setup.getJSON(t, "/api/v1/health", nil)

	// The request counter is written once the health response is out.
	require.Eventually(t, func() bool {
		var summary metrics.MetricsSummary
		return setup.getJSON(t, "/api/v1/metrics", &summary) == http.StatusOK && len(summary.Counters) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestMiddleware_Recovery tests panics turning into 500s
func TestMiddleware_Recovery(t *testing.T) {
	setup := newTestServerSetup(t)

	h := setup.Server.middleware.Recovery(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// timerlessExecutor runs tasks but never fires delayed ones.
type timerlessExecutor struct{}

func (timerlessExecutor) Schedule(task func()) { go task() }

func (timerlessExecutor) After(time.Duration, func()) network.Timer { return stoppedTimer{} }

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }

// TestSend_AnswersTimeoutWhenNothingAnswers tests that the handler bounds
// its wait even when the call timeout never fires
func TestSend_AnswersTimeoutWhenNothingAnswers(t *testing.T) {
	r, err := router.New(router.Config{Name: "timerless", Executor: timerlessExecutor{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	silent := network.NewEndpoint()
	require.NoError(t, r.Connect("silent", silent))
	_, err = silent.ListenFunc(network.All(), "drop", func(*network.Call) {})
	require.NoError(t, err)

	s, err := NewServer(r, Config{})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	setup := &testServerSetup{Router: r, Server: s, HTTP: ts}

	var resp ErrorResponse
	start := time.Now()
	code := setup.postJSON(t, "/api/v1/send", SendRequest{To: network.Node("silent"), Topic: "drop", Timeout: "20ms"}, &resp)
	assert.Equal(t, http.StatusGatewayTimeout, code)
	assert.Equal(t, "Timeout", resp.Kind)
	assert.Equal(t, "call timed out", resp.Message)
	assert.Less(t, time.Since(start), time.Second)
}
