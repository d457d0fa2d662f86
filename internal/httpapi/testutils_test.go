package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// testServerSetup holds common test dependencies
type testServerSetup struct {
	Router *router.Router
	Server *Server
	HTTP   *httptest.Server
	Sink   *metrics.InmemSink
}

// newTestServerSetup creates a router with a few services and an HTTP server
// over it. The services:
//   - echo/echo replies with the data received
//   - echo/fail refuses with the data received
//   - echo/drop never answers
func newTestServerSetup(t *testing.T) *testServerSetup {
	t.Helper()

	r, err := router.New(router.Config{Name: "test-router"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	echo := network.NewEndpoint()
	require.NoError(t, r.Connect("echo", echo))
	_, err = echo.ListenFunc(network.All(), "echo", func(call *network.Call) {
		call.Reply(call.Data)
	})
	require.NoError(t, err)
	_, err = echo.ListenFunc(network.All(), "fail", func(call *network.Call) {
		call.Refuse(failure.New("refused by echo", call.Data))
	})
	require.NoError(t, err)
	_, err = echo.ListenFunc(network.All(), "drop", func(*network.Call) {})
	require.NoError(t, err)

	sink := metrics.NewInmemSink(time.Minute, 5*time.Minute)
	s, err := NewServer(r, Config{SendTimeout: time.Second, MetricSink: sink, Metrics: sink})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testServerSetup{Router: r, Server: s, HTTP: ts, Sink: sink}
}

// postJSON posts body to path and decodes the answer into out
func (setup *testServerSetup) postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(setup.HTTP.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// getJSON gets path and decodes the answer into out
func (setup *testServerSetup) getJSON(t *testing.T, path string, out any) int {
	t.Helper()

	resp, err := http.Get(setup.HTTP.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
