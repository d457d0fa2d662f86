package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshbus-go/internal/httpapi"
	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/httpclient"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// newMeshServer serves a router with echo and calc services over HTTP
func newMeshServer(t *testing.T) *httptest.Server {
	t.Helper()

	r, err := router.New(router.Config{Name: "cli-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	echo := network.NewEndpoint()
	require.NoError(t, r.Connect("echo", echo))
	_, err = echo.ListenFunc(network.All(), "echo", func(call *network.Call) {
		call.Reply(call.Data)
	})
	require.NoError(t, err)

	calc := network.NewEndpoint()
	require.NoError(t, r.Connect("calc", calc))
	_, err = calc.ListenFunc(network.All(), "sum", func(call *network.Call) {
		values, ok := call.Data.([]any)
		if !ok {
			call.Refuse(failure.New("sum expects a list of numbers", call.Data))
			return
		}
		total := 0.0
		for _, v := range values {
			total += v.(float64)
		}
		call.Reply(total)
	})
	require.NoError(t, err)

	s, err := httpapi.NewServer(r, httpapi.Config{SendTimeout: time.Second})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// execute runs the CLI with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prev := client
	t.Cleanup(func() { client = prev })

	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMainCommandHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, name := range []string{"health", "nodes", "send", "demo"} {
		assert.Contains(t, out, name)
	}
}

func TestHealthCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(httpclient.HealthResponse{
			Healthy:       true,
			RouterID:      "id-1",
			Name:          "alpha",
			Nodes:         4,
			Gates:         1,
			Registrations: 7,
		})
	}))
	defer server.Close()

	out, err := execute(t, "--server", server.URL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, "Router: alpha (id-1)")
	assert.Contains(t, out, "Gates: 1")
	assert.Contains(t, out, "Registrations: 7")
}

func TestNodesCommand(t *testing.T) {
	ts := newMeshServer(t)

	out, err := execute(t, "--server", ts.URL, "nodes")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected (3):")
	assert.Regexp(t, `calc\s+node`, out)
	assert.Regexp(t, `http\s+node`, out)
}

func TestSendCommand(t *testing.T) {
	ts := newMeshServer(t)

	t.Run("reply", func(t *testing.T) {
		out, err := execute(t, "--server", ts.URL, "send", "--to", "calc", "--topic", "sum", "--data", "[1,2,3,4,5]")
		require.NoError(t, err)
		assert.Contains(t, out, "Reply from calc")
		assert.Contains(t, out, "15")
	})

	t.Run("wildcard", func(t *testing.T) {
		out, err := execute(t, "--server", ts.URL, "send", "--to", "*", "--topic", "echo", "--data", `"hi"`)
		require.NoError(t, err)
		assert.Contains(t, out, `"hi"`)
	})

	t.Run("refusal", func(t *testing.T) {
		_, err := execute(t, "--server", ts.URL, "send", "--to", "calc", "--topic", "sum", "--data", `"five"`)
		require.Error(t, err)
		assert.ErrorIs(t, err, failure.ErrBase)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := execute(t, "--server", ts.URL, "send", "--to", "east/calc", "--topic", "sum")
		assert.ErrorIs(t, err, failure.ErrDisconnected)
	})

	t.Run("no reply", func(t *testing.T) {
		out, err := execute(t, "--server", ts.URL, "send", "--to", "echo", "--topic", "echo", "--no-reply")
		require.NoError(t, err)
		assert.Contains(t, out, "Sent to echo")
	})

	t.Run("invalid JSON data", func(t *testing.T) {
		_, err := execute(t, "--server", ts.URL, "send", "--to", "echo", "--topic", "echo", "--data", "invalid-json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON data")
	})

	t.Run("missing topic", func(t *testing.T) {
		_, err := execute(t, "--server", ts.URL, "send", "--to", "echo")
		assert.Error(t, err)
	})
}

func TestDemoCommand(t *testing.T) {
	ts := newMeshServer(t)

	out, err := execute(t, "--server", ts.URL, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "reply from echo")
	assert.Contains(t, out, "15")
	assert.Contains(t, out, "refused (Base): sum expects a list of numbers")
	assert.Contains(t, out, "refused (Disconnected): peer unreachable")
	assert.Contains(t, out, "Demo completed")
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		input   string
		want    network.Selector
		wantErr bool
	}{
		{"calc", network.Node("calc"), false},
		{"*", network.All(), false},
		{"echo, calc", network.Node("echo", "calc"), false},
		{"east/calc", network.Via("east", "calc"), false},
		{"echo,east/*", network.Join(network.Node("echo"), network.Via("east", "*")), false},
		{`"calc"`, network.Node("calc"), false},
		{`{"gate":"east","node":"calc"}`, network.Via("east", "calc"), false},
		{`["echo",{"gate":"*","node":"calc"}]`, network.Join(network.Node("echo"), network.Via("*", "calc")), false},
		{"", nil, true},
		{" , ", nil, true},
		{"east/", nil, true},
		{"[broken", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSelector(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	rootCmd := newRootCommand()

	err := rootCmd.ParseFlags([]string{"--server", "http://example.com", "--timeout", "10s"})
	require.NoError(t, err)

	assert.Equal(t, "http://example.com", serverURL)
	assert.Equal(t, 10*time.Second, timeout)
}
