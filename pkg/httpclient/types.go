package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the meshbus HTTP API (e.g., "http://localhost:8080")
	ServerURL string

	// Timeout for HTTP requests. It should exceed the send timeouts used.
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// SendRequest represents a send issued through the server's HTTP node
type SendRequest struct {
	To      network.Selector `json:"to"`
	Topic   string           `json:"topic"`
	Data    any              `json:"data,omitempty"`
	Timeout string           `json:"timeout,omitempty"`
	NoReply bool             `json:"noReply,omitempty"`
}

// SendResponse represents the first reply to a send
type SendResponse struct {
	From network.Address `json:"from"`
	Data any             `json:"data"`
}

// AcceptedResponse represents a send that does not wait for an answer
type AcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	Topic    string `json:"topic"`
}

// NodeInfo describes one name connected to the router
type NodeInfo struct {
	Name string `json:"name"`
	Gate bool   `json:"gate"`
}

// NodesResponse represents the connected names, sorted
type NodesResponse struct {
	Nodes []NodeInfo `json:"nodes"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	RouterID      string `json:"routerId"`
	Name          string `json:"name"`
	Nodes         int    `json:"nodes"`
	Gates         int    `json:"gates"`
	Registrations int    `json:"registrations"`
	Message       string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// APIError is returned for every response with an error status
type APIError struct {
	StatusCode int
	Response   ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Kind != "" {
		return fmt.Sprintf("call refused (%d): %s: %s", e.StatusCode, e.Response.Kind, e.Response.Message)
	}
	return fmt.Sprintf("API error (%d): %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Response.Message)
}

// Refusal returns the refusal carried by the error, nil when the request
// itself failed.
func (e *APIError) Refusal() *failure.Error {
	if e.Response.Kind == "" {
		return nil
	}
	return &failure.Error{
		Kind:    failure.ParseKind(e.Response.Kind),
		Message: e.Response.Message,
		Data:    e.Response.Data,
	}
}

// Unwrap lets errors.Is match refusals against the failure sentinels.
func (e *APIError) Unwrap() error {
	if refusal := e.Refusal(); refusal != nil {
		return refusal
	}
	return nil
}
