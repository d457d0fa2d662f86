package httpapi

import "github.com/rmacdonaldsmith/meshbus-go/pkg/network"

// Request/Response types for the HTTP API

// SendRequest represents a send issued through the HTTP node
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

// ErrorResponse represents an error response. Refusals carry their kind and
// data.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}
