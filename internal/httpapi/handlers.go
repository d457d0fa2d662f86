package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// answerGrace is how long past the call timeout a send over HTTP waits
// before answering 504 itself.
const answerGrace = 100 * time.Millisecond

// outcome is the first answer to a send made over HTTP.
type outcome struct {
	reply   *network.Call
	refusal *failure.Error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	router      *router.Router
	node        *network.Endpoint
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewHandlers creates a new handlers instance. node must be connected to r;
// every send made over HTTP is sent by it.
func NewHandlers(r *router.Router, node *network.Endpoint, sendTimeout time.Duration, logger *slog.Logger) *Handlers {
	return &Handlers{
		router:      r,
		node:        node,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.router.Stats()
	resp := HealthResponse{
		Healthy:       true,
		RouterID:      stats.ID,
		Name:          stats.Name,
		Nodes:         stats.Nodes,
		Gates:         stats.Gates,
		Registrations: stats.Registrations,
		Message:       "router is running",
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// Nodes handles GET /api/v1/nodes
func (h *Handlers) Nodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := h.router.Connected()
	resp := NodesResponse{Nodes: make([]NodeInfo, 0, len(names))}
	for _, name := range names {
		resp.Nodes = append(resp.Nodes, NodeInfo{Name: name, Gate: h.router.IsGate(name)})
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// Send handles POST /api/v1/send. Unless the request opts out, it waits for
// the first answer: a reply is returned as is, a refusal is mapped to a
// status code by its kind.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Validate JSON content type
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	timeout, err := h.validateSendRequest(&req)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.NoReply {
		if err := h.node.Send(req.To, req.Topic, req.Data); err != nil {
			h.writeSendError(w, err)
			return
		}
		h.writeJSON(w, AcceptedResponse{Accepted: true, Topic: req.Topic}, http.StatusAccepted)
		return
	}

	// Wildcard sends may be answered more than once; the first answer wins.
	answers := make(chan outcome, 1)
	offer := func(o outcome) {
		select {
		case answers <- o:
		default:
		}
	}

	err = h.node.Send(req.To, req.Topic, req.Data,
		network.WithTimeout(timeout),
		network.WithSuccess(func(reply *network.Call) { offer(outcome{reply: reply}) }),
		network.WithError(func(err *failure.Error) { offer(outcome{refusal: err}) }),
	)
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	// The call timeout normally answers first; this bounds the wait when
	// nothing is left to answer.
	deadline := time.NewTimer(timeout + answerGrace)
	defer deadline.Stop()

	select {
	case <-deadline.C:
		h.writeRefusal(w, failure.Timeout("call timed out"))
	case o := <-answers:
		if o.refusal != nil {
			h.writeRefusal(w, o.refusal)
			return
		}
		h.writeJSON(w, SendResponse{From: o.reply.From, Data: o.reply.Data}, http.StatusOK)
	case <-r.Context().Done():
		h.logger.Debug("client left before the answer", telemetry.LabelTopic.L(req.Topic))
	}
}

// Helper methods

func (h *Handlers) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, network.ErrDetached), errors.Is(err, router.ErrClosed):
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.writeError(w, err.Error(), http.StatusBadRequest)
	}
}

// writeRefusal maps a refusal to its status code
func (h *Handlers) writeRefusal(w http.ResponseWriter, refusal *failure.Error) {
	statusCode := http.StatusUnprocessableEntity
	switch refusal.Kind {
	case failure.KindDisconnected:
		statusCode = http.StatusBadGateway
	case failure.KindTimeout:
		statusCode = http.StatusGatewayTimeout
	}

	h.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: refusal.Message,
		Code:    statusCode,
		Kind:    refusal.Kind.String(),
		Data:    refusal.Data,
	}, statusCode)
}

// writeError writes an error response as JSON
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", telemetry.LabelError.L(err))
	}
}

// validateJSON validates that the request has valid JSON content-type
func (h *Handlers) validateJSON(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}

// validateSendRequest validates send request fields and returns the timeout
// to wait for an answer
func (h *Handlers) validateSendRequest(req *SendRequest) (time.Duration, error) {
	if len(req.To) == 0 {
		return 0, fmt.Errorf("to is required")
	}
	if req.Topic == "" {
		return 0, fmt.Errorf("topic is required")
	}
	if req.Timeout == "" {
		return h.sendTimeout, nil
	}

	timeout, err := time.ParseDuration(req.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return timeout, nil
}
