package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
)

// Middleware provides HTTP middleware functions
type Middleware struct {
	logger       *slog.Logger
	msink        metrics.MetricSink
	metricLabels []metrics.Label
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(logger *slog.Logger, msink metrics.MetricSink, labels []metrics.Label) *Middleware {
	return &Middleware{
		logger:       logger,
		msink:        msink,
		metricLabels: labels,
	}
}

// CORS middleware adds CORS headers for browser compatibility
func (m *Middleware) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// ContentType middleware sets the content type to JSON
func (m *Middleware) ContentType(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// Logging middleware logs every request and counts it by status
func (m *Middleware) Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		labels := append([]metrics.Label{}, m.metricLabels...)
		labels = append(labels,
			telemetry.LabelMethod.M(r.Method),
			telemetry.LabelPath.M(r.URL.Path),
			telemetry.LabelStatus.M(strconv.Itoa(rec.status)),
		)
		m.msink.IncrCounterWithLabels(telemetry.MetricHTTPRequestCount, 1, labels)
		m.logger.Debug(
			"http request",
			telemetry.LabelMethod.L(r.Method),
			telemetry.LabelPath.L(r.URL.Path),
			telemetry.LabelStatus.L(rec.status),
			telemetry.LabelDuration.L(time.Since(start)),
			telemetry.LabelPeerAddr.L(r.RemoteAddr),
		)
	}
}

// Recovery middleware recovers from panics and returns 500 error
func (m *Middleware) Recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("http handler panicked", telemetry.LabelError.L(err), telemetry.LabelPath.L(r.URL.Path))
				m.writeError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// writeError writes an error response as JSON
func (m *Middleware) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		m.logger.Warn("failed to encode response", telemetry.LabelError.L(err))
	}
}

// statusRecorder remembers the status written by a handler. It keeps the
// websocket upgrade working by exposing the underlying hijacker.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
