// Package telemetry holds the log attribute and metric label helpers shared
// by the bus components.
package telemetry

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricRouterSendCount        = []string{"meshbus", "router", "send", "count"}
	MetricRouterSendErrorCount   = []string{"meshbus", "router", "send", "error", "count"}
	MetricRouterDeliveryCount    = []string{"meshbus", "router", "delivery", "count"}
	MetricRouterUnreachableCount = []string{"meshbus", "router", "unreachable", "count"}
	MetricRouterRefusalCount     = []string{"meshbus", "router", "refusal", "count"}
	MetricRouterPanicCount       = []string{"meshbus", "router", "handler", "panic", "count"}
	MetricRouterConnectedNodes   = []string{"meshbus", "router", "connected", "nodes"}

	MetricGateTransferCount      = []string{"meshbus", "gate", "transfer", "count"}
	MetricGateTransferErrorCount = []string{"meshbus", "gate", "transfer", "error", "count"}
	MetricGateReceiveCount       = []string{"meshbus", "gate", "receive", "count"}
	MetricGateReceiveMissCount   = []string{"meshbus", "gate", "receive", "miss", "count"}
	MetricGateEvictionCount      = []string{"meshbus", "gate", "eviction", "count"}
	MetricGatePendingCalls       = []string{"meshbus", "gate", "pending", "calls"}

	MetricHTTPRequestCount = []string{"meshbus", "http", "request", "count"}
)

// Label names a log attribute and its metric label counterpart.
type Label string

var (
	LabelError    Label = "error"
	LabelRouter   Label = "router"
	LabelNode     Label = "node"
	LabelGate     Label = "gate"
	LabelFrom     Label = "from"
	LabelTo       Label = "to"
	LabelTopic    Label = "topic"
	LabelKind     Label = "kind"
	LabelIntent   Label = "intent"
	LabelCallID   Label = "call_id"
	LabelPending  Label = "pending"
	LabelPeerAddr Label = "peer_addr"
	LabelDuration Label = "duration"
	LabelMethod   Label = "method"
	LabelPath     Label = "path"
	LabelStatus   Label = "status"
)

// M returns the metric label.
func (lab Label) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

// L returns the log attribute.
func (lab Label) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
