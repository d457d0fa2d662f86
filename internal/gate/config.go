package gate

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

// DefaultMaxPending is the default number of calls a bridge keeps waiting for
// an answer.
const DefaultMaxPending = 1000

// Config represents configuration for a gate Bridge
type Config struct {
	// Name identifies the gate in logs and metrics
	Name string

	// MaxPending bounds the outstanding calls. When more calls are waiting,
	// the oldest one is refused as unreachable. Values below one are raised
	// to one.
	MaxPending int

	// Logger receives the gate logs, slog.Default() when nil
	Logger *slog.Logger

	// MetricSink receives the gate metrics, discarded when nil
	MetricSink metrics.MetricSink

	// MetricLabels are added to every metric emitted by the gate
	MetricLabels []metrics.Label
}

// SetDefaults fills unset fields with safe defaults
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "gate"
	}
	if c.MaxPending == 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MetricSink == nil {
		c.MetricSink = &metrics.BlackholeSink{}
	}
}

// named returns a copy of the configuration for the gate called name.
func (c Config) named(name string) Config {
	c.Name = name
	return c
}
