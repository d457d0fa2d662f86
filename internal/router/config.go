package router

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

var (
	// ErrEmptyRouterName is returned when the router name is empty
	ErrEmptyRouterName = errors.New("router name cannot be empty")
	// ErrNegativeTimeout is returned when the default call timeout is negative
	ErrNegativeTimeout = errors.New("default timeout cannot be negative")
)

// Config represents configuration for a Router
type Config struct {
	// Name identifies the router in logs and metrics
	Name string

	// Executor runs handlers, callbacks and timeouts. When nil the router
	// creates and owns a serial Queue.
	Executor network.Executor

	// Logger receives the router logs, slog.Default() when nil
	Logger *slog.Logger

	// MetricSink receives the router metrics, discarded when nil
	MetricSink metrics.MetricSink

	// MetricLabels are added to every metric emitted by the router
	MetricLabels []metrics.Label

	// DefaultTimeout applies to sends that do not set their own timeout.
	// Zero disables it.
	DefaultTimeout time.Duration
}

// SetDefaults fills unset fields with safe defaults
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "local"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MetricSink == nil {
		c.MetricSink = &metrics.BlackholeSink{}
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrEmptyRouterName
	}
	if c.DefaultTimeout < 0 {
		return ErrNegativeTimeout
	}
	return nil
}
