package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rmacdonaldsmith/meshbus-go/internal/discovery"
	"github.com/rmacdonaldsmith/meshbus-go/internal/gate"
	"github.com/rmacdonaldsmith/meshbus-go/internal/httpapi"
)

// Executors the router can run on
const (
	executorQueue      = "queue"
	executorGoroutines = "goroutines"
)

var (
	// ErrMissingName is returned when the router name is empty
	ErrMissingName = errors.New("name is required")
	// ErrMissingHTTPAddr is returned when the HTTP API has no listen address
	ErrMissingHTTPAddr = errors.New("http.listen is required")
	// ErrUnknownExecutor is returned for executors other than queue and goroutines
	ErrUnknownExecutor = errors.New("router.executor must be queue or goroutines")
	// ErrNegativeDuration is returned when a timeout is negative
	ErrNegativeDuration = errors.New("durations cannot be negative")
	// ErrNegativePending is returned when the gate capacity is negative
	ErrNegativePending = errors.New("gate.max_pending cannot be negative")
)

// Duration is a time.Duration written as "5s" in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the server configuration, read from a YAML file and overridden
// by flags.
type Config struct {
	// Name is the router name, and the gate name peers see this server under
	Name string `yaml:"name"`

	HTTP struct {
		Listen      string   `yaml:"listen"`
		SendTimeout Duration `yaml:"send_timeout"`
	} `yaml:"http"`

	// GRPC.Listen empty disables the gRPC gate server
	GRPC struct {
		Listen string `yaml:"listen"`
	} `yaml:"grpc"`

	Gate struct {
		MaxPending int `yaml:"max_pending"`
	} `yaml:"gate"`

	Router struct {
		DefaultTimeout Duration `yaml:"default_timeout"`
		Executor       string   `yaml:"executor"`
	} `yaml:"router"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Peers are the remote networks linked through gates at startup
	Peers []discovery.Peer `yaml:"peers"`
}

// defaultConfig returns the configuration used when nothing is set.
func defaultConfig() *Config {
	cfg := &Config{Name: defaultName()}
	cfg.HTTP.Listen = ":8080"
	cfg.HTTP.SendTimeout = Duration(httpapi.DefaultSendTimeout)
	cfg.GRPC.Listen = ":9090"
	cfg.Gate.MaxPending = gate.DefaultMaxPending
	cfg.Router.Executor = executorQueue
	cfg.Log.Level = "info"
	return cfg
}

// defaultName derives the router name from the hostname
func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "meshbus-1"
	}
	return fmt.Sprintf("meshbus-%s", hostname)
}

// loadConfig reads the file at path over the defaults. Unknown keys are
// rejected.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.HTTP.Listen == "" {
		return ErrMissingHTTPAddr
	}
	if c.HTTP.SendTimeout < 0 || c.Router.DefaultTimeout < 0 {
		return ErrNegativeDuration
	}
	if c.Gate.MaxPending < 0 {
		return ErrNegativePending
	}
	switch c.Router.Executor {
	case executorQueue, executorGoroutines:
	default:
		return fmt.Errorf("%w, got %q", ErrUnknownExecutor, c.Router.Executor)
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level: %w", err)
	}
	return level, nil
}

// options are the parsed command line
type options struct {
	config      *Config
	showVersion bool
}

// parseFlags loads the file named by -config and applies the flags that were
// set on top of it.
func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		configPath  = fs.String("config", "", "Path to a YAML config file")
		name        = fs.String("name", "", "Router name, the gate name peers see")
		httpAddr    = fs.String("http", "", "Listen address of the HTTP API")
		grpcAddr    = fs.String("grpc", "", "Listen address of the gRPC gate server, \"off\" to disable")
		logLevel    = fs.String("log-level", "", "Log level: debug, info, warn or error")
		showVersion = fs.Bool("version", false, "Show version and exit")
		seeds       []string
	)
	fs.Func("peer", "Peer to link, as name=address (repeatable)", func(v string) error {
		seeds = append(seeds, v)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		return &options{showVersion: true}, nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = *name
		case "http":
			cfg.HTTP.Listen = *httpAddr
		case "grpc":
			cfg.GRPC.Listen = *grpcAddr
			if *grpcAddr == "off" {
				cfg.GRPC.Listen = ""
			}
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	peers, err := discovery.ParseSeeds(seeds)
	if err != nil {
		return nil, err
	}
	cfg.Peers = append(cfg.Peers, peers...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &options{config: cfg}, nil
}
