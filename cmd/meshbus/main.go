// Command meshbus runs a router with the built-in echo and calc services,
// exposes it over HTTP and links it to other networks through gRPC and
// websocket gates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"
)

const (
	// Application info
	appName    = "meshbus"
	appVersion = "0.1.0"
)

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		return
	}

	cfg := opts.config
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	// SIGUSR1 dumps the current metrics to stderr.
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	dump := metrics.DefaultInmemSignal(sink)
	defer dump.Stop()

	ctx, stop := notifyContext()
	defer stop()

	logger.Info("starting",
		slog.String("version", appVersion),
		slog.String("http", cfg.HTTP.Listen),
		slog.String("grpc", cfg.GRPC.Listen),
		slog.Int("peers", len(cfg.Peers)),
	)
	if err := run(ctx, cfg, logger, sink); err != nil {
		logger.Error("stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}

// newLogger returns a text logger at the configured level. The level was
// checked by Config.Validate.
func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	level, _ := cfg.logLevel()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}
