package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rmacdonaldsmith/meshbus-go/internal/discovery"
	"github.com/rmacdonaldsmith/meshbus-go/internal/gate"
	"github.com/rmacdonaldsmith/meshbus-go/internal/httpapi"
	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

const (
	// peerRetryInterval separates two attempts to link a peer
	peerRetryInterval = time.Second
	shutdownTimeout   = 30 * time.Second
)

// peerLink is a dialed gate: a participant that ends on its own when the
// remote goes away.
type peerLink interface {
	network.Gate
	Done() <-chan struct{}
	Close() error
}

// grpcPeer owns the client connection of a dialed gRPC gate.
type grpcPeer struct {
	*gate.GRPCGate
	cc *grpc.ClientConn
}

func (p *grpcPeer) Close() error {
	return errors.Join(p.GRPCGate.Close(), p.cc.Close())
}

// app is a running server: a router with the built-in services, the HTTP
// API, the gRPC gate server and the links to the configured peers.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	router   *router.Router
	executor interface{ Close() error }
	http     *httpapi.Server
	grpc     *grpc.Server
	gates    *gate.GRPCServer
	msink    metrics.MetricSink
	retry    time.Duration

	wg sync.WaitGroup
}

// newApp builds the server components without listening yet.
func newApp(cfg *Config, logger *slog.Logger, sink *metrics.InmemSink) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger.With(telemetry.LabelRouter.L(cfg.Name)),
		retry:  peerRetryInterval,
	}

	var msink metrics.MetricSink = &metrics.BlackholeSink{}
	if sink != nil {
		msink = sink
	}
	a.msink = msink

	rcfg := router.Config{
		Name:           cfg.Name,
		Logger:         logger,
		MetricSink:     msink,
		DefaultTimeout: time.Duration(cfg.Router.DefaultTimeout),
	}
	if cfg.Router.Executor == executorGoroutines {
		g := router.NewGoroutines(logger)
		rcfg.Executor = g
		a.executor = g
	}

	r, err := router.New(rcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	a.router = r

	if err := connectServices(r); err != nil {
		a.closeRouter()
		return nil, err
	}

	gcfg := a.gateConfig("")
	a.http, err = httpapi.NewServer(r, httpapi.Config{
		Addr:        cfg.HTTP.Listen,
		SendTimeout: time.Duration(cfg.HTTP.SendTimeout),
		Gate:        gcfg,
		Logger:      logger,
		MetricSink:  msink,
		Metrics:     sink,
	})
	if err != nil {
		a.closeRouter()
		return nil, err
	}

	a.gates = gate.NewGRPCServer(r, gcfg)
	a.grpc = grpc.NewServer()
	a.gates.Register(a.grpc)
	return a, nil
}

// gateConfig returns the configuration of a gate called name
func (a *app) gateConfig(name string) gate.Config {
	return gate.Config{
		Name:       name,
		MaxPending: a.cfg.Gate.MaxPending,
		Logger:     a.logger,
		MetricSink: a.msink,
	}
}

// serve runs the server on the given listeners until ctx is done, then shuts
// it down. grpcLis may be nil.
func (a *app) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	errc := make(chan error, 2)

	go func() {
		a.logger.Info("http api listening", telemetry.LabelPeerAddr.L(httpLis.Addr().String()))
		if err := a.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http api: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			a.logger.Info("grpc gate server listening", telemetry.LabelPeerAddr.L(grpcLis.Addr().String()))
			if err := a.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- fmt.Errorf("grpc gate server: %w", err)
			}
		}()
	}

	linkCtx, stopLinks := context.WithCancel(ctx)
	defer stopLinks()
	if err := a.linkPeers(linkCtx); err != nil {
		a.shutdown(stopLinks)
		return err
	}

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err = <-errc:
		a.logger.Error("server failed", telemetry.LabelError.L(err))
	}
	return errors.Join(err, a.shutdown(stopLinks))
}

// shutdown stops the peer links, the listeners and the router
func (a *app) shutdown(stopLinks context.CancelFunc) error {
	stopLinks()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.http.Stop(ctx)
	// Accepted gate streams last as long as their peers, so they are cut.
	a.grpc.Stop()
	return errors.Join(err, a.closeRouter())
}

func (a *app) closeRouter() error {
	err := a.router.Close()
	if a.executor != nil {
		err = errors.Join(err, a.executor.Close())
	}
	return err
}

// linkPeers starts keeping a link to every configured peer.
func (a *app) linkPeers(ctx context.Context) error {
	peers, err := discovery.NewStaticDiscovery(a.cfg.Peers...).FindPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to find peers: %w", err)
	}
	for _, peer := range peers {
		a.wg.Add(1)
		go a.maintain(ctx, peer)
	}
	return nil
}

// maintain links peer and relinks it whenever the link ends, until ctx is
// done.
func (a *app) maintain(ctx context.Context, peer discovery.Peer) {
	defer a.wg.Done()
	logger := a.logger.With(telemetry.LabelGate.L(peer.Name), telemetry.LabelPeerAddr.L(peer.Address))

	for {
		link, err := a.dial(ctx, peer)
		if err == nil {
			if err = a.router.Connect(peer.Name, link); err != nil {
				_ = link.Close()
			}
		}

		if err == nil {
			logger.Info("peer linked", slog.String("transport", peer.Transport))
			select {
			case <-link.Done():
				logger.Warn("peer link ended")
			case <-ctx.Done():
			}
			if err := a.router.Disconnect(peer.Name); err != nil && !errors.Is(err, router.ErrNotConnected) {
				logger.Warn("failed to disconnect peer", telemetry.LabelError.L(err))
			}
			_ = link.Close()
		} else {
			logger.Warn("failed to link peer", telemetry.LabelError.L(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.retry):
		}
	}
}

// dial opens a gate to peer, naming this side after the router.
func (a *app) dial(ctx context.Context, peer discovery.Peer) (peerLink, error) {
	cfg := a.gateConfig(peer.Name)

	switch peer.Transport {
	case discovery.TransportWebsocket:
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		g, err := gate.DialWebsocket(dialCtx, peer.Address, a.cfg.Name, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		cc, err := grpc.NewClient(peer.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create grpc client: %w", err)
		}
		g, err := gate.DialGRPC(cc, a.cfg.Name, cfg)
		if err != nil {
			_ = cc.Close()
			return nil, err
		}
		return &grpcPeer{GRPCGate: g, cc: cc}, nil
	}
}

// run listens on the configured addresses and serves until ctx is done.
func run(ctx context.Context, cfg *Config, logger *slog.Logger, sink *metrics.InmemSink) error {
	a, err := newApp(cfg, logger, sink)
	if err != nil {
		return err
	}

	httpLis, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		_ = a.closeRouter()
		return fmt.Errorf("failed to listen for http: %w", err)
	}

	var grpcLis net.Listener
	if cfg.GRPC.Listen != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			_ = httpLis.Close()
			_ = a.closeRouter()
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
	}

	return a.serve(ctx, httpLis, grpcLis)
}
