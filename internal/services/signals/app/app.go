// Package app wires the signals agent: stores, catalog, platforms, ranking
// and both protocol front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/platform/timeouts"
	"github.com/louisbranch/signals.agent/internal/services/signals/activation"
	"github.com/louisbranch/signals.agent/internal/services/signals/api/a2a"
	mcpapi "github.com/louisbranch/signals.agent/internal/services/signals/api/mcp"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
	"github.com/louisbranch/signals.agent/internal/services/signals/service"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage/memory"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage/sqlite"
)

// TransportKind selects how the agent is reached.
type TransportKind string

const (
	// TransportStdio serves the tool protocol on standard input and output.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves both protocols, the agent card and metrics.
	TransportHTTP TransportKind = "http"
)

// ParseTransport normalizes a transport name. Empty input is stdio.
func ParseTransport(value string) (TransportKind, error) {
	switch TransportKind(strings.ToLower(strings.TrimSpace(value))) {
	case "", TransportStdio:
		return TransportStdio, nil
	case TransportHTTP:
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("invalid transport %q: must be 'stdio' or 'http'", value)
	}
}

// Config selects the backends the agent runs on. Empty values pick the
// in-process default for each concern.
type Config struct {
	CatalogFile   string
	PlatformsFile string
	// DBPath enables the sqlite stores.
	DBPath string
	// RedisAddr moves the segment cache to redis.
	RedisAddr string
	AIURL     string
	AIAPIKey  string
	AITimeout time.Duration
	// JWTSecret enables bearer principals on the HTTP surfaces.
	JWTSecret     string
	PublicURL     string
	SweepInterval time.Duration
	SweepGrace    time.Duration

	Clock  clock.Clock
	Logger logging.Logger
}

// App is a wired agent.
type App struct {
	Service  *service.Service
	MCP      *mcpapi.Server
	A2A      *a2a.Handler
	Metrics  *metrics.Metrics
	Verifier *PrincipalVerifier

	contexts *contexts.Store
	logger   logging.Logger
	sweep    struct{ interval, grace time.Duration }
	closers  []func() error
}

// New builds every collaborator described by cfg. Callers must Close the
// returned App.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{Metrics: metrics.New(), logger: logger}
	a.sweep.interval = cfg.SweepInterval
	a.sweep.grace = cfg.SweepGrace
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	controller, err := catalog.Load(ctx, catalog.SourceFor(cfg.CatalogFile))
	if err != nil {
		return nil, err
	}

	repo, err := a.openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry, err := a.buildRegistry(cfg, controller, clk)
	if err != nil {
		return nil, err
	}

	ranker := &ranking.Engine{
		Timeout:   cfg.AITimeout,
		Proposals: ranking.ProposalGenerator{Exists: controller.HasName},
		Metrics:   a.Metrics,
		Logger:    logger.WithField("component", "ranking"),
	}
	if strings.TrimSpace(cfg.AIURL) != "" {
		httpTimeout := cfg.AITimeout
		if httpTimeout <= 0 {
			httpTimeout = timeouts.AIRanking
		}
		client, err := ranking.NewHTTPClient(ranking.HTTPClientConfig{
			URL:        cfg.AIURL,
			APIKey:     cfg.AIAPIKey,
			HTTPClient: &http.Client{Timeout: httpTimeout},
		})
		if err != nil {
			return nil, err
		}
		ranker.AI = client
	}

	a.contexts = contexts.New(repo, clk, contexts.WithLogger(logger.WithField("component", "contexts")))
	machine := activation.New(repo, clk,
		activation.WithLogger(logger.WithField("component", "activation")),
		activation.WithMetrics(a.Metrics),
	)

	a.Service, err = service.New(service.Config{
		Catalog:     controller,
		Contexts:    a.contexts,
		Activations: machine,
		Platforms:   registry,
		Ranker:      ranker,
		Clock:       clk,
		Metrics:     a.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	a.MCP, err = mcpapi.New(a.Service, logger.WithField("protocol", "mcp"))
	if err != nil {
		return nil, err
	}
	a.A2A = a2a.New(a.Service, a2a.Options{
		PublicURL: cfg.PublicURL,
		Clock:     clk,
		Logger:    logger.WithField("protocol", "a2a"),
	})

	if strings.TrimSpace(cfg.JWTSecret) != "" {
		a.Verifier, err = NewPrincipalVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, path string) (storage.Store, error) {
	var repo storage.Store
	if strings.TrimSpace(path) == "" {
		repo = memory.New()
	} else {
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		repo = store
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

func (a *App) buildRegistry(cfg Config, controller *catalog.Controller, clk clock.Clock) (*platform.Registry, error) {
	file := platform.DefaultFile()
	if strings.TrimSpace(cfg.PlatformsFile) != "" {
		loaded, err := platform.LoadFile(cfg.PlatformsFile)
		if err != nil {
			return nil, err
		}
		file = loaded
	}
	logger := a.logger.WithField("component", "platform")
	adapters, err := file.Build(controller.Signals, logger)
	if err != nil {
		return nil, err
	}

	var backend platform.Cache
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisCache := platform.NewRedisCache(addr)
		a.closers = append(a.closers, redisCache.Close)
		backend = redisCache
	} else {
		backend = platform.NewMemoryCache(clk)
	}

	return platform.NewRegistry(adapters,
		platform.WithSegmentCache(platform.NewSegmentCache(backend, platform.DefaultSegmentTTL, a.Metrics, logger)),
		platform.WithMetrics(a.Metrics),
		platform.WithLogger(logger),
		platform.WithCallTimeout(timeouts.PlatformRequest),
	)
}

// Close releases stores and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run serves transport until ctx is done. The context sweeper runs for the
// same lifetime.
func (a *App) Run(ctx context.Context, transport TransportKind, httpAddr string) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.contexts.RunSweeper(sweepCtx, a.sweep.interval, a.sweep.grace)

	switch transport {
	case TransportHTTP:
		return a.ListenAndServe(ctx, httpAddr)
	case TransportStdio, "":
		return a.MCP.ServeStdio(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", transport)
	}
}

// ListenAndServe serves Handler on addr and shuts down gracefully when ctx
// is done.
func (a *App) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, listener)
}

// Serve serves Handler on listener until ctx is done.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	log.Printf("HTTP server listening at %v", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}
