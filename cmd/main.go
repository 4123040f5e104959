package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/trailvote/internal/adapters/chain"
	"github.com/okian/trailvote/internal/adapters/http/api"
	"github.com/okian/trailvote/internal/adapters/http/swagger"
	"github.com/okian/trailvote/internal/adapters/mq/publisher"
	workerpool "github.com/okian/trailvote/internal/adapters/mq/worker"
	app "github.com/okian/trailvote/internal/app"
	"github.com/okian/trailvote/internal/config"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/okian/trailvote/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger format comes from config, so it is not available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid log_format: " + err.Error() + "\n")
		format = logger.FormatText
	}
	if err := logger.Init(logger.WithFormat(format)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "trailvote exited", logger.Error(err))
		os.Exit(1)
	}
	loggerInstance.Info(ctx, "server stopped")
}

// run serves until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	svc, closeSinks, err := newService(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeSinks()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := svc.Start(gctx); err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		<-gctx.Done()
		svc.Stop()
		return nil
	})

	g.Go(func() error {
		l.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info(gctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error(gctx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	return g.Wait()
}

// newService builds the service and its chain client from cfg. The returned
// func closes the result sinks and must be called after the service stops.
func newService(_ context.Context, cfg *config.Config, l logger.Logger) (*app.Service, func(), error) {
	mode, err := cfg.FinalityMode()
	if err != nil {
		return nil, nil, err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, nil, err
	}
	voters, err := cfg.VoterList()
	if err != nil {
		return nil, nil, err
	}

	chainOpts := []chain.Option{
		chain.WithPollInterval(cfg.PollInterval()),
		chain.WithChainID(cfg.ChainID),
	}
	if cfg.SignerURL != "" {
		chainOpts = append(chainOpts, chain.WithSigner(chain.NewRemoteSigner(cfg.SignerURL, nil)))
	}
	client, err := chain.NewClient(cfg.ChainURL, chainOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("chain client: %w", err)
	}

	opts := []app.Option{
		app.WithLogger(l),
		app.WithChain(client),
		app.WithMode(mode),
		app.WithStartBlock(cfg.StartBlock),
		app.WithTrails(rules),
		app.WithVoters(voters),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRecentVotes(cfg.RecentVotes),
		app.WithBroadcastTimeout(cfg.BroadcastTimeout()),
	}
	if cfg.SignerURL != "" {
		opts = append(opts, app.WithBroadcaster(client))
	}

	closeSinks := func() {}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		pub, err := publisher.NewResultPublisher(brokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("result publisher: %w", err)
		}
		opts = append(opts, app.WithRecorders(workerpool.Recorder(pub)))
		closeSinks = func() {
			if err := pub.Close(); err != nil {
				l.Warn(context.Background(), "closing result publisher", logger.Error(err))
			}
		}
		l.Info(context.Background(), "publishing vote results",
			logger.Any("brokers", brokers),
			logger.String("topic", cfg.KafkaTopic),
		)
	}

	return app.New(opts...), closeSinks, nil
}

// newMux registers the API and documentation routes.
func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.RecentVotes).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater updates system metrics until ctx is cancelled.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
