package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nocturne-hq/parity/pkg/alert"
	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/recorder"
	"nocturne-hq/parity/pkg/compare"
	"nocturne-hq/parity/pkg/config"
	"nocturne-hq/parity/pkg/correlate"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/maintenance"
	"nocturne-hq/parity/pkg/proxy"
	"nocturne-hq/parity/pkg/proxy/handlers"
	"nocturne-hq/parity/pkg/proxy/middleware"
	"nocturne-hq/parity/pkg/telemetry/health"
	"nocturne-hq/parity/pkg/telemetry/metrics"
	"nocturne-hq/parity/pkg/telemetry/tracing"
)

// cacheSizeInterval is how often the response cache size gauge is refreshed.
const cacheSizeInterval = 15 * time.Second

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Option customizes a Server.
type Option func(*Server)

// WithApplication runs the proxy in middleware mode: requests the proxy
// forwarded to itself are served by app. Use it when parity is embedded in
// the replacement server and targets.replacement.base_url is unset.
func WithApplication(app http.Handler) Option {
	return func(s *Server) { s.app = app }
}

// WithConfigWatch hot-reloads the configuration file at path.
func WithConfigWatch(path string) Option {
	return func(s *Server) { s.watchPath = path }
}

// Server owns every runtime component.
type Server struct {
	cfg  *config.Config
	info BuildInfo

	app       http.Handler
	watchPath string

	storage    analysis.Storage
	snapshots  maintenance.SnapshotStore
	collector  *metrics.Collector
	tracer     *tracing.Tracer
	comparator *compare.Comparator
	forwarder  *forward.Forwarder
	recorder   *recorder.Recorder
	alerts     *alert.Forwarder
	worker     *maintenance.Worker
	scheduler  *maintenance.Scheduler
	checker    *health.Checker
	reporter   *health.Reporter
	proxy      *proxy.Handler
	api        *handlers.API

	handler    http.Handler
	httpServer *http.Server
	watcher    *config.Watcher

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// New builds every component from cfg. The returned server owns the opened
// stores; call Shutdown (or Close when it was never started) to release them.
func New(ctx context.Context, cfg *config.Config, info BuildInfo, opts ...Option) (s *Server, err error) {
	s = &Server{
		cfg:    cfg,
		info:   info,
		logger: slog.Default().With("component", "server"),
	}
	for _, o := range opts {
		o(s)
	}
	defer func() {
		if err != nil {
			_ = s.closeComponents(context.Background())
		}
	}()

	s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	if s.tracer, err = tracing.New(&cfg.Telemetry.Tracing, info.Version); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if s.storage, err = OpenStorage(&cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to open analysis storage: %w", err)
	}
	if s.snapshots, err = OpenSnapshotStore(cfg); err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	if s.worker, err = NewMaintenanceWorker(ctx, &cfg.Maintenance, s.storage, s.snapshots, s.collector); err != nil {
		return nil, err
	}
	if cfg.Maintenance.Enabled {
		s.scheduler = maintenance.NewScheduler(s.worker, cfg.Maintenance.Schedule)
	}

	s.recorder = recorder.NewRecorder(s.storage, &recorder.Config{
		AsyncBuffer:  cfg.Storage.Recorder.AsyncBuffer,
		WriteTimeout: cfg.Storage.Recorder.WriteTimeout,
	}, s.collector)

	if cfg.Alerts.Enabled {
		alertCfg, err := AlertConfig(&cfg.Alerts)
		if err != nil {
			return nil, err
		}
		s.alerts = alert.NewForwarder(alertCfg, s.collector)
	}

	var cache *forward.ResponseCache
	if cfg.Cache.Enabled {
		cache = forward.NewResponseCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}
	s.forwarder = forward.NewForwarder(
		forward.NewClient(TargetConfig(analysis.TargetLegacy, &cfg.Targets.Legacy)),
		forward.NewClient(TargetConfig(analysis.TargetReplacement, &cfg.Targets.Replacement)),
		cache,
		s.collector,
	)

	policy, err := correlate.ParseSelectionPolicy(cfg.Parity.SelectionPolicy)
	if err != nil {
		return nil, err
	}
	s.comparator = compare.New(CompareOptions(&cfg.Compare))
	correlator := correlate.New(policy, s.comparator)

	handlerOpts := []proxy.HandlerOption{
		proxy.WithObserver(s.collector),
		proxy.WithTracer(s.tracer),
	}
	if s.alerts != nil {
		handlerOpts = append(handlerOpts, proxy.WithNotifier(s.alerts))
	}
	if s.app != nil {
		handlerOpts = append(handlerOpts, proxy.WithNext(s.app))
	} else if cfg.Targets.Replacement.BaseURL == "" {
		s.logger.Warn("replacement target is self-forwarding but no application is mounted; every replacement leg will be reported missing")
	}
	s.proxy = proxy.NewHandler(s.forwarder, correlator, s.recorder, proxy.Options{
		ComparisonEnabled:  cfg.Parity.ComparisonEnabled,
		CorrelationEnabled: cfg.Parity.CorrelationEnabled,
		SamplingPercentage: cfg.Parity.SamplingPercentage,
		MaxBodyBytes:       cfg.Parity.MaxBodyBytes,
		AddResponseHeaders: cfg.Parity.AddResponseHeaders,
	}, handlerOpts...)

	s.reporter = health.NewReporter(health.ReporterConfig{
		LegacyBaseURL: cfg.Targets.Legacy.BaseURL,
		ProbePath:     cfg.Health.ProbePath,
		ProbeTimeout:  cfg.Health.ProbeTimeout,
	}, s.features, s.worker.Snapshot)

	s.checker = health.New(cfg.Health.ProbeTimeout)
	s.checker.RegisterCheck("storage", func(ctx context.Context) error {
		_, err := s.storage.Count(ctx, &analysis.Query{})
		return err
	})
	s.checker.RegisterCheck("legacy", s.reporter.Check)

	s.api = handlers.NewAPI(s.storage, s.proxy, s.worker, s.reporter.StatusHandler(), handlers.Config{
		Prefix:       cfg.Parity.APIPrefix,
		MaxBodyBytes: cfg.Parity.MaxBodyBytes,
	})

	s.handler = s.routes()
	return s, nil
}

// features reports the live feature flags for the status endpoint.
func (s *Server) features() health.Features {
	return health.Features{
		Comparison:         s.cfg.Parity.ComparisonEnabled,
		Caching:            s.forwarder.Cache() != nil,
		Correlation:        s.cfg.Parity.CorrelationEnabled,
		Alerting:           s.alerts != nil,
		SamplingPercentage: int(s.proxy.SamplingPercentage()),
	}
}

// routes mounts the query API, telemetry endpoints and the proxy catch-all.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	api := middleware.Chain(s.api.Handler(),
		middleware.CorrelationMiddleware,
		middleware.CORSMiddleware(middleware.NewCORSConfig(s.cfg.Parity.APIAllowedOrigins)),
	)
	mux.Handle(s.cfg.Parity.APIPrefix+"/", api)

	if s.cfg.Telemetry.Metrics.Enabled {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}
	health.Register(mux, s.checker, s.info.Version, s.info.Commit, s.info.BuildTime)

	mux.Handle("/", s.proxy)

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		tracing.HTTPMiddleware,
		middleware.LoggingMiddleware,
	)
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Proxy returns the dual-forwarding handler.
func (s *Server) Proxy() *proxy.Handler {
	return s.proxy
}

// Comparator returns the live comparator.
func (s *Server) Comparator() *compare.Comparator {
	return s.comparator
}

// Worker returns the maintenance worker.
func (s *Server) Worker() *maintenance.Worker {
	return s.worker
}

// ApplyConfig hot-swaps the settings that may change without a restart: the
// comparison rules and the sampling percentage. Other changes are logged and
// take effect on the next start.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.comparator.SetOptions(CompareOptions(&cfg.Compare))
	s.proxy.SetSamplingPercentage(cfg.Parity.SamplingPercentage)

	s.logger.Info("configuration reloaded",
		"sampling_percentage", cfg.Parity.SamplingPercentage,
		"ignored_fields", len(cfg.Compare.IgnoredFields),
		"critical_fields", len(cfg.Compare.CriticalFields),
	)
	if cfg.Proxy.ListenAddress != s.cfg.Proxy.ListenAddress || cfg.Targets != s.cfg.Targets || cfg.Storage.Backend != s.cfg.Storage.Backend {
		s.logger.Warn("listener, target and storage changes require a restart")
	}
}

// Start serves until ctx is done, SIGINT or SIGTERM arrives, or the listener
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.httpServer = &http.Server{
		Addr:           s.cfg.Proxy.ListenAddress,
		Handler:        s.handler,
		ReadTimeout:    s.cfg.Proxy.ReadTimeout,
		WriteTimeout:   s.cfg.Proxy.WriteTimeout,
		IdleTimeout:    s.cfg.Proxy.IdleTimeout,
		MaxHeaderBytes: s.cfg.Proxy.MaxHeaderBytes,
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start maintenance scheduler: %w", err)
		}
	}
	if s.watchPath != "" {
		if err := s.startWatcher(runCtx); err != nil {
			s.logger.Warn("configuration hot reload disabled", "path", s.watchPath, "error", err)
		}
	}
	go s.reportCacheSize(runCtx)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting parity proxy",
			"address", s.cfg.Proxy.ListenAddress,
			"legacy", s.cfg.Targets.Legacy.BaseURL,
			"replacement", s.cfg.Targets.Replacement.BaseURL,
			"api_prefix", s.cfg.Parity.APIPrefix,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
	return s.Shutdown(context.Background())
}

func (s *Server) startWatcher(ctx context.Context) error {
	w, err := config.NewWatcher(s.watchPath, config.DefaultDebounceInterval)
	if err != nil {
		return err
	}
	s.watcher = w
	go func() {
		if err := w.Watch(ctx, s.ApplyConfig); err != nil {
			s.logger.Error("configuration watcher stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) reportCacheSize(ctx context.Context) {
	cache := s.forwarder.Cache()
	if cache == nil {
		return
	}
	ticker := time.NewTicker(cacheSizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collector.UpdateCacheSize(cache.Size())
		}
	}
}

// Shutdown stops accepting requests, lets detached comparisons finish, drains
// the background queues and closes the stores, all within
// proxy.shutdown_timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Proxy.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Proxy.ShutdownTimeout)
		defer cancel()

		var errs []error
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}
		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.scheduler != nil {
			s.scheduler.Stop()
		}

		drained := make(chan struct{})
		go func() {
			s.proxy.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			s.logger.Warn("comparisons still running at shutdown deadline")
		}

		if err := s.closeComponents(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		shutdownErr = errors.Join(errs...)
		if shutdownErr != nil {
			s.logger.Error("error during shutdown", "error", shutdownErr)
		}
		s.logger.Info("parity proxy stopped")
	})

	return shutdownErr
}

// Close releases the components of a server that was never started.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

// closeComponents releases everything New opened, in dependency order.
// Components that were never built are skipped.
func (s *Server) closeComponents(ctx context.Context) error {
	var errs []error
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
	}
	if s.alerts != nil {
		if err := s.alerts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("alerts: %w", err))
		}
	}
	if s.forwarder != nil {
		s.forwarder.Close()
	}
	if s.snapshots != nil {
		if err := s.snapshots.Close(); err != nil {
			errs = append(errs, fmt.Errorf("snapshot store: %w", err))
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
