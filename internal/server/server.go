// Package server wires the announcer together: the scoring platform
// client, the ledger, the chat connector, the poller and the ops server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	appconfig "github.com/lewisedginton/ctfd_announcer/internal/config"
	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/connectors/slack"
	"github.com/lewisedginton/ctfd_announcer/internal/connectors/telegram"
	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/internal/firstblood"
	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
	"github.com/lewisedginton/ctfd_announcer/internal/middleware"
	"github.com/lewisedginton/ctfd_announcer/internal/monitoring"
	"github.com/lewisedginton/ctfd_announcer/internal/queries"
	"github.com/lewisedginton/ctfd_announcer/pkg/httpmiddleware"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
	"github.com/lewisedginton/ctfd_announcer/pkg/metrics"
)

const (
	shutdownTimeout   = 5 * time.Second
	forceExitTimeout  = 30 * time.Second
	heartbeatMultiple = 3
)

// Connector is a chat platform connector.
type Connector interface {
	firstblood.ChannelResolver
	Start(ctx context.Context) error
	Ready() error
}

// Components are the collaborators a Server runs. New builds them from
// configuration; tests pass their own to NewFromComponents.
type Components struct {
	Client    *ctfd.Client
	Ledger    ledger.Store
	Connector Connector
	Metrics   *metrics.Metrics
	// Redis is set when the ledger lives in redis, for the readiness probe.
	Redis    *redis.Client
	RedisKey string
}

// Server encapsulates the announcer components and lifecycle management
type Server struct {
	cfg       *appconfig.AppConfig
	log       logger.Logger
	client    *ctfd.Client
	store     ledger.Store
	connector Connector
	metrics   *metrics.Metrics
	poller    *firstblood.Poller
	monitor   *monitoring.HealthMonitor
	router    http.Handler
}

// New creates a Server with all components built from cfg.
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	m := metrics.NewMetrics(log)

	client, err := ctfd.NewClient(ctfd.Config{
		BaseURL:    cfg.CTFd.URL,
		APIKey:     cfg.CTFd.APIKey,
		AuthScheme: cfg.CTFd.AuthScheme,
		Timeout:    cfg.CTFd.Timeout,
		RateLimit:  cfg.CTFd.RateLimit,
		Burst:      cfg.CTFd.Burst,
		Observer:   m,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CTFd client: %w", err)
	}

	store, err := ledger.NewStore(ctx, cfg.LedgerStoreConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	comps := Components{Client: client, Ledger: store, Metrics: m}
	if rs, ok := store.(*ledger.RedisStore); ok {
		comps.Redis = rs.Client()
		comps.RedisKey = rs.Key()
	}

	registry := commands.NewDefault(
		queries.NewHandler(client, log),
		commands.WithLogger(log),
		commands.WithObserver(m),
	)
	comps.Connector, err = newConnector(cfg, registry, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s, err := NewFromComponents(cfg, log, comps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

func newConnector(cfg *appconfig.AppConfig, registry *commands.Registry, log logger.Logger) (Connector, error) {
	switch cfg.Chat.Platform {
	case appconfig.PlatformTelegram:
		c, err := telegram.NewConnector(telegram.Config{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Announce.ChannelID,
			Debug:    cfg.Telegram.Debug,
			Logger:   log,
		}, registry)
		if err != nil {
			return nil, fmt.Errorf("failed to create Telegram connector: %w", err)
		}
		return c, nil
	default:
		c, err := slack.NewConnector(slack.Config{
			BotToken:  cfg.Slack.BotToken,
			AppToken:  cfg.Slack.AppToken,
			ChannelID: cfg.Announce.ChannelID,
			Debug:     cfg.Slack.Debug,
			Logger:    log,
		}, registry)
		if err != nil {
			return nil, fmt.Errorf("failed to create Slack connector: %w", err)
		}
		return c, nil
	}
}

// NewFromComponents creates a Server around already built components.
func NewFromComponents(cfg *appconfig.AppConfig, log logger.Logger, comps Components) (*Server, error) {
	if comps.Metrics == nil {
		comps.Metrics = metrics.NewMetrics(log)
	}

	poller, err := firstblood.New(firstblood.Config{
		Client:   comps.Client,
		Ledger:   comps.Ledger,
		Resolver: comps.Connector,
		Interval: cfg.Announce.PollInterval,
		Recorder: monitoring.NewTickRecorder(comps.Metrics),
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	comps.Metrics.AddCustomMetric(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "firstblood_last_tick_timestamp_seconds",
		Help: "Unix time of the last completed poll tick.",
	}, func() float64 {
		last := poller.LastTick()
		if last.IsZero() {
			return 0
		}
		return float64(last.Unix())
	}))

	s := &Server{
		cfg:       cfg,
		log:       log,
		client:    comps.Client,
		store:     comps.Ledger,
		connector: comps.Connector,
		metrics:   comps.Metrics,
		poller:    poller,
	}

	s.monitor = monitoring.NewHealthMonitor(monitoring.Config{
		Logger:           log,
		Version:          cfg.Version,
		Heartbeat:        poller.LastTick,
		HeartbeatMaxAge:  heartbeatMultiple * poller.Interval(),
		Scoreboard:       comps.Client,
		Ledger:           comps.Ledger,
		Redis:            comps.Redis,
		RedisKey:         comps.RedisKey,
		Connector:        comps.Connector,
		ConnectorName:    cfg.Chat.Platform,
		Timeout:          cfg.Monitoring.HealthCheckTimeout,
		FailureThreshold: cfg.Monitoring.FailureThreshold,
	})
	s.router = s.newRouter()
	return s, nil
}

// newRouter builds the ops HTTP router.
func (s *Server) newRouter() http.Handler {
	r := chi.NewRouter()

	mwCfg := httpmiddleware.DefaultConfig()
	mwCfg.Logger = s.log
	mwCfg.EnableLogging = true
	mwCfg.Recoverer = middleware.Recovery(middleware.RecoveryConfig{
		Logger:              s.log,
		EnableStackTrace:    true,
		ResponseMessage:     `{"error":"Internal server error","code":"INTERNAL_ERROR"}`,
		ResponseContentType: "application/json",
	})
	mwCfg.Extra = append(mwCfg.Extra, s.metrics.HTTPMiddleware())
	httpmiddleware.ApplyToRouter(r, mwCfg)

	s.monitor.RegisterRoutes(r)
	if s.cfg.Monitoring.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Handler returns the ops HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the poller, the chat connector and the ops server and blocks
// until ctx is cancelled or a component fails. SIGINT and SIGTERM cancel
// it; a shutdown that takes longer than 30s exits the process.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := s.setupGracefulShutdown(cancel)
	defer stopSignals()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("Starting chat connector", logger.StringField("platform", s.cfg.Chat.Platform))
		if err := s.connector.Start(gctx); err != nil {
			return fmt.Errorf("chat connector: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.poller.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("poller: %w", err)
		}
		return nil
	})

	if s.cfg.Monitoring.Enabled {
		g.Go(func() error {
			return s.serveOps(gctx)
		})
	}

	err := g.Wait()
	s.monitor.MarkShuttingDown()
	s.log.Info("All components stopped")
	return err
}

// serveOps runs the ops HTTP server until ctx is cancelled.
func (s *Server) serveOps(ctx context.Context) error {
	httpCfg := s.cfg.Monitoring.HTTP
	server := &http.Server{
		Addr:              httpCfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
		MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Ops server listening", logger.IntField("port", httpCfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.monitor.MarkShuttingDown()
	s.log.Info("Shutting down ops server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout) //nolint:contextcheck // parent is already cancelled
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // parent is already cancelled
		s.log.Error("Ops server shutdown error", logger.ErrorField(err))
		return err
	}
	s.log.Info("Ops server stopped")
	return nil
}

// setupGracefulShutdown cancels the run on SIGINT/SIGTERM and arms a forced
// exit. The returned func stops listening for signals.
func (s *Server) setupGracefulShutdown(cancel context.CancelFunc) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			s.log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))
			cancel()
			time.AfterFunc(forceExitTimeout, func() {
				s.log.Warn("Force exiting due to timeout")
				os.Exit(1)
			})
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// Close releases the ledger.
func (s *Server) Close() error {
	return s.store.Close()
}
