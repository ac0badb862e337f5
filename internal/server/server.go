// Package server orchestrates all components: config store, NATS bridge, runtime, HTTP endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/servicebus/internal/config"
	"github.com/morezero/servicebus/pkg/bus"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/db"
	"github.com/morezero/servicebus/pkg/events"
	"github.com/morezero/servicebus/pkg/launch"
	"github.com/morezero/servicebus/pkg/metrics"
	"github.com/morezero/servicebus/pkg/repo"
	"github.com/morezero/servicebus/pkg/services/clock"
	"github.com/morezero/servicebus/pkg/transport"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Server is the servicebus orchestrator.
type Server struct {
	cfg        *config.Config
	rt         *bus.Runtime
	nc         *comms.Conn
	pool       *pgxpool.Pool
	bridge     *transport.NatsBridge
	httpServer *http.Server
}

// Run starts the runtime, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	SetupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting servicebus", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}
	if err := s.start(ctx); err != nil {
		s.shutdown()
		return err
	}

	slog.Info(fmt.Sprintf("%s - Runtime %s is ready", logPrefix, s.rt.FullName()))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	s.shutdown()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// SetupLogging installs a text slog handler on stdout at the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func (s *Server) start(ctx context.Context) error {
	cfg := s.cfg

	// Step 1: Metrics
	m := metrics.New(nil)
	if err := m.Register(); err != nil {
		return fmt.Errorf("%s - failed to register metrics: %w", logPrefix, err)
	}

	// Step 2: Config store (Postgres when configured, memory otherwise)
	var store bus.ConfigStore
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		store = db.NewRepository(pool)
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, service configs are kept in memory", logPrefix))
	}

	// Step 3: Connect to NATS
	var publisher events.EventPublisher
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, comms.Timeout(cfg.RequestTimeout))
		if err != nil {
			return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		publisher = events.Fanout{
			events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.StateEventSubject}),
			events.PublisherFunc(logStateEvent),
		}
	}

	var packages *repo.Repository
	if cfg.RepoDir != "" {
		packages = repo.New(cfg.RepoDir)
	}

	// Step 4: Runtime
	s.rt = bus.GetInstance(bus.Options{
		ID:                      cfg.RuntimeID,
		Store:                   store,
		Repo:                    packages,
		Publisher:               publisher,
		Metrics:                 m,
		QueueSize:               cfg.OutboundQueueSize,
		PruneRoutesOnDisconnect: cfg.PruneRoutesOnDisconnect,
	})
	s.rt.RegisterFactory(clock.TypeKey, clock.Factory)

	// Step 5: Launch file
	var desc *launch.Description
	var err error
	if cfg.LaunchFile != "" {
		desc, err = launch.LoadLaunchFile(cfg.LaunchFile)
	} else {
		desc, err = launch.LoadLaunchFile()
	}
	if err != nil {
		return fmt.Errorf("%s - failed to load launch file: %w", logPrefix, err)
	}
	if err := s.rt.Launch(desc); err != nil {
		slog.Error(fmt.Sprintf("%s - launch %s incomplete: %v", logPrefix, desc.Name, err))
	}

	// Step 6: NATS bridge and peers
	if s.nc != nil {
		s.bridge = transport.NewNatsBridge(s.rt, s.nc)
		if err := s.bridge.Start(); err != nil {
			return fmt.Errorf("%s - failed to start NATS bridge: %w", logPrefix, err)
		}
		for _, peer := range cfg.NatsPeers {
			if _, err := s.bridge.Connect(peer); err != nil {
				slog.Warn(fmt.Sprintf("%s - NATS peer %s not connected: %v", logPrefix, peer, err))
			}
		}
	}

	// Step 7: HTTP endpoints
	addr := cfg.ListenAddr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	// Step 8: WebSocket peers
	for _, peer := range cfg.ConnectURLs {
		dialCtx, dialCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		_, err := transport.Dial(dialCtx, s.rt, peer)
		dialCancel()
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - peer %s not connected: %v", logPrefix, peer, err))
		}
	}
	return nil
}

func logStateEvent(_ context.Context, e *events.StateChangedEvent) error {
	slog.Debug(fmt.Sprintf("%s - state %s: runtime=%s subject=%s", logPrefix, e.Reason, e.RuntimeID, e.Subject))
	return nil
}

func (s *Server) shutdown() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
		cancel()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.rt != nil {
		s.rt.Close()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - NATS drain: %v", logPrefix, err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
