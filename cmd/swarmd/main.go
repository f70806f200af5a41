package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssd-technologies/swarmgov/internal/agent"
	"github.com/ssd-technologies/swarmgov/internal/config"
	"github.com/ssd-technologies/swarmgov/internal/events"
	"github.com/ssd-technologies/swarmgov/internal/ratelimit"
	"github.com/ssd-technologies/swarmgov/internal/server"
	"github.com/ssd-technologies/swarmgov/internal/storage"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "swarmd",
		Short:         "Run the swarm governance daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default $"+config.EnvConfig+")")
	return cmd
}

func newLogger(c config.LogConfig) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(logger.With("component", "events"))
	var publisher swarm.Publisher = hub
	if cfg.Redis.URL != "" {
		stream, err := events.NewRedisStream(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			return err
		}
		defer stream.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = stream.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		publisher = events.Multi{hub, stream}
		logger.Info("publishing events to redis", "stream", cfg.Redis.Stream)
	}

	sw := swarm.New(swarm.Options{
		Store:      db,
		Logger:     logger.With("component", "swarm"),
		Publisher:  publisher,
		Dispatcher: newDispatcher(logger.With("component", "actions")),
	})

	if cfg.Bootstrap() {
		_, err := sw.Initialize(ctx, swarm.Identity(cfg.Swarm.Authority),
			cfg.Swarm.MaxAgents, cfg.Swarm.MinVotesRequired, cfg.Swarm.ProposalTimeout)
		switch {
		case errors.Is(err, swarm.ErrAlreadyInitialized):
			logger.Info("swarm already initialized")
		case err != nil:
			return fmt.Errorf("bootstrap swarm: %w", err)
		}
	}

	gw, err := agent.NewGateway(cfg.ReplayCacheSize, logger.With("component", "gateway"))
	if err != nil {
		return err
	}
	var limiter *ratelimit.Keyed
	if cfg.RateLimit.Requests > 0 {
		limiter = ratelimit.NewKeyed(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	srv := server.New(sw, gw, hub, limiter, logger.With("component", "server"))
	srv.TrustProxy(cfg.RateLimit.TrustProxy)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("swarmd listening", "addr", cfg.Listen, "db", cfg.DBPath())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, time.Minute)
			return nil
		})
	}
	return g.Wait()
}
