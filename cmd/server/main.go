package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/bridge"
	"github.com/iamvishnuk/poll-server/internal/broadcast"
	"github.com/iamvishnuk/poll-server/internal/config"
	"github.com/iamvishnuk/poll-server/internal/engine"
	"github.com/iamvishnuk/poll-server/internal/logging"
	"github.com/iamvishnuk/poll-server/internal/metrics"
	"github.com/iamvishnuk/poll-server/internal/redis"
	"github.com/iamvishnuk/poll-server/internal/server"
	"github.com/iamvishnuk/poll-server/internal/version"
)

// bridgeReadyTimeout bounds how long startup waits for the event bridge to
// confirm its subscription before giving up.
const bridgeReadyTimeout = 30 * time.Second

// instanceHeartbeatInterval paces fleet-presence heartbeats; the liveness
// window tolerates a few missed beats.
const instanceHeartbeatInterval = 15 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// startBridge runs the event bridge and blocks until its subscription is
// confirmed. Accepting websocket traffic before the bridge subscribes could
// silently miss events published in the gap.
func startBridge(ctx context.Context, br *bridge.Bridge) {
	go func() {
		if err := br.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Event bridge stopped", "error", err)
		}
	}()

	select {
	case <-br.Ready():
		slog.Info("Event bridge ready")
	case <-time.After(bridgeReadyTimeout):
		slog.Error("Event bridge failed to subscribe in time")
		os.Exit(1)
	}
}

func runGracefulShutdown(srv *server.Server, cfg *config.Config, stopBackground context.CancelFunc, registry *broadcast.Registry) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop accepting HTTP traffic first, then the event stream and
		// heartbeat, then close the remaining websocket connections.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopBackground()
		registry.Shutdown()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	store := redis.NewPollStore(redisClient)
	publisher := redis.NewPublisher(redisClient)
	pollEngine := engine.NewEngine(store, publisher, clock)
	voteLimiter := redis.NewVoteRateLimiter(redisClient, clock, cfg.VoteRateBurst, cfg.VoteRateLimit)

	registry := broadcast.NewRegistry(clock, cfg.MaxConnections)
	dispatcher := broadcast.NewDispatcher(registry)

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	eventBridge := bridge.New(redisClient, dispatcher, clock)
	startBridge(backgroundCtx, eventBridge)

	instances := redis.NewInstanceRegistry(redisClient, clock, uuid.NewString(), info.Version, instanceHeartbeatInterval)
	go instances.Run(backgroundCtx)

	healthChecks := []server.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "bridge", Check: func(context.Context) error {
			if !eventBridge.Subscribed() {
				return errors.New("event stream not subscribed")
			}
			return nil
		}},
	}

	srv := server.NewServer(cfg, pollEngine, registry, voteLimiter, healthChecks)

	done := runGracefulShutdown(srv, cfg, stopBackground, registry)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
