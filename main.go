package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/events"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/live"
	"auction-engine/internal/metrics"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	if err := utils.ConfigureLogger(cfg.LogLevel); err != nil {
		utils.Fatal("failed to configure logger", map[string]any{"error": err.Error()})
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open repository", map[string]any{
			"backend": cfg.Storage.Backend,
			"error":   err.Error(),
		})
	}
	defer closeRepo()

	hub := live.NewHub()
	defer hub.Close()
	publisher := events.Fanout{hub}

	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			utils.Fatal("failed to connect to NATS", map[string]any{"url": cfg.NATS.URL, "error": err.Error()})
		}
		defer func() { _ = nc.Close() }()
		publisher = append(publisher, nc)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clock := clockwork.NewRealClock()
	manager := lifecycle.NewManager(repo, clock,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithMetrics(m),
	)
	engine := bidding.NewBiddingService(repo, manager, clock,
		bidding.WithPublisher(publisher),
		bidding.WithMetrics(m),
	)

	if cfg.Lifecycle.SweepInterval > 0 {
		go manager.RunSweeper(ctx, cfg.Lifecycle.SweepInterval)
	}

	router := server.SetupRouter(server.RouterConfig{
		Manager:        manager,
		Engine:         engine,
		Live:           hub,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		Metrics:        m,
		Gatherer:       reg,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{
			"addr":    srv.Addr,
			"backend": cfg.Storage.Backend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

// openRepository builds the configured storage backend and returns a func releasing it
func openRepository(ctx context.Context, cfg *config.Config) (repository.AuctionRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return repository.NewRedisRepo(client, cfg.Repository.MaxRetries), closer(client), nil

	case config.BackendPostgres:
		if err := repository.Migrate(cfg.Postgres.URL); err != nil {
			return nil, nil, err
		}
		pool, err := repository.NewPostgresPool(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresRepo(pool, cfg.Repository.MaxRetries), pool.Close, nil

	default:
		return repository.NewMemoryRepo().WithMaxRetries(cfg.Repository.MaxRetries), func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			utils.Warn("failed to close connection", map[string]any{"error": err.Error()})
		}
	}
}
