package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/auth"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/hub"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/repository"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/session"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/symbols"
	"github.com/astraly-labs/lightspeed-gateway/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	store := repository.NewRedisStore(rdb, logger)
	registry := symbols.NewRegistry(cfg.Gateway.Pairs)
	metrics := hub.NewMetrics(prometheus.DefaultRegisterer)

	wsHub := hub.NewHub(registry, store, logger, metrics, hub.Options{
		SnapshotOnSubscribe: cfg.Gateway.SnapshotOnSubscribe,
	})

	feedCtx, stopFeed := context.WithCancel(context.Background())
	go wsHub.Run(feedCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/node/v1/data/price/subscribe", session.NewHandler(
		wsHub,
		auth.NewJWTVerifier(cfg.Auth.JWTSecret),
		logger,
		session.Options{
			QueueCapacity: cfg.Gateway.QueueCapacity,
			IdleTimeout:   cfg.Gateway.IdleTimeout,
		},
	))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Gateway started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	stopFeed()
	srv.Shutdown(context.Background())
	store.Close()
	logger.Info("Shutdown complete")
}
