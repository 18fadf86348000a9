package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/simulator/internal/simulator"
	"github.com/astraly-labs/lightspeed-gateway/pkg/config"
)

var basePrices = map[string]decimal.Decimal{
	"BTC/USD":  decimal.RequireFromString("64000"),
	"ETH/USD":  decimal.RequireFromString("2600"),
	"SOL/USD":  decimal.RequireFromString("145"),
	"STRK/USD": decimal.RequireFromString("0.42"),
}

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

	clock := simulator.RealClock{}
	dialer := &simulator.RealKafkaDialer{Dialer: kafka.DefaultDialer}
	simulator.NewTopicCreator(logger, dialer, clock).Create(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	var pairs []string
	prices := make(map[string]decimal.Decimal, len(basePrices))
	for _, pair := range cfg.Gateway.Pairs {
		base, ok := basePrices[pair]
		if !ok {
			base = decimal.RequireFromString("100")
		}
		pairs = append(pairs, pair)
		prices[pair] = base
	}

	sim := simulator.NewTickSimulator(
		logger,
		writer,
		pairs,
		prices,
		simulator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		clock,
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sim.Run(ctx)

	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()

	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
