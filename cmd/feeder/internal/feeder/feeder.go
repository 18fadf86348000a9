// Package feeder ingests upstream oracle ticks from kafka and turns them
// into the gateway's feed: a last-tick snapshot key plus a pub/sub publish
// per pair.
package feeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/pkg/config"
	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

const snapshotTTL = 1 * time.Hour

type Feeder struct {
	cfg        *config.Config
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
}

func NewFeeder(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Feeder {
	return &Feeder{
		cfg:        cfg,
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: cfg.Feeder.NumWorkers,
	}
}

// Run consumes ticks until ctx is done. Pairs are sharded onto workers by
// hash so per-pair ordering and dedup survive the fan-in.
func (f *Feeder) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, f.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < f.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go f.worker(i, workerChans[i], &wg)
	}

	go func() {
		f.logger.Info("Feeder started", zap.Int("workers", f.numWorkers))
		for {
			m, err := f.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				f.logger.Error("Kafka read error", zap.Error(err))
				continue
			}

			workerID := shardFor(m.Key, f.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// Latest beats complete for live prices: drop rather than
				// stall the whole feed behind one slow shard.
				f.logger.Warn("Dropping tick for saturated shard", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	f.logger.Info("Shutdown signal received, stopping feeder...")

	for _, ch := range workerChans {
		close(ch)
	}
	f.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (f *Feeder) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Per-pair dedup state, valid because of deterministic sharding.
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var tick models.PriceTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			f.logger.Error("Discarding malformed tick", zap.Error(err))
			continue
		}
		if tick.Pair == "" {
			f.logger.Error("Discarding tick without pair")
			continue
		}

		if tick.SeqID <= lastSeq[tick.Pair] {
			f.logger.Debug("Skipping stale tick", zap.String("pair", tick.Pair), zap.Int64("seq_id", tick.SeqID))
			continue
		}

		// Snapshot SET and feed PUBLISH travel in one pipeline so a fresh
		// subscriber's cache read never races ahead of the live stream.
		pipe := f.rdb.Pipeline()
		pipe.Set(ctx, fmt.Sprintf("price:%s", tick.Pair), payload, snapshotTTL)
		pipe.Publish(ctx, fmt.Sprintf("prices.%s", tick.Pair), payload)

		if _, err := pipe.Exec(ctx); err != nil {
			f.logger.Error("Redis pipeline error", zap.Error(err), zap.String("pair", tick.Pair))
		} else {
			f.logger.Debug("Published tick", zap.String("pair", tick.Pair), zap.Int("worker_id", id), zap.Int64("seq_id", tick.SeqID))
			lastSeq[tick.Pair] = tick.SeqID
		}
	}
}

func shardFor(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}
