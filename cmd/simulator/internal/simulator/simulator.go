// Package simulator produces a synthetic oracle tick stream into kafka so
// the feeder and gateway can be run without the real upstream.
package simulator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

const priceScale = 8 // decimal places kept on generated prices

type TickSimulator struct {
	logger      *zap.Logger
	writer      KafkaWriter
	pairs       []string
	basePrices  map[string]decimal.Decimal
	rand        Rand
	clock       Clock
	seqCounters map[string]int64
}

func NewTickSimulator(
	logger *zap.Logger,
	writer KafkaWriter,
	pairs []string,
	basePrices map[string]decimal.Decimal,
	rnd Rand,
	clock Clock,
) *TickSimulator {
	return &TickSimulator{
		logger:      logger,
		writer:      writer,
		pairs:       pairs,
		basePrices:  basePrices,
		rand:        rnd,
		clock:       clock,
		seqCounters: make(map[string]int64),
	}
}

func (s *TickSimulator) Run(ctx context.Context) {
	s.logger.Info("Simulator started", zap.Strings("pairs", s.pairs))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(s.pairs) == 0 {
				s.clock.Sleep(1 * time.Second)
				continue
			}

			pair := s.pairs[s.rand.Intn(len(s.pairs))]
			tick := s.nextTick(pair)

			payload, err := json.Marshal(tick)
			if err != nil {
				s.logger.Error("JSON marshal error", zap.Error(err))
				continue
			}

			// The pair key keeps per-pair ordering within a partition.
			err = s.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(pair),
				Value: payload,
			})
			if err != nil {
				s.logger.Error("Kafka write error", zap.Error(err))
			}

			s.clock.Sleep(100 * time.Millisecond)
		}
	}
}

// nextTick walks the base price by up to ±0.5% and bumps the pair sequence.
func (s *TickSimulator) nextTick(pair string) models.PriceTick {
	drift := decimal.NewFromFloat((s.rand.Float64() - 0.5) / 100)
	price := s.basePrices[pair].Mul(decimal.NewFromInt(1).Add(drift)).Round(priceScale)
	s.basePrices[pair] = price
	s.seqCounters[pair]++

	return models.PriceTick{
		Pair:      pair,
		Price:     price,
		Timestamp: s.clock.Now().UnixMilli(),
		SeqID:     s.seqCounters[pair],
	}
}
