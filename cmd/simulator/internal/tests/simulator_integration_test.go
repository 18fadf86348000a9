package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/simulator/internal/simulator"
	"github.com/astraly-labs/lightspeed-gateway/cmd/simulator/internal/testutils"
	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

func TestSimulator_ComponentWiring(t *testing.T) {
	logger := zap.NewNop()
	mockWriter := &testutils.MockKafkaWriter{}

	// MockClock makes the 100ms inter-tick sleep free, so the loop runs as
	// fast as the CPU allows until the context fires.
	mockClock := &testutils.MockClock{CurrentTime: time.Now()}
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.9}

	pairs := []string{"BTC/USD", "ETH/USD"}
	basePrices := map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(64000),
		"ETH/USD": decimal.NewFromInt(3000),
	}

	sim := simulator.NewTickSimulator(logger, mockWriter, pairs, basePrices, mockRand, mockClock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond) // Let it generate a few
		cancel()
	}()

	sim.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) == 0 {
		t.Fatal("Simulator failed to produce any messages in component test")
	}

	// MockRand returns index 0, so every tick must be for BTC/USD, with the
	// kafka key matching the payload pair and seq ids strictly increasing.
	var lastSeq int64
	for _, msg := range mockWriter.Messages {
		if string(msg.Key) != "BTC/USD" {
			t.Errorf("Expected BTC/USD based on MockRand, got %s", string(msg.Key))
		}
		var tick models.PriceTick
		if err := json.Unmarshal(msg.Value, &tick); err != nil {
			t.Fatalf("Malformed tick payload: %v", err)
		}
		if tick.Pair != string(msg.Key) {
			t.Errorf("Payload pair %q disagrees with kafka key %q", tick.Pair, msg.Key)
		}
		if tick.SeqID <= lastSeq {
			t.Errorf("Sequence not increasing: %d after %d", tick.SeqID, lastSeq)
		}
		lastSeq = tick.SeqID
	}
}
