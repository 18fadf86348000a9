package simulator_test

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

func TestSimulator_Logic(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{}

	// Fixed randomness: always pick index 0 (BTC/USD), Float64 of 0.5 makes
	// the drift term exactly zero.
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	pairs := []string{"BTC/USD"}
	prices := map[string]decimal.Decimal{"BTC/USD": decimal.RequireFromString("64000")}

	sim := simulator.NewTickSimulator(zap.NewNop(), mockWriter, pairs, prices, mockRand, mockClock)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	sim.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) == 0 {
		t.Fatal("Expected ticks to be generated")
	}

	var tick models.PriceTick
	if err := json.Unmarshal(mockWriter.Messages[0].Value, &tick); err != nil {
		t.Fatalf("Generated invalid JSON: %v", err)
	}

	if tick.Pair != "BTC/USD" {
		t.Errorf("Expected BTC/USD, got %s", tick.Pair)
	}
	if tick.SeqID != 1 {
		t.Errorf("Expected SeqID 1, got %d", tick.SeqID)
	}
	// Zero drift keeps the price at the base.
	if !tick.Price.Equal(decimal.RequireFromString("64000")) {
		t.Errorf("Expected price 64000, got %s", tick.Price)
	}
	if string(mockWriter.Messages[0].Key) != "BTC/USD" {
		t.Errorf("Message key should be the pair, got %s", mockWriter.Messages[0].Key)
	}
}

func TestSimulator_SeqMonotonicPerPair(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{}
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	sim := simulator.NewTickSimulator(zap.NewNop(), mockWriter,
		[]string{"ETH/USD"}, map[string]decimal.Decimal{"ETH/USD": decimal.RequireFromString("2600")},
		mockRand, mockClock)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	sim.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) < 2 {
		t.Skip("not enough ticks generated in window")
	}

	var prev int64
	for i, msg := range mockWriter.Messages {
		var tick models.PriceTick
		if err := json.Unmarshal(msg.Value, &tick); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if tick.SeqID <= prev {
			t.Fatalf("SeqID not monotonic: %d after %d", tick.SeqID, prev)
		}
		prev = tick.SeqID
	}
}

func TestTopicCreator_Flow(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{}
	mockClock := &testutils.MockClock{}

	tc := simulator.NewTopicCreator(zap.NewNop(), mockDialer, mockClock)
	tc.Create([]string{"broker:9092"}, "oracle_ticks")

	if mockDialer.ConnSpy == nil {
		t.Fatal("Dialer was never called")
	}
	if len(mockDialer.ConnSpy.CreatedTopics) == 0 {
		t.Error("No topics created")
	}
}
