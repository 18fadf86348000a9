package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

func tick(pair string, seq int64) models.PriceTick {
	return models.PriceTick{Pair: pair, Price: decimal.New(seq, 0), SeqID: seq}
}

func popAllTicks(t *testing.T, q *Queue) []models.PriceTick {
	t.Helper()
	var all []models.PriceTick
	for {
		frame, ticks, ok := q.PopBatch(100)
		if !ok {
			return all
		}
		if frame != nil {
			t.Fatalf("unexpected frame in queue: %s", frame)
		}
		all = append(all, ticks...)
	}
}

func TestQueue_FIFOAndBatching(t *testing.T) {
	q := NewQueue(10)
	q.PushTick("BTC/USD", tick("BTC/USD", 1))
	q.PushTick("ETH/USD", tick("ETH/USD", 1))
	q.PushFrame([]byte(`{"msg_type":"subscribe"}`))
	q.PushTick("BTC/USD", tick("BTC/USD", 2))

	frame, ticks, ok := q.PopBatch(100)
	if !ok || frame != nil {
		t.Fatalf("expected tick batch first, got frame=%q ok=%v", frame, ok)
	}
	// The batch stops at the control frame.
	if len(ticks) != 2 {
		t.Fatalf("expected batch of 2 ticks, got %d", len(ticks))
	}

	frame, _, ok = q.PopBatch(100)
	if !ok || frame == nil {
		t.Fatal("expected the control frame next")
	}

	_, ticks, ok = q.PopBatch(100)
	if !ok || len(ticks) != 1 || ticks[0].SeqID != 2 {
		t.Fatalf("expected trailing BTC tick, got %v", ticks)
	}
}

func TestQueue_CoalescesOnlyWhenFull(t *testing.T) {
	q := NewQueue(4)

	// Below capacity nothing is dropped, even for the same symbol.
	q.PushTick("BTC/USD", tick("BTC/USD", 1))
	q.PushTick("BTC/USD", tick("BTC/USD", 2))
	if got := popAllTicks(t, q); len(got) != 2 {
		t.Fatalf("no coalescing expected below capacity, got %d ticks", len(got))
	}

	// Fill to capacity with distinct symbols.
	for _, pair := range []string{"BTC/USD", "ETH/USD", "SOL/USD", "STRK/USD"} {
		if err := q.PushTick(pair, tick(pair, 1)); err != nil {
			t.Fatalf("push %s: %v", pair, err)
		}
	}

	// At capacity a newer same-symbol tick supersedes the queued one in place.
	if err := q.PushTick("BTC/USD", tick("BTC/USD", 9)); err != nil {
		t.Fatalf("coalescible push must not overflow: %v", err)
	}
	if err := q.PushTick("BTC/USD", tick("BTC/USD", 10)); err != nil {
		t.Fatalf("coalescible push must not overflow: %v", err)
	}
	// A stale tick never rolls the queued one back.
	if err := q.PushTick("BTC/USD", tick("BTC/USD", 3)); err != nil {
		t.Fatalf("stale coalescible push must not overflow: %v", err)
	}

	got := popAllTicks(t, q)
	if len(got) != 4 {
		t.Fatalf("coalescing must not grow the queue, got %d ticks", len(got))
	}
	var btc []int64
	for _, tk := range got {
		if tk.Pair == "BTC/USD" {
			btc = append(btc, tk.SeqID)
		}
	}
	// Intermediate ticks were dropped only because a newer one took the slot.
	if len(btc) != 1 || btc[0] != 10 {
		t.Fatalf("latest tick must survive coalescing, got %v", btc)
	}
}

func TestQueue_OverflowWhenNothingToCoalesce(t *testing.T) {
	q := NewQueue(2)
	q.PushTick("BTC/USD", tick("BTC/USD", 1))
	q.PushTick("ETH/USD", tick("ETH/USD", 1))

	err := q.PushTick("SOL/USD", tick("SOL/USD", 1))
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("expected ErrQueueOverflow, got %v", err)
	}

	if err := q.PushFrame([]byte("x")); !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("full queue should refuse frames too, got %v", err)
	}
}

func TestQueue_PushAfterCloseIsNoop(t *testing.T) {
	q := NewQueue(2)
	q.PushTick("BTC/USD", tick("BTC/USD", 1))
	q.Close()

	if err := q.PushTick("BTC/USD", tick("BTC/USD", 2)); err != nil {
		t.Fatalf("post-close push must be a silent no-op, got %v", err)
	}
	if err := q.PushFrame([]byte("x")); err != nil {
		t.Fatalf("post-close frame push must be a silent no-op, got %v", err)
	}

	// Already-queued messages stay poppable for a bounded drain.
	if got := popAllTicks(t, q); len(got) != 1 || got[0].SeqID != 1 {
		t.Fatalf("expected the pre-close tick, got %v", got)
	}
}

func TestQueue_CloseConcurrentWithPush(t *testing.T) {
	// Teardown racing an in-flight fan-out enqueue must never panic or block.
	q := NewQueue(8)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 1000; i++ {
			q.PushTick("BTC/USD", tick("BTC/USD", i))
		}
	}()
	go func() {
		defer wg.Done()
		q.Close()
	}()
	wg.Wait()

	if !q.Closed() {
		t.Fatal("queue should report closed")
	}
}

func TestQueue_ReadySignal(t *testing.T) {
	q := NewQueue(2)
	select {
	case <-q.Ready():
		t.Fatal("ready should not fire on an empty queue")
	default:
	}

	q.PushTick("BTC/USD", tick("BTC/USD", 1))
	select {
	case <-q.Ready():
	default:
		t.Fatal("ready should fire after a push")
	}
}
