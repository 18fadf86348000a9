package hub

import (
	"container/list"
	"errors"
	"sync"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

// ErrQueueOverflow signals that a connection's outbound queue is full and
// nothing could be coalesced. The fan-out engine reacts by evicting the
// connection; the error is never surfaced to other connections.
var ErrQueueOverflow = errors.New("outbound queue overflow")

// Outbound is one queued message: either a pre-encoded control frame or a
// price tick subject to coalescing.
type Outbound struct {
	Symbol string           // canonical symbol, empty for control frames
	Tick   models.PriceTick // set when Symbol != ""
	Frame  []byte           // set when Symbol == ""
}

// Queue is a bounded per-connection outbound queue. Producers are the
// fan-out engine and the session's own acknowledgments; the single consumer
// is the session's write pump. Enqueue never blocks: when the queue is full
// a new tick replaces the newest queued tick for the same symbol
// (latest wins), and only when there is nothing to coalesce does enqueue
// report overflow. Enqueue after Close is a silent no-op, so teardown is
// safe to race with an in-flight fan-out.
type Queue struct {
	mu     sync.Mutex
	ll     *list.List               // of Outbound
	ticks  map[string]*list.Element // newest queued tick per symbol
	cap    int
	closed bool

	ready chan struct{}
}

func NewQueue(capacity int) *Queue {
	return &Queue{
		ll:    list.New(),
		ticks: make(map[string]*list.Element),
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Ready is signaled whenever the queue transitions to non-empty and on Close.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// PushFrame enqueues a control frame.
func (q *Queue) PushFrame(frame []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	if q.ll.Len() >= q.cap {
		q.mu.Unlock()
		return ErrQueueOverflow
	}
	q.ll.PushBack(Outbound{Frame: frame})
	q.mu.Unlock()

	q.signal()
	return nil
}

// PushTick enqueues a tick. At capacity the newest queued tick for the same
// symbol is superseded in place, which preserves per-symbol ordering while
// bounding memory.
func (q *Queue) PushTick(symbol string, tick models.PriceTick) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}

	if el, ok := q.ticks[symbol]; ok && q.ll.Len() >= q.cap {
		out := el.Value.(Outbound)
		if tick.SeqID >= out.Tick.SeqID {
			out.Tick = tick
			el.Value = out
		}
		q.mu.Unlock()
		q.signal()
		return nil
	}

	if q.ll.Len() >= q.cap {
		q.mu.Unlock()
		return ErrQueueOverflow
	}

	el := q.ll.PushBack(Outbound{Symbol: symbol, Tick: tick})
	q.ticks[symbol] = el
	q.mu.Unlock()

	q.signal()
	return nil
}

// PopBatch removes the oldest message. When that message is a tick, up to
// max-1 further consecutive ticks are drained with it, so the writer can
// send one batched price update. Exactly one of frame/ticks is set.
func (q *Queue) PopBatch(max int) (frame []byte, ticks []models.PriceTick, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	el := q.ll.Front()
	if el == nil {
		return nil, nil, false
	}

	out := q.remove(el)
	if out.Symbol == "" {
		return out.Frame, nil, true
	}

	ticks = append(ticks, out.Tick)
	for len(ticks) < max {
		el = q.ll.Front()
		if el == nil {
			break
		}
		if next := el.Value.(Outbound); next.Symbol == "" {
			break
		}
		ticks = append(ticks, q.remove(el).Tick)
	}
	return nil, ticks, true
}

// Len reports the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ll.Len()
}

// Close stops accepting messages. Already-queued messages stay poppable so
// a graceful shutdown can drain them.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// remove unlinks an element and keeps the per-symbol index consistent.
// Callers hold q.mu.
func (q *Queue) remove(el *list.Element) Outbound {
	q.ll.Remove(el)
	out := el.Value.(Outbound)
	if out.Symbol != "" && q.ticks[out.Symbol] == el {
		delete(q.ticks, out.Symbol)
	}
	return out
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
