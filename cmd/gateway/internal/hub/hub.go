// Package hub multiplexes price subscriptions: it owns the subscription
// table, fans upstream ticks out to interested connections and applies the
// slow-consumer eviction policy.
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/protocol"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/repository"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/symbols"
	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

// snapshotTimeout bounds the cache lookup that follows a fresh subscribe.
const snapshotTimeout = 2 * time.Second

// ClientInterface is the hub's view of a connection session. SendFrame and
// SendTick must never block; they report ErrQueueOverflow when the session
// cannot absorb the message.
type ClientInterface interface {
	ID() string
	SendFrame(frame []byte) error
	SendTick(symbol string, tick models.PriceTick) error
	// CloseSlow force-closes the connection with a close reason
	// distinguishable from a graceful client-initiated close.
	CloseSlow()
}

// Options tune hub policies.
type Options struct {
	// SnapshotOnSubscribe pushes the last cached tick for each freshly
	// subscribed symbol instead of waiting for the next live one.
	SnapshotOnSubscribe bool
}

type Hub struct {
	registry *symbols.Registry
	store    repository.PriceStore
	logger   *zap.Logger
	metrics  *Metrics
	opts     Options

	table *Table

	mu       sync.Mutex
	clients  map[string]ClientInterface
	refCount map[string]int // symbol -> subscribed connection count
}

func NewHub(registry *symbols.Registry, store repository.PriceStore, logger *zap.Logger, metrics *Metrics, opts Options) *Hub {
	return &Hub{
		registry: registry,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		table:    NewTable(),
		clients:  make(map[string]ClientInterface),
		refCount: make(map[string]int),
	}
}

// Run consumes the upstream feed until ctx is done. The store retries feed
// interruptions internally, so connected sessions survive upstream churn.
func (h *Hub) Run(ctx context.Context) {
	h.store.RunFeed(ctx, h.OnTick)
}

// Register makes a session visible to the fan-out engine.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()

	h.metrics.connected()
	h.logger.Debug("Client registered", zap.String("client_id", client.ID()))
}

// Unregister atomically removes the connection and all its subscription
// edges. Safe to call more than once and concurrently with fan-out.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	_, known := h.clients[connID]
	delete(h.clients, connID)
	h.mu.Unlock()

	// A command still draining in the read pump can re-add edges between
	// an eviction's unregister and the pump's own deferred one, so edges
	// and upstream refcounts are cleared on every call, not just the
	// first. RemoveConnection returns only the edges actually present,
	// which keeps repeated releases balanced.
	released := h.table.RemoveConnection(connID)
	h.releaseUpstream(released)

	if !known {
		return
	}

	h.metrics.disconnected()
	h.logger.Debug("Client unregistered", zap.String("client_id", connID))
}

// HandleCommand processes one validated inbound command and sends exactly
// one acknowledgment back on the issuing session's queue.
func (h *Hub) HandleCommand(client ClientInterface, msg protocol.ClientMessage) {
	switch msg.MsgType {
	case protocol.MsgTypeSubscribe:
		h.handleSubscribe(client, msg.Pairs)
	case protocol.MsgTypeUnsubscribe:
		h.handleUnsubscribe(client, msg.Pairs)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, pairs []string) {
	accepted, rejected := h.resolve(pairs)

	added := h.table.Subscribe(client.ID(), accepted)
	h.acquireUpstream(added)

	h.sendAck(client, protocol.Ack{
		MsgType:  protocol.MsgTypeSubscribe,
		Status:   protocol.StatusSubscribed,
		Pairs:    accepted,
		Rejected: rejected,
	})

	if h.opts.SnapshotOnSubscribe && len(added) > 0 {
		// Async so the cache lookup never delays command handling.
		go h.sendSnapshots(client, added)
	}
}

func (h *Hub) handleUnsubscribe(client ClientInterface, pairs []string) {
	accepted, rejected := h.resolve(pairs)

	removed := h.table.Unsubscribe(client.ID(), accepted)
	h.releaseUpstream(removed)

	h.sendAck(client, protocol.Ack{
		MsgType:  protocol.MsgTypeUnsubscribe,
		Status:   protocol.StatusUnsubscribed,
		Pairs:    accepted,
		Rejected: rejected,
	})
}

// OnTick dispatches one upstream tick to every subscribed connection.
// Enqueue is non-blocking; a connection that cannot absorb the tick even
// after coalescing is evicted without stalling the others.
func (h *Hub) OnTick(tick models.PriceTick) {
	start := time.Now()

	for _, connID := range h.table.SubscribersOf(tick.Pair) {
		client := h.client(connID)
		if client == nil {
			continue
		}
		if err := client.SendTick(tick.Pair, tick); err != nil {
			h.metrics.dropped()
			go h.evict(client)
			continue
		}
		h.metrics.fannedOut()
	}

	h.metrics.observeFanout(time.Since(start).Seconds())
}

// Subscriptions reports a connection's current subscription set, sorted.
func (h *Hub) Subscriptions(connID string) []string {
	syms := h.table.Symbols(connID)
	sort.Strings(syms)
	return syms
}

// resolve canonicalizes raw pairs into accepted symbol keys (deduplicated,
// input order preserved) and per-symbol rejection reasons.
func (h *Hub) resolve(pairs []string) ([]string, map[string]string) {
	accepted := make([]string, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	var rejected map[string]string

	for _, raw := range pairs {
		sym, err := h.registry.Resolve(raw)
		if err != nil {
			if rejected == nil {
				rejected = make(map[string]string)
			}
			rejected[raw] = err.Error()
			continue
		}
		key := sym.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, key)
	}
	return accepted, rejected
}

func (h *Hub) acquireUpstream(added []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sym := range added {
		h.refCount[sym]++
		if h.refCount[sym] == 1 {
			if err := h.store.SubscribeToFeed(context.Background(), sym); err != nil {
				h.logger.Error("Failed to subscribe upstream", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}
}

func (h *Hub) releaseUpstream(removed []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sym := range removed {
		h.refCount[sym]--
		if h.refCount[sym] <= 0 {
			delete(h.refCount, sym)
			if err := h.store.UnsubscribeFromFeed(context.Background(), sym); err != nil {
				h.logger.Error("Failed to unsubscribe upstream", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}
}

func (h *Hub) sendSnapshots(client ClientInterface, syms []string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	ticks, err := h.store.GetSnapshots(ctx, syms)
	if err != nil {
		h.logger.Warn("Snapshot lookup failed", zap.Error(err))
		return
	}
	for _, tick := range ticks {
		if err := client.SendTick(tick.Pair, tick); err != nil {
			go h.evict(client)
			return
		}
	}
}

func (h *Hub) sendAck(client ClientInterface, ack protocol.Ack) {
	if ack.Pairs == nil {
		ack.Pairs = []string{}
	}
	frame, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error("Failed to encode ack", zap.Error(err))
		return
	}
	if err := client.SendFrame(frame); err != nil {
		go h.evict(client)
	}
}

func (h *Hub) client(connID string) ClientInterface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[connID]
}

func (h *Hub) evict(client ClientInterface) {
	h.logger.Warn("Evicting slow consumer", zap.String("client_id", client.ID()))
	h.metrics.evicted()
	h.Unregister(client.ID())
	client.CloseSlow()
}
