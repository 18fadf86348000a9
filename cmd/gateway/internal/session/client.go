// Package session owns the per-connection state machine: it reads
// subscribe/unsubscribe commands, drains the outbound queue to the
// transport and tracks liveness.
package session

import (
	"encoding/json"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/auth"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/hub"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/protocol"
	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

const (
	maxMessageSize = 512 * 1024
	maxTickBatch   = 64

	// CloseReasonSlowConsumer accompanies the policy-violation close of an
	// evicted connection, distinguishable from a graceful close.
	CloseReasonSlowConsumer = "slow consumer"
)

// State of a connection session. Authentication happens before the
// websocket upgrade, so a constructed session starts at Authenticated.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Options tune per-connection limits.
type Options struct {
	QueueCapacity int
	IdleTimeout   time.Duration
}

// Client adapts one websocket connection to the hub. One goroutine reads
// inbound commands, another drains the outbound queue; the hub and the
// session both produce into the queue, never into the socket directly.
type Client struct {
	id        string
	principal auth.Principal
	conn      net.Conn
	hub       *hub.Hub
	queue     *hub.Queue
	logger    *zap.Logger

	createdAt time.Time
	state     atomic.Int32
	slow      atomic.Bool

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

var _ hub.ClientInterface = (*Client)(nil)

func NewClient(conn net.Conn, h *hub.Hub, principal auth.Principal, logger *zap.Logger, opts Options) *Client {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}

	c := &Client{
		id:         uuid.NewString(),
		principal:  principal,
		conn:       conn,
		hub:        h,
		queue:      hub.NewQueue(capacity),
		logger:     logger,
		createdAt:  time.Now(),
		writeWait:  5 * time.Second,
		pongWait:   idle,
		pingPeriod: idle * 5 / 6,
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

// Start registers the session with the hub and transitions it to Active.
func (c *Client) Start() {
	c.hub.Register(c)
	c.state.Store(int32(StateActive))
	go c.writePump()
	go c.readPump()
}

func (c *Client) ID() string                { return c.id }
func (c *Client) Principal() auth.Principal { return c.principal }
func (c *Client) State() State              { return State(c.state.Load()) }

// SendFrame queues a pre-encoded control frame.
func (c *Client) SendFrame(frame []byte) error {
	return c.queue.PushFrame(frame)
}

// SendTick queues a price tick, coalescing under backpressure.
func (c *Client) SendTick(symbol string, tick models.PriceTick) error {
	return c.queue.PushTick(symbol, tick)
}

// CloseSlow applies the eviction policy: pending output is discarded and
// the write pump sends a policy-violation close frame.
func (c *Client) CloseSlow() {
	c.slow.Store(true)
	c.beginClose()
	c.queue.Close()
}

// readPump processes inbound frames until the peer closes, the transport
// fails or the idle deadline expires, then tears the session down.
func (c *Client) readPump() {
	defer func() {
		c.beginClose()
		c.hub.Unregister(c.id)
		c.queue.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.String("client_id", c.id), zap.Int64("size", header.Length))
			return
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)", zap.String("client_id", c.id))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		// Any inbound frame counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong, ws.OpPing:
			continue
		case ws.OpText:
			c.handleFrame(payload)
		}
	}
}

func (c *Client) handleFrame(payload []byte) {
	msg, err := protocol.Parse(payload)
	if err != nil {
		c.sendError(protocol.ErrorFrameFor(err))
		return
	}
	c.hub.HandleCommand(c, msg)
}

func (c *Client) sendError(frame protocol.ErrorFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := c.queue.PushFrame(b); err != nil {
		c.logger.Warn("Dropping error frame for slow client", zap.String("client_id", c.id))
	}
}

// writePump drains the outbound queue to the transport and emits liveness
// pings. It owns the socket for writing; once the queue is closed it sends
// the final close frame and releases the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.state.Store(int32(StateClosed))
	}()

	// Highest sequence written per symbol; stale ticks (snapshot races) are
	// skipped so per-symbol delivery stays in order.
	lastSeq := make(map[string]int64)

	for {
		select {
		case <-c.queue.Ready():
			if c.slow.Load() {
				c.writeClose()
				return
			}
			if !c.drain(lastSeq) {
				return
			}
			if c.queue.Closed() {
				c.writeClose()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

// drain writes queued messages until the queue is empty. Consecutive ticks
// leave as one batched price update.
func (c *Client) drain(lastSeq map[string]int64) bool {
	for {
		frame, ticks, ok := c.queue.PopBatch(maxTickBatch)
		if !ok {
			return true
		}

		if frame != nil {
			if !c.writeText(frame) {
				return false
			}
			continue
		}

		fresh := ticks[:0]
		for _, tick := range ticks {
			if tick.SeqID > 0 && tick.SeqID <= lastSeq[tick.Pair] {
				continue
			}
			lastSeq[tick.Pair] = tick.SeqID
			fresh = append(fresh, tick)
		}
		if len(fresh) == 0 {
			continue
		}

		update := protocol.PriceUpdate{OraclePrices: fresh, Timestamp: time.Now().UnixMilli()}
		b, err := json.Marshal(update)
		if err != nil {
			c.logger.Error("Failed to encode price update", zap.Error(err))
			continue
		}
		if !c.writeText(b) {
			return false
		}
	}
}

func (c *Client) writeText(b []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := wsutil.WriteServerText(c.conn, b); err != nil {
		return false
	}
	return true
}

func (c *Client) writeClose() {
	code, reason := ws.StatusNormalClosure, ""
	if c.slow.Load() {
		code, reason = ws.StatusPolicyViolation, CloseReasonSlowConsumer
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	body := ws.NewCloseFrameBody(code, reason)
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
}

func (c *Client) beginClose() {
	c.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
}
