package testutils

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/auth"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/hub"
	"github.com/astraly-labs/lightspeed-gateway/cmd/gateway/internal/protocol"
	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

// MockClient simulates a connected websocket session.
type MockClient struct {
	IDVal string

	Mu         sync.Mutex
	Acks       []protocol.Ack
	Frames     []string
	Ticks      []models.PriceTick
	Slow       bool // when set, SendTick reports overflow
	CloseSlows int
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) SendFrame(frame []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	m.Frames = append(m.Frames, string(frame))
	var ack protocol.Ack
	if err := json.Unmarshal(frame, &ack); err == nil && ack.MsgType != "" {
		m.Acks = append(m.Acks, ack)
	}
	return nil
}

func (m *MockClient) SendTick(symbol string, tick models.PriceTick) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Slow {
		return hub.ErrQueueOverflow
	}
	m.Ticks = append(m.Ticks, tick)
	return nil
}

func (m *MockClient) CloseSlow() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CloseSlows++
}

func (m *MockClient) LastAck() (protocol.Ack, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Acks) == 0 {
		return protocol.Ack{}, false
	}
	return m.Acks[len(m.Acks)-1], true
}

func (m *MockClient) TickPairs() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var pairs []string
	for _, t := range m.Ticks {
		pairs = append(pairs, t.Pair)
	}
	return pairs
}

// MockPriceStore simulates the redis-backed feed collaborator.
type MockPriceStore struct {
	Mu                 sync.Mutex
	SubscribedChannels map[string]int              // symbol -> subscribe count
	Snapshots          map[string]models.PriceTick // symbol -> cached tick
}

func NewMockStore() *MockPriceStore {
	return &MockPriceStore{
		SubscribedChannels: make(map[string]int),
		Snapshots:          make(map[string]models.PriceTick),
	}
}

func (m *MockPriceStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceTick, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	var ticks []models.PriceTick
	for _, sym := range symbols {
		if tick, ok := m.Snapshots[sym]; ok {
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

func (m *MockPriceStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[symbol]++
	return nil
}

func (m *MockPriceStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[symbol]--
	if m.SubscribedChannels[symbol] <= 0 {
		delete(m.SubscribedChannels, symbol)
	}
	return nil
}

func (m *MockPriceStore) RunFeed(ctx context.Context, onTick func(models.PriceTick)) {
	<-ctx.Done()
}

func (m *MockPriceStore) Close() error { return nil }

// MockVerifier accepts a fixed token.
type MockVerifier struct {
	Token   string
	Subject string
}

func (m *MockVerifier) Authenticate(token string) (auth.Principal, error) {
	if token != m.Token {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return auth.Principal{Subject: m.Subject}, nil
}
