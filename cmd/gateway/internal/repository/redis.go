package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

const (
	keyPrefix     = "price:"
	channelPrefix = "prices."

	feedRetryDelay = time.Second
)

// Compile-time check to ensure RedisStore implements PriceStore
var _ PriceStore = (*RedisStore)(nil)

// RedisStore serves snapshots from plain keys and the live feed from pub/sub
// channels, both written by the feeder.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	subs   map[string]struct{} // symbols with an active upstream subscription
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
		pubsub: client.Subscribe(context.Background()),
		subs:   make(map[string]struct{}),
	}
}

// GetSnapshots fetches the latest cached tick for a list of symbols (MGET).
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceTick, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var ticks []models.PriceTick
	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var tick models.PriceTick
		if err := json.Unmarshal([]byte(payload), &tick); err != nil {
			r.logger.Warn("Discarding malformed cached tick", zap.Error(err))
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (r *RedisStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubsub.Subscribe(ctx, channelPrefix+symbol); err != nil {
		return err
	}
	r.subs[symbol] = struct{}{}
	return nil
}

func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubsub.Unsubscribe(ctx, channelPrefix+symbol); err != nil {
		return err
	}
	delete(r.subs, symbol)
	return nil
}

// RunFeed reads ticks from pub/sub and hands them to onTick. When the
// receive channel dies the subscription is rebuilt and the loop resumes;
// connected sessions never notice a feed interruption beyond missing ticks.
func (r *RedisStore) RunFeed(ctx context.Context, onTick func(models.PriceTick)) {
	ch := r.currentChannel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("Upstream feed channel closed, resubscribing")
				if !r.resubscribe(ctx) {
					return
				}
				ch = r.currentChannel()
				continue
			}
			r.dispatch(msg, onTick)
		}
	}
}

func (r *RedisStore) dispatch(msg *redis.Message, onTick func(models.PriceTick)) {
	symbol := strings.TrimPrefix(msg.Channel, channelPrefix)

	var tick models.PriceTick
	if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
		r.logger.Warn("Discarding malformed feed payload",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if tick.Pair == "" {
		tick.Pair = symbol
	}
	onTick(tick)
}

func (r *RedisStore) currentChannel() <-chan *redis.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Channel()
}

// resubscribe rebuilds the pub/sub connection with the previously subscribed
// symbols. Returns false only when ctx is cancelled while waiting to retry.
func (r *RedisStore) resubscribe(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(feedRetryDelay):
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_ = r.pubsub.Close()
	r.pubsub = r.client.Subscribe(context.Background())

	channels := make([]string, 0, len(r.subs))
	for sym := range r.subs {
		channels = append(channels, channelPrefix+sym)
	}
	if len(channels) > 0 {
		if err := r.pubsub.Subscribe(ctx, channels...); err != nil {
			r.logger.Error("Failed to resubscribe upstream channels", zap.Error(err))
		}
	}
	return true
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}
