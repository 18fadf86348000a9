package repository

import (
	"context"

	"github.com/astraly-labs/lightspeed-gateway/pkg/models"
)

// PriceStore is the upstream feed collaborator: a last-tick snapshot cache
// plus a subscribable stream of live ticks.
type PriceStore interface {
	// GetSnapshots fetches the most recent cached tick for each symbol.
	// Symbols with no cached tick are simply absent from the result.
	GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceTick, error)

	// SubscribeToFeed registers upstream interest in one symbol.
	SubscribeToFeed(ctx context.Context, symbol string) error

	// UnsubscribeFromFeed drops upstream interest in one symbol.
	UnsubscribeFromFeed(ctx context.Context, symbol string) error

	// RunFeed blocks, invoking onTick for every live tick until ctx is done.
	// Feed interruptions are retried internally; the loop never returns early
	// because the upstream dropped.
	RunFeed(ctx context.Context, onTick func(models.PriceTick))

	Close() error
}
