package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgredis "github.com/angelmondragon/popcatch-backend/pkg/redis"
)

// DefaultGuardTTL covers Shopify's 48 hour redelivery window.
const DefaultGuardTTL = 72 * time.Hour

// Guard remembers webhook ids so redeliveries are acknowledged without
// being applied twice.
type Guard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewGuard(store pkgredis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{store: store, ttl: ttl, scope: "shopify-webhook"}, nil
}

// CheckAndMark claims id and reports whether it was already claimed.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("webhook id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, id), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Release forgets id so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("webhook id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, id))
}
