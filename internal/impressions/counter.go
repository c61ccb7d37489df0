// Package impressions counts how often a visitor has been shown a popup in
// the current frequency window.
package impressions

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	ImpressionKey(shop, popupID, visitorID, window string) string
}

// Counter reads and bumps per-window impression counts.
type Counter struct {
	store counterStore
}

// NewCounter builds a counter over redis.
func NewCounter(store counterStore) (*Counter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	return &Counter{store: store}, nil
}

// Key identifies one visitor's impressions of one popup.
type Key struct {
	Shop      string
	PopupID   string
	VisitorID string
}

// Prior returns the impressions recorded so far in the window containing now.
// An anonymous visitor always counts as zero.
func (c *Counter) Prior(ctx context.Context, key Key, per enums.FrequencyPeriod, now time.Time, loc *time.Location) (int, error) {
	if key.VisitorID == "" {
		return 0, nil
	}
	n, err := c.store.Count(ctx, c.redisKey(key, per, now, loc))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read impressions")
	}
	return int(n), nil
}

// Record bumps the count for the window containing now. The key expires when
// the window closes.
func (c *Counter) Record(ctx context.Context, key Key, per enums.FrequencyPeriod, now time.Time, loc *time.Location) (int, error) {
	if key.VisitorID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "visitor_id is required")
	}
	ttl := eligibility.WindowEnd(per, now, loc).Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	n, err := c.store.IncrWithTTL(ctx, c.redisKey(key, per, now, loc), ttl)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record impression")
	}
	return int(n), nil
}

func (c *Counter) redisKey(key Key, per enums.FrequencyPeriod, now time.Time, loc *time.Location) string {
	return c.store.ImpressionKey(key.Shop, key.PopupID, key.VisitorID, eligibility.WindowKey(per, now, loc))
}
