package cache

import (
	"context"
	"time"

	"dawakhana/backend/internal/domain"
)

// AlertCache holds the latest stock-alert snapshot so the dashboard does
// not recompute expiry and reorder scans on every poll.
type AlertCache interface {
	Get(ctx context.Context, key string) (*domain.StockAlerts, bool, error)
	Set(ctx context.Context, key string, value *domain.StockAlerts, ttl time.Duration) error
}

type NoopAlertCache struct{}

func (NoopAlertCache) Get(_ context.Context, _ string) (*domain.StockAlerts, bool, error) {
	return nil, false, nil
}

func (NoopAlertCache) Set(_ context.Context, _ string, _ *domain.StockAlerts, _ time.Duration) error {
	return nil
}
