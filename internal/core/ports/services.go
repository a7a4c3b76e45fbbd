package ports

import (
	"context"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishClaim(ctx context.Context, event *domain.ClaimEvent) error
	PublishContest(ctx context.Context, event *domain.ContestEvent) error
	PublishPosition(ctx context.Context, pos *domain.PlayerPosition) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeClaims(ctx context.Context, handler func(ctx context.Context, event *domain.ClaimEvent) error) error
	SubscribeContests(ctx context.Context, handler func(ctx context.Context, event *domain.ContestEvent) error) error
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.PlayerPosition) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
