package providers

import (
	"context"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to collection change events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.CollectionEvent) error

	// Subscribe subscribes to events on a channel until ctx is cancelled
	Subscribe(ctx context.Context, channel string) (<-chan *entities.CollectionEvent, error)

	// Unsubscribe drops every subscriber of a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelCollectionPrefix is the prefix for per-collection change channels
const EventChannelCollectionPrefix = "collection:"

// GetCollectionChannel returns the channel name for a collection's change events
func GetCollectionChannel(collection string) string {
	return EventChannelCollectionPrefix + collection
}
