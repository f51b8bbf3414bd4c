//go:build integration

package events_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/events"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/reviewgate/backend/pkg/config"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	port := 6379
	if value := os.Getenv("TEST_REDIS_PORT"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			port = parsed
		}
	}

	client, err := redis.NewClient(context.Background(), &config.RedisConfig{
		Host:     os.Getenv("TEST_REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
	})
	require.NoError(t, err, "Failed to create redis client")
	t.Cleanup(func() { client.Close() })
	return client
}

func waitForCollectionEvent(t *testing.T, ch <-chan *entities.CollectionEvent) *entities.CollectionEvent {
	t.Helper()
	select {
	case event := <-ch:
		require.NotNil(t, event)
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for collection event")
		return nil
	}
}

func TestRedisEventBusFanoutIntegration(t *testing.T) {
	eventBus := events.NewRedisEventBus(newTestRedisClient(t))
	defer eventBus.Close()

	channel := providers.GetCollectionChannel("it_" + uuid.New().String()[:8])
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := eventBus.Subscribe(ctx1, channel)
	require.NoError(t, err)
	sub2, err := eventBus.Subscribe(ctx2, channel)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	event := &entities.CollectionEvent{
		ID:         uuid.New().String(),
		Collection: "feedback",
		Kind:       entities.ChangeAdded,
		DocumentID: "doc-1",
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, eventBus.Publish(context.Background(), channel, event))

	received1 := waitForCollectionEvent(t, sub1)
	received2 := waitForCollectionEvent(t, sub2)
	assert.Equal(t, event.ID, received1.ID)
	assert.Equal(t, event.ID, received2.ID)
	assert.Equal(t, entities.ChangeAdded, received1.Kind)
}

func TestRedisEventBusCloseEndsSubscriptionsIntegration(t *testing.T) {
	eventBus := events.NewRedisEventBus(newTestRedisClient(t))

	sub, err := eventBus.Subscribe(context.Background(), providers.GetCollectionChannel("it_close"))
	require.NoError(t, err)

	require.NoError(t, eventBus.Close())

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription stayed open after Close")
	}

	_, err = eventBus.Subscribe(context.Background(), "collection:after-close")
	assert.Error(t, err)
}
