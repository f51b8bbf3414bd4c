package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// FeedbackSubscriber opens the live feedback subscription.
type FeedbackSubscriber interface {
	Subscribe(ctx context.Context) (repositories.Subscription, error)
	SubscribeFailure(ctx context.Context, err error) error
}

// CollectionSynchronizer keeps an AdminPanel's mirror equal to the latest
// snapshot of the feedback collection.
//
// Every snapshot replaces the mirror in full, which is O(n) per change and
// stops being reasonable once the collection grows large.
type CollectionSynchronizer struct {
	subscriber FeedbackSubscriber
	panel      *AdminPanel

	mu     sync.Mutex
	sub    repositories.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollectionSynchronizer creates a synchronizer feeding panel.
func NewCollectionSynchronizer(subscriber FeedbackSubscriber, panel *AdminPanel) *CollectionSynchronizer {
	return &CollectionSynchronizer{subscriber: subscriber, panel: panel}
}

// Start opens the subscription. It outlives ctx's cancellation and runs
// until Stop. Calling Start while running is a no-op.
func (c *CollectionSynchronizer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	c.panel.setLoading()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := c.subscriber.Subscribe(subCtx)
	if err != nil {
		cancel()
		c.panel.applyLoadFailure(apperrors.IsType(err, apperrors.ErrorTypePermissionDenied), failureMessage(err))
		return err
	}

	c.sub = sub
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(subCtx, sub, c.done)
	return nil
}

// Stop cancels the subscription and waits until no further snapshot can be applied.
func (c *CollectionSynchronizer) Stop() {
	c.mu.Lock()
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	sub.Close()
	<-done
}

func (c *CollectionSynchronizer) run(ctx context.Context, sub repositories.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok || ctx.Err() != nil {
				return
			}
			if ev.Err != nil {
				err := c.subscriber.SubscribeFailure(ctx, ev.Err)
				c.panel.applyLoadFailure(apperrors.IsType(err, apperrors.ErrorTypePermissionDenied), failureMessage(err))
				return
			}
			c.panel.applySnapshot(decodeRecords(ev.Snapshot))
		}
	}
}

func decodeRecords(snapshot *repositories.Snapshot) []entities.StoredRecord {
	if snapshot == nil {
		return nil
	}
	records := make([]entities.StoredRecord, 0, len(snapshot.Documents))
	for _, doc := range snapshot.Documents {
		var record entities.FeedbackRecord
		if err := json.Unmarshal(doc.Data, &record); err != nil {
			log.Warn().Err(err).Str("feedback_id", doc.ID).Msg("Skipping unreadable feedback document")
			continue
		}
		records = append(records, entities.StoredRecord{ID: doc.ID, FeedbackRecord: record})
	}
	return records
}

func failureMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
