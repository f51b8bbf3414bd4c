package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// DefaultConfirmWindow is how long an armed delete waits for its second activation.
const DefaultConfirmWindow = 3 * time.Second

// Scheduler runs f once after d. The returned stop function cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

// AfterFunc is the wall-clock Scheduler.
func AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// FeedbackDeleter removes feedback records.
type FeedbackDeleter interface {
	DeleteOne(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, confirmed bool) (int, error)
}

// DeleteConfirmation is the two-phase delete: the first activation on an item
// arms it, a second activation within the window deletes it. At most one item
// is armed at a time; arming another re-targets the confirmation.
type DeleteConfirmation struct {
	deleter  FeedbackDeleter
	panel    *AdminPanel
	window   time.Duration
	schedule Scheduler
}

// NewDeleteConfirmation creates the protocol for panel. A nil schedule uses wall-clock timers.
func NewDeleteConfirmation(deleter FeedbackDeleter, panel *AdminPanel, window time.Duration, schedule Scheduler) *DeleteConfirmation {
	if window <= 0 {
		window = DefaultConfirmWindow
	}
	if schedule == nil {
		schedule = AfterFunc
	}
	return &DeleteConfirmation{
		deleter:  deleter,
		panel:    panel,
		window:   window,
		schedule: schedule,
	}
}

// Activate handles one press of an item's delete affordance.
func (d *DeleteConfirmation) Activate(ctx context.Context, id string) (entities.ConfirmOutcome, error) {
	p := d.panel
	p.mu.Lock()

	if _, busy := p.inFlight[id]; busy || p.bulk {
		p.mu.Unlock()
		return entities.ConfirmBusy, nil
	}

	if p.pending != id {
		if !p.containsLocked(id) {
			p.mu.Unlock()
			return "", apperrors.NewNotFoundError(fmt.Sprintf("feedback %s not found", id))
		}
		d.armLocked(id)
		p.notifyLocked()
		p.mu.Unlock()
		return entities.ConfirmArmed, nil
	}

	p.clearPendingLocked()
	p.inFlight[id] = struct{}{}
	p.notifyLocked()
	p.mu.Unlock()

	err := d.deleter.DeleteOne(ctx, id)

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.notifyLocked()

	if err != nil {
		delete(p.inFlight, id)
		if apperrors.IsType(err, apperrors.ErrorTypePermissionDenied) {
			p.permissionError = true
		}
		log.Warn().Err(err).Str("feedback_id", id).Msg("Confirmed delete failed")
		return entities.ConfirmFailed, err
	}

	// The snapshot that drops the item clears the in-flight mark; if it
	// already arrived there is nothing left to wait for.
	if !p.containsLocked(id) {
		delete(p.inFlight, id)
	}
	return entities.ConfirmDeleted, nil
}

// armLocked makes id the pending item and schedules its expiry. The timer
// carries the generation it was armed with, so a timer that fires after
// being superseded or confirmed does nothing.
func (d *DeleteConfirmation) armLocked(id string) {
	p := d.panel
	p.clearPendingLocked()
	p.pending = id
	generation := p.generation

	p.stopTimer = d.schedule(d.window, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.pending != id || p.generation != generation {
			return
		}
		p.pending = ""
		p.stopTimer = nil
		p.notifyLocked()
	})
}

// DeleteAll is the bulk delete affordance. It drops any armed confirmation
// and blocks per-item deletes while it runs.
func (d *DeleteConfirmation) DeleteAll(ctx context.Context, confirmed bool) (int, error) {
	if !confirmed {
		return 0, apperrors.NewValidationError("deleting every record requires explicit confirmation")
	}

	p := d.panel
	p.mu.Lock()
	if p.bulk {
		p.mu.Unlock()
		return 0, apperrors.NewConflictError("a bulk delete is already running")
	}
	p.bulk = true
	p.clearPendingLocked()
	p.notifyLocked()
	p.mu.Unlock()

	n, err := d.deleter.DeleteAll(ctx, true)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bulk = false
	if apperrors.IsType(err, apperrors.ErrorTypePermissionDenied) {
		p.permissionError = true
	}
	p.notifyLocked()
	return n, err
}

// Close cancels any armed confirmation.
func (d *DeleteConfirmation) Close() {
	d.panel.mu.Lock()
	defer d.panel.mu.Unlock()
	if d.panel.pending != "" {
		d.panel.clearPendingLocked()
		d.panel.notifyLocked()
	}
}
