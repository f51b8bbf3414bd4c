package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

const (
	// FeedbackCollection holds every submitted record.
	FeedbackCollection = "feedback"
	// DiagnosticsCollection holds throwaway probe documents.
	DiagnosticsCollection = "_diagnostics"
)

const unconfiguredMessage = "document store is not configured: replace the placeholder credentials in the environment"

// PersistenceGateway is the only path from the service to the document store.
// It refuses to touch the network while the store is unconfigured and turns
// store failures into typed application errors.
type PersistenceGateway struct {
	store      repositories.DocumentStore
	configured bool
	notices    *NoticeBoard
	metrics    *observability.Metrics
}

// NewPersistenceGateway creates a gateway. store may be nil when configured is false.
func NewPersistenceGateway(store repositories.DocumentStore, configured bool, notices *NoticeBoard, metrics *observability.Metrics) *PersistenceGateway {
	return &PersistenceGateway{
		store:      store,
		configured: configured && store != nil,
		notices:    notices,
		metrics:    metrics,
	}
}

// Configured reports whether the store has real credentials
func (g *PersistenceGateway) Configured() bool {
	return g.configured
}

// Append validates and writes a feedback record, returning the store id.
func (g *PersistenceGateway) Append(ctx context.Context, record entities.FeedbackRecord) (string, error) {
	ctx, span := observability.StartSpan(ctx, "PersistenceGateway.Append")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("feedback.sentiment", string(record.Sentiment)),
		attribute.Int("feedback.rating", record.Rating),
	)

	if err := record.Validate(); err != nil {
		return "", err
	}
	if !g.configured {
		g.notices.Post(NoticeError, unconfiguredMessage)
		observability.RecordFeedbackSubmitted(ctx, g.metrics, string(record.Sentiment), false)
		return "", apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}

	doc, err := repositories.NewDocument("", record.Timestamp, record)
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode feedback record", err)
	}

	id, err := g.store.Add(ctx, FeedbackCollection, doc)
	if err != nil {
		code := g.recordStoreError(ctx, "append", err)
		observability.RecordFeedbackSubmitted(ctx, g.metrics, string(record.Sentiment), false)
		g.notices.Post(NoticeWarn, fmt.Sprintf("feedback could not be saved (%s): %v", code, err))
		return "", apperrors.NewWriteFailureError("failed to save feedback", err)
	}

	observability.RecordFeedbackSubmitted(ctx, g.metrics, string(record.Sentiment), true)
	return id, nil
}

// DeleteOne removes one feedback record
func (g *PersistenceGateway) DeleteOne(ctx context.Context, id string) error {
	ctx, span := observability.StartSpan(ctx, "PersistenceGateway.DeleteOne")
	defer span.End()

	if !g.configured {
		return apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}
	if err := g.store.Delete(ctx, FeedbackCollection, id); err != nil {
		return g.deleteError(ctx, "delete_one", "failed to delete feedback "+id, err)
	}

	observability.RecordRecordsDeleted(ctx, g.metrics, "single", 1)
	log.Info().Str("feedback_id", id).Msg("Feedback record deleted")
	return nil
}

// DeleteAll removes every feedback record in one atomic batch. confirmed is
// the operator's explicit confirmation; without it nothing is touched.
func (g *PersistenceGateway) DeleteAll(ctx context.Context, confirmed bool) (int, error) {
	ctx, span := observability.StartSpan(ctx, "PersistenceGateway.DeleteAll")
	defer span.End()

	if !confirmed {
		return 0, apperrors.NewValidationError("deleting every record requires explicit confirmation")
	}
	if !g.configured {
		return 0, apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}

	n, err := g.store.DeleteAll(ctx, FeedbackCollection)
	if err != nil {
		return 0, g.deleteError(ctx, "delete_all", "failed to delete all feedback", err)
	}

	observability.RecordRecordsDeleted(ctx, g.metrics, "bulk", n)
	log.Info().Int("count", n).Msg("All feedback records deleted")
	return n, nil
}

// Subscribe opens the live feedback subscription
func (g *PersistenceGateway) Subscribe(ctx context.Context) (repositories.Subscription, error) {
	if !g.configured {
		return nil, apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}
	sub, err := g.store.Subscribe(ctx, FeedbackCollection)
	if err != nil {
		return nil, g.subscribeError(ctx, err)
	}
	return sub, nil
}

// WriteDiagnostic writes a probe document under id
func (g *PersistenceGateway) WriteDiagnostic(ctx context.Context, id string, doc entities.DiagnosticDocument, at time.Time) error {
	if !g.configured {
		return apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}
	d, err := repositories.NewDocument(id, at, doc)
	if err != nil {
		return apperrors.NewInternalError("failed to encode diagnostic document", err)
	}
	if err := g.store.Set(ctx, DiagnosticsCollection, d); err != nil {
		code := g.recordStoreError(ctx, "diagnostic_write", err)
		if code == repositories.StoreCodePermissionDenied {
			return apperrors.NewPermissionDeniedError("diagnostic write rejected", err)
		}
		return apperrors.NewWriteFailureError("diagnostic write failed", err)
	}
	return nil
}

// DeleteDiagnostic removes a probe document
func (g *PersistenceGateway) DeleteDiagnostic(ctx context.Context, id string) error {
	if !g.configured {
		return apperrors.NewStoreUnconfiguredError(unconfiguredMessage)
	}
	if err := g.store.Delete(ctx, DiagnosticsCollection, id); err != nil {
		return g.deleteError(ctx, "diagnostic_delete", "diagnostic cleanup failed", err)
	}
	return nil
}

// SubscribeFailure wraps a terminal subscription error the same way Subscribe does.
func (g *PersistenceGateway) SubscribeFailure(ctx context.Context, err error) error {
	return g.subscribeError(ctx, err)
}

func (g *PersistenceGateway) subscribeError(ctx context.Context, err error) error {
	if g.recordStoreError(ctx, "subscribe", err) == repositories.StoreCodePermissionDenied {
		return apperrors.NewPermissionDeniedError("missing or insufficient permissions", err)
	}
	return apperrors.NewSubscribeFailureError(storeMessage(err), err)
}

func (g *PersistenceGateway) deleteError(ctx context.Context, operation, message string, err error) error {
	if g.recordStoreError(ctx, operation, err) == repositories.StoreCodePermissionDenied {
		return apperrors.NewPermissionDeniedError(message, err)
	}
	return apperrors.NewDeleteFailureError(message, err)
}

func (g *PersistenceGateway) recordStoreError(ctx context.Context, operation string, err error) repositories.StoreErrorCode {
	code := repositories.StoreErrorCodeOf(err)
	observability.RecordStoreError(ctx, g.metrics, operation, string(code))
	log.Warn().Err(err).Str("operation", operation).Str("code", string(code)).Msg("Document store call failed")
	return code
}

// storeMessage is the human-readable part of a store error.
func storeMessage(err error) string {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) && storeErr.Message != "" {
		return storeErr.Message
	}
	return err.Error()
}
