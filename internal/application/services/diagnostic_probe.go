package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// Probe guidance, one per failure category.
const (
	GuidancePermissionDenied = "The store rejected the write. The permission grants were not saved correctly or have not propagated yet. Apply the grants shown under the access rules and run the check again."
	GuidanceUnavailable      = "The store could not be reached. Check the network connection and that the database server is running."
	GuidanceOther            = "The check failed for an unexpected reason. Reload the admin panel, confirm the grants were published, and try again."
	GuidanceCleanup          = "The test write succeeded but removing it failed. Writes work; grant DELETE on the documents table to allow deletions."
)

// DiagnosticWriter writes and removes probe documents.
type DiagnosticWriter interface {
	WriteDiagnostic(ctx context.Context, id string, doc entities.DiagnosticDocument, at time.Time) error
	DeleteDiagnostic(ctx context.Context, id string) error
}

// DiagnosticProbe checks that the current credentials can write to and delete
// from the store by round-tripping a throwaway document.
type DiagnosticProbe struct {
	writer  DiagnosticWriter
	panel   *AdminPanel
	metrics *observability.Metrics
	now     func() time.Time
}

// NewDiagnosticProbe creates a probe reporting into panel
func NewDiagnosticProbe(writer DiagnosticWriter, panel *AdminPanel, metrics *observability.Metrics) *DiagnosticProbe {
	return &DiagnosticProbe{writer: writer, panel: panel, metrics: metrics, now: time.Now}
}

// Run performs one check. agent identifies the operator's client. A failed
// check is a result, not an error; the error return is only for a check
// that is already running.
func (d *DiagnosticProbe) Run(ctx context.Context, agent string) (entities.ProbeResult, error) {
	p := d.panel
	p.mu.Lock()
	if p.probe {
		p.mu.Unlock()
		return entities.ProbeResult{}, apperrors.NewConflictError("a permission check is already running")
	}
	p.probe = true
	p.notifyLocked()
	p.mu.Unlock()

	result := d.run(ctx, agent)

	p.mu.Lock()
	p.probe = false
	switch {
	case result.OK:
		p.permissionError = false
	case result.Category == entities.ProbeCategoryPermissionDenied:
		p.permissionError = true
	}
	p.notifyLocked()
	p.mu.Unlock()

	observability.RecordProbeRun(ctx, d.metrics, string(result.Category), result.OK)
	return result, nil
}

func (d *DiagnosticProbe) run(ctx context.Context, agent string) entities.ProbeResult {
	now := d.now().UTC()
	// Checks from other consoles can start in the same millisecond.
	id := fmt.Sprintf("check_%d_%s", now.UnixMilli(), uuid.NewString())

	doc := entities.DiagnosticDocument{
		Timestamp: now.Format(time.RFC3339Nano),
		Test:      true,
		Agent:     agent,
	}
	if err := d.writer.WriteDiagnostic(ctx, id, doc, now); err != nil {
		return failedProbe(id, entities.ProbeStageWrite, err)
	}
	if err := d.writer.DeleteDiagnostic(ctx, id); err != nil {
		result := failedProbe(id, entities.ProbeStageCleanup, err)
		if result.Category != entities.ProbeCategoryUnavailable {
			result.Guidance = GuidanceCleanup
		}
		return result
	}

	log.Info().Str("document_id", id).Msg("Permission check passed")
	return entities.ProbeResult{
		OK:         true,
		DocumentID: id,
		Message:    "write and delete succeeded; the store accepts this service's credentials",
	}
}

func failedProbe(id string, stage entities.ProbeStage, err error) entities.ProbeResult {
	result := entities.ProbeResult{
		DocumentID: id,
		Stage:      stage,
		Message:    err.Error(),
	}
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeStoreUnconfigured):
		result.Category = entities.ProbeCategoryOther
		result.Message = unconfiguredMessage
		result.Guidance = GuidanceOther
	case repositories.StoreErrorCodeOf(err) == repositories.StoreCodePermissionDenied:
		result.Category = entities.ProbeCategoryPermissionDenied
		result.Guidance = GuidancePermissionDenied
	case repositories.StoreErrorCodeOf(err) == repositories.StoreCodeUnavailable:
		result.Category = entities.ProbeCategoryUnavailable
		result.Guidance = GuidanceUnavailable
	default:
		result.Category = entities.ProbeCategoryOther
		result.Guidance = GuidanceOther
	}

	log.Warn().Err(err).
		Str("document_id", id).
		Str("stage", string(stage)).
		Str("category", string(result.Category)).
		Msg("Permission check failed")
	return result
}
