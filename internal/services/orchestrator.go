package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/financialentityflow/internal/extraction"
	"github.com/Lllllllleong/financialentityflow/internal/linking"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// Orchestrator sequences extraction and linking for one document and is the only
// writer of document status.
type Orchestrator struct {
	docs      store.DocumentStore
	results   store.ResultStore
	taxonomy  taxonomy.Source
	extractor *extraction.Engine
	linker    *linking.Engine
	guard     store.RunGuard
}

// NewOrchestrator wires the collaborators. A nil guard means the status lock alone serializes runs.
func NewOrchestrator(docs store.DocumentStore, results store.ResultStore, tax taxonomy.Source,
	extractor *extraction.Engine, linker *linking.Engine, guard store.RunGuard) *Orchestrator {
	if guard == nil {
		guard = store.NopGuard{}
	}
	return &Orchestrator{
		docs:      docs,
		results:   results,
		taxonomy:  tax,
		extractor: extractor,
		linker:    linker,
		guard:     guard,
	}
}

// Run claims the document, extracts and links its entities, persists one record
// per stage and completes the document. Errors after the claim mark it failed.
func (o *Orchestrator) Run(ctx context.Context, req models.PipelineRequest) (*models.PipelineResponse, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", ErrInvalidRequest)
	}
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting entity pipeline.")

	release, err := o.guard.Acquire(ctx, req.DocumentID)
	if err != nil {
		logCtx.Warn("Run guard not obtained.", "error", err)
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	if req.Resubmit {
		if err := o.docs.Resubmit(ctx, req.DocumentID); err != nil {
			logCtx.Warn("Resubmission rejected.", "error", err)
			return nil, err
		}
		logCtx.Info("Document resubmitted.")
	}
	if err := o.docs.ClaimForProcessing(ctx, req.DocumentID, req.ExecutionID); err != nil {
		logCtx.Warn("Could not claim document for processing.", "error", err)
		return nil, err
	}

	res, err := o.process(ctx, logCtx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Entity pipeline complete.", "entityCount", res.EntityCount, "linkedCount", res.LinkedCount)
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, logCtx *slog.Logger, docID string) (res *models.PipelineResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, o.handleError(ctx, logCtx, docID, "pipeline panicked", fmt.Errorf("%v", r))
		}
	}()

	text, err := o.docs.GetDocumentText(ctx, docID)
	if err != nil {
		return nil, o.handleError(ctx, logCtx, docID, "failed to get document text", err)
	}

	start := time.Now()
	extracted := o.extractor.Extract(ctx, text)
	extRec, err := o.results.SaveResult(ctx, models.ProcessingRecord{
		DocumentID:       docID,
		ModelName:        extracted.Model,
		TaskType:         models.TaskExtraction,
		Predictions:      extracted.Entities,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return nil, o.handleError(ctx, logCtx, docID, "failed to save extraction result", err)
	}
	logCtx.Info("Extraction stage saved.", "resultId", extRec.ID, "source", extracted.Source, "entityCount", len(extracted.Entities))

	concepts, err := o.taxonomy.ListConcepts(ctx)
	if err != nil {
		return nil, o.handleError(ctx, logCtx, docID, "failed to list taxonomy concepts", err)
	}

	start = time.Now()
	linked := o.linker.Link(ctx, extracted.Entities, concepts)
	linkRec, err := o.results.SaveResult(ctx, models.ProcessingRecord{
		DocumentID:       docID,
		ModelName:        linked.Model,
		TaskType:         models.TaskLinking,
		Predictions:      linked.Entities,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return nil, o.handleError(ctx, logCtx, docID, "failed to save linking result", err)
	}
	logCtx.Info("Linking stage saved.", "resultId", linkRec.ID, "linkedCount", linked.Linked())

	if err := o.docs.UpdateStatus(ctx, docID, models.StatusCompleted, ""); err != nil {
		return nil, o.handleError(ctx, logCtx, docID, "failed to mark document completed", err)
	}

	return &models.PipelineResponse{
		Status:             "success",
		DocumentStatus:     models.StatusCompleted,
		EntityCount:        len(linked.Entities),
		LinkedCount:        linked.Linked(),
		ExtractionResultID: extRec.ID,
		LinkingResultID:    linkRec.ID,
		Entities:           linked.Entities,
	}, nil
}

// handleError logs, marks the document failed with the message, and returns the wrapped error.
func (o *Orchestrator) handleError(ctx context.Context, logCtx *slog.Logger, docID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	details := fmt.Sprintf("%s: %v", message, originalErr)
	if err := o.docs.UpdateStatus(context.WithoutCancel(ctx), docID, models.StatusFailed, details); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to failed after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
