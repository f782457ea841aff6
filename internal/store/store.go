// Package store holds the document, result and gold-standard contracts the
// pipeline consumes, with Firestore/GCS and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrResultNotFound    = errors.New("result not found")
	ErrGoldNotFound      = errors.New("gold standard not found")
	ErrAlreadyProcessing = errors.New("document is already processing")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRunInFlight       = errors.New("a run for this document is already in flight")
)

// DocumentStore owns document records and their extracted text.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc models.Document) (string, error)
	GetDocument(ctx context.Context, id string) (models.Document, error)
	FindByHash(ctx context.Context, fileHash string) (models.Document, bool, error)
	GetDocumentText(ctx context.Context, id string) (string, error)
	SaveDocumentText(ctx context.Context, id, text string) (string, error)
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, errorDetails string) error
	// ClaimForProcessing moves uploaded → processing atomically. It fails with
	// ErrAlreadyProcessing while another run holds the document.
	ClaimForProcessing(ctx context.Context, id, executionID string) error
	// Resubmit moves failed → uploaded.
	Resubmit(ctx context.Context, id string) error
	// FailStale marks documents stuck in processing since before cutoff as failed.
	FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error)
}

// ResultStore is the append-only log of processing records.
type ResultStore interface {
	SaveResult(ctx context.Context, rec models.ProcessingRecord) (models.ProcessingRecord, error)
	GetResult(ctx context.Context, documentID, resultID string) (models.ProcessingRecord, error)
	GetResultsFor(ctx context.Context, documentID string) ([]models.ProcessingRecord, error)
}

// Store bundles both contracts over one backend.
type Store interface {
	DocumentStore
	ResultStore
	Close() error
}

// GoldSource supplies the reference entity set for a document.
type GoldSource interface {
	GoldStandard(ctx context.Context, documentID string) ([]models.Entity, error)
}

// RunGuard serializes pipeline runs per document across processes.
type RunGuard interface {
	Acquire(ctx context.Context, documentID string) (release func(context.Context), err error)
}

// NopGuard is used when no distributed lock is configured; the status lock still applies.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string) (func(context.Context), error) {
	return func(context.Context) {}, nil
}

// LatestResult returns the newest prediction record (one not produced by an
// evaluation) of the given task type.
func LatestResult(records []models.ProcessingRecord, task models.TaskType) (models.ProcessingRecord, bool) {
	var latest models.ProcessingRecord
	found := false
	for _, r := range records {
		if r.TaskType != task || r.SourceResultID != "" {
			continue
		}
		if !found || !r.CreatedAt.Before(latest.CreatedAt) {
			latest, found = r, true
		}
	}
	return latest, found
}

// transition validates a status change.
func transition(id string, from, to models.DocumentStatus) error {
	if from == to && to == models.StatusProcessing {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
	}
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s cannot move from %q to %q", ErrInvalidTransition, id, from, to)
	}
	return nil
}

// decodeGold accepts either a bare entity array or an object with an entities array.
func decodeGold(data []byte) ([]models.Entity, error) {
	var entities []models.Entity
	if err := json.Unmarshal(data, &entities); err == nil {
		return entities, nil
	}
	var wrapped struct {
		Entities []models.Entity `json:"entities"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode gold standard: %w", err)
	}
	return wrapped.Entities, nil
}
