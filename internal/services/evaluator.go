package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/financialentityflow/internal/evaluation"
	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
)

// EvaluatorConfig holds all configuration for the evaluator service.
type EvaluatorConfig struct {
	Store      StoreConfig
	GoldBucket string
	GoldDir    string
}

// EvaluatorFunction scores stored predictions against a gold standard.
type EvaluatorFunction struct {
	results store.ResultStore
	gold    store.GoldSource
	closers []func() error
}

func loadEvaluatorConfig() (*EvaluatorConfig, error) {
	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}
	return &EvaluatorConfig{
		Store:      storeCfg,
		GoldBucket: gcp.GetEnv("GOLD_BUCKET", ""),
		GoldDir:    gcp.GetEnv("GOLD_DIR", ""),
	}, nil
}

// NewEvaluator creates a new EvaluatorFunction instance from the environment.
func NewEvaluator(ctx context.Context) (*EvaluatorFunction, error) {
	config, err := loadEvaluatorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	f := &EvaluatorFunction{results: st, closers: []func() error{st.Close}}

	switch {
	case config.GoldBucket != "":
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		f.gold = store.NewGCSGold(storageClient, config.GoldBucket)
		f.closers = append(f.closers, storageClient.Close)
	case config.GoldDir != "":
		f.gold = store.DirGold{Dir: config.GoldDir}
	default:
		slog.Warn("No gold source configured; requests must carry their gold standard.")
	}
	slog.Info("Evaluator initialized.", "backend", config.Store.Backend)
	return f, nil
}

// NewEvaluatorWith builds an evaluator over existing stores. gold may be nil.
func NewEvaluatorWith(results store.ResultStore, gold store.GoldSource) *EvaluatorFunction {
	return &EvaluatorFunction{results: results, gold: gold}
}

// Process evaluates the requested prediction record and stores the outcome as a new record.
func (f *EvaluatorFunction) Process(ctx context.Context, req *models.EvaluationRequest) (*models.EvaluationResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID, "taskType", req.TaskType)
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", ErrInvalidRequest)
	}
	if err := evaluation.CheckTask(req.TaskType); err != nil {
		logCtx.Warn("Rejected evaluation request.", "error", err)
		return nil, err
	}

	source, err := f.sourceRecord(ctx, req)
	if err != nil {
		logCtx.Error("Failed to load prediction record.", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("sourceResultId", source.ID)

	gold := req.Gold
	if gold == nil {
		if f.gold == nil {
			return nil, fmt.Errorf("%w: no gold source configured for %s", store.ErrGoldNotFound, req.DocumentID)
		}
		if gold, err = f.gold.GoldStandard(ctx, req.DocumentID); err != nil {
			logCtx.Error("Failed to load gold standard.", "error", err)
			return nil, err
		}
	}

	start := time.Now()
	report, err := evaluation.Evaluate(req.TaskType, source.Predictions, gold)
	if err != nil {
		return nil, err
	}
	rec, err := f.results.SaveResult(ctx, models.ProcessingRecord{
		DocumentID:       req.DocumentID,
		ModelName:        source.ModelName,
		TaskType:         req.TaskType,
		Predictions:      source.Predictions,
		Metrics:          report.Metrics,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		SourceResultID:   source.ID,
		DetailedResults:  report.DetailedResults,
	})
	if err != nil {
		logCtx.Error("Failed to save evaluation result.", "error", err)
		return nil, fmt.Errorf("failed to save evaluation result: %w", err)
	}
	logCtx.Info("Evaluation complete.", "resultId", rec.ID, "f1Score", report.Metrics.F1Score, "accuracy", report.Metrics.Accuracy)

	return &models.EvaluationResponse{
		Status:          "success",
		ResultID:        rec.ID,
		Metrics:         report.Metrics,
		DetailedResults: report.DetailedResults,
	}, nil
}

func (f *EvaluatorFunction) sourceRecord(ctx context.Context, req *models.EvaluationRequest) (models.ProcessingRecord, error) {
	if req.ResultID != "" {
		rec, err := f.results.GetResult(ctx, req.DocumentID, req.ResultID)
		if err != nil {
			return rec, err
		}
		if rec.TaskType != req.TaskType {
			return rec, fmt.Errorf("%w: result %s is a %s record", evaluation.ErrInputMismatch, rec.ID, rec.TaskType)
		}
		return rec, nil
	}
	records, err := f.results.GetResultsFor(ctx, req.DocumentID)
	if err != nil {
		return models.ProcessingRecord{}, err
	}
	rec, ok := store.LatestResult(records, req.TaskType)
	if !ok {
		return rec, fmt.Errorf("%w: no %s record for %s", store.ErrResultNotFound, req.TaskType, req.DocumentID)
	}
	return rec, nil
}

func (f *EvaluatorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
