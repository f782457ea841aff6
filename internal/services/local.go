package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/financialentityflow/internal/extraction"
	"github.com/Lllllllleong/financialentityflow/internal/linking"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// LocalOptions configures a single-file run without any cloud services.
type LocalOptions struct {
	InputPath    string
	GoldPath     string
	DBPath       string
	TaxonomyPath string
	Oracle       bool
}

// LocalReport is everything a local run produced.
type LocalReport struct {
	Document    models.Document              `json:"document"`
	Pipeline    *models.PipelineResponse     `json:"pipeline"`
	Evaluations []*models.EvaluationResponse `json:"evaluations,omitempty"`
}

// RunLocal ingests one file into a SQLite store, runs the pipeline on it and,
// when a gold file is given, evaluates both stages.
func RunLocal(ctx context.Context, opts LocalOptions) (*LocalReport, error) {
	if opts.InputPath == "" {
		return nil, fmt.Errorf("%w: input path is required", ErrInvalidRequest)
	}
	data, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	var gold []models.Entity
	if opts.GoldPath != "" {
		if gold, err = store.LoadGoldFile(opts.GoldPath); err != nil {
			return nil, err
		}
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dir, err := os.MkdirTemp("", "entityflow-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "local.db")
	}
	st, err := store.OpenSQLite(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	tax, err := taxonomy.Open(opts.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	oracleCfg := loadOracleConfig()
	oracleCfg.Enabled = opts.Oracle
	providers, err := buildOracles(ctx, oracleCfg)
	if err != nil {
		return nil, err
	}
	defer providers.Close()

	intake, err := NewIntakeWith(st, nil).Ingest(ctx, filepath.Base(opts.InputPath), data)
	if err != nil {
		return nil, err
	}

	ext := extraction.DefaultConfig()
	ext.OracleEnabled = opts.Oracle
	link := linking.DefaultConfig()
	link.OracleEnabled = opts.Oracle
	orch := NewOrchestrator(st, st, tax, extraction.NewEngine(providers.extraction, ext), linking.NewEngine(providers.linking, link), nil)

	doc, err := st.GetDocument(ctx, intake.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusCompleted {
		return nil, fmt.Errorf("%w: document %s already completed", store.ErrInvalidTransition, doc.ID)
	}
	if intake.Duplicate {
		slog.Info("File already known.", "documentId", doc.ID, "status", doc.Status)
	}

	report := &LocalReport{}
	req := models.PipelineRequest{DocumentID: doc.ID, Resubmit: doc.Status == models.StatusFailed}
	if report.Pipeline, err = orch.Run(ctx, req); err != nil {
		return nil, err
	}
	if report.Document, err = st.GetDocument(ctx, intake.DocumentID); err != nil {
		return nil, err
	}

	if gold == nil {
		return report, nil
	}
	evaluator := NewEvaluatorWith(st, nil)
	for _, task := range []models.TaskType{models.TaskExtraction, models.TaskLinking} {
		res, err := evaluator.Process(ctx, &models.EvaluationRequest{DocumentID: intake.DocumentID, TaskType: task, Gold: gold})
		if err != nil {
			return nil, err
		}
		report.Evaluations = append(report.Evaluations, res)
	}
	return report, nil
}
