package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/financialentityflow/internal/extraction"
	"github.com/Lllllllleong/financialentityflow/internal/linking"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// PipelineFunction holds the dependencies for the entity pipeline.
type PipelineFunction struct {
	orchestrator *Orchestrator
	store        store.Store
	oracles      oracles
	closeGuard   func() error
	config       PipelineConfig
}

// NewPipeline creates a new PipelineFunction instance from the environment.
func NewPipeline(ctx context.Context) (*PipelineFunction, error) {
	config, err := loadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	tax, err := taxonomy.Open(config.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	st, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	providers, err := buildOracles(ctx, config.Oracle)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	guard, closeGuard, err := openGuard(ctx, config.RedisAddress, config.RunLockTTL)
	if err != nil {
		_ = st.Close()
		_ = providers.Close()
		return nil, err
	}

	f := &PipelineFunction{
		orchestrator: NewOrchestrator(st, st, tax,
			extraction.NewEngine(providers.extraction, config.Extraction),
			linking.NewEngine(providers.linking, config.Linking),
			guard),
		store:      st,
		oracles:    providers,
		closeGuard: closeGuard,
		config:     *config,
	}
	slog.Info("Entity pipeline initialized.", "backend", config.Store.Backend, "oracleEnabled", config.Oracle.Enabled)
	return f, nil
}

// Process runs the pipeline for one document.
func (f *PipelineFunction) Process(ctx context.Context, req *models.PipelineRequest) (*models.PipelineResponse, error) {
	return f.orchestrator.Run(ctx, *req)
}

func (f *PipelineFunction) Close() error {
	return errors.Join(f.store.Close(), f.oracles.Close(), f.closeGuard())
}
