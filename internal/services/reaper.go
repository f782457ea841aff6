package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/store"
)

// ReaperConfig holds all configuration for the stale-run reaper.
type ReaperConfig struct {
	Store      StoreConfig
	Schedule   string
	StaleAfter time.Duration
}

// ReaperFunction fails documents whose run never finished.
type ReaperFunction struct {
	docs       store.DocumentStore
	closer     func() error
	staleAfter time.Duration
	Schedule   string
}

func loadReaperConfig() (*ReaperConfig, error) {
	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}
	staleAfter := gcp.GetEnvDuration("REAPER_STALE_AFTER", 30*time.Minute)
	if staleAfter <= 0 {
		return nil, fmt.Errorf("REAPER_STALE_AFTER must be positive")
	}
	return &ReaperConfig{
		Store:      storeCfg,
		Schedule:   gcp.GetEnv("REAPER_SCHEDULE", "@every 5m"),
		StaleAfter: staleAfter,
	}, nil
}

// NewReaper creates a new ReaperFunction instance from the environment.
func NewReaper(ctx context.Context) (*ReaperFunction, error) {
	config, err := loadReaperConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	return &ReaperFunction{docs: st, closer: st.Close, staleAfter: config.StaleAfter, Schedule: config.Schedule}, nil
}

// NewReaperWith builds a reaper over an existing document store.
func NewReaperWith(docs store.DocumentStore, staleAfter time.Duration) *ReaperFunction {
	return &ReaperFunction{docs: docs, closer: func() error { return nil }, staleAfter: staleAfter}
}

// Process fails every document that has been processing for longer than the stale threshold.
func (f *ReaperFunction) Process(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-f.staleAfter)
	reason := fmt.Sprintf("run did not finish within %s", f.staleAfter)
	failed, err := f.docs.FailStale(ctx, cutoff, reason)
	if err != nil {
		slog.Error("Stale run sweep failed.", "error", err)
		return failed, err
	}
	if len(failed) > 0 {
		slog.Warn("Failed stale runs.", "count", len(failed), "documentIds", failed)
	}
	return failed, nil
}

func (f *ReaperFunction) Close() error {
	return f.closer()
}
