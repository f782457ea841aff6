package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/extraction"
	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/linking"
	"github.com/Lllllllleong/financialentityflow/internal/oracle"
	"github.com/Lllllllleong/financialentityflow/internal/store"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// OracleConfig selects and configures the hosted providers.
type OracleConfig struct {
	Enabled       bool
	ProjectID     string
	VertexRegion  string
	VertexModel   string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
}

// StoreConfig selects the document and result backend.
type StoreConfig struct {
	Backend    string
	ProjectID  string
	SQLitePath string
	DatabaseID string
	Collection string
	TextBucket string
}

// PipelineConfig holds all configuration for the entity pipeline.
type PipelineConfig struct {
	Oracle       OracleConfig
	Store        StoreConfig
	Extraction   extraction.Config
	Linking      linking.Config
	TaxonomyPath string
	RedisAddress string
	RunLockTTL   time.Duration
}

func loadOracleConfig() OracleConfig {
	return OracleConfig{
		Enabled:       gcp.GetEnvBool("ORACLE_ENABLED", true),
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		VertexRegion:  gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:   gcp.GetEnv("VERTEX_MODEL", gcp.DefaultVertexModel),
		OpenAIKey:     gcp.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   gcp.GetEnv("OPENAI_MODEL", oracle.DefaultOpenAIModel),
		OpenAIBaseURL: gcp.GetEnv("OPENAI_BASE_URL", ""),
		Timeout:       gcp.GetEnvDuration("ORACLE_TIMEOUT", 60*time.Second),
	}
}

// loadStoreConfig loads and validates the backend selection.
func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:    gcp.GetEnv("STORE_BACKEND", BackendFirestore),
		ProjectID:  gcp.GetEnv("PROJECT_ID", ""),
		SQLitePath: gcp.GetEnv("SQLITE_PATH", ""),
		DatabaseID: gcp.GetEnv("FIRESTORE_DATABASE", ""),
		Collection: gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		TextBucket: gcp.GetEnv("TEXT_BUCKET", ""),
	}
	switch cfg.Backend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return cfg, fmt.Errorf("PROJECT_ID environment variable must be set for the firestore backend")
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return cfg, fmt.Errorf("SQLITE_PATH environment variable must be set for the sqlite backend")
		}
	default:
		return cfg, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

// loadPipelineConfig loads and validates all necessary environment variables for the pipeline.
func loadPipelineConfig() (*PipelineConfig, error) {
	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}
	oracleCfg := loadOracleConfig()

	ext := extraction.DefaultConfig()
	ext.OracleEnabled = oracleCfg.Enabled
	ext.Retries = gcp.GetEnvInt("EXTRACTION_RETRIES", ext.Retries)
	ext.MaxPromptChars = gcp.GetEnvInt("EXTRACTION_MAX_PROMPT_CHARS", ext.MaxPromptChars)
	ext.CallTimeout = oracleCfg.Timeout

	link := linking.DefaultConfig()
	link.OracleEnabled = oracleCfg.Enabled
	link.BatchSize = gcp.GetEnvInt("LINK_BATCH_SIZE", link.BatchSize)
	link.MaxRetries = gcp.GetEnvInt("LINK_MAX_RETRIES", link.MaxRetries)
	link.Concurrency = gcp.GetEnvInt("LINK_CONCURRENCY", runtime.NumCPU())
	link.CallTimeout = oracleCfg.Timeout

	return &PipelineConfig{
		Oracle:       oracleCfg,
		Store:        storeCfg,
		Extraction:   ext,
		Linking:      link,
		TaxonomyPath: gcp.GetEnv("TAXONOMY_PATH", ""),
		RedisAddress: gcp.GetEnv("REDIS_ADDRESS", ""),
		RunLockTTL:   gcp.GetEnvDuration("RUN_LOCK_TTL", 15*time.Minute),
	}, nil
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	if cfg.Backend == BackendSQLite {
		st, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	}
	st, err := store.OpenFirestore(ctx, store.FirestoreConfig{
		ProjectID:  cfg.ProjectID,
		DatabaseID: cfg.DatabaseID,
		Collection: cfg.Collection,
		TextBucket: cfg.TextBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore store: %w", err)
	}
	return st, nil
}

// oracles holds one provider chain per role; a nil generator means rule-based only.
type oracles struct {
	extraction oracle.Generator
	linking    oracle.Generator
	vertex     *gcp.VertexClient
}

func (o oracles) Close() error {
	if o.vertex != nil {
		return o.vertex.Close()
	}
	return nil
}

// buildOracles orders Vertex before OpenAI; providers without credentials are skipped.
func buildOracles(ctx context.Context, cfg OracleConfig) (oracles, error) {
	var out oracles
	if !cfg.Enabled {
		slog.Info("Oracle disabled by configuration; rule-based paths only.")
		return out, nil
	}
	var ext, link []oracle.Generator
	if cfg.ProjectID != "" {
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexRegion, cfg.VertexModel)
		if err != nil {
			return out, fmt.Errorf("failed to create vertex client: %w", err)
		}
		out.vertex = vc
		ext = append(ext, oracle.NewVertex(vc.ExtractionModel, vc.ModelName))
		link = append(link, oracle.NewVertex(vc.LinkingModel, vc.ModelName))
	}
	if cfg.OpenAIKey != "" {
		ext = append(ext, oracle.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, gcp.ExtractionSystemPrompt))
		link = append(link, oracle.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, gcp.LinkingSystemPrompt))
	}
	if len(ext) == 0 {
		slog.Warn("No oracle credential configured; rule-based paths only.")
		return out, nil
	}
	extChain, linkChain := oracle.NewChain(ext...), oracle.NewChain(link...)
	out.extraction, out.linking = extChain, linkChain
	slog.Info("Oracle providers configured.", "extraction", extChain.Name(), "linking", linkChain.Name())
	return out, nil
}

// openGuard returns a Redis guard when an address is configured.
func openGuard(ctx context.Context, addr string, ttl time.Duration) (store.RunGuard, func() error, error) {
	if addr == "" {
		return store.NopGuard{}, func() error { return nil }, nil
	}
	g, err := store.NewRedisGuard(ctx, addr, ttl)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}
