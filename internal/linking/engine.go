// Package linking attaches taxonomy concepts to extracted entities.
//
// Entities are linked in bounded batches, each batch retried on its own; whatever the
// oracle leaves unmapped is tagged from an ordered keyword table.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/oracle"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// ModelRules is reported as the model when no oracle answer was used.
const ModelRules = "rule-based"

// Config controls batching and the oracle path.
type Config struct {
	OracleEnabled      bool
	BatchSize          int
	MaxRetries         int           // total attempts per batch
	BackoffUnit        time.Duration // wait after attempt n is BackoffUnit*2^n
	Concurrency        int
	CallTimeout        time.Duration
	MaxCatalogConcepts int
	Generation         oracle.GenerationConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		OracleEnabled:      true,
		BatchSize:          40,
		MaxRetries:         3,
		BackoffUnit:        time.Second,
		Concurrency:        runtime.NumCPU(),
		CallTimeout:        60 * time.Second,
		MaxCatalogConcepts: 200,
		Generation:         oracle.GenerationConfig{Temperature: 0.1, MaxOutputTokens: 8192},
	}
}

// Result holds one output entity per input entity, in input order.
type Result struct {
	Entities        []models.Entity
	Model           string
	OracleBatches   int
	FallbackBatches int
	Reduced         bool
}

// Linked counts entities that carry a tag.
func (r Result) Linked() int {
	n := 0
	for _, e := range r.Entities {
		if e.XbrlTag != nil {
			n++
		}
	}
	return n
}

type batchOutcome struct {
	assignments map[int]assignment
	model       string
	ok          bool
}

// Engine runs the batched linking pass.
type Engine struct {
	oracle oracle.Generator
	cfg    Config
	logger *slog.Logger
}

// NewEngine builds an engine. gen may be nil, which behaves like a disabled oracle.
func NewEngine(gen oracle.Generator, cfg Config) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 40
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Engine{
		oracle: gen,
		cfg:    cfg,
		logger: slog.Default().With("component", "linking"),
	}
}

// Link never fails: batches the oracle cannot map fall back to keyword rules, and
// an unusable oracle switches the whole run to the reduced keyword table.
func (e *Engine) Link(ctx context.Context, entities []models.Entity, concepts []models.TaxonomyConcept) Result {
	input := make([]models.Entity, len(entities))
	for i, ent := range entities {
		ent.XbrlTag = nil
		ent.MappingExplanation = ""
		input[i] = ent
	}
	if len(input) == 0 {
		return Result{Entities: input, Model: ModelRules}
	}
	if !e.cfg.OracleEnabled || e.oracle == nil {
		e.logger.Info("Oracle disabled, using reduced keyword table.", "entityCount", len(input))
		return Result{Entities: ApplyReduced(input, concepts), Model: ModelRules, Reduced: true}
	}

	catalog := taxonomy.NewCatalog(concepts)
	size := e.cfg.BatchSize
	numBatches := (len(input) + size - 1) / size
	outcomes := make([]batchOutcome, numBatches)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Concurrency)
	for b := 0; b < numBatches; b++ {
		b := b
		start := b * size
		end := min(start+size, len(input))
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := e.linkBatch(gctx, b, start, input[start:end], catalog)
			if err != nil {
				return err
			}
			outcomes[b] = outcome
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		e.logger.Warn("Oracle linking unavailable, using reduced keyword table.", "error", err)
		return Result{Entities: ApplyReduced(input, concepts), Model: ModelRules, Reduced: true}
	}

	res := Result{Entities: make([]models.Entity, len(input)), Model: ModelRules}
	merged := make(map[int]assignment, len(input))
	for _, o := range outcomes {
		if !o.ok {
			res.FallbackBatches++
			continue
		}
		res.OracleBatches++
		if res.Model == ModelRules && o.model != "" {
			res.Model = o.model
		}
		for idx, a := range o.assignments {
			if _, dup := merged[idx]; !dup {
				merged[idx] = a
			}
		}
	}
	for i, ent := range input {
		if a, ok := merged[i]; ok {
			tag := a.tag
			ent.XbrlTag = &tag
			ent.MappingExplanation = a.explanation
			res.Entities[i] = ent
			continue
		}
		res.Entities[i] = fullRules.apply(ent, catalog, FallbackConfidence, ExplanationFallback)
	}
	e.logger.Info("Linking finished.",
		"entityCount", len(input),
		"oracleMapped", len(merged),
		"oracleBatches", res.OracleBatches,
		"fallbackBatches", res.FallbackBatches)
	return res
}

// linkBatch maps one batch. It only returns an error when the oracle is unavailable
// altogether; exhausted retries yield an outcome with ok=false.
func (e *Engine) linkBatch(ctx context.Context, index, start int, batch []models.Entity, catalog *taxonomy.Catalog) (batchOutcome, error) {
	logCtx := e.logger.With("batch", index, "batchStart", start, "batchSize", len(batch))
	prompt := buildPrompt(batch, catalog.Concepts(), e.cfg.MaxCatalogConcepts)

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		outcome, err := e.attempt(ctx, prompt, start, len(batch), catalog)
		if err == nil {
			logCtx.Info("Batch mapped by oracle.", "attempt", attempt, "mapped", len(outcome.assignments))
			return outcome, nil
		}
		if errors.Is(err, oracle.ErrUnavailable) {
			return batchOutcome{}, err
		}
		logCtx.Warn("Batch linking attempt failed.", "attempt", attempt, "maxAttempts", e.cfg.MaxRetries, "error", err)
		if !oracle.Retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < e.cfg.MaxRetries {
			if err := oracle.Backoff(ctx, e.cfg.BackoffUnit*time.Duration(1<<attempt)); err != nil {
				break
			}
		}
	}
	logCtx.Warn("Batch falls back to keyword rules.")
	return batchOutcome{}, nil
}

var errInsufficient = errors.New("too few mappings returned")

func (e *Engine) attempt(ctx context.Context, prompt string, start, size int, catalog *taxonomy.Catalog) (batchOutcome, error) {
	callCtx := ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	resp, err := e.oracle.Generate(callCtx, prompt, e.cfg.Generation)
	if err != nil {
		return batchOutcome{}, err
	}
	mappings, returned, err := parseMappings(resp.Text)
	if err != nil {
		return batchOutcome{}, err
	}
	if !sufficient(returned, size) {
		return batchOutcome{}, fmt.Errorf("%w: %d of %d", errInsufficient, returned, size)
	}
	return batchOutcome{assignments: resolve(mappings, start, size, catalog), model: resp.Model, ok: true}, nil
}
