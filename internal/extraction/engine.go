// Package extraction turns document text into typed numeric entities.
//
// The oracle path is attempted first; any oracle failure degrades to the
// deterministic rule-based scan, so Extract never fails its caller.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/oracle"
)

// ErrExtractionOracle marks a failed oracle extraction attempt.
var ErrExtractionOracle = errors.New("extraction oracle error")

// Provenance of an extraction result.
const (
	SourceOracle = "oracle"
	SourceRules  = "rule-based"
)

// Config controls the oracle path. OracleEnabled=false skips the oracle entirely.
type Config struct {
	OracleEnabled  bool
	Retries        int           // total oracle attempts
	BackoffUnit    time.Duration // wait after attempt n is BackoffUnit*n
	MaxPromptChars int
	CallTimeout    time.Duration
	Generation     oracle.GenerationConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		OracleEnabled:  true,
		Retries:        2,
		BackoffUnit:    time.Second,
		MaxPromptChars: 12000,
		CallTimeout:    60 * time.Second,
		Generation:     oracle.GenerationConfig{Temperature: 0.1, MaxOutputTokens: 8192},
	}
}

// Result is the outcome of one extraction.
type Result struct {
	Entities []models.Entity
	Source   string
	Model    string
	Attempts int
}

// Engine orchestrates the oracle, validation, retry and rule-based fallback.
type Engine struct {
	oracle oracle.Generator
	cfg    Config
	logger *slog.Logger
}

// NewEngine builds an engine. gen may be nil, which behaves like a disabled oracle.
func NewEngine(gen oracle.Generator, cfg Config) *Engine {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Engine{
		oracle: gen,
		cfg:    cfg,
		logger: slog.Default().With("component", "extraction"),
	}
}

// Extract never returns an error: oracle failures fall back to RuleBased over the full text.
func (e *Engine) Extract(ctx context.Context, text string) Result {
	if !e.cfg.OracleEnabled || e.oracle == nil {
		e.logger.Info("Oracle disabled, using rule-based extraction.")
		return e.fallback(text, 0)
	}

	prompt := buildPrompt(text, e.cfg.MaxPromptChars)
	var lastErr error
	attempt := 0
	for attempt < e.cfg.Retries {
		attempt++
		entities, model, err := e.attempt(ctx, prompt, text)
		if err == nil {
			e.logger.Info("Oracle extraction succeeded.", "attempt", attempt, "entityCount", len(entities), "model", model)
			return Result{Entities: entities, Source: SourceOracle, Model: model, Attempts: attempt}
		}
		lastErr = err
		e.logger.Warn("Oracle extraction attempt failed.", "attempt", attempt, "maxAttempts", e.cfg.Retries, "error", err)

		if !oracle.Retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < e.cfg.Retries {
			if err := oracle.Backoff(ctx, e.cfg.BackoffUnit*time.Duration(attempt)); err != nil {
				break
			}
		}
	}
	e.logger.Warn("Falling back to rule-based extraction.", "attempts", attempt, "error", lastErr)
	return e.fallback(text, attempt)
}

func (e *Engine) fallback(text string, attempts int) Result {
	return Result{Entities: RuleBased(text), Source: SourceRules, Model: SourceRules, Attempts: attempts}
}

// attempt performs one bounded oracle call and validates the answer.
func (e *Engine) attempt(ctx context.Context, prompt, text string) ([]models.Entity, string, error) {
	callCtx := ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	resp, err := e.oracle.Generate(callCtx, prompt, e.cfg.Generation)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrExtractionOracle, err)
	}
	raw, err := parseResponse(resp.Text)
	if err != nil {
		return nil, "", err
	}

	pages := newPageIndex(text)
	entities := make([]models.Entity, 0, len(raw))
	for i, oe := range raw {
		ent, err := normalize(oe, pages, text)
		if err != nil {
			e.logger.Debug("Dropping invalid oracle entity.", "index", i, "error", err)
			continue
		}
		entities = append(entities, ent)
	}
	if len(raw) > 0 && len(entities) == 0 {
		return nil, "", fmt.Errorf("%w: %w: none of %d entities were valid", ErrExtractionOracle, oracle.ErrMalformedResponse, len(raw))
	}
	return entities, resp.Model, nil
}

// parseResponse validates raw oracle text against the extraction schema: fences are
// stripped, the body must look complete, parse as JSON and contain an entities array.
func parseResponse(text string) ([]oracleEntity, error) {
	body := oracle.StripCodeFence(text)
	if !oracle.LooksComplete(body) {
		return nil, fmt.Errorf("%w: %w: response looks truncated", ErrExtractionOracle, oracle.ErrMalformedResponse)
	}
	var payload struct {
		Entities *[]json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExtractionOracle, oracle.ErrMalformedResponse, err)
	}
	if payload.Entities == nil {
		return nil, fmt.Errorf("%w: %w: missing entities array", ErrExtractionOracle, oracle.ErrMalformedResponse)
	}
	out := make([]oracleEntity, 0, len(*payload.Entities))
	for _, item := range *payload.Entities {
		var oe oracleEntity
		if err := json.Unmarshal(item, &oe); err != nil {
			continue
		}
		out = append(out, oe)
	}
	return out, nil
}
