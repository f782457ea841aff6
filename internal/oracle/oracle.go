// Package oracle adapts hosted text-reasoning services behind one small interface.
//
// A Generator performs exactly one call and never retries; retry, backoff and
// fallback policy belong to the engines that consume it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Error taxonomy shared by every provider.
var (
	// ErrUnavailable: no provider or credential is configured.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrTransport: the provider call failed.
	ErrTransport = errors.New("oracle transport error")
	// ErrTimeout: the call exceeded its deadline.
	ErrTimeout = errors.New("oracle timeout")
	// ErrMalformedResponse: the provider answered with unusable text.
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// GenerationConfig carries per-call generation parameters.
// A zero MaxOutputTokens leaves the provider default in place.
type GenerationConfig struct {
	Temperature     float32
	MaxOutputTokens int32
}

// Response is the raw text returned by a provider and the model that produced it.
type Response struct {
	Text  string
	Model string
}

// Generator is a single hosted provider.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (Response, error)
}

// Retryable reports whether an engine should try the call again.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrUnavailable) && !errors.Is(err, context.Canceled)
}

// classify maps a provider failure onto the error taxonomy.
func classify(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrTransport, err)
}

// Chain tries providers in order and returns the first answer.
type Chain struct {
	generators []Generator
	logger     *slog.Logger
}

// NewChain builds a chain from the non-nil generators given.
func NewChain(generators ...Generator) *Chain {
	c := &Chain{logger: slog.Default().With("component", "oracle")}
	for _, g := range generators {
		if g != nil {
			c.generators = append(c.generators, g)
		}
	}
	return c
}

// Len is the number of configured providers.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.generators)
}

// Name joins the provider names in try order.
func (c *Chain) Name() string {
	if c.Len() == 0 {
		return "none"
	}
	names := make([]string, len(c.generators))
	for i, g := range c.generators {
		names[i] = g.Name()
	}
	return strings.Join(names, ">")
}

// Generate implements Generator.
func (c *Chain) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (Response, error) {
	if c.Len() == 0 {
		return Response{}, ErrUnavailable
	}
	var errs []error
	for _, g := range c.generators {
		resp, err := g.Generate(ctx, prompt, cfg)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("Provider failed, trying next.", "provider", g.Name(), "error", err)
	}
	return Response{}, errors.Join(errs...)
}

var _ Generator = (*Chain)(nil)

// Backoff waits for d or until ctx is done, whichever comes first.
func Backoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
