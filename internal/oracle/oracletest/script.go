// Package oracletest provides scripted oracle providers for tests.
package oracletest

import (
	"context"
	"errors"
	"sync"

	"github.com/Lllllllleong/financialentityflow/internal/oracle"
)

// Step is one scripted outcome.
type Step struct {
	Text string
	Err  error
}

// Script replays steps in order; once exhausted it repeats the last step.
// Respond, when set, takes precedence and computes the answer from the prompt.
type Script struct {
	Model   string
	Steps   []Step
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (s *Script) Name() string { return "script:" + s.model() }

func (s *Script) model() string {
	if s.Model == "" {
		return "test"
	}
	return s.Model
}

// Generate implements oracle.Generator.
func (s *Script) Generate(ctx context.Context, prompt string, _ oracle.GenerationConfig) (oracle.Response, error) {
	if err := ctx.Err(); err != nil {
		return oracle.Response{}, err
	}
	s.mu.Lock()
	n := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.Respond != nil {
		text, err := s.Respond(prompt)
		if err != nil {
			return oracle.Response{}, err
		}
		return oracle.Response{Text: text, Model: s.model()}, nil
	}
	if len(s.Steps) == 0 {
		return oracle.Response{}, errors.New("oracletest: empty script")
	}
	step := s.Steps[min(n, len(s.Steps)-1)]
	if step.Err != nil {
		return oracle.Response{}, step.Err
	}
	return oracle.Response{Text: step.Text, Model: s.model()}, nil
}

// Calls is the number of Generate invocations so far.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of every prompt received.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

var _ oracle.Generator = (*Script)(nil)
