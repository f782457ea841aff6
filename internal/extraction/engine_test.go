package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/oracle"
	"github.com/Lllllllleong/financialentityflow/internal/oracle/oracletest"
)

const sampleText = "Revenue was $1,234.56 and grew 12.5% to 1,000,000 shares outstanding"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffUnit = 0
	cfg.CallTimeout = time.Second
	return cfg
}

func TestExtractOracleSuccess(t *testing.T) {
	gen := &oracletest.Script{Model: "gemini-test", Steps: []oracletest.Step{{Text: "```json\n" + `{"entities":[
		{"value":"1,234.56","type":"Monetary","description":"Revenue","unit":"USD","period":"FY2024"},
		{"value":12.5,"type":"percent","description":"growth","unit":"%","period":null,"confidence":0.7},
		{"value":"n/a","type":"count","description":"bad","unit":"","confidence":0.5}
	]}` + "\n```"}}}

	res := NewEngine(gen, testConfig()).Extract(context.Background(), sampleText)
	if res.Source != SourceOracle || res.Model != "gemini-test" || res.Attempts != 1 {
		t.Fatalf("unexpected result meta %+v", res)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("invalid entity should be dropped, got %+v", res.Entities)
	}
	first := res.Entities[0]
	if first.Value != "1234.56" || first.Type != models.TypeMonetary || first.Confidence != DefaultConfidence {
		t.Errorf("first entity not normalized: %+v", first)
	}
	if first.Period == nil || *first.Period != "FY2024" {
		t.Errorf("period lost: %+v", first.Period)
	}
	second := res.Entities[1]
	if second.Value != "12.5" || second.Type != models.TypePercentage || second.Confidence != 0.7 || second.Period != nil {
		t.Errorf("second entity not normalized: %+v", second)
	}
}

func TestExtractMissingEntitiesFallsBack(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"facts":[]}`}}}
	cfg := testConfig()
	cfg.Retries = 2

	res := NewEngine(gen, cfg).Extract(context.Background(), sampleText)
	if gen.Calls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", gen.Calls())
	}
	if res.Source != SourceRules || len(res.Entities) != 3 {
		t.Fatalf("expected rule-based fallback with 3 entities, got %+v", res)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d", res.Attempts)
	}
}

func TestExtractRecoversOnRetry(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{
		{Err: fmt.Errorf("boom: %w", oracle.ErrTransport)},
		{Text: `{"entities":[{"value":"7","type":"count","description":"seven items","unit":"unknown","confidence":1}]}`},
	}}
	res := NewEngine(gen, testConfig()).Extract(context.Background(), "seven items: 7")
	if res.Source != SourceOracle || res.Attempts != 2 || len(res.Entities) != 1 {
		t.Fatalf("expected oracle success on second attempt, got %+v", res)
	}
}

func TestExtractClampsConfidence(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"entities":[
		{"value":"100","type":"monetary","description":"revenue","unit":"USD","confidence":95},
		{"value":"5","type":"count","description":"stores","unit":"unknown","confidence":-2}
	]}`}}}
	res := NewEngine(gen, testConfig()).Extract(context.Background(), "revenue 100 from 5 stores")
	if res.Source != SourceOracle || len(res.Entities) != 2 {
		t.Fatalf("expected both oracle entities, got %+v", res)
	}
	if res.Entities[0].Confidence != 1 || res.Entities[1].Confidence != 0 {
		t.Errorf("confidences not clamped: %v, %v", res.Entities[0].Confidence, res.Entities[1].Confidence)
	}
}

func TestExtractAllInvalidEntitiesFallsBack(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"entities":[
		{"value":"n/a","type":"monetary","description":"revenue","unit":"USD"},
		{"value":"12","type":"monetary","description":"","unit":"USD"}
	]}`}}}
	cfg := testConfig()
	cfg.Retries = 2

	res := NewEngine(gen, cfg).Extract(context.Background(), sampleText)
	if gen.Calls() != 2 {
		t.Fatalf("an answer with no valid entity should be retried, got %d calls", gen.Calls())
	}
	if res.Source != SourceRules || len(res.Entities) != 3 {
		t.Fatalf("expected rule-based fallback, got %+v", res)
	}
}

func TestExtractEmptyEntitiesIsSuccess(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"entities":[]}`}}}
	res := NewEngine(gen, testConfig()).Extract(context.Background(), "no numbers here")
	if res.Source != SourceOracle || len(res.Entities) != 0 || gen.Calls() != 1 {
		t.Fatalf("an empty entities array is a valid answer, got %+v after %d calls", res, gen.Calls())
	}
}

func TestExtractUnavailableIsNotRetried(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Err: oracle.ErrUnavailable}}}
	cfg := testConfig()
	cfg.Retries = 5
	res := NewEngine(gen, cfg).Extract(context.Background(), sampleText)
	if gen.Calls() != 1 || res.Source != SourceRules {
		t.Fatalf("unavailable oracle should fall back immediately: calls=%d res=%+v", gen.Calls(), res)
	}
}

func TestExtractOracleDisabled(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"entities":[]}`}}}
	cfg := testConfig()
	cfg.OracleEnabled = false
	res := NewEngine(gen, cfg).Extract(context.Background(), sampleText)
	if gen.Calls() != 0 {
		t.Fatalf("disabled oracle must not be called")
	}
	if res.Source != SourceRules || len(res.Entities) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	res = NewEngine(nil, testConfig()).Extract(context.Background(), sampleText)
	if res.Source != SourceRules {
		t.Fatalf("nil oracle should behave as disabled, got %+v", res)
	}
}

type blocking struct{ calls int }

func (b *blocking) Name() string { return "blocking" }

func (b *blocking) Generate(ctx context.Context, _ string, _ oracle.GenerationConfig) (oracle.Response, error) {
	b.calls++
	<-ctx.Done()
	return oracle.Response{}, fmt.Errorf("%w: %w", oracle.ErrTimeout, ctx.Err())
}

func TestExtractCallTimeout(t *testing.T) {
	gen := &blocking{}
	cfg := testConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	start := time.Now()
	res := NewEngine(gen, cfg).Extract(context.Background(), sampleText)
	if time.Since(start) > 5*time.Second {
		t.Fatal("extraction hung on a blocking oracle")
	}
	if gen.calls != cfg.Retries || res.Source != SourceRules {
		t.Fatalf("timeouts should be retried then fall back: calls=%d res=%+v", gen.calls, res)
	}
}

func TestExtractTruncatesPrompt(t *testing.T) {
	gen := &oracletest.Script{Steps: []oracletest.Step{{Text: `{"entities":[]}`}}}
	cfg := testConfig()
	cfg.MaxPromptChars = 12
	text := "Revenue was $1,234.56 beyond the boundary"
	res := NewEngine(gen, cfg).Extract(context.Background(), text)
	if res.Source != SourceOracle || len(res.Entities) != 0 {
		t.Fatalf("empty entities array is a valid answer, got %+v", res)
	}
	prompt := gen.Prompts()[0]
	if !strings.Contains(prompt, "<<<\nRevenue was \n>>>") {
		t.Fatalf("prompt not truncated at 12 characters:\n%s", prompt)
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"valid", `{"entities":[]}`, true},
		{"fenced", "```json\n{\"entities\":[{\"value\":\"1\"}]}\n```", true},
		{"truncated", `{"entities":[{"value":"1"`, false},
		{"not json", `entities: none}`, false},
		{"missing key", `{"items":[]}`, false},
		{"null entities", `{"entities":null}`, false},
		{"top-level array", `[{"value":"1"}]`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseResponse(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrExtractionOracle) || !errors.Is(err, oracle.ErrMalformedResponse) {
					t.Fatalf("want malformed extraction error, got %v", err)
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if truncate("héllo", 2) != "hé" {
		t.Fatalf("truncate should count characters, got %q", truncate("héllo", 2))
	}
	if truncate("abc", 0) != "abc" || truncate("abc", 10) != "abc" {
		t.Fatal("non-positive or large limits must not truncate")
	}
}
