// Package evaluation scores predicted entities against a gold standard.
//
// For the linking task only tagged entities are scored: an untagged gold item is
// not something to find and an untagged prediction claims nothing.
package evaluation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// ErrInputMismatch is returned for task types the engine cannot score.
var ErrInputMismatch = errors.New("evaluation input mismatch")

// valueTolerance is the largest absolute difference still counted as the same value.
var valueTolerance = decimal.RequireFromString("0.01")

// Report is the outcome of one evaluation.
type Report struct {
	Metrics         models.Metrics
	TruePositives   int
	FalsePositives  int
	FalseNegatives  int
	DetailedResults []models.MatchResult
}

// matcher decides whether a prediction matches a gold item.
type matcher func(gold, pred models.Entity) bool

// scorer is the matching rule of a task and the filter selecting the entities it scores.
type scorer struct {
	match  matcher
	scored func(models.Entity) bool
}

// Evaluate classifies every gold item as matched or missed and every unmatched
// prediction as a false positive. Matching is one-to-one: each gold item, in
// order, takes the first unused prediction that matches it.
func Evaluate(task models.TaskType, predictions, gold []models.Entity) (Report, error) {
	sc, err := scorerFor(task)
	if err != nil {
		return Report{}, err
	}

	used := make([]bool, len(predictions))
	for j := range predictions {
		used[j] = !sc.scored(predictions[j])
	}
	var r Report
	goldSize := 0
	for gi := range gold {
		if !sc.scored(gold[gi]) {
			continue
		}
		goldSize++
		pi := -1
		for j := range predictions {
			if !used[j] && sc.match(gold[gi], predictions[j]) {
				pi = j
				break
			}
		}
		if pi < 0 {
			r.FalseNegatives++
			r.DetailedResults = append(r.DetailedResults, models.MatchResult{
				Status: models.MatchMissed, GoldIndex: gi, PredictionIndex: -1, Gold: &gold[gi],
			})
			continue
		}
		used[pi] = true
		r.TruePositives++
		r.DetailedResults = append(r.DetailedResults, models.MatchResult{
			Status: models.MatchMatched, GoldIndex: gi, PredictionIndex: pi, Gold: &gold[gi], Prediction: &predictions[pi],
		})
	}
	for j := range predictions {
		if used[j] {
			continue
		}
		r.FalsePositives++
		r.DetailedResults = append(r.DetailedResults, models.MatchResult{
			Status: models.MatchFalsePositive, GoldIndex: -1, PredictionIndex: j, Prediction: &predictions[j],
		})
	}
	r.Metrics = Compute(r.TruePositives, r.FalsePositives, r.FalseNegatives, goldSize)
	return r, nil
}

// Compute derives the metrics from raw counts. Any zero denominator yields 0.
func Compute(tp, fp, fn, goldSize int) models.Metrics {
	var m models.Metrics
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	if sum := m.Precision + m.Recall; sum > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / sum
	}
	m.Accuracy = ratio(tp, goldSize)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func scorerFor(task models.TaskType) (scorer, error) {
	switch task {
	case models.TaskExtraction:
		return scorer{match: extractionMatch, scored: func(models.Entity) bool { return true }}, nil
	case models.TaskLinking:
		return scorer{match: linkingMatch, scored: func(e models.Entity) bool { return e.Concept() != "" }}, nil
	default:
		return scorer{}, fmt.Errorf("%w: unknown task type %q", ErrInputMismatch, task)
	}
}

// extractionMatch requires the same type and values within valueTolerance. Both
// sides are normalized, so hand-written gold such as "Monetary"/"1,000" still matches.
func extractionMatch(gold, pred models.Entity) bool {
	if normalizeType(gold.Type) != normalizeType(pred.Type) {
		return false
	}
	g, err := parseValue(gold.Value)
	if err != nil {
		return false
	}
	p, err := parseValue(pred.Value)
	if err != nil {
		return false
	}
	return g.Sub(p).Abs().LessThan(valueTolerance)
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func parseValue(v string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
}

// linkingMatch compares concept ids.
func linkingMatch(gold, pred models.Entity) bool {
	return gold.Concept() == pred.Concept()
}

// CheckTask returns ErrInputMismatch for task types Evaluate cannot score.
func CheckTask(task models.TaskType) error {
	_, err := scorerFor(task)
	return err
}
