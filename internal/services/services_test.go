package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/financialentityflow/internal/evaluation"
	"github.com/Lllllllleong/financialentityflow/internal/extraction"
	"github.com/Lllllllleong/financialentityflow/internal/linking"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

const sampleText = "Revenue was $1,234 million for FY2023.\nNet income reached $200 million.\fTotal assets were $5,000 million and gross margin was 41%."

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func newTestOrchestrator(t *testing.T, st *store.SQLite) *Orchestrator {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	ext := extraction.DefaultConfig()
	ext.OracleEnabled = false
	link := linking.DefaultConfig()
	link.OracleEnabled = false
	return NewOrchestrator(st, st, tax, extraction.NewEngine(nil, ext), linking.NewEngine(nil, link), nil)
}

func seedDocument(t *testing.T, st *store.SQLite, text string) string {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreateDocument(ctx, models.Document{FileHash: fmt.Sprintf("hash-%d", time.Now().UnixNano()), OriginalFilename: "10k.txt"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if text != "" {
		if _, err := st.SaveDocumentText(ctx, id, text); err != nil {
			t.Fatalf("SaveDocumentText: %v", err)
		}
	}
	return id
}

func TestOrchestratorRun(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	orch := newTestOrchestrator(t, st)
	id := seedDocument(t, st, sampleText)

	res, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id, ExecutionID: "exec-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DocumentStatus != models.StatusCompleted || res.EntityCount == 0 {
		t.Fatalf("unexpected response %+v", res)
	}
	if res.LinkedCount == 0 {
		t.Errorf("expected the reduced table to link at least one entity")
	}

	doc, err := st.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != models.StatusCompleted || doc.WorkflowExecutionID != "exec-1" {
		t.Errorf("unexpected document %+v", doc)
	}

	records, err := st.GetResultsFor(ctx, id)
	if err != nil {
		t.Fatalf("GetResultsFor: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	ext, ok := store.LatestResult(records, models.TaskExtraction)
	if !ok || ext.ID != res.ExtractionResultID || ext.ModelName != extraction.SourceRules {
		t.Errorf("unexpected extraction record %+v", ext)
	}
	link, ok := store.LatestResult(records, models.TaskLinking)
	if !ok || link.ID != res.LinkingResultID || len(link.Predictions) != res.EntityCount {
		t.Errorf("unexpected linking record %+v", link)
	}
	for _, e := range ext.Predictions {
		if e.XbrlTag != nil {
			t.Errorf("extraction record should carry untagged entities, got %+v", e)
		}
	}

	if _, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("rerun of a completed document should be rejected, got %v", err)
	}
}

func TestOrchestratorRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	orch := newTestOrchestrator(t, st)
	id := seedDocument(t, st, sampleText)

	if err := st.ClaimForProcessing(ctx, id, "exec-other"); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	_, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id, ExecutionID: "exec-2"})
	if !errors.Is(err, store.ErrAlreadyProcessing) {
		t.Fatalf("got %v, want ErrAlreadyProcessing", err)
	}
	if got := HTTPStatus(err); got != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want 409", got)
	}
	doc, _ := st.GetDocument(ctx, id)
	if doc.Status != models.StatusProcessing || doc.WorkflowExecutionID != "exec-other" {
		t.Errorf("a rejected run must not touch the document, got %+v", doc)
	}
	records, _ := st.GetResultsFor(ctx, id)
	if len(records) != 0 {
		t.Errorf("a rejected run must not write records, got %d", len(records))
	}
}

func TestOrchestratorFailureAndResubmit(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	orch := newTestOrchestrator(t, st)
	id := seedDocument(t, st, "")

	if _, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id}); !errors.Is(err, store.ErrDocumentNotFound) {
		t.Fatalf("missing text should surface as not found, got %v", err)
	}
	doc, _ := st.GetDocument(ctx, id)
	if doc.Status != models.StatusFailed || !strings.Contains(doc.ErrorDetails, "failed to get document text") {
		t.Fatalf("document should be failed with details, got %+v", doc)
	}

	if _, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("failed document needs resubmission, got %v", err)
	}

	if _, err := st.SaveDocumentText(ctx, id, sampleText); err != nil {
		t.Fatalf("SaveDocumentText: %v", err)
	}
	res, err := orch.Run(ctx, models.PipelineRequest{DocumentID: id, Resubmit: true})
	if err != nil {
		t.Fatalf("resubmitted run: %v", err)
	}
	if res.DocumentStatus != models.StatusCompleted {
		t.Errorf("got %s, want completed", res.DocumentStatus)
	}
	doc, _ = st.GetDocument(ctx, id)
	if doc.Status != models.StatusCompleted || doc.ErrorDetails != "" {
		t.Errorf("unexpected document after resubmit %+v", doc)
	}
}

func TestOrchestratorRequiresDocumentID(t *testing.T) {
	orch := newTestOrchestrator(t, openTestStore(t))
	_, err := orch.Run(context.Background(), models.PipelineRequest{})
	if HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("got %v, want a 400 error", err)
	}
}

type staticGold []models.Entity

func (g staticGold) GoldStandard(context.Context, string) ([]models.Entity, error) {
	return g, nil
}

func TestEvaluator(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := seedDocument(t, st, sampleText)
	res, err := newTestOrchestrator(t, st).Run(ctx, models.PipelineRequest{DocumentID: id})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	gold := extraction.RuleBased(sampleText)

	f := NewEvaluatorWith(st, staticGold(gold))
	out, err := f.Process(ctx, &models.EvaluationRequest{DocumentID: id, TaskType: models.TaskExtraction})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Metrics.F1Score != 1 || out.Metrics.Accuracy != 1 {
		t.Errorf("rule-based output against itself should score perfectly, got %+v", out.Metrics)
	}
	saved, err := st.GetResult(ctx, id, out.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if saved.SourceResultID != res.ExtractionResultID || len(saved.DetailedResults) != len(gold) {
		t.Errorf("unexpected evaluation record %+v", saved)
	}

	again, err := f.Process(ctx, &models.EvaluationRequest{DocumentID: id, TaskType: models.TaskExtraction})
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if again.Metrics != out.Metrics {
		t.Errorf("evaluation records must not become the latest prediction record: %+v vs %+v", again.Metrics, out.Metrics)
	}

	// An explicit gold set overrides the source.
	explicit, err := f.Process(ctx, &models.EvaluationRequest{DocumentID: id, TaskType: models.TaskExtraction, Gold: gold[:1]})
	if err != nil {
		t.Fatalf("explicit gold: %v", err)
	}
	if explicit.Metrics.Recall != 1 || explicit.Metrics.Precision >= 1 {
		t.Errorf("unexpected metrics with a single gold entity %+v", explicit.Metrics)
	}
}

func TestEvaluatorErrors(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := seedDocument(t, st, sampleText)
	res, err := newTestOrchestrator(t, st).Run(ctx, models.PipelineRequest{DocumentID: id})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	empty := seedDocument(t, st, sampleText)

	tests := []struct {
		name string
		gold store.GoldSource
		req  models.EvaluationRequest
		want int
	}{
		{"unknown task", staticGold{}, models.EvaluationRequest{DocumentID: id, TaskType: "Summarization"}, http.StatusBadRequest},
		{"missing document id", staticGold{}, models.EvaluationRequest{TaskType: models.TaskLinking}, http.StatusBadRequest},
		{"task mismatch", staticGold{}, models.EvaluationRequest{DocumentID: id, TaskType: models.TaskExtraction, ResultID: res.LinkingResultID}, http.StatusBadRequest},
		{"no records", staticGold{}, models.EvaluationRequest{DocumentID: empty, TaskType: models.TaskLinking}, http.StatusNotFound},
		{"unknown result", staticGold{}, models.EvaluationRequest{DocumentID: id, TaskType: models.TaskLinking, ResultID: "nope"}, http.StatusNotFound},
		{"no gold source", nil, models.EvaluationRequest{DocumentID: id, TaskType: models.TaskLinking}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluatorWith(st, tt.gold).Process(ctx, &tt.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := HTTPStatus(err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
}

func TestReaper(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	stuck := seedDocument(t, st, sampleText)
	idle := seedDocument(t, st, sampleText)
	if err := st.ClaimForProcessing(ctx, stuck, "exec-lost"); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}

	failed, err := NewReaperWith(st, time.Hour).Process(ctx)
	if err != nil || len(failed) != 0 {
		t.Fatalf("fresh run should survive, got %v %v", failed, err)
	}

	failed, err = NewReaperWith(st, -time.Minute).Process(ctx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(failed) != 1 || failed[0] != stuck {
		t.Fatalf("got %v, want [%s]", failed, stuck)
	}
	doc, _ := st.GetDocument(ctx, stuck)
	if doc.Status != models.StatusFailed || !strings.Contains(doc.ErrorDetails, "did not finish") {
		t.Errorf("unexpected stuck document %+v", doc)
	}
	doc, _ = st.GetDocument(ctx, idle)
	if doc.Status != models.StatusUploaded {
		t.Errorf("uploaded document should be untouched, got %s", doc.Status)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("wrap: %w", store.ErrDocumentNotFound), http.StatusNotFound},
		{store.ErrResultNotFound, http.StatusNotFound},
		{store.ErrGoldNotFound, http.StatusNotFound},
		{store.ErrAlreadyProcessing, http.StatusConflict},
		{store.ErrInvalidTransition, http.StatusConflict},
		{store.ErrRunInFlight, http.StatusConflict},
		{ErrInvalidRequest, http.StatusBadRequest},
		{evaluation.ErrInputMismatch, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	var started []string
	f := NewIntakeWith(st, func(_ context.Context, id string) (string, error) {
		started = append(started, id)
		return "executions/" + id, nil
	})

	res, err := f.Ingest(ctx, "q3.txt", []byte(sampleText))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Duplicate || res.PageCount != 2 {
		t.Errorf("unexpected response %+v", res)
	}
	doc, _ := st.GetDocument(ctx, res.DocumentID)
	if doc.Status != models.StatusUploaded || doc.PageCount != 2 || doc.FileHash == "" {
		t.Errorf("unexpected document %+v", doc)
	}
	text, err := st.GetDocumentText(ctx, res.DocumentID)
	if err != nil || text != sampleText {
		t.Errorf("GetDocumentText = %q, %v", text, err)
	}

	dup, err := f.Ingest(ctx, "copy.txt", []byte(sampleText))
	if err != nil {
		t.Fatalf("duplicate Ingest: %v", err)
	}
	if !dup.Duplicate || dup.DocumentID != res.DocumentID {
		t.Errorf("unexpected duplicate response %+v", dup)
	}
	if len(started) != 1 || started[0] != res.DocumentID {
		t.Errorf("workflow should start once, got %v", started)
	}
}

func TestIngestFailures(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	f := NewIntakeWith(st, func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	if _, err := f.Ingest(ctx, "q3.txt", []byte(sampleText)); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected workflow error, got %v", err)
	}
	doc, found, err := st.FindByHash(ctx, hashOf(sampleText))
	if err != nil || !found {
		t.Fatalf("FindByHash: %v %v", found, err)
	}
	if doc.Status != models.StatusFailed || !strings.Contains(doc.ErrorDetails, "workflow") {
		t.Errorf("unexpected document %+v", doc)
	}

	_, err = NewIntakeWith(st, nil).Ingest(ctx, "blob.bin", []byte{0x00, 0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
	doc, found, _ = st.FindByHash(ctx, hashOf("\x00\x01\x02\x03"))
	if !found || doc.Status != models.StatusFailed || !strings.Contains(doc.ErrorDetails, "unsupported") {
		t.Errorf("unsupported file should be recorded as failed, got %+v", doc)
	}
}

func TestRunLocal(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "annual.txt")
	if err := os.WriteFile(input, []byte(sampleText), 0o644); err != nil {
		t.Fatal(err)
	}
	gold, err := json.Marshal(extraction.RuleBased(sampleText))
	if err != nil {
		t.Fatal(err)
	}
	goldPath := filepath.Join(dir, "gold.json")
	if err := os.WriteFile(goldPath, gold, 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := RunLocal(context.Background(), LocalOptions{InputPath: input, GoldPath: goldPath, DBPath: filepath.Join(dir, "local.db")})
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if report.Document.Status != models.StatusCompleted || report.Pipeline.EntityCount == 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Evaluations) != 2 {
		t.Fatalf("got %d evaluations, want 2", len(report.Evaluations))
	}
	if report.Evaluations[0].Metrics.F1Score != 1 {
		t.Errorf("extraction F1 = %v, want 1", report.Evaluations[0].Metrics.F1Score)
	}

	if _, err := RunLocal(context.Background(), LocalOptions{InputPath: input, DBPath: filepath.Join(dir, "local.db")}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("rerun of a completed file should be rejected, got %v", err)
	}
}
