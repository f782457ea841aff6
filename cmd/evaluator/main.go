package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/services"
)

var (
	evaluatorInstance *services.EvaluatorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleEvaluate", handleEvaluate)
}

func main() {}

// handleEvaluate scores a stored record against the gold standard.
func handleEvaluate(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		evaluatorInstance, initErr = services.NewEvaluator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Evaluator initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := evaluatorInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "documentId", req.DocumentID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
