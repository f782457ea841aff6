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
	pipelineInstance *services.PipelineFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleProcessDocument", handleProcessDocument)
}

func main() {}

// handleProcessDocument runs extraction and linking for the document named in the request.
func handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		pipelineInstance, initErr = services.NewPipeline(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Pipeline initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := pipelineInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"documentId", req.DocumentID,
			"executionId", req.ExecutionID,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
