package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/store"
	"github.com/Lllllllleong/financialentityflow/internal/textextract"
)

// IntakeConfig holds all configuration for the intake function.
type IntakeConfig struct {
	ProjectID        string
	Store            StoreConfig
	WorkflowID       string
	WorkflowLocation string
}

// IntakeFunction registers uploaded files and hands them to the workflow.
type IntakeFunction struct {
	storageClient    *storage.Client
	executionsClient *executions.Client
	docs             store.DocumentStore
	closers          []func() error
	config           IntakeConfig

	// startWorkflow launches processing for a document and returns the execution name.
	startWorkflow func(ctx context.Context, documentID string) (string, error)
}

// GCSEvent is the payload of a storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func loadIntakeConfig() (*IntakeConfig, error) {
	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}
	config := &IntakeConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		Store:            storeCfg,
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
	if config.WorkflowID != "" && config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set to trigger workflows")
	}
	return config, nil
}

// NewIntake creates a new IntakeFunction instance from the environment.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	config, err := loadIntakeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	f := &IntakeFunction{
		storageClient: storageClient,
		docs:          st,
		closers:       []func() error{st.Close, storageClient.Close},
		config:        *config,
	}
	if config.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		f.executionsClient = executionsClient
		f.closers = append(f.closers, executionsClient.Close)
		f.startWorkflow = f.triggerWorkflow
	}
	slog.Info("Intake logic initialized.", "workflowId", config.WorkflowID, "backend", config.Store.Backend)
	return f, nil
}

// NewIntakeWith builds an intake over an existing store; start may be nil to skip the hand-off.
func NewIntakeWith(docs store.DocumentStore, start func(ctx context.Context, documentID string) (string, error)) *IntakeFunction {
	return &IntakeFunction{docs: docs, startWorkflow: start}
}

// Process downloads the uploaded object and ingests it.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) (*models.IntakeResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	data, err := gcp.ReadObject(ctx, f.storageClient, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source object", "error", err)
		return nil, err
	}
	return f.Ingest(ctx, e.Name, data)
}

// Ingest registers a file: duplicates by content hash are skipped, text is extracted
// and stored, and the document is handed to the workflow as uploaded.
func (f *IntakeFunction) Ingest(ctx context.Context, name string, data []byte) (*models.IntakeResponse, error) {
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])
	logCtx := slog.With("gcsObject", name, "fileHash", fileHash)

	existing, found, err := f.docs.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}
	if found {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existing.ID)
		return &models.IntakeResponse{DocumentID: existing.ID, Duplicate: true, PageCount: existing.PageCount}, nil
	}

	extracted, extractErr := textextract.FromBytes(name, data)
	doc := models.Document{FileHash: fileHash, OriginalFilename: name, Status: models.StatusUploaded, PageCount: extracted.Pages}
	if extractErr != nil {
		doc.Status = models.StatusFailed
		doc.ErrorDetails = fmt.Sprintf("failed to extract text: %v", extractErr)
	}
	docID, err := f.docs.CreateDocument(ctx, doc)
	if err != nil {
		logCtx.Error("Failed to create initial document", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("documentId", docID)
	if extractErr != nil {
		logCtx.Error("Failed to extract text", "error", extractErr)
		return nil, fmt.Errorf("failed to extract text: %w", extractErr)
	}
	logCtx.Info("Created document record.", "pageCount", extracted.Pages)

	uri, err := f.docs.SaveDocumentText(ctx, docID, extracted.Text)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "failed to save document text", err)
	}
	logCtx.Info("Document text saved.", "textUri", uri)

	if f.startWorkflow != nil {
		execution, err := f.startWorkflow(ctx, docID)
		if err != nil {
			return nil, f.handleError(ctx, logCtx, docID, "failed to trigger workflow execution", err)
		}
		logCtx.Info("Hand-off to workflow complete.", "execution", execution)
	}
	return &models.IntakeResponse{DocumentID: docID, PageCount: extracted.Pages}, nil
}

func (f *IntakeFunction) triggerWorkflow(ctx context.Context, documentID string) (string, error) {
	payloadBytes, err := json.Marshal(map[string]interface{}{"documentId": documentID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	execution, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return "", err
	}
	return execution.GetName(), nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, docID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	details := fmt.Sprintf("%s: %v", message, originalErr)
	if err := f.docs.UpdateStatus(context.WithoutCancel(ctx), docID, models.StatusFailed, details); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to failed after an intake error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func (f *IntakeFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
