package models

import "time"

// DocumentStatus is the lifecycle state of a document. Only the orchestrator writes it.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// CanTransition reports whether a document may move from one status to another.
// Terminal states never revert; a failed document re-enters the lifecycle at uploaded.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusUploaded:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusUploaded
	}
	return false
}

// Document represents the main record for a financial document in Firestore.
// It tracks the pipeline status and where the extracted text lives.
type Document struct {
	ID                  string         `firestore:"-" json:"id"`
	FileHash            string         `firestore:"fileHash,omitempty" json:"fileHash,omitempty"`
	OriginalFilename    string         `firestore:"originalFilename,omitempty" json:"originalFilename,omitempty"`
	Status              DocumentStatus `firestore:"status,omitempty" json:"status"`
	ErrorDetails        string         `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	PageCount           int            `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	TextGCSUri          string         `firestore:"textGcsUri,omitempty" json:"textGcsUri,omitempty"`
	WorkflowExecutionID string         `firestore:"workflowExecutionId,omitempty" json:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time      `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt           time.Time      `firestore:"updatedAt,omitempty" json:"updatedAt"`
}
