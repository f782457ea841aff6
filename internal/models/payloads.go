package models

// These structs define the JSON payloads for HTTP requests and responses
// between the Cloud Workflow and the worker Cloud Functions.

// PipelineRequest is the input for the entity-pipeline function.
type PipelineRequest struct {
	DocumentID  string `json:"documentId"`
	ExecutionID string `json:"executionId"`
	// Resubmit moves a failed document back to uploaded before running.
	Resubmit bool `json:"resubmit,omitempty"`
}

// PipelineResponse is the output of the entity-pipeline function.
type PipelineResponse struct {
	Status             string         `json:"status"`
	DocumentStatus     DocumentStatus `json:"documentStatus"`
	EntityCount        int            `json:"entityCount"`
	LinkedCount        int            `json:"linkedCount"`
	ExtractionResultID string         `json:"extractionResultId"`
	LinkingResultID    string         `json:"linkingResultId"`
	Entities           []Entity       `json:"entities,omitempty"`
}

// EvaluationRequest is the input for the evaluator function.
// Gold overrides the stored gold sample; ResultID selects a specific record,
// otherwise the latest record of TaskType is evaluated.
type EvaluationRequest struct {
	DocumentID  string   `json:"documentId"`
	TaskType    TaskType `json:"taskType"`
	ResultID    string   `json:"resultId,omitempty"`
	Gold        []Entity `json:"gold,omitempty"`
	ExecutionID string   `json:"executionId"`
}

// EvaluationResponse is the output of the evaluator function.
type EvaluationResponse struct {
	Status          string        `json:"status"`
	ResultID        string        `json:"resultId"`
	Metrics         Metrics       `json:"metrics"`
	DetailedResults []MatchResult `json:"detailedResults"`
}

// IntakeResponse summarises what the intake function did with an uploaded object.
type IntakeResponse struct {
	DocumentID string `json:"documentId"`
	Duplicate  bool   `json:"duplicate"`
	PageCount  int    `json:"pageCount"`
}
