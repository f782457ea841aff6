package models

import "time"

// TaskType identifies the pipeline stage a record belongs to.
type TaskType string

const (
	TaskExtraction TaskType = "Extraction"
	TaskLinking    TaskType = "Linking"
)

// Metrics are the quality scores of a prediction set against a gold standard.
type Metrics struct {
	Precision float64 `json:"precision" firestore:"precision"`
	Recall    float64 `json:"recall" firestore:"recall"`
	F1Score   float64 `json:"f1Score" firestore:"f1Score"`
	Accuracy  float64 `json:"accuracy" firestore:"accuracy"`
}

// Match outcomes recorded in detailed evaluation results.
const (
	MatchMatched       = "matched"
	MatchMissed        = "missed"
	MatchFalsePositive = "false_positive"
)

// MatchResult classifies one gold item or one unmatched prediction.
// Index fields are -1 when the side is absent.
type MatchResult struct {
	Status          string  `json:"status" firestore:"status"`
	GoldIndex       int     `json:"goldIndex" firestore:"goldIndex"`
	PredictionIndex int     `json:"predictionIndex" firestore:"predictionIndex"`
	Gold            *Entity `json:"gold,omitempty" firestore:"gold,omitempty"`
	Prediction      *Entity `json:"prediction,omitempty" firestore:"prediction,omitempty"`
}

// ProcessingRecord is the immutable result of one stage execution for a document.
type ProcessingRecord struct {
	ID               string        `json:"id" firestore:"-"`
	DocumentID       string        `json:"documentId" firestore:"documentId"`
	ModelName        string        `json:"modelName" firestore:"modelName"`
	TaskType         TaskType      `json:"taskType" firestore:"taskType"`
	Predictions      []Entity      `json:"predictions" firestore:"predictions"`
	Metrics          Metrics       `json:"metrics" firestore:"metrics"`
	ProcessingTimeMs int64         `json:"processingTimeMs" firestore:"processingTimeMs"`
	SourceResultID   string        `json:"sourceResultId,omitempty" firestore:"sourceResultId,omitempty"`
	DetailedResults  []MatchResult `json:"detailedResults,omitempty" firestore:"detailedResults,omitempty"`
	CreatedAt        time.Time     `json:"createdAt" firestore:"createdAt"`
}
