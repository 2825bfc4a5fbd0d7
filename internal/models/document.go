package models

import (
	"time"

	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/solvency"
)

// DocumentRef points at one uploaded document of an application.
type DocumentRef struct {
	Type            string `json:"Type" firestore:"Type"`
	StorageLocation string `json:"StorageLocation" firestore:"StorageLocation"`
}

// Record is the result-store entry for one application, keyed by DocumentId.
// Status carries the pipeline state until a decision is written, after which
// it holds the decision itself.
type Record struct {
	DocumentID     string            `json:"DocumentId" firestore:"DocumentId"`
	Status         pipeline.Status   `json:"Status" firestore:"Status"`
	Ratio          string            `json:"Ratio,omitempty" firestore:"Ratio,omitempty"`
	DecisionReason string            `json:"DecisionReason,omitempty" firestore:"DecisionReason,omitempty"`
	RuleDecision   string            `json:"RuleDecision,omitempty" firestore:"RuleDecision,omitempty"`
	Metrics        *solvency.Metrics `json:"Metrics,omitempty" firestore:"Metrics,omitempty"`
	Documents      []DocumentRef     `json:"Documents,omitempty" firestore:"Documents,omitempty"`
	ExecutionID    string            `json:"ExecutionId,omitempty" firestore:"ExecutionId,omitempty"`
	ErrorDetails   string            `json:"ErrorDetails,omitempty" firestore:"ErrorDetails,omitempty"`
	Timestamp      time.Time         `json:"Timestamp" firestore:"Timestamp"`
}

// FormField is one key/value pair read off a document.
type FormField struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Table is a table read off a document, one slice of cells per row.
type Table struct {
	Title string     `json:"Title,omitempty"`
	Rows  [][]string `json:"Rows"`
}

// AnalysisResult is the OCR output for a single document.
type AnalysisResult struct {
	Type            string      `json:"Type"`
	StorageLocation string      `json:"StorageLocation"`
	PageCount       int         `json:"PageCount,omitempty"`
	Forms           []FormField `json:"Forms"`
	Tables          []Table     `json:"Tables"`
}
