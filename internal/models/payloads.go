package models

// These structs define the JSON payloads exchanged between the intake
// trigger, the Cloud Workflow and the worker Cloud Functions.

// IntakeRequest is the optional body of the intake HTTP trigger.
type IntakeRequest struct {
	Documents []DocumentRef `json:"Documents"`
}

// IntakeResponse is returned by the intake trigger once the workflow is running.
type IntakeResponse struct {
	Message     string `json:"message"`
	DocumentID  string `json:"DocumentId"`
	ExecutionID string `json:"ExecutionId,omitempty"`
}

// WorkflowArgument is the argument of a pipeline execution and also the
// input of the OCR step.
type WorkflowArgument struct {
	DocumentID string        `json:"DocumentId"`
	Documents  []DocumentRef `json:"Documents"`
}

// OCRRequest is the input for the ocr-processor function.
type OCRRequest = WorkflowArgument

// OCRResponse is the output of the ocr-processor function. AnalysisRawResult
// is keyed by document type.
type OCRResponse struct {
	DocumentID        string                    `json:"DocumentId"`
	AnalysisStatus    string                    `json:"AnalysisStatus"`
	AnalysisRawResult map[string]AnalysisResult `json:"AnalysisRawResult"`
}

// DecisionRequest is the input for the final-decision function.
type DecisionRequest = OCRResponse

// DecisionResponse is the output of the final-decision function. Persisted is
// false when the record could not be written to the result store.
type DecisionResponse struct {
	DocumentID string `json:"DocumentId"`
	Decision   string `json:"Decision"`
	Ratio      string `json:"Ratio"`
	Reasoning  string `json:"Reasoning"`
	Persisted  bool   `json:"Persisted"`
}

// ErrorResponse is the JSON body of a failed HTTP call.
type ErrorResponse struct {
	Error string `json:"error"`
}

const AnalysisStatusCompleted = "OCR_COMPLETED"
