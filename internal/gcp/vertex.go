package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/solvencyflow/internal/objectstore"
)

const DefaultModel = "gemini-1.5-pro"

// --- Document Analysis (OCR) Model Prompts ---
const OCRSystemPrompt = "You are a document analysis engine for loan applications. You read payslips, bank statements and similar financial documents and extract their form fields and tables exactly as printed. You must output your response as a single valid JSON object."
const OCRUserPrompt = `Analyze the provided document and extract its structured content.

Follow these rules precisely:
1.  Forms: every labelled value on the document (for example "Líquid a percebre: 2.100,00 €") becomes an object with "key" set to the label and "value" set to the value, both copied verbatim.
2.  Tables: every table becomes an object with an optional "title" and "rows", an array of rows where each row is an array of cell strings in reading order. Include the header row. Copy amounts verbatim, keeping signs, separators and currency symbols.
3.  Do not compute, translate, normalise or summarise anything.
4.  The output MUST be a single JSON object with exactly two keys, "forms" and "tables". Do not include any text before or after it.

Example output format:
{
  "forms": [{"key": "Empresa", "value": "ACME SL"}],
  "tables": [{"title": "Moviments", "rows": [["Data", "Concepte", "Import"], ["01/10/2025", "Quota préstec", "-650,00"]]}]
}`

// VertexOptions selects the models used by a VertexClient.
type VertexOptions struct {
	OCRModel      string
	DecisionModel string
	// DecisionInstruction is the system instruction of the decision model.
	DecisionInstruction string
	// DecisionMaxTokens caps the decision reply; zero leaves the model default.
	DecisionMaxTokens int32
}

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	OCRModel      *genai.GenerativeModel
	DecisionModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string, opts VertexOptions) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if opts.OCRModel == "" {
		opts.OCRModel = DefaultModel
	}
	if opts.DecisionModel == "" {
		opts.DecisionModel = DefaultModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the document analysis model ---
	ocrModel := baseClient.GenerativeModel(opts.OCRModel)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	// --- Configure the decision model ---
	decisionModel := baseClient.GenerativeModel(opts.DecisionModel)
	if opts.DecisionInstruction != "" {
		decisionModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(opts.DecisionInstruction)},
		}
	}
	decisionModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	if opts.DecisionMaxTokens > 0 {
		decisionModel.GenerationConfig.MaxOutputTokens = genai.Ptr(opts.DecisionMaxTokens)
	}

	return &VertexClient{
		OCRModel:      ocrModel,
		DecisionModel: decisionModel,
		baseClient:    baseClient,
	}, nil
}

// AnalyzeDocument asks the OCR model for the forms and tables of obj.
// Cloud Storage objects are referenced by URI; anything else is sent inline.
func (c *VertexClient) AnalyzeDocument(ctx context.Context, obj *objectstore.Object) (string, error) {
	var filePart genai.Part
	if obj.Location.Scheme == objectstore.SchemeGCS {
		filePart = genai.FileData{MIMEType: obj.ContentType, FileURI: obj.Location.String()}
	} else {
		filePart = genai.Blob{MIMEType: obj.ContentType, Data: obj.Data}
	}

	resp, err := c.OCRModel.GenerateContent(ctx, filePart, genai.Text(OCRUserPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to analyze document with gemini: %w", err)
	}
	return responseText(resp), nil
}

// Complete sends prompt to the decision model and returns its text reply.
func (c *VertexClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.DecisionModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate decision from gemini: %w", err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
