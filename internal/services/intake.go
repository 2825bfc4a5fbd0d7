package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Lllllllleong/solvencyflow/internal/gcp"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/objectstore"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

// IntakeConfig holds all configuration for the intake trigger.
type IntakeConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
	CollectionName   string
	DefaultDocuments []models.DocumentRef
}

// IntakeStore is the part of the result store the intake trigger writes.
type IntakeStore interface {
	CreateInitial(ctx context.Context, rec models.Record) error
	SetExecution(ctx context.Context, documentID, executionID string) error
	MarkFailed(ctx context.Context, documentID, details string) error
}

// WorkflowStarter starts one pipeline execution per application.
type WorkflowStarter interface {
	StartExecution(ctx context.Context, documentID string, argument any) (string, error)
}

// IntakeFunction holds the dependencies of the intake trigger.
type IntakeFunction struct {
	store     IntakeStore
	workflows WorkflowStarter
	clock     Clock
	newID     func() string
	config    IntakeConfig
}

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// loadIntakeConfig loads and validates all necessary environment variables for this service.
func loadIntakeConfig() (*IntakeConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	workflowID := gcp.GetEnv("WORKFLOW_ID", "")
	if workflowID == "" {
		return nil, fmt.Errorf("WORKFLOW_ID environment variable must be set")
	}
	defaults, err := ParseDocumentList(gcp.GetEnv("DEFAULT_DOCUMENTS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_DOCUMENTS: %w", err)
	}

	return &IntakeConfig{
		ProjectID:        projectID,
		WorkflowID:       workflowID,
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		CollectionName:   gcp.ResultsCollection(),
		DefaultDocuments: defaults,
	}, nil
}

// NewIntake creates an IntakeFunction wired to Firestore and Cloud Workflows.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	config, err := loadIntakeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	workflowClient, err := gcp.NewWorkflowClient(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow client: %w", err)
	}

	f := NewIntakeFunction(*config, store.New(firestoreClient, config.CollectionName), workflowClient, SystemClock{})
	slog.Info("Intake trigger initialized.", "workflowId", config.WorkflowID, "defaultDocuments", len(config.DefaultDocuments))
	return f, nil
}

// NewIntakeFunction assembles an IntakeFunction from explicit dependencies.
func NewIntakeFunction(config IntakeConfig, st IntakeStore, workflows WorkflowStarter, clock Clock) *IntakeFunction {
	return &IntakeFunction{
		store:     st,
		workflows: workflows,
		clock:     clock,
		newID:     uuid.NewString,
		config:    config,
	}
}

// Process handles an HTTP intake request. Documents in the request take
// precedence over the configured defaults.
func (f *IntakeFunction) Process(ctx context.Context, req *models.IntakeRequest) (*models.IntakeResponse, error) {
	docs := f.config.DefaultDocuments
	if req != nil && len(req.Documents) > 0 {
		docs = req.Documents
	}
	return f.start(ctx, docs)
}

// ProcessUpload handles a storage upload event: the uploaded object becomes
// the single document of a new application.
func (f *IntakeFunction) ProcessUpload(ctx context.Context, e GCSEvent) (*models.IntakeResponse, error) {
	if e.Bucket == "" || e.Name == "" || strings.HasSuffix(e.Name, "/") {
		return nil, validationErrorf("upload event must name a bucket and an object, got bucket=%q name=%q", e.Bucket, e.Name)
	}
	if !IsAnalyzableUpload(e.ContentType, e.Name) {
		return nil, validationErrorf("object %q with content type %q is not a PDF or an image", e.Name, e.ContentType)
	}
	doc := models.DocumentRef{
		Type:            DocumentTypeFromObject(e.Name),
		StorageLocation: fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
	}
	return f.start(ctx, []models.DocumentRef{doc})
}

var analyzableExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".webp": true,
}

// IsAnalyzableUpload reports whether an uploaded object is a PDF or an
// image. The content type decides; the extension is used only when the
// event carries none. Archived analysis results (JSON) are never accepted,
// so writing them back to an upload bucket cannot start a new application.
func IsAnalyzableUpload(contentType, name string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return analyzableExtensions[strings.ToLower(path.Ext(name))]
	}
	return mediaType == "application/pdf" || strings.HasPrefix(mediaType, "image/")
}

func (f *IntakeFunction) start(ctx context.Context, docs []models.DocumentRef) (*models.IntakeResponse, error) {
	if err := validateDocuments(docs); err != nil {
		slog.Warn("Rejected intake request.", "error", err)
		return nil, err
	}

	documentID := f.newID()
	logCtx := slog.With("documentId", documentID)
	logCtx.Info("Starting new solvency application.", "documentCount", len(docs))

	rec := models.Record{
		DocumentID: documentID,
		Status:     pipeline.StatusInitiated,
		Documents:  docs,
		Timestamp:  f.clock.Now(),
	}
	if err := f.store.CreateInitial(ctx, rec); err != nil {
		logCtx.Error("Failed to create initial record", "error", err)
		return nil, fmt.Errorf("failed to create initial record: %w", err)
	}

	arg := models.WorkflowArgument{DocumentID: documentID, Documents: docs}
	executionID, err := f.workflows.StartExecution(ctx, documentID, arg)
	if err != nil {
		return nil, handleError(ctx, logCtx, f.store, documentID, "failed to trigger workflow execution", err)
	}
	logCtx = logCtx.With("executionId", executionID)

	if err := f.store.SetExecution(ctx, documentID, executionID); err != nil {
		logCtx.Warn("Failed to record execution on the application record.", "error", err)
	}

	logCtx.Info("Hand-off to workflow complete.")
	return &models.IntakeResponse{
		Message:     "Workflow execution started",
		DocumentID:  documentID,
		ExecutionID: executionID,
	}, nil
}

func validateDocuments(docs []models.DocumentRef) error {
	if len(docs) == 0 {
		return validationErrorf("no documents supplied and no default documents configured")
	}
	for i, d := range docs {
		if strings.TrimSpace(d.Type) == "" {
			return validationErrorf("document %d has no Type", i)
		}
		if _, err := objectstore.ParseLocation(d.StorageLocation); err != nil {
			return validationErrorf("document %d: %v", i, err)
		}
	}
	return nil
}

// ParseDocumentList parses "Type=uri,Type=uri" into document references.
func ParseDocumentList(s string) ([]models.DocumentRef, error) {
	var docs []models.DocumentRef
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		typ, uri, ok := strings.Cut(entry, "=")
		typ, uri = strings.TrimSpace(typ), strings.TrimSpace(uri)
		if !ok || typ == "" || uri == "" {
			return nil, fmt.Errorf("entry %q must have the form Type=uri", entry)
		}
		if _, err := objectstore.ParseLocation(uri); err != nil {
			return nil, err
		}
		docs = append(docs, models.DocumentRef{Type: typ, StorageLocation: uri})
	}
	return docs, nil
}

// DocumentTypeFromObject derives the document type from the object's
// top-level folder, e.g. "nomina/2025-10.pdf" -> "Nomina".
func DocumentTypeFromObject(name string) string {
	dir, _, found := strings.Cut(name, "/")
	if !found || dir == "" {
		return "Document"
	}
	dir = strings.ToLower(path.Clean(dir))
	r, size := utf8.DecodeRuneInString(dir)
	return string(unicode.ToUpper(r)) + dir[size:]
}
