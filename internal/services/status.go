package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/solvencyflow/internal/gcp"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// RecordReader is the read side of the result store.
type RecordReader interface {
	Get(ctx context.Context, documentID string) (*models.Record, error)
	ListByStatus(ctx context.Context, st pipeline.Status, limit int) ([]models.Record, error)
}

// StatusFunction answers queries about applications.
type StatusFunction struct {
	reader RecordReader
}

// NewStatus creates a StatusFunction reading from Firestore.
func NewStatus(ctx context.Context) (*StatusFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("failed to load configuration: PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	collection := gcp.ResultsCollection()
	slog.Info("Decision status initialized.", "collection", collection)
	return NewStatusFunction(store.New(firestoreClient, collection)), nil
}

func NewStatusFunction(reader RecordReader) *StatusFunction {
	return &StatusFunction{reader: reader}
}

// Get returns the record of one application.
func (f *StatusFunction) Get(ctx context.Context, documentID string) (*models.Record, error) {
	if documentID == "" {
		return nil, validationErrorf("documentId is required")
	}
	return f.reader.Get(ctx, documentID)
}

// List returns the most recent records in status. A non-positive limit
// selects the default; larger limits are capped.
func (f *StatusFunction) List(ctx context.Context, status string, limit int) ([]models.Record, error) {
	st, err := pipeline.ParseStatus(status)
	if err != nil {
		return nil, validationErrorf("%v", err)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	records, err := f.reader.ListByStatus(ctx, st, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}
