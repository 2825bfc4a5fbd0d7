// Package store persists application records in Firestore, one document per DocumentId.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Store reads and writes records in a single collection.
type Store struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func New(client *firestore.Client, collection string) *Store {
	return &Store{
		client:     client,
		collection: collection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) doc(documentID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID)
}

// CreateInitial writes the first record of an application. It fails if a
// record with the same DocumentId already exists.
func (s *Store) CreateInitial(ctx context.Context, rec models.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	if _, err := s.doc(rec.DocumentID).Create(ctx, rec); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.DocumentID)
		}
		return fmt.Errorf("failed to create record %s: %w", rec.DocumentID, err)
	}
	return nil
}

// SetExecution records the workflow execution driving the application.
func (s *Store) SetExecution(ctx context.Context, documentID, executionID string) error {
	_, err := s.doc(documentID).Update(ctx, []firestore.Update{
		{Path: "ExecutionId", Value: executionID},
	})
	if err != nil {
		return fmt.Errorf("failed to set execution on %s: %w", documentID, err)
	}
	return nil
}

// Advance moves the record to the given pipeline status inside a transaction,
// rejecting moves the state machine does not allow.
func (s *Store) Advance(ctx context.Context, documentID string, to pipeline.Status) error {
	return s.transition(ctx, documentID, to, nil)
}

// MarkFailed moves the record to FAILED and stores the error details.
func (s *Store) MarkFailed(ctx context.Context, documentID, details string) error {
	return s.transition(ctx, documentID, pipeline.StatusFailed, map[string]any{"ErrorDetails": details})
}

func (s *Store) transition(ctx context.Context, documentID string, to pipeline.Status, extra map[string]any) error {
	ref := s.doc(documentID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var from pipeline.Status
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			raw, err := snap.DataAt("Status")
			if err != nil {
				return fmt.Errorf("record has no Status: %w", err)
			}
			str, _ := raw.(string)
			from = pipeline.Status(str)
		}

		if err := pipeline.Transition(from, to); err != nil {
			return err
		}

		fields := map[string]any{
			"DocumentId": documentID,
			"Status":     string(to),
			"Timestamp":  s.now(),
		}
		for k, v := range extra {
			fields[k] = v
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", documentID, to, err)
	}
	return nil
}

// SaveDecision writes the decision attributes of rec, overwriting whatever a
// previous decision wrote. It is not gated by the state machine.
func (s *Store) SaveDecision(ctx context.Context, rec models.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	fields := map[string]any{
		"DocumentId":     rec.DocumentID,
		"Status":         string(rec.Status),
		"Ratio":          rec.Ratio,
		"DecisionReason": rec.DecisionReason,
		"RuleDecision":   rec.RuleDecision,
		"Timestamp":      rec.Timestamp,
	}
	if rec.Metrics != nil {
		fields["Metrics"] = *rec.Metrics
	}
	if _, err := s.doc(rec.DocumentID).Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to save decision for %s: %w", rec.DocumentID, err)
	}
	return nil
}

// Get returns the record for documentID or ErrNotFound.
func (s *Store) Get(ctx context.Context, documentID string) (*models.Record, error) {
	snap, err := s.doc(documentID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", documentID, err)
	}
	var rec models.Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", documentID, err)
	}
	return &rec, nil
}

// ListByStatus returns up to limit records in the given status, newest first.
func (s *Store) ListByStatus(ctx context.Context, st pipeline.Status, limit int) ([]models.Record, error) {
	it := s.client.Collection(s.collection).
		Where("Status", "==", string(st)).
		OrderBy("Timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	var records []models.Record
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list records in %s: %w", st, err)
		}
		var rec models.Record
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", snap.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
