package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/objectstore"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

var fixedTime = time.Date(2025, 10, 15, 9, 30, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedTime }

// memStore is an in-memory result store that enforces the pipeline state machine.
type memStore struct {
	mu        sync.Mutex
	records   map[string]models.Record
	history   map[string][]pipeline.Status
	saveErr   error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]models.Record),
		history: make(map[string][]pipeline.Status),
	}
}

func (s *memStore) CreateInitial(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[rec.DocumentID]; ok {
		return store.ErrAlreadyExists
	}
	s.records[rec.DocumentID] = rec
	s.history[rec.DocumentID] = append(s.history[rec.DocumentID], rec.Status)
	return nil
}

func (s *memStore) SetExecution(_ context.Context, documentID, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[documentID]
	if !ok {
		return store.ErrNotFound
	}
	rec.ExecutionID = executionID
	s.records[documentID] = rec
	return nil
}

func (s *memStore) Advance(_ context.Context, documentID string, to pipeline.Status) error {
	return s.transition(documentID, to, "")
}

func (s *memStore) MarkFailed(_ context.Context, documentID, details string) error {
	return s.transition(documentID, pipeline.StatusFailed, details)
}

func (s *memStore) transition(documentID string, to pipeline.Status, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[documentID]
	if err := pipeline.Transition(rec.Status, to); err != nil {
		return err
	}
	rec.DocumentID = documentID
	rec.Status = to
	if details != "" {
		rec.ErrorDetails = details
	}
	s.records[documentID] = rec
	s.history[documentID] = append(s.history[documentID], to)
	return nil
}

func (s *memStore) SaveDecision(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	prev := s.records[rec.DocumentID]
	rec.Documents = prev.Documents
	rec.ExecutionID = prev.ExecutionID
	s.records[rec.DocumentID] = rec
	s.history[rec.DocumentID] = append(s.history[rec.DocumentID], rec.Status)
	return nil
}

func (s *memStore) Get(_ context.Context, documentID string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, documentID)
	}
	return &rec, nil
}

func (s *memStore) ListByStatus(_ context.Context, st pipeline.Status, limit int) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for _, rec := range s.records {
		if rec.Status == st && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) record(documentID string) models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[documentID]
}

// seed puts a record directly into the given status.
func (s *memStore) seed(documentID string, st pipeline.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[documentID] = models.Record{DocumentID: documentID, Status: st}
}

type fakeWorkflows struct {
	mu      sync.Mutex
	err     error
	started []models.WorkflowArgument
}

func (w *fakeWorkflows) StartExecution(_ context.Context, documentID string, argument any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	arg, ok := argument.(models.WorkflowArgument)
	if !ok {
		return "", errors.New("unexpected workflow argument type")
	}
	w.started = append(w.started, arg)
	return "executions/" + documentID, nil
}

// fakeFetcher serves objects from memory, keyed by URI.
type fakeFetcher struct {
	objects map[string]*objectstore.Object
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, loc objectstore.Location) (*objectstore.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[loc.String()]
	if !ok {
		return nil, fmt.Errorf("object %s not found", loc)
	}
	return obj, nil
}

// fakeAnalyzer answers with a canned reply per URI.
type fakeAnalyzer struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   int
}

func (a *fakeAnalyzer) AnalyzeDocument(_ context.Context, obj *objectstore.Object) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	reply, ok := a.replies[obj.Location.String()]
	if !ok {
		return "", fmt.Errorf("no reply for %s", obj.Location)
	}
	return reply, nil
}

type fakeArchiver struct {
	mu    sync.Mutex
	names []string
}

func (a *fakeArchiver) Archive(_ context.Context, objectName string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, objectName)
	return "gs://analysis/" + objectName, nil
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}
