package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/services"
)

var applicationDocs = []models.DocumentRef{
	{Type: "Nomina", StorageLocation: "gs://uploads/nomina/2025-10.pdf"},
	{Type: "Extracte", StorageLocation: "gs://uploads/extracte/2025-10.pdf"},
}

func newIntake(st *memStore, wf *fakeWorkflows, defaults []models.DocumentRef) *services.IntakeFunction {
	cfg := services.IntakeConfig{ProjectID: "p", WorkflowID: "solvency-pipeline", DefaultDocuments: defaults}
	return services.NewIntakeFunction(cfg, st, wf, fixedClock{})
}

func TestIntakeStartsWorkflow(t *testing.T) {
	st, wf := newMemStore(), &fakeWorkflows{}
	f := newIntake(st, wf, applicationDocs)

	resp, err := f.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.DocumentID == "" || resp.Message == "" {
		t.Fatalf("incomplete response %+v", resp)
	}
	if resp.ExecutionID != "executions/"+resp.DocumentID {
		t.Errorf("ExecutionID = %q", resp.ExecutionID)
	}

	if len(wf.started) != 1 {
		t.Fatalf("expected one execution, got %d", len(wf.started))
	}
	arg := wf.started[0]
	if arg.DocumentID != resp.DocumentID || len(arg.Documents) != 2 {
		t.Errorf("unexpected workflow argument %+v", arg)
	}

	rec := st.record(resp.DocumentID)
	if rec.Status != pipeline.StatusInitiated {
		t.Errorf("Status = %s, want INITIATED", rec.Status)
	}
	if rec.ExecutionID != resp.ExecutionID || !rec.Timestamp.Equal(fixedTime) {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestIntakeRequestDocumentsOverrideDefaults(t *testing.T) {
	st, wf := newMemStore(), &fakeWorkflows{}
	f := newIntake(st, wf, applicationDocs)

	req := &models.IntakeRequest{Documents: []models.DocumentRef{
		{Type: "Nomina", StorageLocation: "s3://bank-uploads/nomina/x.pdf"},
	}}
	if _, err := f.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := wf.started[0].Documents; len(got) != 1 || got[0].StorageLocation != "s3://bank-uploads/nomina/x.pdf" {
		t.Errorf("Documents = %+v", got)
	}
}

func TestIntakeGeneratesDistinctIDs(t *testing.T) {
	st, wf := newMemStore(), &fakeWorkflows{}
	f := newIntake(st, wf, applicationDocs)

	first, err := f.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := f.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if first.DocumentID == second.DocumentID {
		t.Errorf("two invocations produced the same DocumentId %q", first.DocumentID)
	}
}

func TestIntakeValidation(t *testing.T) {
	tests := []struct {
		name     string
		defaults []models.DocumentRef
		req      *models.IntakeRequest
	}{
		{name: "no documents anywhere"},
		{
			name: "missing type",
			req:  &models.IntakeRequest{Documents: []models.DocumentRef{{StorageLocation: "gs://b/k.pdf"}}},
		},
		{
			name: "malformed location",
			req:  &models.IntakeRequest{Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: "gs://bucket-only"}}},
		},
		{
			name: "unsupported scheme",
			req:  &models.IntakeRequest{Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: "ftp://host/file.pdf"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, wf := newMemStore(), &fakeWorkflows{}
			f := newIntake(st, wf, tt.defaults)

			_, err := f.Process(context.Background(), tt.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(wf.started) != 0 || len(st.records) != 0 {
				t.Errorf("rejected request had side effects")
			}
		})
	}
}

func TestIntakeWorkflowFailureMarksFailed(t *testing.T) {
	st := newMemStore()
	wf := &fakeWorkflows{err: errors.New("permission denied")}
	f := newIntake(st, wf, applicationDocs)

	_, err := f.Process(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected workflow error, got %v", err)
	}
	if len(st.records) != 1 {
		t.Fatalf("expected one record, got %d", len(st.records))
	}
	for _, rec := range st.records {
		if rec.Status != pipeline.StatusFailed || !strings.Contains(rec.ErrorDetails, "permission denied") {
			t.Errorf("unexpected record %+v", rec)
		}
	}
}

func TestIntakeStoreFailure(t *testing.T) {
	st := newMemStore()
	st.createErr = errors.New("unavailable")
	wf := &fakeWorkflows{}
	f := newIntake(st, wf, applicationDocs)

	if _, err := f.Process(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if len(wf.started) != 0 {
		t.Error("workflow started without an initial record")
	}
}

func TestIntakeProcessUpload(t *testing.T) {
	st, wf := newMemStore(), &fakeWorkflows{}
	f := newIntake(st, wf, nil)

	resp, err := f.ProcessUpload(context.Background(), services.GCSEvent{Bucket: "uploads", Name: "extracte/oct.pdf"})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	want := models.DocumentRef{Type: "Extracte", StorageLocation: "gs://uploads/extracte/oct.pdf"}
	if got := wf.started[0].Documents; len(got) != 1 || got[0] != want {
		t.Errorf("Documents = %+v, want [%+v]", got, want)
	}
	if st.record(resp.DocumentID).Status != pipeline.StatusInitiated {
		t.Errorf("record not initiated")
	}

	if _, err := f.ProcessUpload(context.Background(), services.GCSEvent{Bucket: "uploads", Name: "nomina/"}); !errors.Is(err, services.ErrValidation) {
		t.Errorf("folder placeholder: expected ErrValidation, got %v", err)
	}
}

func TestIntakeProcessUploadContentType(t *testing.T) {
	tests := []struct {
		name  string
		event services.GCSEvent
		ok    bool
	}{
		{"pdf", services.GCSEvent{Bucket: "uploads", Name: "nomina/oct", ContentType: "application/pdf"}, true},
		{"image with parameters", services.GCSEvent{Bucket: "uploads", Name: "nomina/oct.png", ContentType: "Image/PNG; q=1"}, true},
		{"jpeg by extension", services.GCSEvent{Bucket: "uploads", Name: "nomina/oct.JPG"}, true},
		{"archived result", services.GCSEvent{Bucket: "uploads", Name: "doc-1/Nomina.json", ContentType: "application/json"}, false},
		{"json by extension", services.GCSEvent{Bucket: "uploads", Name: "doc-1/Nomina.json"}, false},
		{"pdf name with text content", services.GCSEvent{Bucket: "uploads", Name: "nomina/oct.pdf", ContentType: "text/plain"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, wf := newMemStore(), &fakeWorkflows{}
			f := newIntake(st, wf, nil)

			_, err := f.ProcessUpload(context.Background(), tt.event)
			if tt.ok {
				if err != nil || len(wf.started) != 1 {
					t.Fatalf("err = %v, started = %d", err, len(wf.started))
				}
				return
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if len(wf.started) != 0 {
				t.Errorf("workflow started for %q", tt.event.Name)
			}
		})
	}
}

func TestParseDocumentList(t *testing.T) {
	docs, err := services.ParseDocumentList(" Nomina=gs://b/nomina/a.pdf , Extracte=s3://c/extracte/b.pdf,")
	if err != nil {
		t.Fatalf("ParseDocumentList: %v", err)
	}
	if len(docs) != 2 || docs[0].Type != "Nomina" || docs[1].StorageLocation != "s3://c/extracte/b.pdf" {
		t.Errorf("unexpected documents %+v", docs)
	}

	for _, bad := range []string{"Nomina", "=gs://b/k", "Nomina=gs://b"} {
		if _, err := services.ParseDocumentList(bad); err == nil {
			t.Errorf("ParseDocumentList(%q): expected error", bad)
		}
	}

	if docs, err := services.ParseDocumentList(""); err != nil || len(docs) != 0 {
		t.Errorf("empty list: %v %v", docs, err)
	}
}

func TestDocumentTypeFromObject(t *testing.T) {
	tests := map[string]string{
		"nomina/2025-10.pdf": "Nomina",
		"EXTRACTE/oct/x.pdf": "Extracte",
		"loose.pdf":          "Document",
		"/leading-slash.pdf": "Document",
	}
	for in, want := range tests {
		if got := services.DocumentTypeFromObject(in); got != want {
			t.Errorf("DocumentTypeFromObject(%q) = %q, want %q", in, got, want)
		}
	}
}
