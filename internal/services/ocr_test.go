package services_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/objectstore"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/services"
)

const (
	nominaURI    = "gs://uploads/nomina/2025-10.png"
	nominaOldURI = "gs://uploads/nomina/2025-09.png"
	extracteURI  = "s3://bank/extracte/2025-10.png"

	nominaReply   = "```json\n" + `{"forms":[{"key":"Líquid a percebre","value":"2.100,00 €"}],"tables":[]}` + "\n```"
	extracteReply = `{"forms":[],"tables":[{"title":"Moviments","rows":[
		["Data","Concepte","Import"],
		["01/10/2025","Abonament nòmina","2.100,00"],
		["03/10/2025","Quota préstec","-650,00"]]}]}`
)

func pngObject(uri string) *objectstore.Object {
	loc, err := objectstore.ParseLocation(uri)
	if err != nil {
		panic(err)
	}
	return &objectstore.Object{Location: loc, ContentType: "image/png", Data: []byte("png")}
}

type ocrFixture struct {
	store    *memStore
	fetcher  *fakeFetcher
	analyzer *fakeAnalyzer
	archive  *fakeArchiver
	fn       *services.OCRFunction
}

func newOCRFixture(t *testing.T) *ocrFixture {
	t.Helper()
	fx := &ocrFixture{
		store: newMemStore(),
		fetcher: &fakeFetcher{objects: map[string]*objectstore.Object{
			nominaURI:    pngObject(nominaURI),
			nominaOldURI: pngObject(nominaOldURI),
			extracteURI:  pngObject(extracteURI),
		}},
		analyzer: &fakeAnalyzer{replies: map[string]string{
			nominaURI:    nominaReply,
			nominaOldURI: nominaReply,
			extracteURI:  extracteReply,
		}},
		archive: &fakeArchiver{},
	}
	cfg := services.OCRConfig{Concurrency: 2, MaxPages: 20}
	fx.fn = services.NewOCRFunction(cfg, fx.fetcher, fx.analyzer, fx.store, fx.archive)
	return fx
}

func TestOCRAnalyzesEveryDocument(t *testing.T) {
	fx := newOCRFixture(t)
	fx.store.seed("doc-1", pipeline.StatusInitiated)

	req := &models.OCRRequest{DocumentID: "doc-1", Documents: []models.DocumentRef{
		{Type: "Nomina", StorageLocation: nominaURI},
		{Type: "Extracte", StorageLocation: extracteURI},
		{Type: "Nomina", StorageLocation: nominaOldURI},
	}}
	resp, err := fx.fn.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if resp.DocumentID != "doc-1" || resp.AnalysisStatus != models.AnalysisStatusCompleted {
		t.Errorf("unexpected response header %+v", resp)
	}
	var keys []string
	for k := range resp.AnalysisRawResult {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "Extracte,Nomina,Nomina-2" {
		t.Fatalf("result keys = %v", keys)
	}
	if fx.analyzer.calls != 3 {
		t.Errorf("analyzer called %d times, want 3", fx.analyzer.calls)
	}

	nomina := resp.AnalysisRawResult["Nomina"]
	if nomina.Type != "Nomina" || nomina.StorageLocation != nominaURI {
		t.Errorf("Nomina result not tagged with its source: %+v", nomina)
	}
	if len(nomina.Forms) != 1 || nomina.Forms[0].Value != "2.100,00 €" {
		t.Errorf("Nomina forms = %+v", nomina.Forms)
	}
	if got := resp.AnalysisRawResult["Nomina-2"].StorageLocation; got != nominaOldURI {
		t.Errorf("Nomina-2 location = %q", got)
	}
	if rows := resp.AnalysisRawResult["Extracte"].Tables[0].Rows; len(rows) != 3 {
		t.Errorf("Extracte rows = %v", rows)
	}

	if got := fx.store.record("doc-1").Status; got != pipeline.StatusOCRComplete {
		t.Errorf("Status = %s, want OCR_COMPLETE", got)
	}
	sort.Strings(fx.archive.names)
	if strings.Join(fx.archive.names, ",") != "doc-1/Extracte.json,doc-1/Nomina-2.json,doc-1/Nomina.json" {
		t.Errorf("archived = %v", fx.archive.names)
	}
}

func TestOCRValidation(t *testing.T) {
	tests := []struct {
		name       string
		req        *models.OCRRequest
		wantFailed bool
	}{
		{name: "nil request", req: nil},
		{name: "missing document id", req: &models.OCRRequest{Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: nominaURI}}}},
		{name: "empty documents", req: &models.OCRRequest{DocumentID: "doc-1"}, wantFailed: true},
		{
			name:       "malformed location",
			req:        &models.OCRRequest{DocumentID: "doc-1", Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: "gs://uploads"}}},
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newOCRFixture(t)
			fx.store.seed("doc-1", pipeline.StatusInitiated)

			resp, err := fx.fn.Process(context.Background(), tt.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if resp != nil {
				t.Errorf("expected no output, got %+v", resp)
			}
			if fx.analyzer.calls != 0 {
				t.Errorf("analyzer called on invalid input")
			}
			wantStatus := pipeline.StatusInitiated
			if tt.wantFailed {
				wantStatus = pipeline.StatusFailed
			}
			if got := fx.store.record("doc-1").Status; got != wantStatus {
				t.Errorf("Status = %s, want %s", got, wantStatus)
			}
		})
	}
}

func TestOCRServiceErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fx *ocrFixture)
		want  string
	}{
		{
			name:  "fetch error",
			setup: func(fx *ocrFixture) { fx.fetcher.err = errors.New("access denied") },
			want:  "access denied",
		},
		{
			name:  "analysis error",
			setup: func(fx *ocrFixture) { fx.analyzer.err = errors.New("quota exceeded") },
			want:  "quota exceeded",
		},
		{
			name:  "prose reply",
			setup: func(fx *ocrFixture) { fx.analyzer.replies[nominaURI] = "I cannot read this document." },
			want:  "failed to parse document analysis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newOCRFixture(t)
			fx.store.seed("doc-1", pipeline.StatusInitiated)
			tt.setup(fx)

			req := &models.OCRRequest{DocumentID: "doc-1", Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: nominaURI}}}
			_, err := fx.fn.Process(context.Background(), req)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			rec := fx.store.record("doc-1")
			if rec.Status != pipeline.StatusFailed || !strings.Contains(rec.ErrorDetails, tt.want) {
				t.Errorf("unexpected record %+v", rec)
			}
		})
	}
}

func TestOCRRejectsUnreadablePDF(t *testing.T) {
	fx := newOCRFixture(t)
	fx.store.seed("doc-1", pipeline.StatusInitiated)

	const uri = "gs://uploads/nomina/broken.pdf"
	loc, _ := objectstore.ParseLocation(uri)
	fx.fetcher.objects[uri] = &objectstore.Object{Location: loc, ContentType: "application/pdf", Data: []byte("not a pdf")}

	req := &models.OCRRequest{DocumentID: "doc-1", Documents: []models.DocumentRef{{Type: "Nomina", StorageLocation: uri}}}
	if _, err := fx.fn.Process(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if fx.analyzer.calls != 0 {
		t.Error("unreadable PDF was sent for analysis")
	}
	if got := fx.store.record("doc-1").Status; got != pipeline.StatusFailed {
		t.Errorf("Status = %s, want FAILED", got)
	}
}

func TestOCRToleratesStatusBookkeepingFailure(t *testing.T) {
	fx := newOCRFixture(t)
	// No seeded record: every Advance is rejected by the state machine.
	req := &models.OCRRequest{DocumentID: "doc-9", Documents: []models.DocumentRef{{Type: "Extracte", StorageLocation: extracteURI}}}
	resp, err := fx.fn.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := resp.AnalysisRawResult["Extracte"]; !ok {
		t.Errorf("missing Extracte result: %+v", resp.AnalysisRawResult)
	}
}
