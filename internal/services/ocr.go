package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/storage"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/solvencyflow/internal/gcp"
	"github.com/Lllllllleong/solvencyflow/internal/jsonreply"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/objectstore"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

// OCRConfig holds all configuration for the OCR step.
type OCRConfig struct {
	ProjectID      string
	VertexAIRegion string
	OCRModel       string
	CollectionName string
	AnalysisBucket string
	Concurrency    int
	MaxPages       int
	S3             objectstore.S3Config
}

// ObjectFetcher reads a document from storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, loc objectstore.Location) (*objectstore.Object, error)
}

// DocumentAnalyzer extracts forms and tables from a document and returns the
// model's JSON reply.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, obj *objectstore.Object) (string, error)
}

// Archiver keeps a copy of each analysis for audit.
type Archiver interface {
	Archive(ctx context.Context, objectName string, content []byte) (string, error)
}

// OCRFunction holds the dependencies for the document analysis step.
type OCRFunction struct {
	fetcher  ObjectFetcher
	analyzer DocumentAnalyzer
	tracker  StatusTracker
	archive  Archiver
	config   OCRConfig
}

// ocrReply is the JSON shape the analysis model is asked to produce.
type ocrReply struct {
	Forms []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"forms"`
	Tables []struct {
		Title string     `json:"title"`
		Rows  [][]string `json:"rows"`
	} `json:"tables"`
}

func loadOCRConfig() (*OCRConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	concurrency, err := gcp.GetEnvInt("OCR_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	maxPages, err := gcp.GetEnvInt("OCR_MAX_PAGES", 20)
	if err != nil {
		return nil, err
	}
	useSSL, err := gcp.GetEnvBool("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	return &OCRConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		OCRModel:       gcp.GetEnv("OCR_MODEL", gcp.DefaultModel),
		CollectionName: gcp.ResultsCollection(),
		AnalysisBucket: gcp.GetEnv("ANALYSIS_BUCKET", ""),
		Concurrency:    concurrency,
		MaxPages:       maxPages,
		S3: objectstore.S3Config{
			Endpoint:  gcp.GetEnv("S3_ENDPOINT", ""),
			Region:    gcp.GetEnv("S3_REGION", ""),
			AccessKey: gcp.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: gcp.GetEnv("S3_SECRET_KEY", ""),
			UseSSL:    useSSL,
		},
	}, nil
}

// NewOCR creates a new OCRFunction instance.
func NewOCR(ctx context.Context) (*OCRFunction, error) {
	config, err := loadOCRConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	router := objectstore.NewRouter()
	router.Register(objectstore.SchemeGCS, objectstore.NewGCSFetcher(storageClient, objectstore.DefaultMaxBytes))
	if config.S3.Enabled() {
		s3Fetcher, err := objectstore.NewS3Fetcher(config.S3, objectstore.DefaultMaxBytes)
		if err != nil {
			return nil, err
		}
		router.Register(objectstore.SchemeS3, s3Fetcher)
	}

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, gcp.VertexOptions{OCRModel: config.OCRModel})
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	var archive Archiver
	if config.AnalysisBucket != "" {
		archive = gcp.NewBucketArchiver(storageClient, config.AnalysisBucket)
	}

	f := NewOCRFunction(*config, router, vertexClient, store.New(firestoreClient, config.CollectionName), archive)
	slog.Info("OCR processor initialized.", "model", config.OCRModel, "s3Enabled", config.S3.Enabled(), "archive", config.AnalysisBucket != "")
	return f, nil
}

// NewOCRFunction assembles an OCRFunction from explicit dependencies. archive may be nil.
func NewOCRFunction(config OCRConfig, fetcher ObjectFetcher, analyzer DocumentAnalyzer, tracker StatusTracker, archive Archiver) *OCRFunction {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &OCRFunction{
		fetcher:  fetcher,
		analyzer: analyzer,
		tracker:  tracker,
		archive:  archive,
		config:   config,
	}
}

// Process analyzes every document of the application and returns the
// results keyed by document type.
func (f *OCRFunction) Process(ctx context.Context, req *models.OCRRequest) (*models.OCRResponse, error) {
	if req == nil || req.DocumentID == "" {
		return nil, validationErrorf("input must contain a DocumentId")
	}
	logCtx := slog.With("documentId", req.DocumentID)

	if len(req.Documents) == 0 {
		return nil, handleError(ctx, logCtx, f.tracker, req.DocumentID, "input does not contain a Documents list",
			validationErrorf("Documents list is empty"))
	}

	locations := make([]objectstore.Location, len(req.Documents))
	for i, doc := range req.Documents {
		loc, err := objectstore.ParseLocation(doc.StorageLocation)
		if err != nil {
			return nil, handleError(ctx, logCtx, f.tracker, req.DocumentID, "invalid storage location",
				validationErrorf("document %d (%s): %v", i, doc.Type, err))
		}
		locations[i] = loc
	}
	keys := resultKeys(req.Documents)

	advance(ctx, logCtx, f.tracker, req.DocumentID, pipeline.StatusOCRInProgress)
	logCtx.Info("Starting document analysis.", "documentCount", len(req.Documents), "concurrency", f.config.Concurrency)

	results := make([]models.AnalysisResult, len(req.Documents))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.config.Concurrency)
	for i := range req.Documents {
		eg.Go(func() error {
			res, err := f.analyzeOne(gctx, logCtx, req.DocumentID, keys[i], req.Documents[i], locations[i])
			if err != nil {
				return fmt.Errorf("%s (%s): %w", keys[i], locations[i], err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, handleError(ctx, logCtx, f.tracker, req.DocumentID, "document analysis failed", err)
	}

	raw := make(map[string]models.AnalysisResult, len(results))
	for i, res := range results {
		raw[keys[i]] = res
	}

	advance(ctx, logCtx, f.tracker, req.DocumentID, pipeline.StatusOCRComplete)
	logCtx.Info("Document analysis complete.", "documentCount", len(raw))
	return &models.OCRResponse{
		DocumentID:        req.DocumentID,
		AnalysisStatus:    models.AnalysisStatusCompleted,
		AnalysisRawResult: raw,
	}, nil
}

func (f *OCRFunction) analyzeOne(ctx context.Context, logCtx *slog.Logger, documentID, key string, doc models.DocumentRef, loc objectstore.Location) (models.AnalysisResult, error) {
	logCtx = logCtx.With("documentType", key, "storageLocation", loc.String())

	obj, err := f.fetcher.Fetch(ctx, loc)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to fetch document: %w", err)
	}

	var pageCount int
	if obj.IsPDF() {
		pageCount, err = countPDFPages(obj.Data)
		if err != nil {
			return models.AnalysisResult{}, validationErrorf("document is not a readable PDF: %v", err)
		}
		if f.config.MaxPages > 0 && pageCount > f.config.MaxPages {
			return models.AnalysisResult{}, validationErrorf("document has %d pages, limit is %d", pageCount, f.config.MaxPages)
		}
	}

	text, err := f.analyzer.AnalyzeDocument(ctx, obj)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	// Refusals come back as prose and fail here.
	res, err := parseAnalysis(text)
	if err != nil {
		logCtx.Error("Unusable response from document analysis model", "error", err, "response", truncate(text, 500))
		return models.AnalysisResult{}, err
	}
	res.Type = doc.Type
	res.StorageLocation = doc.StorageLocation
	res.PageCount = pageCount

	if f.archive != nil {
		f.archiveResult(ctx, logCtx, documentID, key, res)
	}
	logCtx.Info("Document analyzed.", "pageCount", pageCount, "forms", len(res.Forms), "tables", len(res.Tables))
	return res, nil
}

func (f *OCRFunction) archiveResult(ctx context.Context, logCtx *slog.Logger, documentID, key string, res models.AnalysisResult) {
	content, err := json.Marshal(res)
	if err != nil {
		logCtx.Warn("Failed to marshal analysis for archive.", "error", err)
		return
	}
	uri, err := f.archive.Archive(ctx, fmt.Sprintf("%s/%s.json", documentID, key), content)
	if err != nil {
		logCtx.Warn("Failed to archive analysis.", "error", err)
		return
	}
	logCtx.Info("Analysis archived.", "archiveUri", uri)
}

func parseAnalysis(text string) (models.AnalysisResult, error) {
	var reply ocrReply
	if err := jsonreply.Decode(text, &reply); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to parse document analysis: %w", err)
	}

	res := models.AnalysisResult{
		Forms:  make([]models.FormField, 0, len(reply.Forms)),
		Tables: make([]models.Table, 0, len(reply.Tables)),
	}
	for _, f := range reply.Forms {
		if strings.TrimSpace(f.Key) == "" && strings.TrimSpace(f.Value) == "" {
			continue
		}
		res.Forms = append(res.Forms, models.FormField{Key: strings.TrimSpace(f.Key), Value: strings.TrimSpace(f.Value)})
	}
	for _, t := range reply.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		res.Tables = append(res.Tables, models.Table{Title: t.Title, Rows: t.Rows})
	}
	return res, nil
}

// resultKeys names each document's entry in the result map by its type.
// Repeated types get a numeric suffix: Nomina, Nomina-2, ...
func resultKeys(docs []models.DocumentRef) []string {
	keys := make([]string, len(docs))
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		seen[d.Type]++
		if n := seen[d.Type]; n > 1 {
			keys[i] = fmt.Sprintf("%s-%d", d.Type, n)
		} else {
			keys[i] = d.Type
		}
	}
	return keys
}

func countPDFPages(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
