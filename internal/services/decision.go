package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/solvencyflow/internal/extraction"
	"github.com/Lllllllleong/solvencyflow/internal/gcp"
	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/openai"
	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
	"github.com/Lllllllleong/solvencyflow/internal/solvency"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

const (
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// DecisionConfig holds all configuration for the decision step.
type DecisionConfig struct {
	ProjectID      string
	VertexAIRegion string
	DecisionModel  string
	CollectionName string
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIModel    string
	RulesFile      string
}

// DecisionStore is the part of the result store the decision step writes.
type DecisionStore interface {
	StatusTracker
	SaveDecision(ctx context.Context, rec models.Record) error
}

// Completer sends a prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DecisionFunction holds the dependencies for the final decision step.
type DecisionFunction struct {
	store  DecisionStore
	llm    Completer
	rules  *extraction.Rules
	clock  Clock
	config DecisionConfig
}

func loadDecisionConfig() (*DecisionConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	provider := strings.ToLower(gcp.GetEnv("LLM_PROVIDER", ProviderVertex))
	config := &DecisionConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		DecisionModel:  gcp.GetEnv("DECISION_MODEL", gcp.DefaultModel),
		CollectionName: gcp.ResultsCollection(),
		LLMProvider:    provider,
		OpenAIAPIKey:   gcp.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    gcp.GetEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RulesFile:      gcp.GetEnv("EXTRACTION_RULES_FILE", ""),
	}

	switch provider {
	case ProviderVertex:
	case ProviderOpenAI:
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable must be set when LLM_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
	return config, nil
}

// NewDecision creates a new DecisionFunction instance.
func NewDecision(ctx context.Context) (*DecisionFunction, error) {
	config, err := loadDecisionConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var rules *extraction.Rules
	if config.RulesFile != "" {
		rules, err = extraction.LoadRules(config.RulesFile)
	} else {
		rules, err = extraction.DefaultRules()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load extraction rules: %w", err)
	}

	var llm Completer
	switch config.LLMProvider {
	case ProviderOpenAI:
		llm = openai.NewClient(config.OpenAIAPIKey, config.OpenAIModel, solvency.SystemPrompt)
	default:
		vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, gcp.VertexOptions{
			DecisionModel:       config.DecisionModel,
			DecisionInstruction: solvency.SystemPrompt,
			DecisionMaxTokens:   512,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		llm = vertexClient
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	f := NewDecisionFunction(*config, store.New(firestoreClient, config.CollectionName), llm, rules, SystemClock{})
	slog.Info("Decision step initialized.", "provider", config.LLMProvider, "rulesFile", config.RulesFile)
	return f, nil
}

// NewDecisionFunction assembles a DecisionFunction from explicit dependencies.
func NewDecisionFunction(config DecisionConfig, st DecisionStore, llm Completer, rules *extraction.Rules, clock Clock) *DecisionFunction {
	return &DecisionFunction{
		store:  st,
		llm:    llm,
		rules:  rules,
		clock:  clock,
		config: config,
	}
}

// Process decides an application from its OCR results and persists the
// outcome. Only input errors are returned; model and persistence failures
// degrade the response instead.
func (f *DecisionFunction) Process(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error) {
	if req == nil || req.DocumentID == "" {
		return nil, validationErrorf("input must contain a DocumentId")
	}
	logCtx := slog.With("documentId", req.DocumentID)

	if req.AnalysisRawResult == nil {
		return nil, handleError(ctx, logCtx, f.store, req.DocumentID, "input does not contain the OCR result",
			validationErrorf("AnalysisRawResult is missing"))
	}

	advance(ctx, logCtx, f.store, req.DocumentID, pipeline.StatusDecisionInProgress)

	ext := f.rules.Extract(req.AnalysisRawResult)
	metrics := ext.Metrics
	ratio := solvency.ComputeRatio(metrics)
	ruleDecision := solvency.Evaluate(metrics, ratio)
	logCtx = logCtx.With("ratio", solvency.FormatRatio(ratio))

	var verdict solvency.Verdict
	if !ext.Complete() {
		logCtx.Warn("Metrics incomplete, routing to manual review.", "missing", ext.Missing, "ambiguous", ext.Ambiguous)
		ruleDecision = solvency.ManualReview
		verdict = solvency.Verdict{
			Decision:  solvency.ManualReview,
			Ratio:     solvency.FormatRatio(ratio),
			Reasoning: ext.Reason(),
		}
	} else {
		logCtx.Info("Metrics extracted.", "netSalary", metrics.NetSalary, "fixedMonthlyDebt", metrics.FixedMonthlyDebt,
			"bankIncome", metrics.BankIncome, "sources", ext.Sources, "ruleDecision", ruleDecision)
		verdict = f.askModel(ctx, logCtx, metrics, ratio)
		if verdict.Decision != ruleDecision {
			logCtx.Warn("Model decision differs from the policy rules.", "modelDecision", verdict.Decision, "ruleDecision", ruleDecision)
		}
	}

	rec := models.Record{
		DocumentID:     req.DocumentID,
		Status:         pipeline.Status(verdict.Decision),
		Ratio:          verdict.Ratio,
		DecisionReason: verdict.Reasoning,
		RuleDecision:   string(ruleDecision),
		Metrics:        &metrics,
		Timestamp:      f.clock.Now(),
	}
	persisted := true
	if err := f.store.SaveDecision(ctx, rec); err != nil {
		logCtx.Error("Failed to persist decision; returning it anyway.", "error", err)
		persisted = false
	}

	logCtx.Info("Decision complete.", "decision", verdict.Decision, "persisted", persisted)
	return &models.DecisionResponse{
		DocumentID: req.DocumentID,
		Decision:   string(verdict.Decision),
		Ratio:      verdict.Ratio,
		Reasoning:  verdict.Reasoning,
		Persisted:  persisted,
	}, nil
}

// askModel never fails: any error yields the fallback verdict.
func (f *DecisionFunction) askModel(ctx context.Context, logCtx *slog.Logger, m solvency.Metrics, ratio float64) solvency.Verdict {
	reply, err := f.llm.Complete(ctx, solvency.BuildPrompt(m, ratio))
	if err != nil {
		logCtx.Error("Language model call failed, using fallback decision.", "error", err)
		return solvency.Fallback(ratio)
	}
	verdict, err := solvency.ParseVerdict(reply, ratio)
	if err != nil {
		logCtx.Error("Could not parse language model reply, using fallback decision.", "error", err, "response", truncate(reply, 500))
		return solvency.Fallback(ratio)
	}
	return verdict
}
