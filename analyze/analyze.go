// Package analyze turns extracted contract text into a structured legal risk
// assessment using an LLM provider.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aissential/contractwatch/config"
	"github.com/aissential/contractwatch/llm"
	"github.com/aissential/contractwatch/retry"
)

// defaultSystemPrompt is used when no system prompt file is configured.
const defaultSystemPrompt = `You are a senior legal counsel reviewing commercial contracts. ` +
	`Assess agreements for risk exposure, one-sided terms, missing protective clauses, ` +
	`liability gaps, and regulatory compliance issues. Be specific and practical in ` +
	`your findings. Always respond with valid JSON when asked for structured output.`

// Analysis is the structured result of a contract review.
type Analysis struct {
	// RiskScore is 0-100; 0 means no risk, 100 extreme risk.
	RiskScore int `json:"risk_score"`
	// Risks are the identified problem areas.
	Risks []string `json:"risks"`
	// MissingClauses are protective clauses the contract should have.
	MissingClauses []string `json:"missing_clauses"`
	// Recommendations suggest concrete improvements.
	Recommendations []string `json:"recommendations"`
}

// Analyzer reviews contract text through a configured LLM provider.
type Analyzer struct {
	client       *llm.Client
	cfg          config.AnalysisConfig
	systemPrompt string
	logger       *slog.Logger
}

// New creates an Analyzer from validated configuration. The system prompt
// comes from cfg.SystemPromptPath when set, otherwise a built-in default.
func New(client *llm.Client, cfg config.AnalysisConfig, logger *slog.Logger) (*Analyzer, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	systemPrompt := defaultSystemPrompt
	if cfg.SystemPromptPath != "" {
		content, err := os.ReadFile(cfg.SystemPromptPath)
		if err != nil {
			return nil, fmt.Errorf("read system prompt %s: %w", cfg.SystemPromptPath, err)
		}
		systemPrompt = strings.TrimSpace(string(content))
	}

	return &Analyzer{
		client:       client,
		cfg:          cfg,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

// Analyze reviews the given contract text and returns the structured
// assessment. A response the model formats badly is a terminal failure for
// this document; retrying the identical prompt is unlikely to fix it.
func (a *Analyzer) Analyze(ctx context.Context, name, text string) (*Analysis, error) {
	resp, err := a.client.Complete(ctx, llm.Request{
		Provider: a.cfg.Provider,
		Model:    a.cfg.Model,
		APIKey:   a.cfg.APIKey,
		BaseURL:  a.cfg.BaseURL,
		Messages: []llm.Message{
			{Role: "system", Content: a.systemPrompt},
			{Role: "user", Content: buildPrompt(name, text)},
		},
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", name, err)
	}

	analysis, err := parseAnalysis(resp.Content)
	if err != nil {
		a.logger.Error("Model returned unparseable analysis",
			"contract", name,
			"error", err)
		return nil, retry.NewFatalError(fmt.Errorf("parse analysis for %s: %w", name, err))
	}

	a.logger.Info("Contract analyzed",
		slog.String("contract", name),
		slog.Int("risk_score", analysis.RiskScore),
		slog.Int("risks", len(analysis.Risks)),
		slog.String("model", resp.Model),
		slog.Int("tokens", resp.Usage.TotalTokens))

	return analysis, nil
}

// buildPrompt constructs the user message for a contract review.
func buildPrompt(name, text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following contract and provide your analysis as a JSON object with these exact keys:\n")
	b.WriteString(`- "risk_score": an integer from 0 to 100 indicating overall risk level (0 = no risk, 100 = extreme risk)` + "\n")
	b.WriteString(`- "risks": a list of strings describing identified risks` + "\n")
	b.WriteString(`- "missing_clauses": a list of strings describing important clauses that are missing` + "\n")
	b.WriteString(`- "recommendations": a list of strings with recommendations for improvement` + "\n\n")
	fmt.Fprintf(&b, "Contract Name: %s\n\nContract Text:\n%s\n\n", name, text)
	b.WriteString("Respond ONLY with the JSON object, no additional text.")
	return b.String()
}

// parseAnalysis extracts and decodes the JSON assessment from a model
// response, tolerating markdown fences and surrounding prose.
func parseAnalysis(content string) (*Analysis, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}

	if analysis.RiskScore < 0 {
		analysis.RiskScore = 0
	}
	if analysis.RiskScore > 100 {
		analysis.RiskScore = 100
	}
	if analysis.Risks == nil {
		analysis.Risks = []string{}
	}
	if analysis.MissingClauses == nil {
		analysis.MissingClauses = []string{}
	}
	if analysis.Recommendations == nil {
		analysis.Recommendations = []string{}
	}

	return &analysis, nil
}
