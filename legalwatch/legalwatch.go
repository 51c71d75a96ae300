// Package legalwatch periodically summarizes legal and regulatory changes
// relevant to the configured jurisdiction and business profile.
package legalwatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aissential/contractwatch/config"
	"github.com/aissential/contractwatch/llm"
)

// watchSystemPrompt keeps the model concise and citation-focused.
const watchSystemPrompt = "You are a legal expert for the monitored jurisdiction. " +
	"Be concise and practical. Cite law and decree numbers whenever possible."

// criticalKeywords flag a digest as needing immediate operator attention.
var criticalKeywords = []string{
	"critical",
	"score: 9",
	"score: 10",
	"immediate action",
	"urgent",
	"deadline",
	"work permit",
	"foreign-owned",
}

// Monitor produces legal update digests through an LLM provider, optionally
// grounded with fresh web search results.
type Monitor struct {
	client   *llm.Client
	cfg      config.LegalWatchConfig
	searcher *Searcher
	logger   *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Monitor from validated configuration.
func New(client *llm.Client, cfg config.LegalWatchConfig, logger *slog.Logger) (*Monitor, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if cfg.WebSearch {
		m.searcher = NewSearcher("")
	}
	return m, nil
}

// Topics returns the monitored legal areas.
func (m *Monitor) Topics() []string {
	return append([]string(nil), m.cfg.Topics...)
}

// Updates produces a formatted digest of recent legal changes. With web
// search enabled, recent articles per topic are folded into the prompt as
// grounding material.
func (m *Monitor) Updates(ctx context.Context) (string, error) {
	start := m.now()

	var research string
	if m.searcher != nil {
		research = m.gatherResearch(ctx)
	}

	resp, err := m.client.Complete(ctx, llm.Request{
		Provider: m.cfg.Provider,
		Model:    m.cfg.Model,
		APIKey:   m.cfg.APIKey,
		BaseURL:  m.cfg.BaseURL,
		Messages: []llm.Message{
			{Role: "system", Content: watchSystemPrompt},
			{Role: "user", Content: m.buildPrompt(research)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("legal watch: %w", err)
	}

	m.logger.Info("Legal watch digest produced",
		slog.String("jurisdiction", m.cfg.Jurisdiction),
		slog.Duration("elapsed", m.now().Sub(start)),
		slog.Int("tokens", resp.Usage.TotalTokens))

	return m.format(resp.Content), nil
}

// CheckCritical runs the watch and reports whether the digest contains
// markers that warrant immediate alerting.
func (m *Monitor) CheckCritical(ctx context.Context) (bool, string, error) {
	digest, err := m.Updates(ctx)
	if err != nil {
		return false, "", err
	}
	return ContainsCritical(digest), digest, nil
}

// ContainsCritical reports whether a digest carries critical markers.
func ContainsCritical(digest string) bool {
	lower := strings.ToLower(digest)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CheckTopic researches one legal topic in depth.
func (m *Monitor) CheckTopic(ctx context.Context, topic string) (string, error) {
	prompt := fmt.Sprintf(`Research legal requirements and recent changes in %s regarding: %s

For this business (%s), provide:
1. Current applicable laws and regulations
2. Recent changes (if any)
3. Compliance requirements
4. Recommended actions

Be specific and practical. Include decree/law numbers when relevant.`,
		m.cfg.Jurisdiction, topic, m.cfg.BusinessProfile)

	resp, err := m.client.Complete(ctx, llm.Request{
		Provider: m.cfg.Provider,
		Model:    m.cfg.Model,
		APIKey:   m.cfg.APIKey,
		BaseURL:  m.cfg.BaseURL,
		Messages: []llm.Message{
			{Role: "system", Content: watchSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("check topic %q: %w", topic, err)
	}
	return resp.Content, nil
}

// gatherResearch runs a web search per topic and formats the hits as prompt
// grounding. Search failures degrade to an unassisted prompt.
func (m *Monitor) gatherResearch(ctx context.Context) string {
	var b strings.Builder
	for _, topic := range m.cfg.Topics {
		query := fmt.Sprintf("%s %s law update %d", m.cfg.Jurisdiction, topic, m.now().Year())
		results, err := m.searcher.Search(ctx, query)
		if err != nil {
			m.logger.Warn("Web search failed", "topic", topic, "error", err)
			continue
		}
		for _, r := range results {
			fmt.Fprintf(&b, "Source: %s (%s)\n", r.Title, r.URL)
			if r.Excerpt != "" {
				fmt.Fprintf(&b, "%s\n", r.Excerpt)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildPrompt composes the digest request.
func (m *Monitor) buildPrompt(research string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n\n", m.now().Format("02/01/2006"))
	fmt.Fprintf(&b, "Analyze recent legal and regulatory news in %s for this business: %s\n\n",
		m.cfg.Jurisdiction, m.cfg.BusinessProfile)

	b.WriteString("Priority areas:\n")
	for i, topic := range m.cfg.Topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, topic)
	}

	b.WriteString(`
For each important update:
**Title** - Score: XX/100
- Law/Decree: [number]
- Effective date: [date]
- Impact: [1 line]
- Action: [1 line]

Finish with:
TOP 3 PRIORITY ACTIONS

Scores: 90+ CRITICAL | 70-89 high | 40-69 moderate | 0-39 low
`)

	if research != "" {
		b.WriteString("\nRecent articles for grounding:\n\n")
		b.WriteString(research)
	}

	return b.String()
}

// format wraps the digest with a dated header. A critical digest gets an
// alerting header instead of the routine one.
func (m *Monitor) format(digest string) string {
	stamp := m.now().Format("02/01/2006 15:04")
	header := fmt.Sprintf("LEGAL WATCH: %s\n%s\n\n", strings.ToUpper(m.cfg.Jurisdiction), stamp)
	if ContainsCritical(digest) {
		header = fmt.Sprintf("CRITICAL LEGAL ALERT: %s\n%s\n\n", strings.ToUpper(m.cfg.Jurisdiction), stamp)
	}
	return header + strings.TrimSpace(digest)
}
