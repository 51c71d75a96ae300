// Package scan runs the contract review cycle: list candidate documents,
// analyze the new ones, alert on high risk, and record progress so work is
// never repeated.
package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aissential/contractwatch/analyze"
	"github.com/aissential/contractwatch/metrics"
	"github.com/aissential/contractwatch/notify"
	"github.com/aissential/contractwatch/retry"
	"github.com/aissential/contractwatch/source"
	"github.com/aissential/contractwatch/tracker"
)

// Summary reports what one cycle did.
type Summary struct {
	// Found is the number of candidate files listed.
	Found int
	// Processed is the number of files analyzed and marked.
	Processed int
	// Skipped is the number of files already processed.
	Skipped int
	// Failed is the number of files that errored and were left unmarked.
	Failed int
	// Alerts is the number of high-risk alerts sent.
	Alerts int
}

// String renders a one-line summary for logs and CLI output.
func (s Summary) String() string {
	return fmt.Sprintf("found=%d processed=%d skipped=%d failed=%d alerts=%d",
		s.Found, s.Processed, s.Skipped, s.Failed, s.Alerts)
}

// Cycle wires the pipeline stages together. Construct one and call Run per
// scan; Cycle itself holds no per-run state.
type Cycle struct {
	Source   source.Source
	Extract  func(content []byte, filename string) (string, error)
	Analyzer *analyze.Analyzer
	Notifier notify.Notifier
	Tracker  *tracker.Store
	Retry    retry.Policy

	// Threshold is the 0-100 risk score at or above which an alert fires.
	Threshold int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Run executes one scan cycle. Files are handled sequentially in listing
// order. A file that fails is skipped without being marked, so the next
// cycle picks it up again; a failed listing aborts the whole cycle since
// there is nothing to iterate.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var summary Summary

	files, err := retry.Do(ctx, c.Retry, "source:list", func(ctx context.Context) ([]source.File, error) {
		return c.Source.List(ctx)
	})
	if err != nil {
		c.Metrics.ScanFailure()
		return summary, fmt.Errorf("list documents: %w", err)
	}
	summary.Found = len(files)

	logger.Info("Scan cycle started", slog.Int("candidates", len(files)))

	for _, f := range files {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		if c.Tracker.IsProcessed(f.ID) {
			summary.Skipped++
			c.Metrics.FileSkipped()
			continue
		}

		alerted, err := c.processFile(ctx, f, logger)
		if err != nil {
			summary.Failed++
			c.Metrics.FileFailed()
			logger.Error("Document failed, will retry next cycle",
				slog.String("file", f.Name),
				slog.String("id", f.ID),
				slog.Any("error", err))
			continue
		}

		summary.Processed++
		if alerted {
			summary.Alerts++
		}
	}

	c.Metrics.ScanCycle()
	logger.Info("Scan cycle finished", slog.String("summary", summary.String()))
	return summary, nil
}

// processFile takes one document through download, extraction, analysis,
// alerting, and marking. It reports whether an alert was sent. The file is
// marked processed only after every required step succeeded, keeping
// delivery at-least-once.
func (c *Cycle) processFile(ctx context.Context, f source.File, logger *slog.Logger) (bool, error) {
	content, err := retry.Do(ctx, c.Retry, "source:download", func(ctx context.Context) ([]byte, error) {
		return c.Source.Download(ctx, f.ID)
	})
	if err != nil {
		return false, fmt.Errorf("download: %w", err)
	}

	text, err := c.Extract(content, f.Name)
	if err != nil {
		return false, fmt.Errorf("extract: %w", err)
	}

	analysis, err := c.Analyzer.Analyze(ctx, f.Name, text)
	if err != nil {
		return false, fmt.Errorf("analyze: %w", err)
	}

	alerted := false
	if analysis.RiskScore >= c.Threshold {
		logger.Warn("High risk contract detected",
			slog.String("file", f.Name),
			slog.Int("risk_score", analysis.RiskScore))

		message := notify.HighRiskAlert(f.Name, analysis)
		err := c.Retry.Do(ctx, "notify:alert", func(ctx context.Context) error {
			return c.Notifier.Send(ctx, message)
		})
		if err != nil {
			// Left unmarked so the alert is retried with the document
			// next cycle rather than silently lost.
			return false, fmt.Errorf("send alert: %w", err)
		}
		alerted = true
		c.Metrics.AlertSent()
	}

	c.Tracker.MarkProcessed(f.ID, tracker.Metadata{
		Name:      f.Name,
		RiskScore: analysis.RiskScore,
	})
	c.Metrics.FileProcessed(analysis.RiskScore)

	return alerted, nil
}
