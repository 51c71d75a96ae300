package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aissential/contractwatch/analyze"
	"github.com/aissential/contractwatch/config"
	"github.com/aissential/contractwatch/expiration"
	"github.com/aissential/contractwatch/extract"
	"github.com/aissential/contractwatch/legalwatch"
	"github.com/aissential/contractwatch/llm"
	"github.com/aissential/contractwatch/metrics"
	"github.com/aissential/contractwatch/notify"
	"github.com/aissential/contractwatch/retry"
	"github.com/aissential/contractwatch/scan"
	"github.com/aissential/contractwatch/source"
	"github.com/aissential/contractwatch/tracker"
)

// maxConsecutiveFailures is how many scan cycles may fail in a row before
// the daemon escalates through the alert channel.
const maxConsecutiveFailures = 3

// App holds the wired pipeline for the lifetime of one command.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *tracker.Store
	expirations *expiration.Store
	notifier    notify.Notifier
	analyzer    *analyze.Analyzer
	monitor     *legalwatch.Monitor
	metrics     *metrics.Metrics
	local       *source.Local
	cycle       *scan.Cycle
}

// newApp loads configuration and wires every pipeline stage. Configuration
// problems abort here so commands never run half-configured.
func newApp(ctx context.Context, configPath, logLevel string) (*App, error) {
	logger := setupLogger(logLevel)

	cfg, err := config.NewLoader(logger).Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	policy := retryPolicy(cfg, logger)
	policy.OnRetry = func(string, int) { m.RetryAttempt() }

	store := tracker.New(tracker.Options{
		Path:           cfg.Tracker.Path,
		BackupPath:     cfg.Tracker.BackupPath,
		FlushEvery:     cfg.Tracker.FlushEvery,
		OnFlushFailure: m.FlushFailure,
		Logger:         logger,
	})
	logger.Info("Processed-file state loaded", slog.Int("records", store.Load()))

	client := llm.NewClient(
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Analysis.GetTimeout()}),
		llm.WithRetryPolicy(policy),
		llm.WithLogger(logger),
	)

	analyzer, err := analyze.New(client, cfg.Analysis, logger)
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	notifier, err := notify.NewTelegram(cfg.Telegram, logger)
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		expirations: expiration.New(expiration.Options{
			Path:   cfg.Expiration.Path,
			Logger: logger,
		}),
		notifier: notifier,
		analyzer: analyzer,
		metrics:  m,
	}

	if cfg.LegalWatch.Enabled {
		app.monitor, err = legalwatch.New(client, cfg.LegalWatch, logger)
		if err != nil {
			return nil, fmt.Errorf("create legal watch: %w", err)
		}
	}

	var sources []source.Source
	if cfg.Sources.Drive.Enabled() {
		drv, err := source.NewDrive(ctx, cfg.Sources.Drive.CredentialsFile, cfg.Sources.Drive.FolderIDs, logger)
		if err != nil {
			return nil, fmt.Errorf("create drive source: %w", err)
		}
		sources = append(sources, drv)
	}
	if cfg.Sources.Local.Enabled() {
		local, err := source.NewLocal(cfg.Sources.Local.Dir, cfg.Sources.Local.Patterns, logger)
		if err != nil {
			return nil, fmt.Errorf("create local source: %w", err)
		}
		app.local = local
		sources = append(sources, local)
	}

	var src source.Source
	switch len(sources) {
	case 1:
		src = sources[0]
	default:
		src = source.NewMulti(sources...)
	}

	app.cycle = &scan.Cycle{
		Source:    src,
		Extract:   extract.Text,
		Analyzer:  analyzer,
		Notifier:  notifier,
		Tracker:   store,
		Retry:     policy,
		Threshold: cfg.Analysis.RiskThreshold,
		Metrics:   app.metrics,
		Logger:    logger,
	}

	return app, nil
}

// close flushes durable state before exit.
func (a *App) close() {
	if err := a.store.Flush(); err != nil {
		a.logger.Error("Failed to flush processed-file state", "error", err)
	}
}

// runDaemon runs scan cycles on the configured interval, the legal watch on
// its schedule, and inbox-triggered scans until interrupted. Scans are
// serialized through one channel so triggers never overlap.
func (a *App) runDaemon(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanRequests := make(chan string, 1)
	requestScan := func(reason string) {
		select {
		case scanRequests <- reason:
		default:
			// A scan is already pending; the next cycle covers this
			// trigger too.
		}
	}

	sched := cron.New()
	interval := a.cfg.Scan.GetInterval()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		requestScan("interval")
	}); err != nil {
		return fmt.Errorf("schedule scan cycles: %w", err)
	}

	if a.monitor != nil {
		if _, err := sched.AddFunc(a.cfg.LegalWatch.Schedule, func() {
			a.runScheduledLegalWatch(ctx)
		}); err != nil {
			return fmt.Errorf("schedule legal watch %q: %w", a.cfg.LegalWatch.Schedule, err)
		}
	}

	if _, err := sched.AddFunc(a.cfg.Expiration.Schedule, func() {
		a.runScheduledExpirationCheck(ctx)
	}); err != nil {
		return fmt.Errorf("schedule expiration check %q: %w", a.cfg.Expiration.Schedule, err)
	}

	if a.local != nil && a.cfg.Sources.Local.Watch {
		go func() {
			debounce := a.cfg.Sources.Local.GetDebounceDelay()
			if err := a.local.Watch(ctx, debounce, func() { requestScan("inbox") }); err != nil && ctx.Err() == nil {
				a.logger.Error("Inbox watcher stopped", "error", err)
			}
		}()
	}

	if a.metrics != nil {
		a.serveMetrics(ctx)
	}

	sched.Start()
	defer sched.Stop()

	a.logger.Info("Daemon started",
		slog.Duration("scan_interval", interval),
		slog.Bool("legal_watch", a.monitor != nil),
		slog.Bool("inbox_watch", a.local != nil && a.cfg.Sources.Local.Watch))

	requestScan("startup")

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down")
			return nil

		case reason := <-scanRequests:
			summary, err := a.cycle.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				consecutiveFailures++
				a.logger.Error("Scan cycle failed",
					slog.String("trigger", reason),
					slog.Int("consecutive_failures", consecutiveFailures),
					slog.Any("error", err))
				if consecutiveFailures == maxConsecutiveFailures {
					a.escalate(ctx, consecutiveFailures, err)
				}
				continue
			}
			consecutiveFailures = 0
			a.logger.Info("Scan complete",
				slog.String("trigger", reason),
				slog.String("summary", summary.String()))
		}
	}
}

// runScheduledLegalWatch produces the digest and delivers it. Runs on the
// cron goroutine; failures are logged and retried at the next schedule.
func (a *App) runScheduledLegalWatch(ctx context.Context) {
	critical, digest, err := a.monitor.CheckCritical(ctx)
	if err != nil {
		a.logger.Error("Legal watch failed", "error", err)
		return
	}
	if critical {
		a.logger.Warn("Legal watch found critical updates")
	}
	if err := a.notifier.Send(ctx, digest); err != nil {
		a.logger.Error("Failed to deliver legal watch digest", "error", err)
	}
}

// runScheduledExpirationCheck alerts on contracts inside the critical
// window. Quiet when nothing is close to expiring.
func (a *App) runScheduledExpirationCheck(ctx context.Context) {
	entries := a.expirations.Upcoming(time.Now(), a.cfg.Expiration.CriticalDays)
	alert := expiration.CriticalAlert(entries)
	if alert == "" {
		return
	}
	a.logger.Warn("Contracts close to expiring", slog.Int("count", len(entries)))
	if err := a.notifier.Send(ctx, alert); err != nil {
		a.logger.Error("Failed to send expiration alert", "error", err)
	}
}

// escalate tells operators the pipeline is degraded. Best effort; if the
// alert channel is down too, the log is all that is left.
func (a *App) escalate(ctx context.Context, failures int, lastErr error) {
	if err := a.notifier.Send(ctx, notify.EscalationAlert(failures, lastErr)); err != nil {
		a.logger.Error("Failed to send escalation alert", "error", err)
	}
}

// serveMetrics exposes the Prometheus endpoint until the context ends.
func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	go func() {
		a.logger.Info("Metrics endpoint listening", slog.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// runScanOnce runs a single cycle and prints its summary.
func (a *App) runScanOnce(ctx context.Context) error {
	summary, err := a.cycle.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(summary.String())
	return nil
}

// runAnalyzeFile analyzes one document from disk through the same pipeline
// stages, marking it processed in the shared store.
func (a *App) runAnalyzeFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	name := filepath.Base(path)
	text, err := extract.Text(content, name)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	analysis, err := a.analyzer.Analyze(ctx, name, text)
	if err != nil {
		return err
	}

	fmt.Printf("Contract: %s\nRisk score: %d/100\n", name, analysis.RiskScore)
	printList("Risks", analysis.Risks)
	printList("Missing clauses", analysis.MissingClauses)
	printList("Recommendations", analysis.Recommendations)

	if analysis.RiskScore >= a.cfg.Analysis.RiskThreshold {
		if err := a.notifier.Send(ctx, notify.HighRiskAlert(name, analysis)); err != nil {
			return fmt.Errorf("send alert: %w", err)
		}
		fmt.Println("\nHigh-risk alert sent.")
	}

	a.store.MarkProcessed(manualFileID(path, content), tracker.Metadata{
		Name:      name,
		RiskScore: analysis.RiskScore,
	})
	return nil
}

// runLegalOnce runs the legal watch once and prints the digest.
func (a *App) runLegalOnce(ctx context.Context) error {
	if a.monitor == nil {
		return fmt.Errorf("legal watch is disabled in configuration")
	}

	critical, digest, err := a.monitor.CheckCritical(ctx)
	if err != nil {
		return err
	}

	fmt.Println(digest)
	if critical {
		if err := a.notifier.Send(ctx, digest); err != nil {
			return fmt.Errorf("send alert: %w", err)
		}
		fmt.Println("\nCritical alert sent.")
	}
	return nil
}

// runStatus prints the durable state and active configuration summary.
func (a *App) runStatus() error {
	stats := a.store.Stats()
	fmt.Printf("Processed files:  %d\n", stats.Count)
	fmt.Printf("State file:       %s (exists=%v, %d bytes)\n",
		a.cfg.Tracker.Path, stats.PrimaryExists, stats.PrimarySize)
	fmt.Printf("Backup present:   %v\n", stats.BackupExists)

	var srcs []string
	if a.cfg.Sources.Drive.Enabled() {
		srcs = append(srcs, fmt.Sprintf("drive (%d folders)", len(a.cfg.Sources.Drive.FolderIDs)))
	}
	if a.cfg.Sources.Local.Enabled() {
		srcs = append(srcs, fmt.Sprintf("local (%s)", a.cfg.Sources.Local.Dir))
	}
	fmt.Printf("Sources:          %s\n", strings.Join(srcs, ", "))
	fmt.Printf("Analysis model:   %s/%s\n", a.cfg.Analysis.Provider, a.cfg.Analysis.Model)
	fmt.Printf("Risk threshold:   %d\n", a.cfg.Analysis.RiskThreshold)
	fmt.Printf("Scan interval:    %s\n", a.cfg.Scan.GetInterval())
	fmt.Printf("Legal watch:      %v\n", a.cfg.LegalWatch.Enabled)
	fmt.Printf("Expirations:      %d tracked\n", a.expirations.Count())
	return nil
}

// runExpirations prints the report of contracts expiring within the window.
func (a *App) runExpirations(days int) error {
	if days <= 0 {
		days = a.cfg.Expiration.UpcomingDays
	}
	report := expiration.UpcomingReport(a.expirations.Upcoming(time.Now(), days), days)
	if report == "" {
		fmt.Printf("No contract expirations in the next %d days.\n", days)
		return nil
	}
	fmt.Println(report)
	return nil
}

// runExpirationAdd starts tracking a contract's end date.
func (a *App) runExpirationAdd(id, name, date, contractType string, parties []string) error {
	if err := a.expirations.Set(expiration.Record{
		ContractID: id,
		Name:       name,
		ExpiresAt:  date,
		Type:       contractType,
		Parties:    parties,
	}); err != nil {
		return err
	}
	fmt.Printf("Tracking %s, expires %s.\n", name, date)
	return nil
}

// runExpirationRemove stops tracking a contract.
func (a *App) runExpirationRemove(id string) error {
	if err := a.expirations.Remove(id); err != nil {
		return err
	}
	fmt.Printf("Stopped tracking %s.\n", id)
	return nil
}

// runReset forgets one file or the whole processed set.
func (a *App) runReset(fileID string) error {
	if fileID != "" {
		if err := a.store.Remove(fileID); err != nil {
			return err
		}
		fmt.Printf("Forgot %s; it will be reanalyzed next scan.\n", fileID)
		return nil
	}

	if err := a.store.Clear(); err != nil {
		return err
	}
	fmt.Println("Forgot all processed files; everything will be reanalyzed next scan.")
	return nil
}

// runInit writes the default configuration as a starting point. Secrets stay
// in the environment, so the written file is safe to commit.
func runInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; remove it first or choose another path", path)
	}
	if err := config.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Edit it and set ANTHROPIC_API_KEY, TELEGRAM_TOKEN and TELEGRAM_CHAT_ID.\n", path)
	return nil
}

// manualFileID derives a stable ID for documents analyzed by path, so a
// rescan of the same content is recognized as already processed.
func manualFileID(path string, content []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", path)
	h.Write(content)
	return "manual-" + hex.EncodeToString(h.Sum(nil))[:20]
}

// setupLogger configures the process-wide structured logger.
func setupLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// retryPolicy builds the shared outbound-call policy from configuration.
func retryPolicy(cfg *config.Config, logger *slog.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BackoffBase:       cfg.Retry.GetBackoffBase(),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		MaxBackoff:        cfg.Retry.GetMaxBackoff(),
		Jitter:            cfg.Retry.Jitter,
		Logger:            logger,
	}
}

// printList prints a labeled bullet list, skipping empty sections.
func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", label)
	for _, item := range items {
		fmt.Printf("- %s\n", item)
	}
}
