package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissential/contractwatch/metrics"
)

func TestMetrics_CountersAppearInScrape(t *testing.T) {
	m := metrics.New()
	m.ScanCycle()
	m.FileProcessed(75)
	m.FileProcessed(20)
	m.FileSkipped()
	m.AlertSent()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	scrape := string(body)
	assert.Contains(t, scrape, "contractwatch_scan_cycles_total 1")
	assert.Contains(t, scrape, "contractwatch_files_processed_total 2")
	assert.Contains(t, scrape, "contractwatch_files_skipped_total 1")
	assert.Contains(t, scrape, "contractwatch_alerts_sent_total 1")
	assert.Contains(t, scrape, "contractwatch_risk_score_count 2")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ScanCycle()
	m.FileProcessed(50)
	m.FileSkipped()
	m.FileFailed()
	m.AlertSent()
	m.FlushFailure()
	m.ScanFailure()
	assert.NotNil(t, m.Handler())
}
