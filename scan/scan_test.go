package scan_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissential/contractwatch/analyze"
	"github.com/aissential/contractwatch/config"
	"github.com/aissential/contractwatch/extract"
	"github.com/aissential/contractwatch/llm"
	_ "github.com/aissential/contractwatch/llm/providers" // Register providers
	"github.com/aissential/contractwatch/notify"
	"github.com/aissential/contractwatch/retry"
	"github.com/aissential/contractwatch/scan"
	"github.com/aissential/contractwatch/source"
	"github.com/aissential/contractwatch/tracker"
)

// fakeSource serves fixed files from memory.
type fakeSource struct {
	files   []source.File
	content map[string][]byte
	listErr error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) List(ctx context.Context) ([]source.File, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeSource) Download(ctx context.Context, id string) ([]byte, error) {
	content, ok := f.content[id]
	if !ok {
		return nil, fmt.Errorf("unknown file ID: %s", id)
	}
	return content, nil
}

// fakeNotifier records sent messages and can be told to fail.
type fakeNotifier struct {
	sent    []string
	sendErr error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

// riskModel serves analyses whose risk score depends on the contract name
// found in the prompt. Names are recorded in call order.
func riskModel(t *testing.T, scores map[string]int, calls *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompt := body.Messages[len(body.Messages)-1].Content

		score := 0
		for name, s := range scores {
			if strings.Contains(prompt, "Contract Name: "+name) {
				score = s
				if calls != nil {
					*calls = append(*calls, name)
				}
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"content": fmt.Sprintf(`{"risk_score": %d, "risks": ["Sample risk"]}`, score),
				}},
			},
		})
	}))
}

func newAnalyzer(t *testing.T, baseURL string) *analyze.Analyzer {
	t.Helper()
	client := llm.NewClient(llm.WithRetryPolicy(fastPolicy()))
	a, err := analyze.New(client, config.AnalysisConfig{
		Provider: "openai",
		Model:    "test-model",
		APIKey:   "sk-test",
		BaseURL:  baseURL,
	}, nil)
	require.NoError(t, err)
	return a
}

func newTracker(t *testing.T) *tracker.Store {
	t.Helper()
	return tracker.New(tracker.Options{
		Path: filepath.Join(t.TempDir(), "processed.json"),
	})
}

func newCycle(src source.Source, a *analyze.Analyzer, n notify.Notifier, tr *tracker.Store) *scan.Cycle {
	return &scan.Cycle{
		Source:    src,
		Extract:   extract.Text,
		Analyzer:  a,
		Notifier:  n,
		Tracker:   tr,
		Retry:     fastPolicy(),
		Threshold: 60,
	}
}

func TestRun_SkipsAlreadyProcessed(t *testing.T) {
	var calls []string
	server := riskModel(t, map[string]int{"a.txt": 10, "b.txt": 20, "c.txt": 30}, &calls)
	defer server.Close()

	src := &fakeSource{
		files: []source.File{
			{ID: "file-a", Name: "a.txt"},
			{ID: "file-b", Name: "b.txt"},
			{ID: "file-c", Name: "c.txt"},
		},
		content: map[string][]byte{
			"file-a": []byte("contract a"),
			"file-b": []byte("contract b"),
			"file-c": []byte("contract c"),
		},
	}

	tr := newTracker(t)
	tr.MarkProcessed("file-a", tracker.Metadata{Name: "a.txt"})

	notifier := &fakeNotifier{}
	cycle := newCycle(src, newAnalyzer(t, server.URL), notifier, tr)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"b.txt", "c.txt"}, calls)
}

func TestRun_HighRiskSendsOneAlert(t *testing.T) {
	server := riskModel(t, map[string]int{"vendor.txt": 75}, nil)
	defer server.Close()

	src := &fakeSource{
		files:   []source.File{{ID: "file-v", Name: "vendor.txt"}},
		content: map[string][]byte{"file-v": []byte("one-sided terms")},
	}

	tr := newTracker(t)
	notifier := &fakeNotifier{}
	cycle := newCycle(src, newAnalyzer(t, server.URL), notifier, tr)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Alerts)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "vendor.txt")
	assert.Contains(t, notifier.sent[0], "Risk Score: 75/100")
	assert.True(t, tr.IsProcessed("file-v"))
}

func TestRun_LowRiskNoAlertStillMarked(t *testing.T) {
	server := riskModel(t, map[string]int{"nda.txt": 40}, nil)
	defer server.Close()

	src := &fakeSource{
		files:   []source.File{{ID: "file-n", Name: "nda.txt"}},
		content: map[string][]byte{"file-n": []byte("standard mutual nda")},
	}

	tr := newTracker(t)
	notifier := &fakeNotifier{}
	cycle := newCycle(src, newAnalyzer(t, server.URL), notifier, tr)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Alerts)
	assert.Empty(t, notifier.sent)
	assert.True(t, tr.IsProcessed("file-n"))
}

func TestRun_ThresholdBoundaryAlerts(t *testing.T) {
	server := riskModel(t, map[string]int{"edge.txt": 60}, nil)
	defer server.Close()

	src := &fakeSource{
		files:   []source.File{{ID: "file-e", Name: "edge.txt"}},
		content: map[string][]byte{"file-e": []byte("borderline terms")},
	}

	notifier := &fakeNotifier{}
	cycle := newCycle(src, newAnalyzer(t, server.URL), notifier, newTracker(t))

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)
}

func TestRun_ExtractionFailureSkipsAndContinues(t *testing.T) {
	server := riskModel(t, map[string]int{"good.txt": 10}, nil)
	defer server.Close()

	src := &fakeSource{
		files: []source.File{
			{ID: "file-bad", Name: "scan.pdf"},
			{ID: "file-good", Name: "good.txt"},
		},
		content: map[string][]byte{
			"file-bad":  []byte("not a pdf at all"),
			"file-good": []byte("plain contract"),
		},
	}

	tr := newTracker(t)
	cycle := newCycle(src, newAnalyzer(t, server.URL), &fakeNotifier{}, tr)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.False(t, tr.IsProcessed("file-bad"))
	assert.True(t, tr.IsProcessed("file-good"))
}

func TestRun_AlertFailureLeavesFileUnmarked(t *testing.T) {
	server := riskModel(t, map[string]int{"risky.txt": 90}, nil)
	defer server.Close()

	src := &fakeSource{
		files:   []source.File{{ID: "file-r", Name: "risky.txt"}},
		content: map[string][]byte{"file-r": []byte("dangerous terms")},
	}

	tr := newTracker(t)
	notifier := &fakeNotifier{sendErr: retry.NewFatalError(errors.New("chat not found"))}
	cycle := newCycle(src, newAnalyzer(t, server.URL), notifier, tr)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Alerts)
	assert.False(t, tr.IsProcessed("file-r"))
}

func TestRun_ListingFailureAbortsCycle(t *testing.T) {
	src := &fakeSource{listErr: retry.NewFatalError(errors.New("folder gone"))}
	cycle := newCycle(src, newAnalyzer(t, "http://unused.invalid"), &fakeNotifier{}, newTracker(t))

	_, err := cycle.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "list documents")
}

func TestRun_SecondCycleSkipsEverything(t *testing.T) {
	server := riskModel(t, map[string]int{"a.txt": 10}, nil)
	defer server.Close()

	src := &fakeSource{
		files:   []source.File{{ID: "file-a", Name: "a.txt"}},
		content: map[string][]byte{"file-a": []byte("contract a")},
	}

	tr := newTracker(t)
	cycle := newCycle(src, newAnalyzer(t, server.URL), &fakeNotifier{}, tr)

	first, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)
}
