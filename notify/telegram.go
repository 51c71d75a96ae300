package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/aissential/contractwatch/config"
	"github.com/aissential/contractwatch/retry"
)

// telegramBaseURL is the production Bot API endpoint.
const telegramBaseURL = "https://api.telegram.org"

// maxMessageLength truncates outgoing messages below Telegram's 4096-char
// limit, leaving headroom for the API's own accounting.
const maxMessageLength = 4000

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegram creates a Telegram notifier from validated configuration.
func NewTelegram(cfg config.TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat ID are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramBaseURL
	}

	return &Telegram{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		logger: logger,
	}, nil
}

// Name identifies the channel.
func (t *Telegram) Name() string { return "telegram" }

// Send delivers text to the configured chat, truncating oversize messages.
// Failures are classified for the caller's retry policy.
func (t *Telegram) Send(ctx context.Context, text string) error {
	text = truncateMessage(text, maxMessageLength)

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("marshal telegram payload: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return retry.NewTransientError(fmt.Errorf("telegram request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("telegram API error: %w", retry.ClassifyHTTPStatus(resp.StatusCode, body))
		if resp.StatusCode == http.StatusTooManyRequests {
			if after := parseTelegramRetryAfter(body); after > 0 {
				return retry.NewRateLimitError(apiErr, after)
			}
		}
		return apiErr
	}

	t.logger.Info("Telegram alert sent", slog.Int("length", len(text)))
	return nil
}

// truncateMessage cuts text to at most max bytes without splitting a rune.
// The Bot API rejects invalid UTF-8 outright, so a byte-level cut through a
// multi-byte character would turn an oversize alert into a lost one.
func truncateMessage(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// parseTelegramRetryAfter reads the retry_after hint from a 429 response.
func parseTelegramRetryAfter(body []byte) time.Duration {
	var errResp struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return 0
	}
	return time.Duration(errResp.Parameters.RetryAfter) * time.Second
}
