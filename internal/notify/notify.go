// Package notify delivers pipeline status messages.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Parse modes understood by Telegram.
const (
	ModeNone       = ""
	ModeHTML       = "HTML"
	ModeMarkdownV2 = "MarkdownV2"
)

// DefaultTelegramAPI is the Telegram Bot API root.
const DefaultTelegramAPI = "https://api.telegram.org"

// Notifier sends one message.
type Notifier interface {
	Notify(ctx context.Context, message, mode string) error
}

// ---------------------------------------------------------------------------
// Telegram
// ---------------------------------------------------------------------------

// Telegram posts messages to a chat through the Bot API.
type Telegram struct {
	apiURL     string
	token      string
	chatID     string
	httpClient *http.Client
}

// NewTelegram creates a Telegram notifier. An empty apiURL uses
// DefaultTelegramAPI.
func NewTelegram(apiURL, token, chatID string) *Telegram {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &Telegram{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Notify implements Notifier. Any status other than 200 is an error.
func (t *Telegram) Notify(ctx context.Context, message, mode string) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram: bot token and chat id are required")
	}
	body, err := json.Marshal(sendMessage{ChatID: t.chatID, Text: message, ParseMode: mode})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.apiURL+"/bot"+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The request URL carries the token; report the host only.
		return fmt.Errorf("telegram: sending message to %s failed", t.apiURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

// Log writes messages to a slog.Logger. It never fails.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, message, mode string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "message", message, "mode", mode)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Send delivers message and logs, rather than returns, a delivery failure.
// Pipelines use it so a notification outage never fails a run.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, message, mode string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, message, mode); err != nil {
		logger.Warn("notification failed", "error", err)
	}
}

// EscapeHTML escapes the characters Telegram's HTML mode reserves.
func EscapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
