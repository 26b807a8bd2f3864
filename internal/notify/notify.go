package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// Notifier delivers operator-facing notifications. Implementations are best
// effort: delivery problems are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, severity, message string, fields map[string]any)
}

// LogNotifier writes notifications to the structured log. It is the default
// when no webhook is configured.
type LogNotifier struct{}

var _ Notifier = (*LogNotifier)(nil)

func (LogNotifier) Notify(_ context.Context, severity, message string, fields map[string]any) {
	payload := map[string]any{"severity": severity, "message": message}
	for k, v := range fields {
		payload[k] = v
	}
	telemetry.Info("notify", payload)
}

// WebhookNotifier posts notifications as JSON to a configured URL.
type WebhookNotifier struct {
	URL  string
	HTTP *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, severity, message string, fields map[string]any) {
	body, err := json.Marshal(map[string]any{
		"severity": severity,
		"message":  message,
		"fields":   fields,
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		telemetry.Warn("notify.marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		telemetry.Warn("notify.request_failed", map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		telemetry.Warn("notify.delivery_failed", map[string]any{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		telemetry.Warn("notify.delivery_failed", map[string]any{"status": resp.StatusCode})
	}
}
