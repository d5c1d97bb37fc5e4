package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiln/internal/config"
)

const userAgent = "Kiln/0.1.0"

// Service defines the notification surface exposed to the worker.
type Service interface {
	NotifyRunCompleted(ctx context.Context, runID string, artifacts int, duration time.Duration) error
	NotifyRunFailed(ctx context.Context, runID, stage string, cause error) error
}

// NewService builds the ntfy-backed notifier. The worker runs fine without
// push notifications, so a missing topic yields a notifier that does nothing
// rather than an error.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		onRunCompleted: cfg.Notifications.RunCompleted,
		onRunFailed:    cfg.Notifications.RunFailed,
	}
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	onRunCompleted bool
	onRunFailed    bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID string, artifacts int, duration time.Duration) error {
	if !n.onRunCompleted {
		return nil
	}
	if duration < 0 {
		duration = 0
	}
	body := fmt.Sprintf("✅ Run %s: %d artifact(s) in %s", runID, artifacts, duration.Round(time.Second))
	return n.publish(ctx, "Kiln - Run Complete", body, http.Header{
		"Tags": {"kiln,run,completed"},
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, runID, stage string, cause error) error {
	if !n.onRunFailed {
		return nil
	}
	reason := "unknown"
	if cause != nil {
		reason = strings.TrimSpace(cause.Error())
	}
	during := ""
	if stage = strings.TrimSpace(stage); stage != "" {
		during = " during " + stage
	}
	body := fmt.Sprintf("❌ Run %s failed%s: %s", runID, during, reason)
	return n.publish(ctx, "Kiln - Run Failed", body, http.Header{
		"Tags":     {"kiln,run,failed"},
		"Priority": {"high"},
	})
}

// publish POSTs body to the configured topic. ntfy carries metadata in
// headers; the message itself is the request body.
func (n *ntfyService) publish(ctx context.Context, title, body string, extra http.Header) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", title)
	for key, values := range extra {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, string, int, time.Duration) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, error) error         { return nil }
