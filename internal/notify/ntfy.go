package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mergedesk/internal/config"
	"mergedesk/internal/logging"
)

const userAgent = "mergedesk/1.0"

// NewNtfy builds a sink that forwards selected notifications to an ntfy
// topic. It returns Discard when no topic is configured.
func NewNtfy(cfg *config.Config, logger *slog.Logger) Sink {
	if cfg == nil {
		return Discard{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Discard{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfySink{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
		logger:   logging.NewComponentLogger(logger, "ntfy"),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfySink struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
	logger   *slog.Logger
}

func (n *ntfySink) Notify(ctx context.Context, note Notification) {
	data, ok := n.format(note)
	if !ok {
		return
	}
	if err := n.send(ctx, data); err != nil {
		logging.WarnWithContext(n.logger, "ntfy delivery failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}
}

// Emit is a no-op; host events are not pushed.
func (n *ntfySink) Emit(context.Context, Event) {}

func (n *ntfySink) format(note Notification) (payload, bool) {
	message := strings.TrimSpace(note.Message)
	if message == "" {
		return payload{}, false
	}
	if note.Severity == SeverityError {
		if !n.settings.Errors {
			return payload{}, false
		}
		return payload{
			title:    "mergedesk - Error",
			message:  "❌ " + message,
			tags:     []string{"mergedesk", string(note.Source), "error"},
			priority: "high",
		}, true
	}
	switch note.Source {
	case SourceScan:
		if !n.settings.Scans {
			return payload{}, false
		}
		return payload{
			title:   "mergedesk - Scan",
			message: "🔎 " + message,
			tags:    []string{"mergedesk", "scan", string(note.Severity)},
		}, true
	case SourceMerge:
		if !n.settings.Merges || note.Severity != SeveritySuccess {
			return payload{}, false
		}
		return payload{
			title:   "mergedesk - Merge",
			message: "✅ " + message,
			tags:    []string{"mergedesk", "merge", "completed"},
		}, true
	}
	return payload{}, false
}

func (n *ntfySink) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
