// Package alert notifies operators when a watched target stops syncing or
// recovers.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kslji/trackUserAddress/internal/metrics"
)

type AlertType string

const (
	AlertTypeUnhealthy AlertType = "UNHEALTHY"
	AlertTypeRecovery  AlertType = "RECOVERY"
)

// Alert is one notification about a sync target.
type Alert struct {
	Type    AlertType
	Target  string // address|category|direction
	Title   string
	Message string
	Fields  map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans an alert out to every channel, at most once per
// (type, target) within the cooldown.
type MultiAlerter struct {
	channels map[string]Alerter
	names    []string
	cooldown time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewMultiAlerter keys channels by name for metrics and logs.
func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, channels map[string]Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return &MultiAlerter{
		channels: channels,
		names:    names,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		nowFn:    time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	key := string(alert.Type) + ":" + alert.Target

	m.mu.Lock()
	now := m.nowFn()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		metrics.AlertsCooldownSkipped.WithLabelValues(string(alert.Type)).Inc()
		return nil
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	var firstErr error
	for _, name := range m.names {
		if err := m.channels[name].Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed", "channel", name, "type", alert.Type, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(name, string(alert.Type)).Inc()
	}
	return firstErr
}

// SlackAlerter posts a formatted message to a Slack incoming webhook.
type SlackAlerter struct {
	webhookURL string
	client     *http.Client
}

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SlackAlerter) Send(ctx context.Context, alert Alert) error {
	emoji := ":warning:"
	if alert.Type == AlertTypeRecovery {
		emoji = ":white_check_mark:"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s]* %s: %s\n%s", emoji, alert.Type, alert.Target, alert.Title, alert.Message)
	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- *%s*: %s", k, alert.Fields[k])
	}

	return postJSON(ctx, s.client, s.webhookURL, map[string]string{"text": b.String()})
}

// WebhookAlerter posts the alert as a JSON document.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	return postJSON(ctx, w.client, w.url, map[string]any{
		"type":    string(alert.Type),
		"target":  alert.Target,
		"title":   alert.Title,
		"message": alert.Message,
		"fields":  alert.Fields,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopAlerter drops every alert.
type NoopAlerter struct{}

func (NoopAlerter) Send(context.Context, Alert) error { return nil }
