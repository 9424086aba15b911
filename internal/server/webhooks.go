package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiceui/internal/config"
	"voiceui/internal/events"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the outcome journal and posts new records to each
// configured hook. Each hook keeps its own cursor; a failed delivery is
// retried on the next tick.
type webhookDispatcher struct {
	journal  events.Journal
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   zerolog.Logger
	interval time.Duration
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhooks delivers outcomes until ctx is done. Hooks only see outcomes
// journaled after startup.
func StartWebhooks(ctx context.Context, journal events.Journal, hooks []config.WebhookConfig, logger zerolog.Logger) {
	d := newWebhookDispatcher(journal, hooks, logger)
	if d == nil {
		return
	}
	go d.run(ctx)
}

// newWebhookDispatcher returns nil when no hook is active.
func newWebhookDispatcher(journal events.Journal, hooks []config.WebhookConfig, logger zerolog.Logger) *webhookDispatcher {
	var active []config.WebhookConfig
	for _, h := range hooks {
		if h.Active() {
			active = append(active, h)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return &webhookDispatcher{
		journal:  journal,
		webhooks: active,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	records, err := d.journal.After(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		d.logger.Error().Err(err).Msg("webhook: fetch outcomes failed")
		return
	}
	filter := newStatusFilter(hook.Statuses)
	for _, rec := range records {
		if !filter.match(string(rec.Status)) {
			d.setCursor(idx, rec.Seq)
			continue
		}
		if err := d.post(ctx, hook, rec); err != nil {
			d.logger.Warn().Err(err).Str("url", hook.URL).Msg("webhook: delivery failed")
			return
		}
		d.setCursor(idx, rec.Seq)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.journal.LatestSeq(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("webhook: init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.WebhookConfig, rec events.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	client := d.client
	if hook.Timeout > 0 && hook.Timeout != d.client.Timeout {
		client = &http.Client{Timeout: hook.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Voiceui-Status", string(rec.Status))
	req.Header.Set("X-Voiceui-Delivery", fmt.Sprintf("%d", rec.Seq))
	if rec.Session != "" {
		req.Header.Set("X-Voiceui-Session", rec.Session)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Voiceui-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type statusFilter struct {
	all bool
	set map[string]struct{}
}

func newStatusFilter(statuses []string) statusFilter {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		if key := strings.TrimSpace(s); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return statusFilter{all: true}
	}
	return statusFilter{set: set}
}

func (f statusFilter) match(status string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[status]
	return ok
}
