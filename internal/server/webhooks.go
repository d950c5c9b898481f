package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanline/internal/config"
	"loanline/internal/domain"
	"loanline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookBatchSize    = 100
	webhookTimeout      = 5 * time.Second
)

// webhookDispatcher polls the event log and POSTs matching events to the
// configured webhook URLs. Each webhook keeps its own cursor so a slow or
// failing endpoint never blocks the others.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client

	mu      sync.Mutex
	cursors map[int]int64
}

// StartWebhookDispatcher begins delivering events to the webhooks declared in
// config. It is a no-op when none are configured. The returned cancel func
// stops the poll loop.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine) context.CancelFunc {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &webhookDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: webhookTimeout},
		cursors:  map[int]int64{},
	}
	go d.run(ctx)
	return cancel
}

func (d *webhookDispatcher) run(ctx context.Context) {
	// Deliver only events created after startup.
	latest, err := d.engine.Repo.LatestEventID(ctx)
	if err != nil {
		d.engine.Logger.Printf("webhook dispatcher: read latest event id: %v", err)
	}
	d.mu.Lock()
	for i := range d.webhooks {
		d.cursors[i] = latest
	}
	d.mu.Unlock()

	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *webhookDispatcher) drain(ctx context.Context) {
	for i, wh := range d.webhooks {
		d.mu.Lock()
		cursor := d.cursors[i]
		d.mu.Unlock()

		events, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, cursor)
		if err != nil {
			d.engine.Logger.Printf("webhook dispatcher: read events after %d: %v", cursor, err)
			continue
		}
		for _, evt := range events {
			if !eventMatches(wh, evt) {
				cursor = evt.ID
				continue
			}
			if err := d.postEvent(ctx, wh, evt); err != nil {
				d.engine.Logger.Printf("webhook dispatcher: deliver event %d to %s: %v", evt.ID, wh.URL, err)
				break
			}
			cursor = evt.ID
		}

		d.mu.Lock()
		d.cursors[i] = cursor
		d.mu.Unlock()
	}
}

func eventMatches(wh config.WebhookConfig, evt domain.Event) bool {
	if len(wh.Events) == 0 {
		return true
	}
	for _, t := range wh.Events {
		if t == evt.Type {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) postEvent(ctx context.Context, wh config.WebhookConfig, evt domain.Event) error {
	body, err := json.Marshal(map[string]any{
		"id":          evt.ID,
		"ts":          evt.TS,
		"type":        evt.Type,
		"entity_kind": evt.EntityKind,
		"entity_id":   evt.EntityID,
		"actor_id":    evt.ActorID,
		"payload":     json.RawMessage(payloadOrNull(evt.Payload)),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Loanline-Event", evt.Type)
	req.Header.Set("X-Loanline-Delivery", uuid.New().String())
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &webhookStatusError{status: resp.StatusCode}
	}
	return nil
}

func payloadOrNull(p string) string {
	if p == "" {
		return "null"
	}
	return p
}

type webhookStatusError struct {
	status int
}

func (e *webhookStatusError) Error() string {
	return http.StatusText(e.status)
}
