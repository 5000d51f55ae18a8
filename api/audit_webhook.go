package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// webhookQueueSize is the bounded channel capacity for outbound audit events.
const webhookQueueSize = 256

// webhookEvent is the JSON body POSTed to the audit endpoint.
type webhookEvent struct {
	Event     string            `json:"event"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Timestamp string            `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// auditWebhook forwards audit events to an HTTP endpoint from a background
// goroutine. enqueue never blocks; events are dropped when the queue is full.
type auditWebhook struct {
	url        string
	authHeader string
	client     *http.Client
	log        *slog.Logger
	events     chan webhookEvent
	wg         sync.WaitGroup
}

func newAuditWebhook(url, authHeader string, logger *slog.Logger) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        logger,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *auditWebhook) enqueue(evt webhookEvent) {
	select {
	case w.events <- evt:
	default:
		w.log.Warn("audit webhook queue full, dropping event", "event", evt.Event)
	}
}

// close stops accepting events and waits for the queue to drain.
func (w *auditWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs evt, retrying once on a transport error or 5xx.
func (w *auditWebhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.log.Warn("audit webhook marshal failed", "error", err)
		return
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			time.Sleep(500 * time.Millisecond)
		}
		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.log.Warn("audit webhook request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "nexusvault-audit/1")
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.log.Warn("audit webhook delivery failed", "error", err, "attempt", attempt)
			continue
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			w.log.Warn("audit webhook server error", "status", resp.StatusCode, "attempt", attempt)
		default:
			w.log.Warn("audit webhook rejected event", "status", resp.StatusCode)
			return
		}
	}
}
