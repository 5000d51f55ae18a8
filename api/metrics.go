package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertUnlockFailureSpike AlertType = "unlock_failure_spike"
	AlertBulkReveal         AlertType = "bulk_reveal"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// window counts events inside a sliding time span.
type window struct {
	times     []time.Time
	span      time.Duration
	threshold int
}

// add records an event at now and reports the count if the threshold was
// reached, resetting the window.
func (w *window) add(now time.Time) (int, bool) {
	w.times = append(w.times, now)
	cutoff := now.Add(-w.span)
	start := 0
	for start < len(w.times) && w.times[start].Before(cutoff) {
		start++
	}
	w.times = w.times[start:]
	if len(w.times) < w.threshold {
		return 0, false
	}
	n := len(w.times)
	w.times = w.times[:0]
	return n, true
}

// metricsCollector turns audit events into alerts.
type metricsCollector struct {
	mu       sync.Mutex
	failures window
	reveals  window
	alertFn  AlertFunc
}

const (
	defaultFailureWindow    = time.Minute
	defaultFailureThreshold = 30
	defaultRevealWindow     = time.Minute
	defaultRevealThreshold  = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		failures: window{span: defaultFailureWindow, threshold: defaultFailureThreshold},
		reveals:  window{span: defaultRevealWindow, threshold: defaultRevealThreshold},
		alertFn:  alertFn,
	}
}

func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var (
		w   *window
		typ AlertType
		msg string
	)
	switch event {
	case AuditVaultDenied, AuditUnlockRateLimited:
		w, typ, msg = &m.failures, AlertUnlockFailureSpike, "unlock failure rate exceeds threshold"
	case AuditSecretRevealed:
		w, typ, msg = &m.reveals, AlertBulkReveal, "secret reveal rate exceeds threshold"
	default:
		return
	}

	m.mu.Lock()
	now := time.Now()
	n, fire := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{Type: typ, Message: msg, Count: n, Threshold: threshold, Timestamp: now})
	}
}
