package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (s *alertSink) record(e AlertEvent) {
	s.mu.Lock()
	s.alerts = append(s.alerts, e)
	s.mu.Unlock()
}

func (s *alertSink) snapshot() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertEvent(nil), s.alerts...)
}

func TestUnlockFailureSpikeAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.failures.threshold = 5

	for range 4 {
		collector.recordEvent(AuditVaultDenied)
	}
	assert.Empty(t, sink.snapshot(), "no alert below threshold")

	// Rate-limited attempts count towards the same spike.
	collector.recordEvent(AuditUnlockRateLimited)
	alerts := sink.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertUnlockFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
	assert.Equal(t, 5, alerts[0].Threshold)
}

func TestBulkRevealAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.reveals.threshold = 3

	collector.recordEvent(AuditSecretRevealed)
	collector.recordEvent(AuditSecretRevealed)
	collector.recordEvent(AuditSecretHidden)
	assert.Empty(t, sink.snapshot())

	collector.recordEvent(AuditSecretRevealed)
	alerts := sink.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBulkReveal, alerts[0].Type)
	assert.Equal(t, 3, alerts[0].Count)
}

func TestMetricsIgnoresUnrelatedEvents(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.record)
	collector.failures.threshold = 1
	collector.reveals.threshold = 1

	collector.recordEvent(AuditVaultUnlocked)
	collector.recordEvent(AuditVaultLocked)
	collector.recordEvent(AuditRecordDeleted)
	assert.Empty(t, sink.snapshot())
}

func TestMetricsNilSafe(t *testing.T) {
	newMetricsCollector(nil).recordEvent(AuditVaultDenied)

	var collector *metricsCollector
	collector.recordEvent(AuditVaultDenied)
}

func TestWindow_Expiry(t *testing.T) {
	w := window{span: time.Minute, threshold: 3}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, fired := w.add(start)
	assert.False(t, fired)
	_, fired = w.add(start.Add(10 * time.Second))
	assert.False(t, fired)

	// The first event has slid out, so three events make only two.
	_, fired = w.add(start.Add(65 * time.Second))
	assert.False(t, fired)

	n, fired := w.add(start.Add(66 * time.Second))
	assert.True(t, fired)
	assert.Equal(t, 3, n)
}

func TestWindow_ResetsAfterFiring(t *testing.T) {
	w := window{span: time.Minute, threshold: 2}
	now := time.Now()

	w.add(now)
	_, fired := w.add(now)
	require.True(t, fired)

	_, fired = w.add(now)
	assert.False(t, fired, "count restarts after an alert")
	_, fired = w.add(now)
	assert.True(t, fired)
}
