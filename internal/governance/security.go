package governance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SecurityEvent is one audited security occurrence, e.g. a webhook signature
// mismatch or a missing signature header.
type SecurityEvent struct {
	Time    time.Time `json:"time"`
	Context string    `json:"context"`
}

// SecurityMonitor records security events for auditing. Recording never
// fails or blocks the caller: events are logged, counted, and retained in a
// fixed-size ring with oldest-first eviction for the admin surface.
type SecurityMonitor struct {
	logger  *slog.Logger
	counter prometheus.Counter

	mu       sync.RWMutex
	events   []SecurityEvent
	head     int
	size     int
	capacity int
	total    uint64
}

// NewSecurityMonitor creates a monitor retaining up to capacity recent
// events. The counter is optional and may be nil.
func NewSecurityMonitor(logger *slog.Logger, capacity int, counter prometheus.Counter) *SecurityMonitor {
	if capacity <= 0 {
		capacity = 100
	}
	return &SecurityMonitor{
		logger:   logger.With("component", "security_monitor"),
		counter:  counter,
		events:   make([]SecurityEvent, capacity),
		capacity: capacity,
	}
}

// Record audits a security event. Safe to call from any error-handling path.
func (m *SecurityMonitor) Record(context string) {
	event := SecurityEvent{Time: time.Now(), Context: context}

	m.mu.Lock()
	idx := (m.head + m.size) % m.capacity
	if m.size < m.capacity {
		m.size++
	} else {
		// Ring is full, overwrite oldest.
		idx = m.head
		m.head = (m.head + 1) % m.capacity
	}
	m.events[idx] = event
	m.total++
	m.mu.Unlock()

	m.logger.Warn("security event recorded", "context", context)
	if m.counter != nil {
		m.counter.Inc()
	}
}

// Recent returns the retained events ordered oldest to newest.
func (m *SecurityMonitor) Recent() []SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SecurityEvent, 0, m.size)
	for i := 0; i < m.size; i++ {
		out = append(out, m.events[(m.head+i)%m.capacity])
	}
	return out
}

// Total returns the number of events recorded over the monitor's lifetime,
// including events already evicted from the ring.
func (m *SecurityMonitor) Total() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}
