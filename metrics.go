package goadsrt

import (
	"sync"
	"time"
)

// Metrics receives client telemetry. Implementations must be safe for
// concurrent use; some methods are called from the read loop and must not
// block.
type Metrics interface {
	// ConnectionState is called on every transport state transition.
	ConnectionState(state string)
	// Reconnected is called when a lost session is re-established.
	Reconnected()
	// OperationCompleted is called once per request with its duration and
	// outcome. err is nil on success.
	OperationCompleted(operation string, duration time.Duration, err error)
	// NotificationReceived counts delivered notification samples.
	NotificationReceived()
	// NotificationDropped counts samples discarded because a consumer fell
	// behind.
	NotificationDropped()
	// SubscriptionsActive reports the current number of live subscriptions.
	SubscriptionsActive(count int)
}

// DefaultMetrics discards all telemetry.
var DefaultMetrics Metrics = NopMetrics{}

// NopMetrics is a Metrics that discards everything.
type NopMetrics struct{}

func (NopMetrics) ConnectionState(string)                          {}
func (NopMetrics) Reconnected()                                    {}
func (NopMetrics) OperationCompleted(string, time.Duration, error) {}
func (NopMetrics) NotificationReceived()                           {}
func (NopMetrics) NotificationDropped()                            {}
func (NopMetrics) SubscriptionsActive(int)                         {}

// OperationStats aggregates one operation's counters.
type OperationStats struct {
	Count         uint64
	Errors        uint64
	TotalDuration time.Duration
}

// InMemoryMetrics keeps counters in memory, mainly for tests and debugging.
type InMemoryMetrics struct {
	mu sync.Mutex

	state                 string
	reconnects            uint64
	operations            map[string]*OperationStats
	notificationsReceived uint64
	notificationsDropped  uint64
	subscriptionsActive   int
}

// NewInMemoryMetrics returns an empty in-memory collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{operations: make(map[string]*OperationStats)}
}

func (m *InMemoryMetrics) ConnectionState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Reconnected() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) OperationCompleted(operation string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.operations[operation]
	if !ok {
		stats = &OperationStats{}
		m.operations[operation] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	if err != nil {
		stats.Errors++
	}
}

func (m *InMemoryMetrics) NotificationReceived() {
	m.mu.Lock()
	m.notificationsReceived++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) NotificationDropped() {
	m.mu.Lock()
	m.notificationsDropped++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) SubscriptionsActive(count int) {
	m.mu.Lock()
	m.subscriptionsActive = count
	m.mu.Unlock()
}

// State returns the last reported transport state.
func (m *InMemoryMetrics) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reconnects returns the number of re-established sessions.
func (m *InMemoryMetrics) Reconnects() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// Operation returns a copy of the stats for one operation.
func (m *InMemoryMetrics) Operation(name string) OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats, ok := m.operations[name]; ok {
		return *stats
	}
	return OperationStats{}
}

// Notifications returns received and dropped sample counts.
func (m *InMemoryMetrics) Notifications() (received, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notificationsReceived, m.notificationsDropped
}

// Subscriptions returns the last reported live subscription count.
func (m *InMemoryMetrics) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptionsActive
}
