package goadsrt

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg, "goadsrt")
	if err != nil {
		t.Fatalf("NewPrometheusMetrics() error = %v", err)
	}

	m.ConnectionState("connected")
	m.Reconnected()
	m.OperationCompleted("read_state", 2*time.Millisecond, nil)
	m.OperationCompleted("read_state", 2*time.Millisecond, ErrTimeout)
	m.NotificationReceived()
	m.NotificationDropped()
	m.SubscriptionsActive(3)

	if got := testutil.ToFloat64(m.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operationErrors.WithLabelValues("read_state", "timeout")); got != 1 {
		t.Errorf("operation errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.notificationsReceived); got != 1 {
		t.Errorf("notifications received = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.notificationsDropped); got != 1 {
		t.Errorf("notifications dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.subscriptionsActive); got != 3 {
		t.Errorf("subscriptions active = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.connectionState.WithLabelValues("connected")); got != 1 {
		t.Errorf("connection state gauge = %v, want 1", got)
	}
}

func TestPrometheusMetricsStateIsExclusive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg, "goadsrt")
	if err != nil {
		t.Fatalf("NewPrometheusMetrics() error = %v", err)
	}

	m.ConnectionState("connecting")
	m.ConnectionState("connected")

	if got := testutil.ToFloat64(m.connectionState.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected gauge = %v, want 1", got)
	}
	// The previous state must not linger alongside the current one.
	if got := testutil.CollectAndCount(m.connectionState); got != 1 {
		t.Errorf("connection_state series count = %d, want 1", got)
	}
}

func TestPrometheusMetricsDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(reg, "goadsrt"); err != nil {
		t.Fatalf("first registration error = %v", err)
	}
	if _, err := NewPrometheusMetrics(reg, "goadsrt"); err == nil {
		t.Error("second registration on the same registry succeeded, want error")
	}
}
