package goadsrt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics exports client telemetry as Prometheus collectors.
type PrometheusMetrics struct {
	connectionState       *prometheus.GaugeVec
	reconnects            prometheus.Counter
	operationDuration     *prometheus.HistogramVec
	operationErrors       *prometheus.CounterVec
	notificationsReceived prometheus.Counter
	notificationsDropped  prometheus.Counter
	subscriptionsActive   prometheus.Gauge
}

// NewPrometheusMetrics builds the collectors and registers them on reg. Use
// prometheus.DefaultRegisterer for the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "goadsrt"
	}
	m := &PrometheusMetrics{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current transport state, 1 for the active state.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Sessions re-established after connection loss.",
		}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Round-trip time per ADS operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed ADS operations by category.",
		}, []string{"operation", "category"}),
		notificationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_received_total",
			Help:      "Notification samples delivered to subscriptions.",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notification samples discarded due to slow consumers.",
		}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Currently registered device notifications.",
		}),
	}

	collectors := []prometheus.Collector{
		m.connectionState, m.reconnects, m.operationDuration,
		m.operationErrors, m.notificationsReceived,
		m.notificationsDropped, m.subscriptionsActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) ConnectionState(state string) {
	m.connectionState.Reset()
	m.connectionState.WithLabelValues(state).Set(1)
}

func (m *PrometheusMetrics) Reconnected() {
	m.reconnects.Inc()
}

func (m *PrometheusMetrics) OperationCompleted(operation string, duration time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation, string(Classify(err))).Inc()
	}
}

func (m *PrometheusMetrics) NotificationReceived() {
	m.notificationsReceived.Inc()
}

func (m *PrometheusMetrics) NotificationDropped() {
	m.notificationsDropped.Inc()
}

func (m *PrometheusMetrics) SubscriptionsActive(count int) {
	m.subscriptionsActive.Set(float64(count))
}
