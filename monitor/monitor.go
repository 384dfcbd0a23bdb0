// Package monitor tracks live security signals for the sandbox: running
// execution totals, recent alerts, and per-run network activity.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// maxRecentAlerts bounds the in-memory alert history.
const maxRecentAlerts = 100

// Alert is one raised alert.
type Alert struct {
	Timestamp  time.Time `json:"timestamp"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	ScriptPath string    `json:"script_path,omitempty"`
	Message    string    `json:"message"`
}

// Stats is a snapshot of running totals.
type Stats struct {
	TotalExecutions      int64 `json:"total_executions"`
	SuccessfulExecutions int64 `json:"successful_executions"`
	FailedExecutions     int64 `json:"failed_executions"`
	SecurityViolations   int64 `json:"security_violations"`
	AlertsSent           int64 `json:"alerts_sent"`
}

// Monitor aggregates execution statistics and alert history. Implementations
// must be safe to call from the executor's completion path without blocking
// significantly.
type Monitor interface {
	// RecordExecution records one finished run.
	RecordExecution(scriptPath string, success bool, duration time.Duration, resourceUsage map[string]interface{})

	// RecordViolation records one policy violation.
	RecordViolation(kind, scriptPath string)

	// Alert raises an alert for a metric crossing its threshold.
	Alert(metric string, value float64, scriptPath string)

	// Stats returns a snapshot of running totals.
	Stats() Stats

	// RecentAlerts returns up to n most recent alerts, newest last.
	RecentAlerts(n int) []Alert
}

// StatsMonitor is the in-memory Monitor. Counters are atomic; the alert ring
// is guarded by a mutex. Prometheus collectors live on a dedicated registry
// so embedding applications control exposure.
type StatsMonitor struct {
	totalExecutions      atomic.Int64
	successfulExecutions atomic.Int64
	failedExecutions     atomic.Int64
	securityViolations   atomic.Int64
	alertsSent           atomic.Int64

	mu     sync.Mutex
	alerts []Alert

	registry      *prometheus.Registry
	executions    *prometheus.CounterVec
	violations    *prometheus.CounterVec
	alertsCounter prometheus.Counter
	durations     prometheus.Histogram
}

// NewStatsMonitor creates a monitor with its own Prometheus registry.
func NewStatsMonitor() *StatsMonitor {
	m := &StatsMonitor{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gosandbox",
			Name:      "executions_total",
			Help:      "Script executions by outcome.",
		}, []string{"outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gosandbox",
			Name:      "violations_total",
			Help:      "Policy violations by kind.",
		}, []string{"kind"}),
		alertsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gosandbox",
			Name:      "alerts_total",
			Help:      "Alerts raised by threshold checks.",
		}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gosandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall clock duration of script executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	m.registry.MustRegister(m.executions, m.violations, m.alertsCounter, m.durations)

	return m
}

// Registry exposes the monitor's Prometheus registry for scraping.
func (m *StatsMonitor) Registry() *prometheus.Registry {
	return m.registry
}

// RecordExecution implements Monitor.
func (m *StatsMonitor) RecordExecution(scriptPath string, success bool, duration time.Duration, _ map[string]interface{}) {
	m.totalExecutions.Add(1)
	if success {
		m.successfulExecutions.Add(1)
		m.executions.WithLabelValues("success").Inc()
	} else {
		m.failedExecutions.Add(1)
		m.executions.WithLabelValues("failure").Inc()
	}
	m.durations.Observe(duration.Seconds())
}

// RecordViolation implements Monitor.
func (m *StatsMonitor) RecordViolation(kind, _ string) {
	m.securityViolations.Add(1)
	m.violations.WithLabelValues(kind).Inc()
}

// Alert implements Monitor.
func (m *StatsMonitor) Alert(metric string, value float64, scriptPath string) {
	m.alertsSent.Add(1)
	m.alertsCounter.Inc()

	alert := Alert{
		Timestamp:  time.Now().UTC(),
		Metric:     metric,
		Value:      value,
		ScriptPath: scriptPath,
		Message:    metric + " threshold exceeded",
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxRecentAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxRecentAlerts:]
	}
}

// Stats implements Monitor.
func (m *StatsMonitor) Stats() Stats {
	return Stats{
		TotalExecutions:      m.totalExecutions.Load(),
		SuccessfulExecutions: m.successfulExecutions.Load(),
		FailedExecutions:     m.failedExecutions.Load(),
		SecurityViolations:   m.securityViolations.Load(),
		AlertsSent:           m.alertsSent.Load(),
	}
}

// RecentAlerts implements Monitor.
func (m *StatsMonitor) RecentAlerts(n int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.alerts) == 0 {
		return nil
	}
	if n > len(m.alerts) {
		n = len(m.alerts)
	}

	out := make([]Alert, n)
	copy(out, m.alerts[len(m.alerts)-n:])
	return out
}
