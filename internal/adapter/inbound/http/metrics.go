// Package http provides the HTTP observability adapter for the engine.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oplink/sessionsync/internal/service"
)

// StatsSource yields engine state snapshots for the metrics collectors.
// *service.Engine satisfies it.
type StatsSource interface {
	GetSyncStats() service.SyncStats
}

// Metrics holds all Prometheus metrics for the engine. Engine-level gauges
// and counters read live snapshots from the StatsSource at scrape time; the
// HTTP request metrics are recorded by MetricsMiddleware.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer, source StatsSource) *Metrics {
	engineCounter := func(name, help string, value func(service.SyncStats) int64) {
		promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "sessionsync",
				Name:      name,
				Help:      help,
			},
			func() float64 { return float64(value(source.GetSyncStats())) },
		)
	}
	engineGauge := func(name, help string, value func(service.SyncStats) int) {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "sessionsync",
				Name:      name,
				Help:      help,
			},
			func() float64 { return float64(value(source.GetSyncStats())) },
		)
	}

	engineGauge("active_sessions", "Number of live sessions in the local store",
		func(s service.SyncStats) int { return s.ActiveSessions })
	engineGauge("tracked_devices", "Number of devices in the registry",
		func(s service.SyncStats) int { return s.TrackedDevices })
	engineGauge("pending_pushes", "Queued directory pushes and revocations awaiting flush",
		func(s service.SyncStats) int { return s.PendingPushes })

	engineCounter("sessions_created_total", "Total sessions created",
		func(s service.SyncStats) int64 { return s.Created })
	engineCounter("sessions_revoked_total", "Total sessions revoked",
		func(s service.SyncStats) int64 { return s.Revoked })
	engineCounter("sessions_swept_total", "Total expired sessions evicted by the sweeper",
		func(s service.SyncStats) int64 { return s.Swept })
	engineCounter("events_logged_total", "Total lifecycle events emitted",
		func(s service.SyncStats) int64 { return s.EventsLogged })
	engineCounter("reconcile_pulls_total", "Total reconciliation pull cycles",
		func(s service.SyncStats) int64 { return s.Pulls })
	engineCounter("reconcile_pull_failures_total", "Pull cycles that failed against the directory",
		func(s service.SyncStats) int64 { return s.PullFailures })
	engineCounter("reconcile_pushes_total", "Total successful directory pushes",
		func(s service.SyncStats) int64 { return s.Pushes })
	engineCounter("reconcile_push_failures_total", "Directory pushes that failed and stayed queued",
		func(s service.SyncStats) int64 { return s.PushFailures })
	engineCounter("notifications_applied_total", "Directory change notifications applied",
		func(s service.SyncStats) int64 { return s.Notifications })
	engineCounter("notification_echoes_skipped_total", "Notifications skipped as echoes of own pushes",
		func(s service.SyncStats) int64 { return s.EchoesSkipped })
	engineCounter("remote_merges_total", "Remote records adopted into the local store",
		func(s service.SyncStats) int64 { return s.Merges })

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionsync",
				Name:      "http_requests_total",
				Help:      "Total observability HTTP requests served",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sessionsync",
				Name:      "http_request_duration_seconds",
				Help:      "Observability HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}
