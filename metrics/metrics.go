// Package metrics exposes Prometheus instrumentation for the access
// coordinator: a standalone metrics HTTP server plus the domain counters the
// rest of the system increments.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the Prometheus registry over HTTP.
type MetricsServer struct {
	srv      *http.Server
	registry *prometheus.Registry

	// EventsMerged counts remote events folded into the local session,
	// labelled by merge outcome.
	EventsMerged *prometheus.CounterVec

	// EventsBroadcast counts locally-originated events, labelled by kind.
	EventsBroadcast *prometheus.CounterVec

	// GrantsReceived counts grants folded into the local grantor set.
	GrantsReceived prometheus.Counter

	// UnauthorizedAttempts counts open attempts by parties that were never
	// granted access, local and remote alike.
	UnauthorizedAttempts prometheus.Counter

	// SessionsOpened counts epochs that reached the opened phase.
	SessionsOpened prometheus.Counter

	// SessionResets counts session resets, labelled by trigger.
	SessionResets *prometheus.CounterVec
}

// New creates a metrics server listening on listenAddr. All metric names are
// prefixed with appName.
func New(appName, listenAddr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsServer{
		registry: registry,
		EventsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "events_merged_total",
			Help:      "Remote events folded into the local session, by merge outcome.",
		}, []string{"outcome"}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "events_broadcast_total",
			Help:      "Locally-originated events sent to the sync channel, by kind.",
		}, []string{"kind"}),
		GrantsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "grants_received_total",
			Help:      "Grants folded into the local grantor set.",
		}),
		UnauthorizedAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "unauthorized_attempts_total",
			Help:      "Open attempts by parties that were never granted access.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "sessions_opened_total",
			Help:      "Epochs that reached the opened phase.",
		}),
		SessionResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "session_resets_total",
			Help:      "Session resets, by trigger.",
		}, []string{"trigger"}),
	}
	registry.MustRegister(
		m.EventsMerged,
		m.EventsBroadcast,
		m.GrantsReceived,
		m.UnauthorizedAttempts,
		m.SessionsOpened,
		m.SessionResets,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// ListenAndServe blocks serving the registry until Shutdown is called.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
