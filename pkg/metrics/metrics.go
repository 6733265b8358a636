// Package metrics provides Prometheus collectors for the HTTP surface and
// the identity store.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "npc_registry"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry
	log logger.Logger

	HTTPRequests *prometheus.CounterVec
	HTTPDuration prometheus.Histogram

	EntityEvents         *prometheus.CounterVec
	Persists             prometheus.Counter
	PersistErrors        prometheus.Counter
	TurnsProcessed       prometheus.Counter
	ExtractionRejections *prometheus.CounterVec
}

// NewMetrics registers the HTTP and store collectors that are enabled.
// Disabled collectors stay nil and the matching record methods are no-ops.
func NewMetrics(httpCounters, storeCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry(), log: l}
	if httpCounters {
		m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by response status code",
		}, []string{"code"})
		m.HTTPDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 3.0},
		})
		m.reg.MustRegister(m.HTTPRequests, m.HTTPDuration)
	}
	if storeCounters {
		m.EntityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_events_total",
			Help:      "Entity lifecycle events by kind",
		}, []string{"event"})
		m.Persists = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_persist_total",
			Help:      "Successful session document writes",
		})
		m.PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_persist_errors_total",
			Help:      "Failed session document reads and writes",
		})
		m.TurnsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_processed_total",
			Help:      "Extraction payloads applied to a session",
		})
		m.ExtractionRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_rejections_total",
			Help:      "Extraction payload entries dropped by reason",
		}, []string{"reason"})
		m.reg.MustRegister(m.EntityEvents, m.Persists, m.PersistErrors, m.TurnsProcessed, m.ExtractionRejections)
	}
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen serves /metrics on its own port until ctx is cancelled.
func (m *Metrics) Listen(ctx context.Context, port int) <-chan error {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		m.log.Info("Stopping metrics listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return errChan
}

// RecordEntityEvent counts a named entity or store event.
func (m *Metrics) RecordEntityEvent(event string) {
	if m == nil || m.EntityEvents == nil {
		return
	}
	m.EntityEvents.WithLabelValues(event).Inc()
}

// RecordPersist counts a document write outcome.
func (m *Metrics) RecordPersist(err error) {
	if m == nil || m.Persists == nil {
		return
	}
	if err != nil {
		m.PersistErrors.Inc()
		return
	}
	m.Persists.Inc()
}

// RecordTurn counts an applied turn.
func (m *Metrics) RecordTurn() {
	if m == nil || m.TurnsProcessed == nil {
		return
	}
	m.TurnsProcessed.Inc()
}

// RecordRejections adds n rejections under reason. Zero is ignored.
func (m *Metrics) RecordRejections(reason string, n int) {
	if m == nil || m.ExtractionRejections == nil || n <= 0 {
		return
	}
	m.ExtractionRejections.WithLabelValues(reason).Add(float64(n))
}

// HTTPMiddleware returns a chi-compatible middleware that tracks request
// counts and durations. It passes requests through untouched when HTTP
// metrics are disabled.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.HTTPRequests == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			m.HTTPDuration.Observe(time.Since(start).Seconds())
			m.HTTPRequests.WithLabelValues(strconv.Itoa(rw.statusCode)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
