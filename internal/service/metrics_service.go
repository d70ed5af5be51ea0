package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the scheduling loop, and the ledger.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	schedulerTicks  prometheus.Counter
	timersArmed     prometheus.Counter
	transitions     *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	ledgerWrites    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	schedulerTicks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Total scheduler re-evaluation ticks",
	})

	timersArmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_timers_armed_total",
		Help: "Total occurrence timers armed",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shift_transitions_fired_total",
		Help: "Total shift transitions fired per layer",
	}, []string{"layer"})

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_dispatches_total",
		Help: "Total notification dispatch attempts by outcome",
	}, []string{"outcome"})

	ledgerWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_writes_total",
		Help: "Total historical assignment writes by outcome",
	}, []string{"outcome"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, schedulerTicks, timersArmed, transitions, dispatches, ledgerWrites, cacheHits, cacheMisses, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		schedulerTicks:  schedulerTicks,
		timersArmed:     timersArmed,
		transitions:     transitions,
		dispatches:      dispatches,
		ledgerWrites:    ledgerWrites,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSchedulerTick counts one re-evaluation pass.
func (m *MetricsService) ObserveSchedulerTick() {
	if m == nil {
		return
	}
	m.schedulerTicks.Inc()
}

// ObserveTimerArmed counts one armed occurrence timer.
func (m *MetricsService) ObserveTimerArmed() {
	if m == nil {
		return
	}
	m.timersArmed.Inc()
}

// ObserveTransitionFired counts one fired transition for a layer.
func (m *MetricsService) ObserveTransitionFired(layer string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(layer).Inc()
}

// ObserveDispatch counts a dispatch attempt by outcome.
func (m *MetricsService) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// ObserveLedgerWrite counts a historical write by outcome.
func (m *MetricsService) ObserveLedgerWrite(outcome string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(outcome).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}
