// Package metrics exposes pipeline and HTTP metrics in Prometheus format.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tracelify"

// Metrics owns a private registry so tests and multiple apps do not collide
// on the global one. It implements port.Telemetry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	chunksIndexed     prometheus.Counter
	documentsIndexed  prometheus.Counter
	retrievals        prometheus.Counter
	retrievalResults  prometheus.Histogram
	retrievalDuration prometheus.Histogram
	collaboratorFails *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector store.",
		}),
		documentsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents ingested.",
		}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Completed retrieval queries.",
		}),
		retrievalResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent embedding the query and searching the store.",
			Buckets:   prometheus.DefBuckets,
		}),
		collaboratorFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Failed calls to the embedder, chat model or vector store.",
		}, []string{"collaborator"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.chunksIndexed,
		m.documentsIndexed,
		m.retrievals,
		m.retrievalResults,
		m.retrievalDuration,
		m.collaboratorFails,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ChunksIndexed(_ string, n int) {
	m.documentsIndexed.Inc()
	m.chunksIndexed.Add(float64(n))
}

func (m *Metrics) RetrievalCompleted(results int, elapsed time.Duration) {
	m.retrievals.Inc()
	m.retrievalResults.Observe(float64(results))
	m.retrievalDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CollaboratorFailed(collaborator string) {
	m.collaboratorFails.WithLabelValues(collaborator).Inc()
}

// Middleware records count and latency for every request. Routes are labelled
// by their pattern, not the concrete path. statusOf resolves the status an
// error returned down the chain will be rendered with; nil means 500.
func (m *Metrics) Middleware(statusOf func(error) int) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if statusOf != nil {
				status = statusOf(err)
			}
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && status != fiber.StatusNotFound {
			route = r.Path
		}

		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
