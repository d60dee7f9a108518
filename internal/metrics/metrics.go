// Package metrics provides Prometheus collectors for the ingestion and chat
// pipelines and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the RAG pipeline collectors.
type Pipeline struct {
	DocumentsIngested *prometheus.CounterVec
	ChunksStored      prometheus.Counter
	IngestErrors      *prometheus.CounterVec
	IngestDuration    prometheus.Histogram

	ChatRequests  prometheus.Counter
	ChatErrors    prometheus.Counter
	ChatDuration  prometheus.Histogram
	ContextChunks prometheus.Histogram
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		DocumentsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pks_documents_ingested_total",
			Help: "Documents ingested, by source",
		}, []string{"source"}),
		ChunksStored: f.NewCounter(prometheus.CounterOpts{
			Name: "pks_chunks_stored_total",
			Help: "Chunks embedded and written to the vector store",
		}),
		IngestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pks_ingest_errors_total",
			Help: "Failed ingestions, by source",
		}, []string{"source"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pks_ingest_duration_seconds",
			Help:    "End-to-end ingestion time",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		ChatRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "pks_chat_requests_total",
			Help: "Chat requests answered",
		}),
		ChatErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pks_chat_errors_total",
			Help: "Chat requests that failed",
		}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pks_chat_duration_seconds",
			Help:    "End-to-end chat time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ContextChunks: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pks_chat_context_chunks",
			Help:    "Chunks placed into the prompt per chat request",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
	}
}

func (p *Pipeline) ObserveIngest(source string, chunks int, d time.Duration) {
	p.DocumentsIngested.WithLabelValues(source).Inc()
	p.ChunksStored.Add(float64(chunks))
	p.IngestDuration.Observe(d.Seconds())
}

func (p *Pipeline) IngestFailed(source string) {
	p.IngestErrors.WithLabelValues(source).Inc()
}

func (p *Pipeline) ObserveChat(contextUsed int, d time.Duration) {
	p.ChatRequests.Inc()
	p.ContextChunks.Observe(float64(contextUsed))
	p.ChatDuration.Observe(d.Seconds())
}

func (p *Pipeline) ChatFailed() {
	p.ChatErrors.Inc()
}

// HTTP records request counts and latency per chi route pattern.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pks_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pks_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		h.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
