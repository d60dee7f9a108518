package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pksynth/knowledge-synthesizer/internal/metrics"
)

type RouterOptions struct {
	CORSOrigins []string
	HTTPMetrics *metrics.HTTP
	Gatherer    prometheus.Gatherer
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Middleware)
	}

	r.Get("/", apiHandler.RootHandler)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/ingest", apiHandler.IngestHandler)
		r.Post("/ingest/file", apiHandler.IngestFileHandler)
		r.Post("/chat", apiHandler.ChatHandler)

		r.Get("/documents", apiHandler.ListDocumentsHandler)
		r.Delete("/documents/{documentID}", apiHandler.DeleteDocumentHandler)
	})

	return r
}
