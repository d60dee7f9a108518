package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline(t *testing.T) {
	p := NewPipeline(prometheus.NewRegistry())

	p.ObserveIngest("web", 4, 120*time.Millisecond)
	p.ObserveIngest("web", 2, 80*time.Millisecond)
	p.IngestFailed("youtube")
	p.ObserveChat(3, time.Second)
	p.ChatFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.DocumentsIngested.WithLabelValues("web")))
	assert.Equal(t, 6.0, testutil.ToFloat64(p.ChunksStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.IngestErrors.WithLabelValues("youtube")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ChatRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ChatErrors))
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	got := testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/documents/{id}", http.MethodGet, "418"))
	assert.Equal(t, 1.0, got)
}
