package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pksynth/knowledge-synthesizer/internal/core"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
	"github.com/pksynth/knowledge-synthesizer/internal/store"
)

const (
	Version       = "1.0.0"
	maxUploadSize = 32 << 20
)

type Ingester interface {
	IngestURL(ctx context.Context, url string, md store.Metadata) (*core.IngestResult, error)
	IngestText(ctx context.Context, text string, md store.Metadata) (*core.IngestResult, error)
	IngestFile(ctx context.Context, filename string, data []byte, md store.Metadata) (*core.IngestResult, error)
	ListDocuments(ctx context.Context) ([]store.DocumentSummary, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

type Chatter interface {
	Chat(ctx context.Context, query string, history []core.Message, opts core.ChatOptions) (*core.ChatResult, error)
}

// HealthChecker reports vector store connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
	CollectionName() string
}

type APIHandler struct {
	ingest Ingester
	chat   Chatter
	health HealthChecker
	log    *logger.Logger
}

func NewAPIHandler(ingest Ingester, chat Chatter, health HealthChecker, log *logger.Logger) *APIHandler {
	return &APIHandler{ingest: ingest, chat: chat, health: health, log: log}
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

type IngestRequest struct {
	URL      string          `json:"url,omitempty"`
	Text     string          `json:"text,omitempty"`
	Metadata *store.Metadata `json:"metadata,omitempty"`
}

func (h *APIHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, badRequest("invalid request body: "+err.Error()))
		return
	}

	var md store.Metadata
	if req.Metadata != nil {
		md = *req.Metadata
	}

	var (
		res *core.IngestResult
		err error
	)
	switch {
	case req.URL != "":
		res, err = h.ingest.IngestURL(r.Context(), req.URL, md)
	case req.Text != "":
		res, err = h.ingest.IngestText(r.Context(), req.Text, md)
	default:
		err = badRequest("Either 'url' or 'text' must be provided")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IngestFileHandler accepts a multipart upload in the "file" field with an
// optional JSON "metadata" field.
func (h *APIHandler) IngestFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeError(w, r, badRequest("invalid multipart form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, badRequest("file field is required"))
		return
	}
	defer file.Close()

	var md store.Metadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			h.writeError(w, r, badRequest("invalid metadata: "+err.Error()))
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.ingest.IngestFile(r.Context(), header.Filename, data, md)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ChatRequest struct {
	Query    string         `json:"query"`
	History  []core.Message `json:"history,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, badRequest("invalid request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, r, badRequest("query cannot be empty"))
		return
	}

	res, err := h.chat.Chat(r.Context(), req.Query, req.History, core.ChatOptions{
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type DocumentsResponse struct {
	Documents []store.DocumentSummary `json:"documents"`
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.ingest.ListDocuments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []store.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

type DeleteResponse struct {
	Status       string `json:"status"`
	DeletedCount int    `json:"deleted_count"`
}

func (h *APIHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	n, err := h.ingest.DeleteDocument(r.Context(), documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Status: "success", DeletedCount: n})
}

type HealthResponse struct {
	Status          string `json:"status"`
	QdrantConnected bool   `json:"qdrant_connected"`
	CollectionName  string `json:"collection_name"`
	Error           string `json:"error,omitempty"`
}

// HealthHandler always answers 200; connectivity problems are reported in the body.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "healthy",
		QdrantConnected: true,
		CollectionName:  h.health.CollectionName(),
	}
	if err := h.health.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.QdrantConnected = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Personal Knowledge Synthesizer API",
		"version": Version,
	})
}

// writeError maps request validation failures to 400 and everything else to 500.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	} else {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
