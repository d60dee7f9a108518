package watcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

type capturedRequest struct {
	Path        string
	ContentType string
	Body        []byte
	Filename    string
	FileData    []byte
	Metadata    string
}

type fakeBackend struct {
	mu       sync.Mutex
	status   int
	requests []capturedRequest
}

func (b *fakeBackend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type")}
		if r.URL.Path == "/api/v1/ingest/file" {
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				return
			}
			f, h, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				return
			}
			c.Filename = h.Filename
			c.FileData, _ = io.ReadAll(f)
			f.Close()
			c.Metadata = r.FormValue("metadata")
		} else {
			c.Body, _ = io.ReadAll(r.Body)
		}

		b.mu.Lock()
		b.requests = append(b.requests, c)
		status := b.status
		b.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"detail":"embedding failed"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"document_id":"doc-7","chunks_count":2,"point_ids":["a","b"],"status":"success"}`))
	}
}

type processorFixture struct {
	proc      *Processor
	backend   *fakeBackend
	ledger    *Ledger
	inbox     string
	processed string
}

func newProcessorFixture(t *testing.T, status int) *processorFixture {
	t.Helper()
	b := &fakeBackend{status: status}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	f := &processorFixture{
		backend:   b,
		ledger:    newTestLedger(t),
		inbox:     filepath.Join(root, "inbox"),
		processed: filepath.Join(root, "processed"),
	}
	require.NoError(t, os.MkdirAll(f.inbox, 0o755))
	f.proc = NewProcessor(ProcessorOptions{
		BackendURL:    srv.URL + "/",
		ProcessedPath: f.processed,
	}, f.ledger, logger.Nop())
	return f
}

func (f *processorFixture) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(f.inbox, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestProcess_TextFile(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	path := f.write(t, "notes.md", []byte("# Notes\nSome content."))

	require.NoError(t, f.proc.Process(context.Background(), path))

	require.Len(t, f.backend.requests, 1)
	req := f.backend.requests[0]
	assert.Equal(t, "/api/v1/ingest", req.Path)
	assert.Equal(t, "application/json", req.ContentType)

	var body struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "# Notes\nSome content.", body.Text)
	assert.Equal(t, map[string]string{"filename": "notes.md", "source": "file-watcher"}, body.Metadata)

	assert.NoFileExists(t, path)
	moved, err := os.ReadFile(filepath.Join(f.processed, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes\nSome content.", string(moved))

	last, err := f.ledger.Last(context.Background(), "notes.md")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, StatusProcessed, last.Status)
	assert.Equal(t, "doc-7", last.DocumentID)
	assert.Equal(t, 2, last.ChunksCount)
}

func TestProcess_BinaryDocumentsAreUploaded(t *testing.T) {
	for _, name := range []string{"paper.pdf", "Report.DOCX"} {
		t.Run(name, func(t *testing.T) {
			f := newProcessorFixture(t, http.StatusOK)
			data := []byte{0x25, 0x50, 0x44, 0x46, 0xff, 0x00}
			path := f.write(t, name, data)

			require.NoError(t, f.proc.Process(context.Background(), path))

			require.Len(t, f.backend.requests, 1)
			req := f.backend.requests[0]
			assert.Equal(t, "/api/v1/ingest/file", req.Path)
			assert.Equal(t, name, req.Filename)
			assert.Equal(t, data, req.FileData)
			assert.JSONEq(t, `{"filename":"`+name+`","source":"file-watcher"}`, req.Metadata)
			assert.FileExists(t, filepath.Join(f.processed, name))
		})
	}
}

func TestProcess_BackendFailureLeavesFile(t *testing.T) {
	f := newProcessorFixture(t, http.StatusInternalServerError)
	path := f.write(t, "notes.txt", []byte("content"))

	err := f.proc.Process(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Contains(t, err.Error(), "embedding failed")

	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(f.processed, "notes.txt"))

	last, err := f.ledger.Last(context.Background(), "notes.txt")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, StatusFailed, last.Status)
	assert.Contains(t, last.Error, "HTTP 500")
}

func TestProcess_InvalidUTF8IsRejected(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	path := f.write(t, "latin1.txt", []byte{'c', 'a', 'f', 0xe9})

	err := f.proc.Process(context.Background(), path)
	assert.ErrorIs(t, err, apperr.ErrDecode)
	assert.Empty(t, f.backend.requests)
	assert.FileExists(t, path)

	last, err := f.ledger.Last(context.Background(), "latin1.txt")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, StatusFailed, last.Status)
}

func TestProcess_BackendUnreachable(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.proc.backendURL = "http://127.0.0.1:1"
	path := f.write(t, "notes.txt", []byte("content"))

	err := f.proc.Process(context.Background(), path)
	assert.Error(t, err)
	assert.FileExists(t, path)
}

func TestProcess_LogsPreviousAttempt(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	core, logs := observer.New(zapcore.InfoLevel)
	f.proc.log = logger.FromZap(zap.New(core))
	ctx := context.Background()

	require.NoError(t, f.ledger.Record(ctx, Entry{Filename: "notes.txt", Path: "old", Status: StatusFailed, Error: "backend returned HTTP 500"}))
	require.NoError(t, f.proc.Process(ctx, f.write(t, "notes.txt", []byte("first"))))

	retries := logs.FilterMessage("retrying previously failed file").All()
	require.Len(t, retries, 1)
	assert.Equal(t, "notes.txt", retries[0].ContextMap()["file"])
	assert.Equal(t, "backend returned HTTP 500", retries[0].ContextMap()["last_error"])

	require.NoError(t, f.proc.Process(ctx, f.write(t, "notes.txt", []byte("second"))))

	again := logs.FilterMessage("file was ingested before and will be stored again").All()
	require.Len(t, again, 1)
	assert.Equal(t, zapcore.WarnLevel, again[0].Level)
	assert.Equal(t, "doc-7", again[0].ContextMap()["previous_document_id"])
	assert.Len(t, f.backend.requests, 2)
}

func TestProcess_FirstAttemptLogsNoHistory(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	core, logs := observer.New(zapcore.InfoLevel)
	f.proc.log = logger.FromZap(zap.New(core))

	require.NoError(t, f.proc.Process(context.Background(), f.write(t, "fresh.txt", []byte("new"))))

	assert.Zero(t, logs.FilterMessage("retrying previously failed file").Len())
	assert.Zero(t, logs.FilterMessage("file was ingested before and will be stored again").Len())
	assert.Equal(t, 1, logs.FilterMessage("successfully processed file").Len())
}

func TestMoveFile_CreatesDestinationDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "nested", "out", "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))

	require.NoError(t, moveFile(src, dst))

	assert.NoFileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
