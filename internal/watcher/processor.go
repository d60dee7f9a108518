package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

const (
	metadataSource = "file-watcher"
	maxErrorBody   = 512
)

type ProcessorOptions struct {
	BackendURL    string
	ProcessedPath string
	Timeout       time.Duration
}

// Processor forwards one file to the ingestion API and archives it on success.
// Failed files stay where they are for a manual retry.
type Processor struct {
	client        *http.Client
	backendURL    string
	processedPath string
	ledger        *Ledger
	log           *logger.Logger
}

func NewProcessor(opts ProcessorOptions, ledger *Ledger, log *logger.Logger) *Processor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Processor{
		client:        &http.Client{Timeout: timeout},
		backendURL:    strings.TrimRight(opts.BackendURL, "/"),
		processedPath: opts.ProcessedPath,
		ledger:        ledger,
		log:           log,
	}
}

type ingestMetadata struct {
	Filename string `json:"filename"`
	Source   string `json:"source"`
}

type textIngestRequest struct {
	Text     string         `json:"text"`
	Metadata ingestMetadata `json:"metadata"`
}

type ingestResponse struct {
	DocumentID  string `json:"document_id"`
	ChunksCount int    `json:"chunks_count"`
}

func (p *Processor) Process(ctx context.Context, path string) error {
	filename := filepath.Base(path)
	log := p.log.With("file", filename)
	entry := Entry{Filename: filename, Path: path}
	p.notePrevious(ctx, log, filename)

	res, err := p.forward(ctx, path, filename)
	if err != nil {
		log.Error("failed to process file", "error", err)
		entry.Status = StatusFailed
		entry.Error = err.Error()
		p.record(ctx, entry)
		return err
	}

	entry.Status = StatusProcessed
	entry.DocumentID = res.DocumentID
	entry.ChunksCount = res.ChunksCount

	dst := filepath.Join(p.processedPath, filename)
	if err := moveFile(path, dst); err != nil {
		log.Error("ingested file but could not archive it", "error", err)
		entry.Error = err.Error()
		p.record(ctx, entry)
		return err
	}

	log.Info("successfully processed file", "document_id", res.DocumentID, "chunks", res.ChunksCount)
	p.record(ctx, entry)
	return nil
}

// notePrevious logs the outcome of the last attempt for the same filename.
// A file dropped again after success is ingested again under a new document id.
func (p *Processor) notePrevious(ctx context.Context, log *logger.Logger, filename string) {
	if p.ledger == nil {
		return
	}
	prev, err := p.ledger.Last(ctx, filename)
	switch {
	case err != nil:
		log.Warn("failed to read ledger entry", "error", err)
	case prev == nil:
	case prev.Status == StatusFailed:
		log.Info("retrying previously failed file", "last_error", prev.Error, "last_attempt", prev.ProcessedAt)
	default:
		log.Warn("file was ingested before and will be stored again",
			"previous_document_id", prev.DocumentID, "last_attempt", prev.ProcessedAt)
	}
}

func (p *Processor) record(ctx context.Context, e Entry) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(ctx, e); err != nil {
		p.log.Warn("failed to write ledger entry", "file", e.Filename, "error", err)
	}
}

// forward uploads PDF and DOCX files for server-side parsing and posts
// everything else as UTF-8 text.
func (p *Processor) forward(ctx context.Context, path, filename string) (*ingestResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx":
		return p.postFile(ctx, filename, data)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", apperr.ErrDecode, filename)
	}
	body, err := json.Marshal(textIngestRequest{
		Text:     string(data),
		Metadata: ingestMetadata{Filename: filename, Source: metadataSource},
	})
	if err != nil {
		return nil, err
	}
	return p.post(ctx, "/api/v1/ingest", "application/json", bytes.NewReader(body))
}

func (p *Processor) postFile(ctx context.Context, filename string, data []byte) (*ingestResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	md, err := json.Marshal(ingestMetadata{Filename: filename, Source: metadataSource})
	if err != nil {
		return nil, err
	}
	if err := mw.WriteField("metadata", string(md)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return p.post(ctx, "/api/v1/ingest/file", mw.FormDataContentType(), &buf)
}

func (p *Processor) post(ctx context.Context, endpoint, contentType string, body io.Reader) (*ingestResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.backendURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ingest response: %w", err)
	}
	return &out, nil
}

// moveFile copies then removes so that src and dst may sit on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())

	in.Close()
	return os.Remove(src)
}
