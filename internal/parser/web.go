package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

const webFetchTimeout = 30 * time.Second

// Elements whose text is page chrome rather than content.
const boilerplateSelector = "script, style, nav, footer, header"

type WebPage struct {
	Title string
	Text  string
}

type WebParser struct {
	client *http.Client
}

// NewWebParser uses client when given, otherwise a client with a 30s timeout.
func NewWebParser(client *http.Client) *WebParser {
	if client == nil {
		client = &http.Client{Timeout: webFetchTimeout}
	}
	return &WebParser{client: client}
}

func (p *WebParser) Parse(ctx context.Context, url string) (WebPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WebPage{}, &apperr.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; knowledge-synthesizer/1.0)")

	resp, err := p.client.Do(req)
	if err != nil {
		return WebPage{}, &apperr.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return WebPage{}, &apperr.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return WebPage{}, fmt.Errorf("parse html from %s: %w", url, err)
	}

	title := collapse(doc.Find("title").First().Text())
	doc.Find(boilerplateSelector).Remove()

	var sb strings.Builder
	collectText(doc.Selection, &sb)
	return WebPage{Title: title, Text: collapse(sb.String())}, nil
}

// collectText writes every text node with a separating space, so adjacent
// block elements do not run together.
func collectText(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			sb.WriteString(s.Text())
			sb.WriteByte(' ')
			return
		}
		collectText(s, sb)
	})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
