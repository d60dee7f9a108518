package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([^&\n?#]+)`),
}

func IsYouTubeURL(url string) bool {
	return strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be")
}

func ExtractVideoID(url string) (string, error) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: no YouTube video id in %q", apperr.ErrInvalidURL, url)
}

// TranscriptFetcher returns the caption lines of a video in order.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) ([]string, error)
}

type YouTubeParser struct {
	fetcher TranscriptFetcher
}

func NewYouTubeParser(fetcher TranscriptFetcher) *YouTubeParser {
	return &YouTubeParser{fetcher: fetcher}
}

func (p *YouTubeParser) Parse(ctx context.Context, url string) (string, error) {
	id, err := ExtractVideoID(url)
	if err != nil {
		return "", err
	}
	lines, err := p.fetcher.FetchTranscript(ctx, id)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

const youtubeWatchURL = "https://www.youtube.com/watch?v="

type transcriptAPI interface {
	GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error)
}

// YouTubeTranscriptFetcher reads the preferred-language transcript through
// the YouTube innertube API.
type YouTubeTranscriptFetcher struct {
	api      transcriptAPI
	language string
}

func NewYouTubeTranscriptFetcher(client *http.Client) *YouTubeTranscriptFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &YouTubeTranscriptFetcher{
		api:      &youtube.Client{HTTPClient: client},
		language: "en",
	}
}

func (f *YouTubeTranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) ([]string, error) {
	segments, err := f.api.GetTranscriptCtx(ctx, &youtube.Video{ID: videoID}, f.language)
	if errors.Is(err, youtube.ErrTranscriptDisabled) {
		return nil, fmt.Errorf("%w: transcripts are disabled for video %s", apperr.ErrFetch, videoID)
	}
	if err != nil {
		return nil, &apperr.FetchError{URL: youtubeWatchURL + videoID, Err: err}
	}

	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return lines, nil
}
