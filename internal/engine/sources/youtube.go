package sources

// YouTube implementation is split across files by responsibility:
//   youtube.go            — client struct and options
//   youtube_innertube.go  — Innertube API types, constants, and low-level HTTP primitives
//   youtube_transcript.go — transcript fetching (watch page, ANDROID player, engagement panel)
//   youtube_playlist.go   — playlist listing via YouTube Data API v3

import (
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

const ytDefaultBaseURL = "https://www.youtube.com"

// YouTube fetches transcripts from youtube.com.
type YouTube struct {
	httpClient *http.Client
	browser    *engine.BrowserClient
	baseURL    string
	retry      engine.RetryConfig
	cache      bool
}

// YouTubeOption customizes a YouTube client.
type YouTubeOption func(*YouTube)

// WithBaseURL points the client at a different host (tests, mirrors).
func WithBaseURL(u string) YouTubeOption {
	return func(y *YouTube) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithBrowserClient fetches watch pages with a browser TLS fingerprint.
func WithBrowserClient(bc *engine.BrowserClient) YouTubeOption {
	return func(y *YouTube) { y.browser = bc }
}

// WithRetryConfig overrides HTTP-level retry behavior.
func WithRetryConfig(rc engine.RetryConfig) YouTubeOption {
	return func(y *YouTube) { y.retry = rc }
}

// WithTranscriptCache stores successful transcripts in the engine cache.
func WithTranscriptCache() YouTubeOption {
	return func(y *YouTube) { y.cache = true }
}

// NewYouTube creates a transcript client. A nil httpClient uses engine.Cfg.HTTPClient.
func NewYouTube(httpClient *http.Client, opts ...YouTubeOption) *YouTube {
	if httpClient == nil {
		httpClient = engine.Cfg.HTTPClient
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	y := &YouTube{
		httpClient: httpClient,
		baseURL:    ytDefaultBaseURL,
		retry:      engine.DefaultRetryConfig,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}
