package engine

import (
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMClient          *llm.Client

	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	TranscriptLangs       []string // ordered preference, first match wins

	TranscriptInterval time.Duration // min gap between transcript fetches
	GenerationInterval time.Duration // min gap between LLM requests
	CallTimeout        time.Duration // per outbound call
	FetchRetries       int           // orchestrator retries of retry-eligible fetch errors
	Concurrency        int           // parallel videos per run (1 = sequential)
	MaxVideos          int           // default selection size
	MaxTranscriptChars int           // transcript chars sent to the LLM

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client
	BrowserClient        *BrowserClient // nil = plain HTTP for watch pages
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (notes, sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if len(c.TranscriptLangs) == 0 {
		c.TranscriptLangs = DefaultTranscriptLangs
	}
	cfg = c
	Cfg = &cfg
}

// DefaultTranscriptLangs is the caption language preference used when none is configured.
var DefaultTranscriptLangs = []string{"en", "en-US", "hi"}
