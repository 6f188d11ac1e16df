// go_ytnotes — YouTube playlist study-notes MCP server.
//
// Exposes four MCP tools: playlist_videos, playlist_process, playlist_status,
// playlist_export. Runs as HTTP MCP server or stdio transport.
package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
	"github.com/anatolykoptev/go_ytnotes/internal/engine/notes"
	"github.com/anatolykoptev/go_ytnotes/internal/engine/sources"
	"github.com/anatolykoptev/go_ytnotes/internal/notesserver"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8892")
)

func main() {
	initEngine()

	slog.Info("starting go_ytnotes",
		slog.String("port", mcpPort),
		slog.Duration("transcript_interval", engine.Cfg.TranscriptInterval),
		slog.Duration("generation_interval", engine.Cfg.GenerationInterval),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_ytnotes",
		Version: version,
	}, nil)

	n := notesserver.RegisterTools(server, buildDeps())
	slog.Info("tools registered", slog.Int("count", n))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_ytnotes",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 30 * time.Minute,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() {
	c := engine.Config{
		LLMAPIKey:             env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks:    env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:            env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:              env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:        env.Float("LLM_TEMPERATURE", 0.3),
		LLMMaxTokens:          env.Int("LLM_MAX_TOKENS", 8192),
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		TranscriptLangs:       env.List("TRANSCRIPT_LANGS", "en,en-US,hi"),
		TranscriptInterval:    env.Duration("TRANSCRIPT_INTERVAL", time.Second),
		GenerationInterval:    env.Duration("GENERATION_INTERVAL", 4*time.Second),
		CallTimeout:           env.Duration("CALL_TIMEOUT", 90*time.Second),
		FetchRetries:          env.Int("FETCH_RETRIES", 1),
		Concurrency:           env.Int("CONCURRENCY", 1),
		MaxVideos:             env.Int("MAX_VIDEOS", notes.DefaultMaxVideos),
		MaxTranscriptChars:    env.Int("MAX_TRANSCRIPT_CHARS", 60000),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval:  env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Error("stealth client init failed", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	if c.LLMAPIKey == "" {
		slog.Warn("LLM_API_KEY is empty, note generation will fail")
	}
	c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
		llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
		llm.WithMaxTokens(c.LLMMaxTokens),
		llm.WithTemperature(c.LLMTemperature),
		llm.WithHTTPClient(&http.Client{Timeout: c.CallTimeout}),
	)

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 6*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// buildDeps wires the YouTube sources, the LLM generator and one Throttle shared by every run.
func buildDeps() notesserver.Deps {
	c := engine.Cfg

	ytOpts := []sources.YouTubeOption{sources.WithTranscriptCache()}
	if c.BrowserClient != nil {
		ytOpts = append(ytOpts, sources.WithBrowserClient(c.BrowserClient))
	}
	yt := sources.NewYouTube(c.HTTPClient, ytOpts...)

	if c.YouTubeAPIKey == "" {
		slog.Warn("YOUTUBE_API_KEY is empty, playlist listing will fail")
	}
	playlists := sources.NewPlaylists(c.HTTPClient, c.YouTubeAPIKey, c.YouTubeAPIKeyFallback, sources.WithPlaylistCache())

	throttle := engine.NewThrottle(map[engine.Channel]time.Duration{
		engine.ChannelTranscript: c.TranscriptInterval,
		engine.ChannelGeneration: c.GenerationInterval,
	})

	return notesserver.Deps{
		Pipeline: notes.NewPipeline(
			notes.NewFetcher(yt),
			notes.NewLLMGenerator(engine.CallLLM, c.MaxTranscriptChars),
			playlists,
		),
		Playlists: playlists,
		Store:     notes.NewStore(),
		Throttle:  throttle,
	}
}
