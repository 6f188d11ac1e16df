package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// Pipeline defaults applied to zero-valued RunConfig fields.
const (
	DefaultCallTimeout  = 90 * time.Second
	DefaultFetchRetries = 1
	DefaultMaxVideos    = 10
	MaxVideosLimit      = 50

	slowGeneration = 45 * time.Second
)

// ErrEmptySelection is returned when a selection matches no playlist entry.
var ErrEmptySelection = errors.New("selection matches no playlist videos")

// PlaylistSource lists the entries of a playlist in order. Implemented by sources.Playlists.
type PlaylistSource interface {
	ListVideos(ctx context.Context, playlistID string) ([]VideoRef, error)
}

// PlaylistLoadError aborts a run before any per-video work.
type PlaylistLoadError struct {
	PlaylistID string
	Err        error
}

func (e *PlaylistLoadError) Error() string {
	return fmt.Sprintf("load playlist %q: %v", e.PlaylistID, e.Err)
}

func (e *PlaylistLoadError) Unwrap() error { return e.Err }

// Selection picks which playlist entries to process.
// Orders lists 1-based playlist positions; when empty the first Limit entries are used.
// Limit caps the result in both cases (0 = no cap).
type Selection struct {
	Orders []int
	Limit  int
}

// Apply returns the selected videos in playlist order, whatever order Orders is given in.
func (s Selection) Apply(videos []VideoRef) []VideoRef {
	want := make(map[int]bool, len(s.Orders))
	for _, o := range s.Orders {
		want[o] = true
	}
	out := make([]VideoRef, 0, len(videos))
	for _, v := range videos {
		if len(want) > 0 && !want[v.Order] {
			continue
		}
		out = append(out, v)
		if s.Limit > 0 && len(out) == s.Limit {
			break
		}
	}
	return out
}

// RunConfig carries every setting a run needs. Zero values take the package defaults.
type RunConfig struct {
	Languages          []string
	TranscriptInterval time.Duration // used only when Throttle is nil
	GenerationInterval time.Duration // used only when Throttle is nil
	CallTimeout        time.Duration // per fetch or generate call
	FetchRetries       int           // extra attempts for retry-eligible fetch errors; <0 disables
	Concurrency        int           // videos in flight (1 = sequential)

	// Throttle is shared across runs when set, so pacing survives back-to-back runs.
	Throttle *engine.Throttle

	OnStart    func(*Run)     // called once before the first video
	OnProgress func(Progress) // called after each recorded video
}

// RunConfigFromEngine builds a RunConfig from the process configuration.
func RunConfigFromEngine(c *engine.Config) RunConfig {
	return RunConfig{
		Languages:          c.TranscriptLangs,
		TranscriptInterval: c.TranscriptInterval,
		GenerationInterval: c.GenerationInterval,
		CallTimeout:        c.CallTimeout,
		FetchRetries:       c.FetchRetries,
		Concurrency:        c.Concurrency,
	}
}

func (c RunConfig) withDefaults() RunConfig {
	c.Languages = engine.NormLangs(c.Languages)
	if len(c.Languages) == 0 {
		c.Languages = engine.DefaultTranscriptLangs
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	switch {
	case c.FetchRetries < 0:
		c.FetchRetries = 0
	case c.FetchRetries == 0:
		c.FetchRetries = DefaultFetchRetries
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Throttle == nil {
		c.Throttle = engine.NewThrottle(map[engine.Channel]time.Duration{
			engine.ChannelTranscript: c.TranscriptInterval,
			engine.ChannelGeneration: c.GenerationInterval,
		})
	}
	return c
}

// Pipeline drives fetch then generate over a playlist selection.
type Pipeline struct {
	fetcher   Fetcher
	generator Generator
	playlists PlaylistSource
}

// NewPipeline wires the pipeline capabilities. playlists may be nil when only Run is used.
func NewPipeline(fetcher Fetcher, generator Generator, playlists PlaylistSource) *Pipeline {
	return &Pipeline{fetcher: fetcher, generator: generator, playlists: playlists}
}

// RunPlaylist loads the playlist and processes the selection.
// Load failures return *PlaylistLoadError without touching any video.
func (p *Pipeline) RunPlaylist(ctx context.Context, playlistID string, sel Selection, cfg RunConfig) (*Run, error) {
	if p.playlists == nil {
		return nil, &PlaylistLoadError{PlaylistID: playlistID, Err: errors.New("no playlist source configured")}
	}
	cfg = cfg.withDefaults()

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	videos, err := p.playlists.ListVideos(callCtx, playlistID)
	cancel()
	if err != nil {
		return nil, &PlaylistLoadError{PlaylistID: playlistID, Err: err}
	}
	if len(videos) == 0 {
		return nil, &PlaylistLoadError{PlaylistID: playlistID, Err: engine.ErrPlaylistEmpty}
	}
	if len(sel.Apply(videos)) == 0 {
		return nil, fmt.Errorf("playlist %s (%d videos): %w", playlistID, len(videos), ErrEmptySelection)
	}
	return p.run(ctx, playlistID, videos, sel, cfg), nil
}

// Run processes the selected subset of videos. Per-video failures are recorded in the
// returned Run, never returned. Cancelling ctx stops between videos; the run is partial if any selected video was left unrecorded.
func (p *Pipeline) Run(ctx context.Context, videos []VideoRef, sel Selection, cfg RunConfig) *Run {
	return p.run(ctx, "", videos, sel, cfg.withDefaults())
}

func (p *Pipeline) run(ctx context.Context, playlistID string, videos []VideoRef, sel Selection, cfg RunConfig) *Run {
	run := newRun(playlistID, sel.Apply(videos), len(videos))
	engine.IncrRuns()
	slog.Info("notes run started",
		slog.String("run", run.ID),
		slog.String("playlist", playlistID),
		slog.Int("selected", len(run.Videos)),
		slog.Int("concurrency", cfg.Concurrency))
	if cfg.OnStart != nil {
		cfg.OnStart(run)
	}

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for _, v := range run.Videos {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.processVideo(ctx, run, v, cfg)
			return nil
		})
	}
	_ = g.Wait()

	run.finish()
	pr := run.Progress()
	slog.Info("notes run finished",
		slog.String("run", run.ID),
		slog.String("state", string(pr.State)),
		slog.Int("completed", pr.Completed),
		slog.Int("total", pr.Total))
	if cfg.OnProgress != nil {
		cfg.OnProgress(pr)
	}
	return run
}

// processVideo runs one video to a recorded outcome. Nothing is recorded if ctx ends mid-way.
func (p *Pipeline) processVideo(ctx context.Context, run *Run, v VideoRef, cfg RunConfig) {
	if ctx.Err() != nil {
		return
	}
	run.setCurrent(v)

	tr, err := p.fetch(ctx, v, cfg)
	if err != nil || ctx.Err() != nil {
		return
	}

	var art *Artifact
	if tr.OK() {
		if err := cfg.Throttle.Acquire(ctx, engine.ChannelGeneration); err != nil {
			return
		}
		a := p.generate(ctx, v, tr.Text, cfg.CallTimeout)
		if ctx.Err() != nil {
			return
		}
		art = &a
	} else {
		slog.Warn("transcript unavailable",
			slog.String("video", v.Label()),
			slog.String("status", string(tr.Status)),
			slog.String("detail", tr.Detail))
	}

	if !run.record(tr, art) {
		return
	}
	engine.IncrVideosProcessed()
	if cfg.OnProgress != nil {
		cfg.OnProgress(run.Progress())
	}
}

// fetch acquires the transcript channel before every attempt and retries
// retry-eligible fetch errors up to cfg.FetchRetries times.
// The only error is ctx.Err() from a cancelled throttle wait.
func (p *Pipeline) fetch(ctx context.Context, v VideoRef, cfg RunConfig) (TranscriptResult, error) {
	for attempt := 1; ; attempt++ {
		if err := cfg.Throttle.Acquire(ctx, engine.ChannelTranscript); err != nil {
			return TranscriptResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		tr := p.fetcher.Fetch(callCtx, v, cfg.Languages)
		cancel()
		tr.Video = v
		tr.Attempts = attempt

		if tr.Status != TranscriptFetchError || !tr.Retryable || attempt > cfg.FetchRetries || ctx.Err() != nil {
			return tr, nil
		}
		slog.Debug("retrying transcript fetch",
			slog.String("video", v.Label()),
			slog.Int("attempt", attempt),
			slog.String("detail", tr.Detail))
	}
}

func (p *Pipeline) generate(ctx context.Context, v VideoRef, text string, timeout time.Duration) Artifact {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body ArtifactBody
	err := engine.TrackOperation(callCtx, "generate:"+v.ID, slowGeneration, func(ctx context.Context) error {
		var gerr error
		body, gerr = p.generator.Generate(ctx, text)
		return gerr
	})
	if err != nil {
		engine.IncrGenerationErrors()
		slog.Warn("generation failed", slog.String("video", v.Label()), slog.Any("error", err))
		return Artifact{Video: v, Status: ArtifactGenerationError, Detail: generationDetail(err)}
	}
	return Artifact{Video: v, Summary: body.Summary, QA: body.QA, Status: ArtifactOK}
}

func generationDetail(err error) string {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Error()
	}
	return (&GenerationError{Detail: "generator failed", Err: err}).Error()
}
