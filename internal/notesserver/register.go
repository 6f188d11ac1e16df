package notesserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
	"github.com/anatolykoptev/go_ytnotes/internal/engine/notes"
	"github.com/anatolykoptev/go_ytnotes/internal/toolutil"
)

const (
	// maxConcurrency caps the per-request concurrency override.
	maxConcurrency = 8
	maxCooldown    = 60 * time.Second
)

// ErrRunInProgress is returned when playlist_process is called while a run is active.
var ErrRunInProgress = errors.New("a playlist run is already in progress; check playlist_status")

// Deps are the collaborators the tools drive.
type Deps struct {
	Pipeline  *notes.Pipeline
	Playlists notes.PlaylistSource
	Store     *notes.Store
	Throttle  *engine.Throttle // shared across runs
}

type service struct {
	Deps
	running sync.Mutex
}

// RegisterTools registers playlist_videos, playlist_process, playlist_status and
// playlist_export on the given MCP server. Returns the number of tools registered.
func RegisterTools(server *mcp.Server, d Deps) int {
	if d.Store == nil {
		d.Store = notes.NewStore()
	}
	s := &service{Deps: d}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_videos",
		Description: "List the videos of a public YouTube playlist in playlist order. Returns 1-based positions usable as the videos argument of playlist_process. Private and deleted entries are skipped.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.videos)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_process",
		Description: "Fetch transcripts for a YouTube playlist and generate study notes plus 5-10 Q&A pairs per video. Select videos by position (videos) or take the first max_videos (default 10, max 50). cooldown_seconds (0-60) overrides the pause between transcript fetches for this run. Per-video failures (no captions, captions disabled, fetch or generation errors) are reported, never silently dropped. Returns a per-video status summary; download results with playlist_export.",
	}, s.process)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_status",
		Description: "Progress of the current or most recent playlist_process run: completed/total, the video being processed, and per-video status.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.status)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_export",
		Description: "Export the most recent run. kind: notes, qa or transcripts. format: text (default, one block per video with a [position] title (id) header), json or yaml. Text exports open with a run header (run, playlist, state, started, finished). Set video (ID or position) to export a single video. Failed videos are included with their failure reason and retry attempts.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.export)

	return 4
}

func (s *service) videos(ctx context.Context, _ *mcp.CallToolRequest, input engine.PlaylistVideosInput) (*mcp.CallToolResult, engine.PlaylistVideosOutput, error) {
	id, err := toolutil.PlaylistID(input.Playlist)
	if err != nil {
		return nil, engine.PlaylistVideosOutput{}, err
	}
	if s.Playlists == nil {
		return nil, engine.PlaylistVideosOutput{}, errors.New("playlist source not configured")
	}
	videos, err := s.Playlists.ListVideos(ctx, id)
	if err != nil {
		return nil, engine.PlaylistVideosOutput{}, err
	}
	return nil, engine.PlaylistVideosOutput{PlaylistID: id, Total: len(videos), Videos: videos}, nil
}

func (s *service) process(ctx context.Context, _ *mcp.CallToolRequest, input engine.PlaylistProcessInput) (*mcp.CallToolResult, RunOutput, error) {
	id, err := toolutil.PlaylistID(input.Playlist)
	if err != nil {
		return nil, RunOutput{}, err
	}
	if !s.running.TryLock() {
		return nil, RunOutput{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	cfg := notes.RunConfigFromEngine(engine.Cfg)
	if len(input.Languages) > 0 {
		cfg.Languages = input.Languages
	}
	if input.Concurrency > 0 {
		cfg.Concurrency = min(input.Concurrency, maxConcurrency)
	}
	cfg.Throttle = s.throttleFor(input)
	cfg.OnStart = s.Store.Begin
	cfg.OnProgress = s.Store.Update

	run, err := s.Pipeline.RunPlaylist(ctx, id, selectionFor(input), cfg)
	if err != nil {
		slog.Warn("playlist_process failed", slog.String("playlist", id), slog.Any("error", err))
		return nil, RunOutput{}, err
	}
	s.Store.Finish(run)
	return nil, runOutput(run.Summarize()), nil
}

// selectionFor maps tool input onto a Selection: explicit positions, else the first max_videos.
func selectionFor(input engine.PlaylistProcessInput) notes.Selection {
	if len(input.Videos) > 0 {
		return notes.Selection{Orders: input.Videos, Limit: notes.MaxVideosLimit}
	}
	def := engine.Cfg.MaxVideos
	if def <= 0 {
		def = notes.DefaultMaxVideos
	}
	return notes.Selection{Limit: toolutil.ClampVideos(input.MaxVideos, def, notes.MaxVideosLimit)}
}

// throttleFor returns the shared Throttle, or a run-local one when cooldown_seconds
// is set. The run-local gate paces transcripts at the cooldown and keeps the
// configured LLM interval.
func (s *service) throttleFor(input engine.PlaylistProcessInput) *engine.Throttle {
	if input.CooldownSeconds == nil {
		return s.Throttle
	}
	cooldown := min(max(time.Duration(*input.CooldownSeconds)*time.Second, 0), maxCooldown)
	gen := engine.Cfg.GenerationInterval
	if s.Throttle != nil {
		gen = s.Throttle.Interval(engine.ChannelGeneration)
	}
	return engine.NewThrottle(map[engine.Channel]time.Duration{
		engine.ChannelTranscript: cooldown,
		engine.ChannelGeneration: gen,
	})
}

func (s *service) status(_ context.Context, _ *mcp.CallToolRequest, _ engine.PlaylistStatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.Store.Status()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *service) export(_ context.Context, _ *mcp.CallToolRequest, input engine.PlaylistExportInput) (*mcp.CallToolResult, engine.PlaylistExportOutput, error) {
	kind, err := notes.ParseKind(input.Kind)
	if err != nil {
		return nil, engine.PlaylistExportOutput{}, err
	}
	enc, err := notes.ParseEncoding(input.Format)
	if err != nil {
		return nil, engine.PlaylistExportOutput{}, err
	}
	run, err := s.Store.Latest()
	if err != nil {
		return nil, engine.PlaylistExportOutput{}, err
	}

	var (
		data []byte
		name string
	)
	if input.Video != "" {
		v, ok := run.Video(input.Video)
		if !ok {
			return nil, engine.PlaylistExportOutput{}, fmt.Errorf("export %s: %w: %q", kind, notes.ErrVideoNotInRun, input.Video)
		}
		data, err = notes.FormatVideo(run, v, kind, enc)
		name = notes.VideoFilename(run, v, kind, enc)
	} else {
		data, err = notes.Format(run, kind, enc)
		name = notes.Filename(run, kind, enc)
	}
	if err != nil {
		return nil, engine.PlaylistExportOutput{}, fmt.Errorf("export %s: %w", kind, err)
	}
	return nil, engine.PlaylistExportOutput{
		Filename: name,
		MimeType: enc.MimeType(),
		Content:  string(data),
	}, nil
}
