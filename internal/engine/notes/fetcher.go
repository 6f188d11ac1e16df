package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// TranscriptSource gets caption text by video ID and ordered language preference.
// Implemented by sources.YouTube.
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, videoID string, langs []string) (engine.Transcript, error)
}

// Fetcher turns a video into a classified TranscriptResult. It never returns an error.
type Fetcher interface {
	Fetch(ctx context.Context, video VideoRef, langs []string) TranscriptResult
}

// SourceFetcher adapts a TranscriptSource to Fetcher.
type SourceFetcher struct {
	src TranscriptSource
}

// NewFetcher wraps src.
func NewFetcher(src TranscriptSource) *SourceFetcher {
	return &SourceFetcher{src: src}
}

// Fetch calls the source once and classifies the outcome.
func (f *SourceFetcher) Fetch(ctx context.Context, video VideoRef, langs []string) (res TranscriptResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("transcript source panicked", slog.String("id", video.ID), slog.Any("panic", p))
			res = TranscriptResult{Video: video, Status: TranscriptFetchError, Detail: fmt.Sprintf("panic: %v", p)}
		}
	}()

	t, err := f.src.FetchTranscript(ctx, video.ID, langs)
	if err == nil && strings.TrimSpace(t.Text) == "" {
		err = fmt.Errorf("%w: empty caption text", engine.ErrNoTranscript)
	}
	if err != nil {
		return classifyFetchErr(video, err)
	}
	return TranscriptResult{
		Video:     video,
		Status:    TranscriptOK,
		Text:      t.Text,
		Language:  t.Language,
		Generated: t.Generated,
	}
}

// classifyFetchErr maps a source error onto the transcript failure classes.
func classifyFetchErr(video VideoRef, err error) TranscriptResult {
	res := TranscriptResult{Video: video, Detail: err.Error()}
	switch {
	case errors.Is(err, engine.ErrTranscriptsDisabled):
		res.Status = TranscriptDisabled
	case errors.Is(err, engine.ErrNoTranscript):
		res.Status = TranscriptNone
	case errors.Is(err, engine.ErrVideoUnavailable):
		res.Status = TranscriptFetchError
	default:
		res.Status = TranscriptFetchError
		res.Retryable = engine.IsRetryable(err)
	}
	return res
}
