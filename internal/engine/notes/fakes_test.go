package notes

import (
	"context"
	"fmt"
	"sync"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

func refs(n int) []VideoRef {
	out := make([]VideoRef, n)
	for i := range out {
		out[i] = VideoRef{ID: fmt.Sprintf("vid%02d", i+1), Title: fmt.Sprintf("Lecture %d", i+1), Order: i + 1}
	}
	return out
}

// fakeFetcher answers from fn and counts attempts per video.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, v VideoRef, attempt int) TranscriptResult
}

func newFakeFetcher(fn func(ctx context.Context, v VideoRef, attempt int) TranscriptResult) *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, v VideoRef, _ []string) TranscriptResult {
	f.mu.Lock()
	f.calls[v.ID]++
	attempt := f.calls[v.ID]
	f.mu.Unlock()
	if f.fn == nil {
		return okTranscript(v)
	}
	return f.fn(ctx, v, attempt)
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) attempts(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func okTranscript(v VideoRef) TranscriptResult {
	return TranscriptResult{Video: v, Status: TranscriptOK, Text: "transcript of " + v.ID, Language: "en"}
}

// fakeGenerator echoes the transcript into a fixed artifact unless fail matches.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fail  func(text string) error
}

func (g *fakeGenerator) Generate(_ context.Context, text string) (ArtifactBody, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fail != nil {
		if err := g.fail(text); err != nil {
			return ArtifactBody{}, err
		}
	}
	return ArtifactBody{
		Summary: "notes: " + text,
		QA:      []QAPair{{Question: "What is covered?", Answer: text}},
	}, nil
}

func (g *fakeGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakePlaylists struct {
	videos []VideoRef
	err    error
}

func (p fakePlaylists) ListVideos(context.Context, string) ([]VideoRef, error) {
	return p.videos, p.err
}

// fakeSource implements TranscriptSource.
type fakeSource struct {
	t   engine.Transcript
	err error
}

func (s fakeSource) FetchTranscript(context.Context, string, []string) (engine.Transcript, error) {
	return s.t, s.err
}
