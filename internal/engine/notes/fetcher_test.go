package notes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

func TestSourceFetcherClassifies(t *testing.T) {
	video := VideoRef{ID: "abc", Title: "Intro", Order: 1}
	tests := []struct {
		name          string
		src           fakeSource
		wantStatus    TranscriptStatus
		wantRetryable bool
	}{
		{"ok", fakeSource{t: engine.Transcript{Text: "hello", Language: "en"}}, TranscriptOK, false},
		{"blank text", fakeSource{t: engine.Transcript{Text: "  "}}, TranscriptNone, false},
		{"disabled", fakeSource{err: fmt.Errorf("abc: %w", engine.ErrTranscriptsDisabled)}, TranscriptDisabled, false},
		{"no transcript", fakeSource{err: engine.ErrNoTranscript}, TranscriptNone, false},
		{"unavailable", fakeSource{err: engine.ErrVideoUnavailable}, TranscriptFetchError, false},
		{"server error", fakeSource{err: &engine.HTTPStatusError{StatusCode: 503}}, TranscriptFetchError, true},
		{"timeout", fakeSource{err: context.DeadlineExceeded}, TranscriptFetchError, true},
		{"forbidden", fakeSource{err: &engine.HTTPStatusError{StatusCode: 403}}, TranscriptFetchError, false},
		{"opaque", fakeSource{err: errors.New("parse failure")}, TranscriptFetchError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewFetcher(tt.src).Fetch(context.Background(), video, []string{"en"})
			assert.Equal(t, video, res.Video)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
			if tt.wantStatus == TranscriptOK {
				assert.Equal(t, "hello", res.Text)
				assert.Equal(t, "en", res.Language)
				assert.Empty(t, res.Detail)
			} else {
				assert.Empty(t, res.Text)
				assert.NotEmpty(t, res.Detail)
			}
		})
	}
}

type panicSource struct{}

func (panicSource) FetchTranscript(context.Context, string, []string) (engine.Transcript, error) {
	panic("decoder exploded")
}

func TestSourceFetcherRecoversPanic(t *testing.T) {
	res := NewFetcher(panicSource{}).Fetch(context.Background(), VideoRef{ID: "x"}, nil)
	assert.Equal(t, TranscriptFetchError, res.Status)
	assert.Contains(t, res.Detail, "decoder exploded")
}
