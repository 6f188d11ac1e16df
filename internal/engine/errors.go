package engine

import "errors"

// Transcript failure classes. Sources wrap these; callers classify with errors.Is.
var (
	ErrNoTranscript        = errors.New("no transcript available")
	ErrTranscriptsDisabled = errors.New("transcripts disabled for this video")
	ErrVideoUnavailable    = errors.New("video unavailable")
)

// Playlist failure classes.
var (
	ErrPlaylistNotFound = errors.New("playlist not found or private")
	ErrPlaylistEmpty    = errors.New("playlist has no playable videos")
	ErrNoAPIKey         = errors.New("YOUTUBE_API_KEY is not configured")
)
