package engine

import "fmt"

// --- Playlist domain types ---

// VideoRef identifies one playlist entry. Order is the 1-based playlist position.
// Comparable, so it can key per-run result maps.
type VideoRef struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Order int    `json:"order" yaml:"order"`
}

// URL returns the watch URL of the video.
func (v VideoRef) URL() string {
	return "https://youtu.be/" + v.ID
}

// Label renders "[order] title (id)" for logs and text exports.
func (v VideoRef) Label() string {
	return fmt.Sprintf("[%d] %s (%s)", v.Order, v.Title, v.ID)
}

// Transcript is plain caption text as returned by a transcript source.
type Transcript struct {
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
	Generated bool   `json:"generated,omitempty"` // auto-generated (ASR) captions
}

// QAPair is a single generated question with its answer.
type QAPair struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// --- MCP tool inputs ---

type PlaylistVideosInput struct {
	Playlist string `json:"playlist" jsonschema:"Playlist URL (https://www.youtube.com/playlist?list=...) or bare playlist ID"`
}

type PlaylistProcessInput struct {
	Playlist        string   `json:"playlist" jsonschema:"Playlist URL or bare playlist ID"`
	Videos          []int    `json:"videos,omitempty" jsonschema:"1-based playlist positions to process (default: first max_videos)"`
	MaxVideos       int      `json:"max_videos,omitempty" jsonschema:"Process the first N videos when videos is empty (default 10, max 50)"`
	Languages       []string `json:"languages,omitempty" jsonschema:"Preferred caption languages in order (default: en, en-US, hi)"`
	Concurrency     int      `json:"concurrency,omitempty" jsonschema:"Videos processed in parallel (default 1)"`
	// CooldownSeconds is a pointer so an explicit 0 (no pause) differs from unset.
	CooldownSeconds *int     `json:"cooldown_seconds,omitempty" jsonschema:"Pause between transcript fetches for this run, 0-60 seconds (default: server setting)"`
}

type PlaylistStatusInput struct{}

type PlaylistExportInput struct {
	Kind   string `json:"kind" jsonschema:"What to export: notes, qa, transcripts"`
	Format string `json:"format,omitempty" jsonschema:"text (default), json, yaml"`
	Video  string `json:"video,omitempty" jsonschema:"Export one video only, by video ID or 1-based playlist position"`
}

// --- MCP tool outputs ---

type PlaylistVideosOutput struct {
	PlaylistID string     `json:"playlist_id"`
	Total      int        `json:"total"`
	Videos     []VideoRef `json:"videos"`
}

type PlaylistExportOutput struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}
