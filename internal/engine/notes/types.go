package notes

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// VideoRef and QAPair are shared with the sources and server packages.
type (
	VideoRef = engine.VideoRef
	QAPair   = engine.QAPair
)

// TranscriptStatus classifies the outcome of a transcript fetch.
type TranscriptStatus string

const (
	TranscriptOK           TranscriptStatus = "ok"
	TranscriptNone         TranscriptStatus = "no_transcript"
	TranscriptDisabled     TranscriptStatus = "disabled"
	TranscriptFetchError   TranscriptStatus = "fetch_error"
	TranscriptNotProcessed TranscriptStatus = "not_processed" // export only, never stored in a run
)

// TranscriptResult is the per-video fetch outcome. Text and Language are set only when Status is ok.
type TranscriptResult struct {
	Video     VideoRef         `json:"video"`
	Status    TranscriptStatus `json:"status"`
	Text      string           `json:"text,omitempty"`
	Language  string           `json:"language,omitempty"`
	Generated bool             `json:"generated,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
	Attempts  int              `json:"attempts,omitempty"`
}

// OK reports whether the transcript can feed generation.
func (r TranscriptResult) OK() bool { return r.Status == TranscriptOK }

// ArtifactStatus classifies the outcome of generation.
type ArtifactStatus string

const (
	ArtifactOK              ArtifactStatus = "ok"
	ArtifactGenerationError ArtifactStatus = "generation_error"
)

// ArtifactBody is the parsed model output for one video.
type ArtifactBody struct {
	Summary string   `json:"summary"`
	QA      []QAPair `json:"qa"`
}

// Artifact holds the generated notes for one video.
type Artifact struct {
	Video   VideoRef       `json:"video"`
	Summary string         `json:"summary,omitempty"`
	QA      []QAPair       `json:"qa,omitempty"`
	Status  ArtifactStatus `json:"status"`
	Detail  string         `json:"detail,omitempty"`
}

// OK reports whether generation succeeded.
func (a Artifact) OK() bool { return a.Status == ArtifactOK }

// State is the lifecycle state of a run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StatePartial   State = "partial" // cancelled before every selected video was recorded
)

// Progress is a snapshot of a run for live status rendering.
type Progress struct {
	RunID     string   `json:"run_id"`
	State     State    `json:"state"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Current   VideoRef `json:"current,omitzero"`
}

// Run owns every per-video result of one pipeline invocation.
// Videos is the selection in playlist order; Total is the size of the source playlist.
type Run struct {
	ID         string
	PlaylistID string
	Videos     []VideoRef
	Total      int
	StartedAt  time.Time

	mu          sync.RWMutex
	state       State
	finishedAt  time.Time
	current     VideoRef
	transcripts map[VideoRef]TranscriptResult
	artifacts   map[VideoRef]Artifact
}

func newRun(playlistID string, selected []VideoRef, total int) *Run {
	return &Run{
		ID:          uuid.NewString(),
		PlaylistID:  playlistID,
		Videos:      selected,
		Total:       total,
		StartedAt:   time.Now(),
		state:       StateRunning,
		transcripts: make(map[VideoRef]TranscriptResult, len(selected)),
		artifacts:   make(map[VideoRef]Artifact, len(selected)),
	}
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// FinishedAt is zero while the run is in progress.
func (r *Run) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// Video resolves ref against the selection: a video ID, or a 1-based
// playlist position.
func (r *Run) Video(ref string) (VideoRef, bool) {
	ref = strings.TrimSpace(ref)
	for _, v := range r.Videos {
		if v.ID == ref {
			return v, true
		}
	}
	if n, err := strconv.Atoi(ref); err == nil {
		for _, v := range r.Videos {
			if v.Order == n {
				return v, true
			}
		}
	}
	return VideoRef{}, false
}

// Transcript returns the recorded fetch result for v.
func (r *Run) Transcript(v VideoRef) (TranscriptResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.transcripts[v]
	return tr, ok
}

// Artifact returns the recorded artifact for v.
func (r *Run) Artifact(v VideoRef) (Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[v]
	return a, ok
}

// Transcripts lists recorded fetch results in playlist order.
func (r *Run) Transcripts() []TranscriptResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TranscriptResult, 0, len(r.transcripts))
	for _, v := range r.Videos {
		if tr, ok := r.transcripts[v]; ok {
			out = append(out, tr)
		}
	}
	return out
}

// Artifacts lists recorded artifacts in playlist order.
func (r *Run) Artifacts() []Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Artifact, 0, len(r.artifacts))
	for _, v := range r.Videos {
		if a, ok := r.artifacts[v]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Progress returns a consistent snapshot of completion.
func (r *Run) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Progress{
		RunID:     r.ID,
		State:     r.state,
		Completed: len(r.transcripts),
		Total:     len(r.Videos),
		Current:   r.current,
	}
}

func (r *Run) setCurrent(v VideoRef) {
	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
}

// record stores the outcome for v once. An artifact is kept only alongside an ok transcript.
// Returns false when v already has a result.
func (r *Run) record(tr TranscriptResult, art *Artifact) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := tr.Video
	if _, dup := r.transcripts[v]; dup {
		return false
	}
	r.transcripts[v] = tr
	if art != nil && tr.OK() {
		r.artifacts[v] = *art
	}
	return true
}

// finish settles the run: completed once every selected video is recorded,
// however the loop ended, partial otherwise.
func (r *Run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
	r.current = VideoRef{}
	if len(r.transcripts) < len(r.Videos) {
		r.state = StatePartial
		return
	}
	r.state = StateCompleted
}

const maxDetailRunes = 300

// VideoStatus is a compact per-video outcome line. Detail is shortened; exports carry it in full.
type VideoStatus struct {
	Order      int              `json:"order"`
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Transcript TranscriptStatus `json:"transcript"`
	Artifact   ArtifactStatus   `json:"artifact,omitempty"`
	QACount    int              `json:"qa_count,omitempty"`
	Detail     string           `json:"detail,omitempty"`
}

// Summary is the user-facing overview of a run.
type Summary struct {
	RunID      string        `json:"run_id"`
	PlaylistID string        `json:"playlist_id,omitempty"`
	State      State         `json:"state"`
	Total      int           `json:"total"`
	Selected   int           `json:"selected"`
	Completed  int           `json:"completed"`
	Notes      int           `json:"notes"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Current    *VideoRef     `json:"current,omitempty"`
	Videos     []VideoStatus `json:"videos"`
}

// Summarize reports every selected video, including those not processed yet.
func (r *Run) Summarize() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{
		RunID:      r.ID,
		PlaylistID: r.PlaylistID,
		State:      r.state,
		Total:      r.Total,
		Selected:   len(r.Videos),
		Completed:  len(r.transcripts),
		StartedAt:  r.StartedAt,
		Videos:     make([]VideoStatus, 0, len(r.Videos)),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	if r.current != (VideoRef{}) {
		c := r.current
		s.Current = &c
	}
	for _, v := range r.Videos {
		vs := VideoStatus{Order: v.Order, ID: v.ID, Title: v.Title, Transcript: TranscriptNotProcessed}
		if tr, ok := r.transcripts[v]; ok {
			vs.Transcript = tr.Status
			vs.Detail = engine.TruncateRunes(tr.Detail, maxDetailRunes, "...")
			if !tr.OK() {
				s.Failed++
			}
		}
		if a, ok := r.artifacts[v]; ok {
			vs.Artifact = a.Status
			vs.QACount = len(a.QA)
			if a.OK() {
				s.Notes++
			} else {
				vs.Detail = engine.TruncateRunes(a.Detail, maxDetailRunes, "...")
				s.Failed++
			}
		}
		s.Videos = append(s.Videos, vs)
	}
	return s
}
