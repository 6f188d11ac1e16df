package notesserver

import (
	"fmt"
	"time"

	"github.com/anatolykoptev/go_ytnotes/internal/engine/notes"
)

// RunOutput is the tool view of a run. Timestamps are RFC 3339 strings.
type RunOutput struct {
	RunID      string              `json:"run_id"`
	PlaylistID string              `json:"playlist_id,omitempty"`
	State      string              `json:"state"`
	Total      int                 `json:"total"`
	Selected   int                 `json:"selected"`
	Completed  int                 `json:"completed"`
	Notes      int                 `json:"notes"`
	Failed     int                 `json:"failed"`
	StartedAt  string              `json:"started_at"`
	FinishedAt string              `json:"finished_at,omitempty"`
	Current    string              `json:"current,omitempty"`
	Videos     []notes.VideoStatus `json:"videos"`
}

// StatusOutput adds the live progress line to RunOutput.
type StatusOutput struct {
	Progress  string    `json:"progress"`
	UpdatedAt string    `json:"updated_at"`
	Run       RunOutput `json:"run"`
}

func runOutput(s notes.Summary) RunOutput {
	out := RunOutput{
		RunID:      s.RunID,
		PlaylistID: s.PlaylistID,
		State:      string(s.State),
		Total:      s.Total,
		Selected:   s.Selected,
		Completed:  s.Completed,
		Notes:      s.Notes,
		Failed:     s.Failed,
		StartedAt:  s.StartedAt.Format(time.RFC3339),
		Videos:     s.Videos,
	}
	if s.FinishedAt != nil {
		out.FinishedAt = s.FinishedAt.Format(time.RFC3339)
	}
	if s.Current != nil {
		out.Current = s.Current.Label()
	}
	return out
}

func statusOutput(st notes.Status) StatusOutput {
	p := st.Progress
	line := fmt.Sprintf("%s %d/%d", p.State, p.Completed, p.Total)
	if p.Current != (notes.VideoRef{}) {
		line += ", processing " + p.Current.Label()
	}
	return StatusOutput{
		Progress:  line,
		UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
		Run:       runOutput(st.Summary),
	}
}
