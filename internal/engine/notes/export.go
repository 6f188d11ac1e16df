package notes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind selects which per-video content an export carries.
type Kind string

const (
	KindNotes       Kind = "notes"
	KindQA          Kind = "qa"
	KindTranscripts Kind = "transcripts"
)

// Encoding selects the export serialization.
type Encoding string

const (
	EncodingText Encoding = "text"
	EncodingJSON Encoding = "json"
	EncodingYAML Encoding = "yaml"
)

var (
	ErrUnknownKind     = errors.New("unknown export kind")
	ErrUnknownEncoding = errors.New("unknown export encoding")
	ErrVideoNotInRun   = errors.New("video not in run")
)

// ParseKind accepts the canonical names plus a few aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notes", "summary", "summaries", "summary_notes":
		return KindNotes, nil
	case "qa", "q&a", "qa_pairs", "questions":
		return KindQA, nil
	case "transcripts", "transcript":
		return KindTranscripts, nil
	}
	return "", fmt.Errorf("%w: %q (want notes, qa or transcripts)", ErrUnknownKind, s)
}

// ParseEncoding defaults to text; "structured" is an alias of json.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt", "plain":
		return EncodingText, nil
	case "json", "structured":
		return EncodingJSON, nil
	case "yaml", "yml":
		return EncodingYAML, nil
	}
	return "", fmt.Errorf("%w: %q (want text, json or yaml)", ErrUnknownEncoding, s)
}

// Ext is the filename extension for e.
func (e Encoding) Ext() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingYAML:
		return "yaml"
	}
	return "txt"
}

// MimeType is the download content type for e.
func (e Encoding) MimeType() string {
	switch e {
	case EncodingJSON:
		return "application/json"
	case EncodingYAML:
		return "application/yaml"
	}
	return "text/plain; charset=utf-8"
}

// ExportRecord is one video in a structured export. Failed and unprocessed
// videos are included with their status and detail.
type ExportRecord struct {
	Order            int              `json:"order" yaml:"order"`
	ID               string           `json:"id" yaml:"id"`
	Title            string           `json:"title" yaml:"title"`
	URL              string           `json:"url" yaml:"url"`
	TranscriptStatus TranscriptStatus `json:"transcript_status" yaml:"transcript_status"`
	TranscriptDetail string           `json:"transcript_detail,omitempty" yaml:"transcript_detail,omitempty"`
	Retryable        bool             `json:"transcript_retryable,omitempty" yaml:"transcript_retryable,omitempty"`
	Attempts         int              `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Language         string           `json:"language,omitempty" yaml:"language,omitempty"`
	Generated        bool             `json:"generated,omitempty" yaml:"generated,omitempty"`
	ArtifactStatus   ArtifactStatus   `json:"artifact_status,omitempty" yaml:"artifact_status,omitempty"`
	ArtifactDetail   string           `json:"artifact_detail,omitempty" yaml:"artifact_detail,omitempty"`
	Summary          string           `json:"summary,omitempty" yaml:"summary,omitempty"`
	QA               []QAPair         `json:"qa,omitempty" yaml:"qa,omitempty"`
	Transcript       string           `json:"transcript,omitempty" yaml:"transcript,omitempty"`
}

// ExportDoc is the structured export of a run.
type ExportDoc struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	PlaylistID string         `json:"playlist_id,omitempty" yaml:"playlist_id,omitempty"`
	Kind       Kind           `json:"kind" yaml:"kind"`
	State      State          `json:"state" yaml:"state"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Total      int            `json:"total" yaml:"total"`
	Videos     []ExportRecord `json:"videos" yaml:"videos"`
}

// Format serializes run for download. Videos appear in playlist order.
func Format(run *Run, kind Kind, enc Encoding) ([]byte, error) {
	if run == nil {
		return nil, errors.New("no run to export")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return encode(buildDoc(run, kind, run.Videos), enc)
}

// FormatVideo serializes a single video of run, with the same run header as Format.
func FormatVideo(run *Run, v VideoRef, kind Kind, enc Encoding) ([]byte, error) {
	if run == nil {
		return nil, errors.New("no run to export")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if !slices.Contains(run.Videos, v) {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotInRun, v.ID)
	}
	return encode(buildDoc(run, kind, []VideoRef{v}), enc)
}

func encode(doc ExportDoc, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingText:
		return formatText(doc), nil
	case EncodingJSON:
		return json.MarshalIndent(doc, "", "  ")
	case EncodingYAML:
		var buf bytes.Buffer
		ye := yaml.NewEncoder(&buf)
		ye.SetIndent(2)
		if err := ye.Encode(doc); err != nil {
			return nil, fmt.Errorf("yaml export: %w", err)
		}
		if err := ye.Close(); err != nil {
			return nil, fmt.Errorf("yaml export: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
}

// ParseExport reads a structured export back.
func ParseExport(data []byte, enc Encoding) (*ExportDoc, error) {
	var doc ExportDoc
	switch enc {
	case EncodingJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json export: %w", err)
		}
	case EncodingYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml export: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q is not structured", ErrUnknownEncoding, enc)
	}
	return &doc, nil
}

// Filename names a download as <playlist>_<kind>_<YYYYmmdd_HHMMSS>.<ext>.
func Filename(run *Run, kind Kind, enc Encoding) string {
	name := "videos"
	ts := time.Now()
	if run != nil {
		if run.PlaylistID != "" {
			name = run.PlaylistID
		}
		ts = run.StartedAt
	}
	return fmt.Sprintf("%s_%s_%s.%s", name, kind, ts.Format("20060102_150405"), enc.Ext())
}

// VideoFilename names a single-video download as <video_id>_<kind>_<YYYYmmdd_HHMMSS>.<ext>.
func VideoFilename(run *Run, v VideoRef, kind Kind, enc Encoding) string {
	ts := time.Now()
	if run != nil {
		ts = run.StartedAt
	}
	return fmt.Sprintf("%s_%s_%s.%s", v.ID, kind, ts.Format("20060102_150405"), enc.Ext())
}

func buildDoc(run *Run, kind Kind, videos []VideoRef) ExportDoc {
	doc := ExportDoc{
		RunID:      run.ID,
		PlaylistID: run.PlaylistID,
		Kind:       kind,
		State:      run.State(),
		StartedAt:  run.StartedAt,
		Total:      run.Total,
		Videos:     make([]ExportRecord, 0, len(videos)),
	}
	if fin := run.FinishedAt(); !fin.IsZero() {
		doc.FinishedAt = &fin
	}
	for _, v := range videos {
		rec := ExportRecord{
			Order:            v.Order,
			ID:               v.ID,
			Title:            v.Title,
			URL:              v.URL(),
			TranscriptStatus: TranscriptNotProcessed,
		}
		if tr, ok := run.Transcript(v); ok {
			rec.TranscriptStatus = tr.Status
			rec.TranscriptDetail = tr.Detail
			rec.Retryable = tr.Retryable
			rec.Attempts = tr.Attempts
			rec.Language = tr.Language
			rec.Generated = tr.Generated
			if kind == KindTranscripts {
				rec.Transcript = tr.Text
			}
		}
		if a, ok := run.Artifact(v); ok {
			rec.ArtifactStatus = a.Status
			rec.ArtifactDetail = a.Detail
			switch kind {
			case KindNotes:
				rec.Summary = a.Summary
			case KindQA:
				rec.QA = a.QA
			}
		}
		doc.Videos = append(doc.Videos, rec)
	}
	return doc
}

func formatText(doc ExportDoc) []byte {
	var b strings.Builder
	writeRunHeader(&b, doc)
	for _, rec := range doc.Videos {
		b.WriteString("\n")
		fmt.Fprintf(&b, "=== [%d] %s (%s) ===\n", rec.Order, rec.Title, rec.ID)
		if line, failed := failureLine(rec, doc.Kind); failed {
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		switch doc.Kind {
		case KindNotes:
			b.WriteString(rec.Summary)
			b.WriteString("\n")
		case KindQA:
			for n, qa := range rec.QA {
				fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", n+1, qa.Question, n+1, qa.Answer)
			}
		case KindTranscripts:
			if rec.Language != "" {
				fmt.Fprintf(&b, "language: %s", rec.Language)
				if rec.Generated {
					b.WriteString(" (auto-generated)")
				}
				b.WriteString("\n")
			}
			if rec.Attempts > 1 {
				fmt.Fprintf(&b, "attempts: %d\n", rec.Attempts)
			}
			b.WriteString(rec.Transcript)
			b.WriteString("\n")
		}
	}
	return []byte(b.String())
}

func writeRunHeader(b *strings.Builder, doc ExportDoc) {
	playlist, finished := doc.PlaylistID, "-"
	if playlist == "" {
		playlist = "-"
	}
	if doc.FinishedAt != nil {
		finished = doc.FinishedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(b, "run: %s\nplaylist: %s\nkind: %s\nstate: %s\nstarted: %s\nfinished: %s\ntotal: %d\n",
		doc.RunID, playlist, doc.Kind, doc.State, doc.StartedAt.Format(time.RFC3339), finished, doc.Total)
}

// failureLine renders "status: <class>: <detail>" when the record has no content for kind.
func failureLine(rec ExportRecord, kind Kind) (string, bool) {
	status, detail := string(rec.TranscriptStatus), rec.TranscriptDetail
	if rec.TranscriptStatus == TranscriptFetchError {
		detail = strings.TrimSpace(detail + " " + retryNote(rec))
	}
	switch {
	case rec.TranscriptStatus != TranscriptOK:
	case kind == KindTranscripts:
		return "", false
	case rec.ArtifactStatus == ArtifactOK:
		return "", false
	case rec.ArtifactStatus == "":
		status, detail = string(TranscriptNotProcessed), ""
	default:
		status, detail = string(rec.ArtifactStatus), rec.ArtifactDetail
	}
	if detail == "" {
		return "status: " + status, true
	}
	return "status: " + status + ": " + detail, true
}

// retryNote renders "(retryable, attempts: 2)" for fetch failures.
func retryNote(rec ExportRecord) string {
	switch {
	case rec.Retryable:
		return fmt.Sprintf("(retryable, attempts: %d)", rec.Attempts)
	case rec.Attempts > 0:
		return fmt.Sprintf("(attempts: %d)", rec.Attempts)
	}
	return ""
}
