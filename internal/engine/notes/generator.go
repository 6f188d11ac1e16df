package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// Q&A pair bounds requested from the model.
const (
	minQAPairs = 5
	maxQAPairs = 10
)

// Generator produces notes and Q&A for one transcript. Single attempt.
type Generator interface {
	Generate(ctx context.Context, transcript string) (ArtifactBody, error)
}

// CompleteFunc sends a prompt to a text-generation backend (engine.CallLLM in production).
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// GenerationError reports why a video has no usable artifact.
type GenerationError struct {
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return "generation: " + e.Detail + ": " + e.Err.Error()
	}
	return "generation: " + e.Detail
}

func (e *GenerationError) Unwrap() error { return e.Err }

const notesPrompt = `You are a study assistant. Turn the video transcript below into revision material.

TRANSCRIPT:
%s

Produce:
1. "summary": well-structured study notes in markdown (headings, bullet points, key terms in bold). Cover the main ideas in the order they appear.
2. "qa": between %d and %d question/answer pairs that test understanding of the material. Answers must be self-contained, 1-3 sentences.

Return a JSON object with this exact structure:
{
  "summary": "<markdown notes>",
  "qa": [
    {"question": "<question>", "answer": "<answer>"}
  ]
}

Return ONLY the JSON object, no markdown fences, no explanation.`

// LLMGenerator issues one completion per transcript and parses the two-section response.
type LLMGenerator struct {
	complete CompleteFunc
	maxChars int
}

// NewLLMGenerator creates a generator. maxChars caps the transcript sent to the model (0 = no cap).
func NewLLMGenerator(complete CompleteFunc, maxChars int) *LLMGenerator {
	return &LLMGenerator{complete: complete, maxChars: maxChars}
}

// Generate returns the parsed artifact body or a *GenerationError.
func (g *LLMGenerator) Generate(ctx context.Context, transcript string) (ArtifactBody, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return ArtifactBody{}, &GenerationError{Detail: "empty transcript"}
	}
	if g.complete == nil {
		return ArtifactBody{}, &GenerationError{Detail: "no completion backend", Err: engine.ErrLLMNotConfigured}
	}
	if g.maxChars > 0 {
		transcript = engine.TruncateAtWord(transcript, g.maxChars)
	}

	raw, err := g.complete(ctx, fmt.Sprintf(notesPrompt, transcript, minQAPairs, maxQAPairs))
	if err != nil {
		return ArtifactBody{}, &GenerationError{Detail: "upstream call failed", Err: err}
	}
	return ParseArtifact(raw)
}

// ParseArtifact reads a model response: a JSON object first, then markdown
// "## Summary" / "## Q&A" sections with **Question:** / **Answer:** items.
func ParseArtifact(raw string) (ArtifactBody, error) {
	raw = engine.StripFences(raw)
	if raw == "" {
		return ArtifactBody{}, &GenerationError{Detail: "empty response"}
	}

	body, ok := parseJSONArtifact(raw)
	if !ok {
		body = parseMarkdownArtifact(raw)
	}
	body.Summary = strings.TrimSpace(body.Summary)
	body.QA = cleanPairs(body.QA)

	switch {
	case body.Summary == "" && len(body.QA) == 0:
		return ArtifactBody{}, &GenerationError{Detail: "unparseable response: no summary or Q&A section"}
	case body.Summary == "":
		return ArtifactBody{}, &GenerationError{Detail: "missing summary section"}
	case len(body.QA) == 0:
		return ArtifactBody{}, &GenerationError{Detail: "missing Q&A section"}
	}
	if len(body.QA) > maxQAPairs {
		body.QA = body.QA[:maxQAPairs]
	}
	return body, nil
}

func parseJSONArtifact(raw string) (ArtifactBody, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ArtifactBody{}, false
	}
	var out struct {
		Summary string   `json:"summary"`
		Notes   string   `json:"notes"`
		QA      []QAPair `json:"qa"`
		QAPairs []QAPair `json:"qa_pairs"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return ArtifactBody{}, false
	}
	body := ArtifactBody{Summary: out.Summary, QA: out.QA}
	if body.Summary == "" {
		body.Summary = out.Notes
	}
	if len(body.QA) == 0 {
		body.QA = out.QAPairs
	}
	return body, true
}

var (
	headingRe    = regexp.MustCompile(`^#{1,4}\s*(.+?)\s*#*$`)
	questionRe   = regexp.MustCompile(`(?i)\*\*\s*(?:Q(?:uestion)?\s*\d*)\s*:?\s*\*\*\s*:?`)
	answerRe     = regexp.MustCompile(`(?i)\*\*\s*(?:A(?:nswer)?\s*\d*)\s*:?\s*\*\*\s*:?`)
	listMarkerRe = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+[.)])\s*$`)
)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionQA
)

func sectionOf(heading string) section {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "q&a"), strings.Contains(h, "q & a"), strings.Contains(h, "question"):
		return sectionQA
	case strings.Contains(h, "summary"), strings.Contains(h, "notes"):
		return sectionSummary
	}
	return sectionNone
}

func parseMarkdownArtifact(raw string) ArtifactBody {
	var summary, qa []string
	cur := sectionNone
	for _, line := range strings.Split(raw, "\n") {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if s := sectionOf(m[1]); s != sectionNone {
				cur = s
				continue
			}
		}
		switch cur {
		case sectionSummary:
			summary = append(summary, line)
		case sectionQA:
			qa = append(qa, line)
		}
	}
	return ArtifactBody{
		Summary: strings.Join(summary, "\n"),
		QA:      parseQAItems(strings.Join(qa, "\n")),
	}
}

// parseQAItems splits "**Question:** ... **Answer:** ..." runs into pairs.
func parseQAItems(text string) []QAPair {
	locs := questionRe.FindAllStringIndex(text, -1)
	pairs := make([]QAPair, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunk := text[loc[1]:end]
		a := answerRe.FindStringIndex(chunk)
		if a == nil {
			continue
		}
		pairs = append(pairs, QAPair{
			Question: trimItem(chunk[:a[0]]),
			Answer:   trimItem(chunk[a[1]:]),
		})
	}
	return pairs
}

func trimItem(s string) string {
	s = listMarkerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func cleanPairs(pairs []QAPair) []QAPair {
	out := pairs[:0:0]
	for _, p := range pairs {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if p.Question == "" || p.Answer == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
