package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

var noRetry = engine.RetryConfig{MaxRetries: 0}

const sampleTimedText = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0" dur="1.5">it&amp;#39;s a</text>` +
	`<text start="1.5" dur="2">&lt;font color=&quot;#E5E5E5&quot;&gt;bold&lt;/font&gt; move</text>` +
	`<text start="3.5" dur="1"></text>` +
	`</transcript>`

// watchPage wraps a player response the way youtube.com embeds it.
func watchPage(playerJSON string) string {
	return `<html><head></head><body><script>var ytInitialPlayerResponse = ` + playerJSON +
		`;var meta = document.createElement('meta');</script></body></html>`
}

func tracksJSON(base string, tracks ...[2]string) string {
	parts := make([]string, 0, len(tracks))
	for _, t := range tracks {
		kind := ""
		if t[1] == "asr" {
			kind = `,"kind":"asr"`
		}
		parts = append(parts, fmt.Sprintf(`{"baseUrl":"%s/api/timedtext?v=x&lang=%s","languageCode":"%s"%s}`, base, t[0], t[0], kind))
	}
	return `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		strings.Join(parts, ",") + `]}}}`
}

type fakeYouTube struct {
	srv         *httptest.Server
	player      func(base string) string
	playerHits  atomic.Int32
	fetchedLang atomic.Value
}

func newFakeYouTube(t *testing.T, player func(base string) string) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{player: player}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			fmt.Fprint(w, watchPage(f.player(f.srv.URL)))
		case "/api/timedtext":
			f.fetchedLang.Store(r.URL.Query().Get("lang"))
			fmt.Fprint(w, sampleTimedText)
		case playerPath:
			f.playerHits.Add(1)
			fmt.Fprint(w, f.player(f.srv.URL))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYouTube) client() *YouTube {
	return NewYouTube(f.srv.Client(), WithBaseURL(f.srv.URL), WithRetryConfig(noRetry))
}

func TestFetchTranscriptPreferredLanguage(t *testing.T) {
	f := newFakeYouTube(t, func(base string) string {
		return tracksJSON(base, [2]string{"de", ""}, [2]string{"hi", ""}, [2]string{"en", "asr"})
	})

	tr, err := f.client().FetchTranscript(context.Background(), "abcdefghijk", []string{"en", "hi"})
	if err != nil {
		t.Fatalf("FetchTranscript: %v", err)
	}
	if tr.Language != "en" || !tr.Generated {
		t.Errorf("picked %q generated=%v, want auto-generated en", tr.Language, tr.Generated)
	}
	if got := f.fetchedLang.Load(); got != "en" {
		t.Errorf("timedtext fetched for %v, want en", got)
	}
	if tr.Text != "it's a bold move" {
		t.Errorf("text = %q", tr.Text)
	}
}

func TestFetchTranscriptFallsBackToAnyLanguage(t *testing.T) {
	f := newFakeYouTube(t, func(base string) string {
		return tracksJSON(base, [2]string{"de", ""})
	})

	tr, err := f.client().FetchTranscript(context.Background(), "abcdefghijk", []string{"en", "hi"})
	if err != nil {
		t.Fatalf("FetchTranscript: %v", err)
	}
	if tr.Language != "de" {
		t.Errorf("language = %q, want de", tr.Language)
	}
}

func TestFetchTranscriptDisabled(t *testing.T) {
	f := newFakeYouTube(t, func(string) string {
		return `{"playabilityStatus":{"status":"OK"},"videoDetails":{"videoId":"abcdefghijk"}}`
	})

	_, err := f.client().FetchTranscript(context.Background(), "abcdefghijk", []string{"en"})
	if !errors.Is(err, engine.ErrTranscriptsDisabled) {
		t.Fatalf("expected ErrTranscriptsDisabled, got %v", err)
	}
	if hits := f.playerHits.Load(); hits != 0 {
		t.Errorf("player endpoint hit %d times after authoritative answer", hits)
	}
}

func TestFetchTranscriptNoTracks(t *testing.T) {
	f := newFakeYouTube(t, func(string) string {
		return `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[]}}}`
	})

	_, err := f.client().FetchTranscript(context.Background(), "abcdefghijk", []string{"en"})
	if !errors.Is(err, engine.ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
}

func TestFetchTranscriptUnavailable(t *testing.T) {
	f := newFakeYouTube(t, func(string) string {
		return `{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}`
	})

	_, err := f.client().FetchTranscript(context.Background(), "abcdefghijk", nil)
	if !errors.Is(err, engine.ErrVideoUnavailable) {
		t.Fatalf("expected ErrVideoUnavailable, got %v", err)
	}
	if engine.IsRetryable(err) {
		t.Error("unavailable video must not be retry-eligible")
	}
}

func TestFetchTranscriptServiceErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	y := NewYouTube(srv.Client(), WithBaseURL(srv.URL), WithRetryConfig(noRetry))
	_, err := y.FetchTranscript(context.Background(), "abcdefghijk", []string{"en"})
	if err == nil {
		t.Fatal("expected error")
	}
	if isClassified(err) {
		t.Errorf("service error classified as transcript state: %v", err)
	}
	if !engine.IsRetryable(err) {
		t.Errorf("503 from every endpoint should be retry-eligible: %v", err)
	}
}

const transcriptPanelJSON = `{"actions":[{"updateEngagementPanelAction":{"content":{"transcriptRenderer":{"content":{"transcriptSearchPanelRenderer":{"body":{"transcriptSegmentListRenderer":{"initialSegments":[` +
	`{"transcriptSectionHeaderRenderer":{"snippet":{"runs":[{"text":"Intro"}]}}},` +
	`{"transcriptSegmentRenderer":{"snippet":{"runs":[{"text":"hello"},{"text":" world "}]}}},` +
	`{"transcriptSegmentRenderer":{"snippet":{"runs":[{"text":"again"}]}}}` +
	`]}}}}}}}}]}`

func TestFetchTranscriptEngagementPanelFallback(t *testing.T) {
	var clients, params atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Params  string        `json:"params"`
			Context clientContext `json:"context"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case nextPath:
			clients.Store(body.Context.Client.Name + "/" + r.Header.Get("X-Youtube-Client-Name"))
			if r.Header.Get("X-Goog-Visitor-Id") != body.Context.Client.VisitorID {
				t.Errorf("visitor header %q does not match context %q", r.Header.Get("X-Goog-Visitor-Id"), body.Context.Client.VisitorID)
			}
			fmt.Fprint(w, `{"engagementPanels":[{"getTranscriptEndpoint":{"params":"Cgt%3D"}}]}`)
		case transcriptPath:
			params.Store(body.Params)
			fmt.Fprint(w, transcriptPanelJSON)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	y := NewYouTube(srv.Client(), WithBaseURL(srv.URL), WithRetryConfig(noRetry))
	tr, err := y.FetchTranscript(context.Background(), "abcdefghijk", []string{"en"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text != "hello world again" {
		t.Errorf("text = %q", tr.Text)
	}
	if got := clients.Load(); got != "WEB/1" {
		t.Errorf("/next client = %v, want WEB/1", got)
	}
	if got := params.Load(); got != "Cgt=" {
		t.Errorf("get_transcript params = %v, want Cgt=", got)
	}
}

func TestSegmentText(t *testing.T) {
	got, err := segmentText([]byte(transcriptPanelJSON))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world again" {
		t.Errorf("segmentText() = %q", got)
	}
	if got, _ := segmentText([]byte(`{"actions":[]}`)); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
	if _, err := segmentText([]byte(`{`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestFetchTranscriptCache(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Minute)
	f := newFakeYouTube(t, func(base string) string {
		return tracksJSON(base, [2]string{"en", ""})
	})
	y := NewYouTube(f.srv.Client(), WithBaseURL(f.srv.URL), WithRetryConfig(noRetry), WithTranscriptCache())

	first, err := y.FetchTranscript(context.Background(), "cachedvideo", []string{"en"})
	if err != nil {
		t.Fatal(err)
	}
	f.srv.Close()
	second, err := y.FetchTranscript(context.Background(), "cachedvideo", []string{"en"})
	if err != nil {
		t.Fatalf("cached fetch after server shutdown: %v", err)
	}
	if first != second {
		t.Errorf("cached %+v != fetched %+v", second, first)
	}
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1", LanguageCode: "en-GB", Kind: "asr"},
		{BaseURL: "u2&exp=xpe", LanguageCode: "hi"},
		{BaseURL: "u3", LanguageCode: "fr"},
		{BaseURL: "u4", LanguageCode: "hi", Kind: "asr"},
	}
	tests := []struct {
		name  string
		langs []string
		want  string
	}{
		{"exact asr when manual needs potoken", []string{"hi"}, "u4"},
		{"order matters", []string{"fr", "hi"}, "u3"},
		{"primary subtag", []string{"en"}, "u1"},
		{"any usable", []string{"ja"}, "u1"},
		{"no prefs", nil, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickBestTrack(tracks, tt.langs)
			if !ok || got.BaseURL != tt.want {
				t.Errorf("pickBestTrack() = %q,%v want %q", got.BaseURL, ok, tt.want)
			}
		})
	}

	if _, ok := pickBestTrack([]captionTrack{{BaseURL: "x&exp=xpe"}}, nil); ok {
		t.Error("expected no usable track")
	}
}

func TestExtractJSON(t *testing.T) {
	in := []byte(`{"a":"brace } in \"string\"","b":{"c":1}};var x = {}`)
	got := string(extractJSON(in))
	want := `{"a":"brace } in \"string\"","b":{"c":1}}`
	if got != want {
		t.Errorf("extractJSON() = %s, want %s", got, want)
	}
	if extractJSON([]byte("nope")) != nil {
		t.Error("expected nil for non-object input")
	}
}

func TestCleanCaption(t *testing.T) {
	tests := map[string]string{
		"plain":                              "plain",
		"it&#39;s":                           "it's",
		`<font color="#fff">hi</font>  there`: "hi there",
		"[Music]\n next":                     "[Music] next",
	}
	for in, want := range tests {
		if got := cleanCaption(in); got != want {
			t.Errorf("cleanCaption(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTranscriptToken(t *testing.T) {
	tok, err := extractTranscriptToken([]byte(`..."getTranscriptEndpoint":{"params":"Cgt%3D"}...`))
	if err != nil {
		t.Fatal(err)
	}
	if tok != "Cgt=" {
		t.Errorf("token = %q, want Cgt=", tok)
	}
	if _, err := extractTranscriptToken([]byte(`{}`)); err == nil {
		t.Error("expected error when token missing")
	}
}
