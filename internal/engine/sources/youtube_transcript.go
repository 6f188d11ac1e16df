package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// YouTube transcript fetching.
// Primary:  watch page ytInitialPlayerResponse → caption track XML (works from any IP)
// Fallback: ANDROID Innertube /player → captionTracks   (works from non-blocked IPs)
// Fallback: /next → engagement panel → /get_transcript (language-agnostic)

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

var errPoTokenOnly = errors.New("all caption tracks require PoToken")

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

// FetchTranscript returns the transcript of videoID, preferring langs in order and
// falling back to any available track.
//
// Classified failures wrap engine.ErrTranscriptsDisabled, engine.ErrNoTranscript or
// engine.ErrVideoUnavailable; anything else is a fetch error.
func (y *YouTube) FetchTranscript(ctx context.Context, videoID string, langs []string) (engine.Transcript, error) {
	engine.IncrTranscriptRequests()

	key := engine.CacheKey("transcript", videoID, strings.Join(langs, ","))
	if y.cache {
		if t, ok := engine.CacheLoadJSON[engine.Transcript](ctx, key); ok {
			return t, nil
		}
	}

	t, err := y.fetchTranscript(ctx, videoID, langs)
	if err != nil {
		engine.IncrTranscriptErrors()
		return engine.Transcript{}, err
	}
	if y.cache {
		engine.CacheStoreJSON(ctx, key, t)
	}
	return t, nil
}

func (y *YouTube) fetchTranscript(ctx context.Context, videoID string, langs []string) (engine.Transcript, error) {
	t, scrapeErr := y.viaPageScrape(ctx, videoID, langs)
	if scrapeErr == nil || isClassified(scrapeErr) || ctx.Err() != nil {
		return t, scrapeErr
	}
	slog.Warn("youtube: page scrape failed, trying player",
		slog.String("id", videoID), slog.Any("err", scrapeErr))

	t, playerErr := y.viaPlayer(ctx, videoID, langs)
	if playerErr == nil || isClassified(playerErr) || ctx.Err() != nil {
		return t, playerErr
	}
	slog.Warn("youtube: player failed, trying engagement panel",
		slog.String("id", videoID), slog.Any("err", playerErr))

	text, panelErr := y.viaEngagementPanel(ctx, videoID)
	if panelErr == nil {
		return engine.Transcript{Text: text}, nil
	}
	return engine.Transcript{}, fmt.Errorf("transcript %s: %w", videoID, errors.Join(scrapeErr, playerErr, panelErr))
}

// isClassified reports whether err is an authoritative answer that other
// fetch methods would only repeat.
func isClassified(err error) bool {
	return errors.Is(err, engine.ErrTranscriptsDisabled) ||
		errors.Is(err, engine.ErrNoTranscript) ||
		errors.Is(err, engine.ErrVideoUnavailable)
}

// captionTracksFrom classifies a player response and returns its caption tracks.
func captionTracksFrom(pr playerResponse) ([]captionTrack, error) {
	if ps := pr.Playability; ps.Status != "" && ps.Status != "OK" {
		reason := ps.Reason
		if reason == "" {
			reason = ps.Status
		}
		if ps.Status == "ERROR" {
			return nil, fmt.Errorf("%w: %s", engine.ErrVideoUnavailable, reason)
		}
		return nil, fmt.Errorf("playability %s: %s", ps.Status, reason)
	}
	if pr.Captions == nil || pr.Captions.Tracklist == nil {
		return nil, engine.ErrTranscriptsDisabled
	}
	tracks := pr.Captions.Tracklist.Tracks
	if len(tracks) == 0 {
		return nil, engine.ErrNoTranscript
	}
	return tracks, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects a caption track for the ordered language preferences.
// Per language: manual track, then auto-generated. Then a track sharing the
// primary subtag ("en" for "en-GB"), then any usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		primary, _, _ := strings.Cut(lang, "-")
		for _, t := range usable {
			if p, _, _ := strings.Cut(t.LanguageCode, "-"); strings.EqualFold(p, primary) {
				return t, true
			}
		}
	}
	return usable[0], true
}

// transcriptFromTracks picks a track and downloads its text.
func (y *YouTube) transcriptFromTracks(ctx context.Context, tracks []captionTrack, langs []string) (engine.Transcript, error) {
	track, ok := pickBestTrack(tracks, langs)
	if !ok {
		return engine.Transcript{}, errPoTokenOnly
	}
	text, err := y.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return engine.Transcript{}, err
	}
	if text == "" {
		return engine.Transcript{}, fmt.Errorf("%w: empty %s caption track", engine.ErrNoTranscript, track.LanguageCode)
	}
	return engine.Transcript{Text: text, Language: track.LanguageCode, Generated: track.Kind == "asr"}, nil
}

// fetchTimedText fetches and parses a YouTube timedtext XML caption URL.
func (y *YouTube) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	resp, err := engine.RetryHTTP(ctx, y.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return y.httpClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch timedtext: %w", &engine.HTTPStatusError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return "", err
	}

	var tt struct {
		Lines []struct {
			Text string `xml:",chardata"`
		} `xml:"text"`
	}
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}

	var sb strings.Builder
	for _, line := range tt.Lines {
		text := cleanCaption(line.Text)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
	}
	return sb.String(), nil
}

// cleanCaption drops inline markup (<font>, <i>) and decodes the entities
// YouTube double-escapes inside caption XML.
func cleanCaption(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

// fetchWatchPage downloads the watch page HTML, through the browser client when configured.
func (y *YouTube) fetchWatchPage(ctx context.Context, videoID string) ([]byte, error) {
	watchURL := y.baseURL + "/watch?v=" + url.QueryEscape(videoID)

	if y.browser != nil {
		return engine.RetryDo(ctx, y.retry, func() ([]byte, error) {
			body, status, err := y.browser.Do(http.MethodGet, watchURL, engine.ChromeHeaders(), nil)
			if err != nil {
				return nil, err
			}
			if status != http.StatusOK {
				return nil, &engine.HTTPStatusError{StatusCode: status}
			}
			return body, nil
		})
	}

	resp, err := engine.RetryHTTP(ctx, y.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return y.httpClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &engine.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
}

// viaPageScrape scrapes the watch page and reads caption tracks from ytInitialPlayerResponse.
func (y *YouTube) viaPageScrape(ctx context.Context, videoID string, langs []string) (engine.Transcript, error) {
	body, err := y.fetchWatchPage(ctx, videoID)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return engine.Transcript{}, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return engine.Transcript{}, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp playerResponse
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	tracks, err := captionTracksFrom(playerResp)
	if err != nil {
		return engine.Transcript{}, err
	}
	return y.transcriptFromTracks(ctx, tracks, langs)
}

// viaPlayer uses the ANDROID Innertube /player endpoint.
func (y *YouTube) viaPlayer(ctx context.Context, videoID string, langs []string) (engine.Transcript, error) {
	data, err := y.innertube(ctx, androidClient, playerPath, map[string]any{
		"videoId":        videoID,
		"racyCheckOk":    true,
		"contentCheckOk": true,
	}, "")
	if err != nil {
		return engine.Transcript{}, err
	}

	var playerResp playerResponse
	if err := json.Unmarshal(data, &playerResp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode player: %w", err)
	}
	tracks, err := captionTracksFrom(playerResp)
	if err != nil {
		return engine.Transcript{}, err
	}
	return y.transcriptFromTracks(ctx, tracks, langs)
}

func extractTranscriptToken(data []byte) (string, error) {
	if m := getTranscriptRE.FindSubmatch(data); len(m) >= 2 {
		// The params value in the /next JSON response is URL-encoded.
		// /get_transcript expects the decoded (raw base64) form.
		decoded, err := url.QueryUnescape(string(m[1]))
		if err != nil {
			return string(m[1]), nil
		}
		return decoded, nil
	}
	return "", errors.New("getTranscriptEndpoint not found in engagement panels")
}

// viaEngagementPanel fetches a transcript via:
//  1. POST /next → engagementPanels containing transcript continuation token
//  2. POST /get_transcript with the token → JSON segments
func (y *YouTube) viaEngagementPanel(ctx context.Context, videoID string) (string, error) {
	visitorID := newVisitorID()

	next, err := y.innertube(ctx, webClient, nextPath, map[string]any{"videoId": videoID}, visitorID)
	if err != nil {
		return "", err
	}
	token, err := extractTranscriptToken(next)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}

	data, err := y.innertube(ctx, webClient, transcriptPath, map[string]any{"params": token}, visitorID)
	if err != nil {
		return "", err
	}
	text, err := segmentText(data)
	if err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	if text == "" {
		return "", errors.New("empty transcript segments")
	}
	return text, nil
}
