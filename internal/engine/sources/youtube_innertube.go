package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// Innertube endpoints behind the transcript fallbacks.
const (
	playerPath     = "/youtubei/v1/player"
	nextPath       = "/youtubei/v1/next"
	transcriptPath = "/youtubei/v1/get_transcript"

	androidVersion   = "20.10.38"
	webVersion       = "2.20250222.10.00"
	androidUserAgent = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"
	desktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// clientProfile is the app identity an Innertube call claims to be.
type clientProfile struct {
	header    string // X-Youtube-Client-Name
	name      string
	version   string
	userAgent string
	sdk       int
}

var (
	androidClient = clientProfile{header: "3", name: "ANDROID", version: androidVersion, userAgent: androidUserAgent, sdk: 30}
	webClient     = clientProfile{header: "1", name: "WEB", version: webVersion, userAgent: desktopUserAgent}
)

type clientContext struct {
	Client struct {
		Name      string `json:"clientName"`
		Version   string `json:"clientVersion"`
		SDK       int    `json:"androidSdkVersion,omitempty"`
		VisitorID string `json:"visitorData,omitempty"`
		Lang      string `json:"hl"`
		Region    string `json:"gl"`
	} `json:"client"`
}

func (p clientProfile) context(visitorID string) clientContext {
	var c clientContext
	c.Client.Name = p.name
	c.Client.Version = p.version
	c.Client.SDK = p.sdk
	c.Client.VisitorID = visitorID
	c.Client.Lang = "en"
	c.Client.Region = "US"
	return c
}

// playerResponse is the subset of /player (and ytInitialPlayerResponse) we read.
type playerResponse struct {
	Playability struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		Tracklist *struct {
			Tracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

// newVisitorID returns a throwaway 11-char visitor ID for WEB calls.
func newVisitorID() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))] //nolint:gosec // not a secret
	}
	return string(b)
}

// innertube POSTs payload to path as client p and returns the raw response body.
// The client context is added to payload.
func (y *YouTube) innertube(ctx context.Context, p clientProfile, path string, payload map[string]any, visitorID string) ([]byte, error) {
	payload["context"] = p.context(visitorID)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := y.baseURL + path + "?prettyPrint=false"
	resp, err := engine.RetryHTTP(ctx, y.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", p.userAgent)
		req.Header.Set("X-Youtube-Client-Name", p.header)
		req.Header.Set("X-Youtube-Client-Version", p.version)
		if visitorID != "" {
			req.Header.Set("X-Goog-Visitor-Id", visitorID)
			req.Header.Set("Origin", "https://www.youtube.com")
			req.Header.Set("Referer", "https://www.youtube.com/")
		}
		return y.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.name, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %w", p.name, path, &engine.HTTPStatusError{StatusCode: resp.StatusCode})
	}
	return io.ReadAll(io.LimitReader(resp.Body, 3*1024*1024))
}

// segmentText joins the snippet runs of every transcriptSegmentRenderer in a
// /get_transcript response. Object keys are visited in sorted order so the
// result is stable; segments themselves live in arrays and keep their order.
func segmentText(data []byte) (string, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return "", err
	}
	var parts []string
	collectSegments(root, &parts)
	return strings.Join(parts, " "), nil
}

func collectSegments(v any, parts *[]string) {
	switch n := v.(type) {
	case []any:
		for _, child := range n {
			collectSegments(child, parts)
		}
	case map[string]any:
		if seg, ok := n["transcriptSegmentRenderer"].(map[string]any); ok {
			snippet, _ := seg["snippet"].(map[string]any)
			runs, _ := snippet["runs"].([]any)
			for _, r := range runs {
				run, _ := r.(map[string]any)
				if text, _ := run["text"].(string); strings.TrimSpace(text) != "" {
					*parts = append(*parts, strings.TrimSpace(text))
				}
			}
			return
		}
		for _, k := range slices.Sorted(maps.Keys(n)) {
			collectSegments(n[k], parts)
		}
	}
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
