// Package toolutil provides shared input helpers for go_ytnotes MCP tools.
package toolutil

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidPlaylist is returned when no playlist ID can be extracted from the input.
var ErrInvalidPlaylist = errors.New("invalid playlist: expected a playlist URL with list= or a playlist ID")

var playlistIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// PlaylistID extracts the playlist ID from a bare ID or any URL carrying list=.
func PlaylistID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrInvalidPlaylist
	}
	if playlistIDRe.MatchString(s) {
		return s, nil
	}

	raw := s
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidPlaylist
	}
	id := u.Query().Get("list")
	if id == "" || !playlistIDRe.MatchString(id) {
		return "", ErrInvalidPlaylist
	}
	return id, nil
}

// ClampVideos applies the default and upper bound to a requested video count.
func ClampVideos(n, def, limit int) int {
	if n <= 0 {
		n = def
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}
