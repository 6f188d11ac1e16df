package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/anatolykoptev/go_ytnotes/internal/engine"
)

// YouTube playlist listing via Data API v3 playlistItems.list.

const ytPlaylistPageSize = 50

// Titles YouTube reports for entries whose video is gone or hidden.
var unplayableTitles = map[string]bool{
	"Private video": true,
	"Deleted video": true,
}

// Playlists lists playlist entries through the YouTube Data API.
type Playlists struct {
	keys       []string
	httpClient *http.Client
	endpoint   string
	cache      bool
}

// PlaylistsOption customizes a Playlists client.
type PlaylistsOption func(*Playlists)

// WithEndpoint overrides the Data API root URL (tests).
func WithEndpoint(u string) PlaylistsOption {
	return func(p *Playlists) { p.endpoint = u }
}

// WithPlaylistCache stores listings in the engine cache.
func WithPlaylistCache() PlaylistsOption {
	return func(p *Playlists) { p.cache = true }
}

// NewPlaylists creates a playlist lister. fallbackKey is tried when the primary key fails.
func NewPlaylists(httpClient *http.Client, apiKey, fallbackKey string, opts ...PlaylistsOption) *Playlists {
	if httpClient == nil {
		httpClient = engine.Cfg.HTTPClient
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	p := &Playlists{httpClient: httpClient}
	for _, k := range []string{apiKey, fallbackKey} {
		if k != "" {
			p.keys = append(p.keys, k)
		}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ListVideos returns the playable entries of playlistID in playlist order,
// numbered from 1. Missing/private playlists wrap engine.ErrPlaylistNotFound,
// playlists without playable entries wrap engine.ErrPlaylistEmpty.
func (p *Playlists) ListVideos(ctx context.Context, playlistID string) ([]engine.VideoRef, error) {
	engine.IncrPlaylistRequests()
	if playlistID == "" {
		return nil, fmt.Errorf("%w: empty playlist id", engine.ErrPlaylistNotFound)
	}
	if len(p.keys) == 0 {
		return nil, engine.ErrNoAPIKey
	}

	cacheKey := engine.CacheKey("playlist", playlistID)
	if p.cache {
		if videos, ok := engine.CacheLoadJSON[[]engine.VideoRef](ctx, cacheKey); ok && len(videos) > 0 {
			return videos, nil
		}
	}

	var lastErr error
	for i, key := range p.keys {
		videos, err := p.list(ctx, playlistID, key)
		if err == nil {
			if len(videos) == 0 {
				return nil, fmt.Errorf("%w: %s", engine.ErrPlaylistEmpty, playlistID)
			}
			if p.cache {
				engine.CacheStoreJSON(ctx, cacheKey, videos)
			}
			return videos, nil
		}
		lastErr = err
		if !isQuotaOrAuth(err) || i == len(p.keys)-1 {
			break
		}
		slog.Debug("youtube data API key failed, trying fallback", slog.Any("err", err))
	}
	return nil, classifyPlaylistErr(playlistID, lastErr)
}

func (p *Playlists) list(ctx context.Context, playlistID, key string) ([]engine.VideoRef, error) {
	client := &http.Client{
		Timeout:   p.httpClient.Timeout,
		Transport: &transport.APIKey{Key: key, Transport: p.httpClient.Transport},
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}

	var videos []engine.VideoRef
	call := svc.PlaylistItems.List([]string{"contentDetails", "snippet"}).
		PlaylistId(playlistID).
		MaxResults(ytPlaylistPageSize)
	err = call.Pages(ctx, func(resp *youtube.PlaylistItemListResponse) error {
		for _, item := range resp.Items {
			ref, ok := videoRefFromItem(item)
			if !ok {
				continue
			}
			ref.Order = len(videos) + 1
			videos = append(videos, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return videos, nil
}

// videoRefFromItem keeps entries that still point at a playable video.
func videoRefFromItem(item *youtube.PlaylistItem) (engine.VideoRef, bool) {
	if item == nil || item.ContentDetails == nil || item.Snippet == nil {
		return engine.VideoRef{}, false
	}
	id := item.ContentDetails.VideoId
	title := strings.TrimSpace(item.Snippet.Title)
	if id == "" || title == "" || unplayableTitles[title] {
		return engine.VideoRef{}, false
	}
	return engine.VideoRef{ID: id, Title: title}, true
}

func isQuotaOrAuth(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusForbidden || gerr.Code == http.StatusBadRequest
	}
	return false
}

func classifyPlaylistErr(playlistID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", engine.ErrPlaylistNotFound, playlistID)
	}
	return fmt.Errorf("youtube data API: %w", err)
}
