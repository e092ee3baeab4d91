package iptv

import (
	"context"
	"log"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"
)

// Resolver maps a user-typed channel identifier to a playable URL. Most
// playlist entries carry a direct HLS/HTTP URL; entries pointing at YouTube
// live channels are resolved to their manifest at tune time because those
// URLs expire.
type Resolver struct {
	store   *Store
	youtube youtube.Client
}

// NewResolver creates a resolver over the metadata store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks the identifier up in the store and returns a channel whose
// URL is directly playable. Returns ErrChannelNotFound for unknown names.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Channel, error) {
	ch, err := r.store.FindChannel(query)
	if err != nil {
		return nil, err
	}

	if isYouTubeURL(ch.URL) {
		playable, err := r.resolveYouTube(ctx, ch.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve YouTube stream for %s", ch.Name)
		}
		resolved := *ch
		resolved.URL = playable
		return &resolved, nil
	}
	return ch, nil
}

// resolveYouTube extracts the live HLS manifest (or best muxed format) for a
// YouTube entry.
func (r *Resolver) resolveYouTube(ctx context.Context, url string) (string, error) {
	video, err := r.youtube.GetVideoContext(ctx, url)
	if err != nil {
		return "", err
	}
	if video.HLSManifestURL != "" {
		return video.HLSManifestURL, nil
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", errors.New("no playable formats")
	}
	streamURL, err := r.youtube.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return "", err
	}
	log.Printf("Resolved YouTube entry %s to direct stream URL", video.Title)
	return streamURL, nil
}

func isYouTubeURL(url string) bool {
	return strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be")
}
