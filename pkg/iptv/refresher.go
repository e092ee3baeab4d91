package iptv

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Refresher keeps the store in sync with the remote playlist and guide on a
// fixed interval. One refresh runs at startup so commands have data to work
// with before the first tick.
type Refresher struct {
	store       *Store
	playlistURL string
	guideURL    string
	interval    time.Duration
	client      *http.Client
}

// NewRefresher creates a refresher. guideURL may be empty, in which case
// only the playlist is fetched.
func NewRefresher(store *Store, playlistURL, guideURL string, interval time.Duration) *Refresher {
	return &Refresher{
		store:       store,
		playlistURL: playlistURL,
		guideURL:    guideURL,
		interval:    interval,
		client:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// Start refreshes once immediately, then on every interval until the context
// is cancelled. A failed refresh keeps the previous snapshot and retries on
// the next tick.
func (r *Refresher) Start(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		log.Printf("Initial metadata refresh failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					log.Printf("Metadata refresh failed: %v", err)
				}
			}
		}
	}()
}

// Refresh fetches and stores the playlist and, if configured, the guide.
func (r *Refresher) Refresh(ctx context.Context) error {
	channels, err := r.fetchPlaylist(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch playlist")
	}
	if err := r.store.ReplaceChannels(channels); err != nil {
		return errors.Wrap(err, "store channels")
	}
	log.Printf("Cached %d channels from playlist", len(channels))

	if r.guideURL == "" {
		return nil
	}
	programmes, _, err := r.fetchGuide(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch guide")
	}
	if err := r.store.ReplaceProgrammes(programmes); err != nil {
		return errors.Wrap(err, "store programmes")
	}
	log.Printf("Cached %d guide entries", len(programmes))
	return nil
}

func (r *Refresher) fetchPlaylist(ctx context.Context) ([]Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.playlistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist request returned %s", resp.Status)
	}
	return ParsePlaylist(resp.Body)
}

func (r *Refresher) fetchGuide(ctx context.Context) ([]Programme, map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.guideURL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("guide request returned %s", resp.Status)
	}
	return ParseGuide(resp.Body)
}
