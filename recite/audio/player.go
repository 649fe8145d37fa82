// Package audio provides the playback backends behind recite.Player: an
// mpv process driven over JSON IPC, an in-process MP3 decoder feeding oto,
// and a simulated clock.
package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tartil/recite"
)

// PlayerState is the transport state of a backend.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// URL returns the audio URL of surah on a moshaf server.
func URL(server string, surah int) string {
	return fmt.Sprintf("%s/%03d.mp3", strings.TrimRight(server, "/"), surah)
}

// Fetcher downloads audio for backends that decode in-process.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BytesCache stores fetched audio.
type BytesCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// HTTPFetcher fetches audio over HTTP, keeping bodies in Cache when set.
type HTTPFetcher struct {
	Client *http.Client
	Cache  BytesCache
}

// CacheKey is the cache key for the audio at url.
func CacheKey(url string) string {
	return "audio:" + url
}

// Fetch implements Fetcher. Any failure to obtain the bytes is a
// PlaybackSourceError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Cache != nil {
		if data, ok := f.Cache.Get(CacheKey(url)); ok {
			return data, nil
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &recite.PlaybackSourceError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &recite.PlaybackSourceError{URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &recite.PlaybackSourceError{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &recite.PlaybackSourceError{URL: url, Err: err}
	}

	if f.Cache != nil {
		if err := f.Cache.Put(CacheKey(url), data); err != nil {
			log.Debug("could not cache audio", "url", url, "error", err)
		}
	}
	return data, nil
}

// New creates the backend named by cfg.Player.
func New(cfg recite.Config, fetcher Fetcher) (recite.Player, error) {
	switch cfg.Player {
	case recite.PlayerMPV:
		return NewMPVPlayer(cfg.MPV)
	case recite.PlayerOto:
		return NewOtoPlayer(fetcher), nil
	case recite.PlayerClock:
		return NewClockPlayer(ClockConfig{}), nil
	default:
		return nil, fmt.Errorf("%w: unknown player %q", recite.ErrInvalidConfig, cfg.Player)
	}
}
