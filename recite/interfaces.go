package recite

import (
	"context"
	"time"
)

// Player is the facade over a media backend. Positions are media time:
// they do not scale with the playback rate.
type Player interface {
	// Load opens the audio at url, paused at the start.
	Load(ctx context.Context, url string) error

	// Play starts or resumes playback.
	Play() error

	// Pause suspends playback, keeping the position.
	Pause() error

	// Position returns the current playback position.
	Position() time.Duration

	// Seek moves the playback position.
	Seek(pos time.Duration) error

	// SetRate changes the playback speed multiplier (1.0 = normal).
	SetRate(rate float64) error

	// Ended is signalled each time the loaded audio plays to the end.
	Ended() <-chan struct{}

	// Close stops playback and releases the backend.
	Close() error
}

// ProgressNotifier is implemented by players that push position updates as
// playback advances. The tracker prefers it over polling.
type ProgressNotifier interface {
	Progress() <-chan time.Duration
}

// Scroller brings a verse into view. Implementations must tolerate a verse
// that has not been rendered yet.
type Scroller interface {
	ScrollToVerse(index int)
}

// Position is one sample of the playback position.
type Position struct {
	Raw       time.Duration // position reported by the player
	Offset    time.Duration // offset applied at sample time
	Corrected time.Duration // Raw + Offset
}

// NewPosition builds a sample from a raw position and the current offset.
func NewPosition(raw, offset time.Duration) Position {
	return Position{
		Raw:       raw,
		Offset:    offset,
		Corrected: raw + offset,
	}
}

// FromSeconds converts a backend position reported in (fractional) seconds
// into a duration.
func FromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
