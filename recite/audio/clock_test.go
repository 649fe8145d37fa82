package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestClockPlayer_BasicPlayback(t *testing.T) {
	clock := newFakeClock()
	player := NewClockPlayer(ClockConfig{Now: clock.Now})
	defer player.Close()

	if player.State() != StateStopped {
		t.Errorf("Initial state should be stopped, got %v", player.State())
	}
	if err := player.Play(); !errors.Is(err, recite.ErrPlayerNotLoaded) {
		t.Errorf("Play before Load error = %v, want ErrPlayerNotLoaded", err)
	}

	if err := player.Load(context.Background(), "https://server8.mp3quran.net/afs/001.mp3"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if player.State() != StatePaused {
		t.Errorf("State after Load should be paused, got %v", player.State())
	}

	clock.Advance(time.Second)
	if player.Position() != 0 {
		t.Errorf("Position should not move while paused, got %v", player.Position())
	}

	if err := player.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(1500 * time.Millisecond)
	if got := player.Position(); got != 1500*time.Millisecond {
		t.Errorf("Position = %v, want 1.5s", got)
	}

	if err := player.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	clock.Advance(10 * time.Second)
	if got := player.Position(); got != 1500*time.Millisecond {
		t.Errorf("Position after pause = %v, want 1.5s", got)
	}
}

func TestClockPlayer_RateAndSeek(t *testing.T) {
	clock := newFakeClock()
	player := NewClockPlayer(ClockConfig{Now: clock.Now})
	defer player.Close()

	_ = player.Load(context.Background(), "x")
	_ = player.Play()

	if err := player.SetRate(2.0); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	clock.Advance(time.Second)
	if got := player.Position(); got != 2*time.Second {
		t.Errorf("Position at 2x = %v, want 2s", got)
	}

	if err := player.Seek(30 * time.Second); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	clock.Advance(500 * time.Millisecond)
	if got := player.Position(); got != 31*time.Second {
		t.Errorf("Position after seek = %v, want 31s", got)
	}

	if err := player.SetRate(4); !errors.Is(err, recite.ErrRateUnsupported) {
		t.Errorf("SetRate(4) error = %v", err)
	}
	if err := player.Seek(-time.Second); !errors.Is(err, recite.ErrSeekOutOfRange) {
		t.Errorf("Seek(-1s) error = %v", err)
	}
}

func TestClockPlayer_Ended(t *testing.T) {
	clock := newFakeClock()
	player := NewClockPlayer(ClockConfig{Now: clock.Now, Duration: 3 * time.Second})
	defer player.Close()

	_ = player.Load(context.Background(), "x")
	_ = player.Play()

	clock.Advance(5 * time.Second)
	if got := player.Position(); got != 3*time.Second {
		t.Errorf("Position past the end = %v, want 3s", got)
	}

	select {
	case <-player.Ended():
	default:
		t.Fatal("Ended not signalled")
	}
	if player.State() != StatePaused {
		t.Errorf("State at end = %v, want paused", player.State())
	}

	// Reading the position again must not signal twice.
	player.Position()
	select {
	case <-player.Ended():
		t.Error("Ended signalled twice")
	default:
	}

	if err := player.Seek(4 * time.Second); !errors.Is(err, recite.ErrSeekOutOfRange) {
		t.Errorf("Seek past duration error = %v", err)
	}
}

func TestClockPlayer_EndedInRealTime(t *testing.T) {
	player := NewClockPlayer(ClockConfig{Duration: 50 * time.Millisecond})
	defer player.Close()

	_ = player.Load(context.Background(), "x")
	_ = player.Play()

	select {
	case <-player.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("Ended not signalled by the timer")
	}
}

func TestClockPlayer_RejectAndClose(t *testing.T) {
	player := NewClockPlayer(ClockConfig{
		Reject: func(url string) error {
			if url == "missing" {
				return errors.New("HTTP 404")
			}
			return nil
		},
	})

	err := player.Load(context.Background(), "missing")
	var src *recite.PlaybackSourceError
	if !errors.As(err, &src) || src.URL != "missing" {
		t.Fatalf("Load error = %v, want PlaybackSourceError", err)
	}

	_ = player.Close()
	if err := player.Load(context.Background(), "ok"); !errors.Is(err, recite.ErrPlayerClosed) {
		t.Errorf("Load after Close error = %v", err)
	}
	if err := player.Play(); !errors.Is(err, recite.ErrPlayerClosed) {
		t.Errorf("Play after Close error = %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	cfg := recite.DefaultConfig()

	cfg.Player = recite.PlayerClock
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New(clock): %v", err)
	}
	if _, ok := p.(*ClockPlayer); !ok {
		t.Errorf("New(clock) = %T", p)
	}
	_ = p.Close()

	cfg.Player = "vlc"
	if _, err := New(cfg, nil); !errors.Is(err, recite.ErrInvalidConfig) {
		t.Errorf("New(vlc) error = %v", err)
	}

	cfg.Player = recite.PlayerMPV
	cfg.MPV.Binary = "definitely-not-mpv-on-this-machine"
	if _, err := New(cfg, nil); !errors.Is(err, recite.ErrPlayerUnavailable) {
		t.Errorf("New(mpv) without mpv error = %v", err)
	}
}
