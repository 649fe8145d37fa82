package audio

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/tartil/recite"
)

// ClockConfig configures a ClockPlayer.
type ClockConfig struct {
	// Duration of every loaded track. Zero means tracks never end.
	Duration time.Duration

	// Now replaces time.Now, for tests.
	Now func() time.Time

	// Reject, when set, decides whether a URL fails to load.
	Reject func(url string) error
}

// ClockPlayer simulates playback with a clock. Position advances with wall
// time scaled by the rate; nothing is decoded or heard.
type ClockPlayer struct {
	cfg ClockConfig

	mu       sync.Mutex
	state    PlayerState
	url      string
	base     time.Duration // position when the clock last (re)started
	since    time.Time     // when the clock last (re)started
	rate     float64
	endTimer *time.Timer
	ended    chan struct{}
	endFired bool
}

// NewClockPlayer creates a simulated player.
func NewClockPlayer(cfg ClockConfig) *ClockPlayer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ClockPlayer{
		cfg:   cfg,
		state: StateStopped,
		rate:  recite.DefaultRate,
		ended: make(chan struct{}, 1),
	}
}

// Load implements recite.Player.
func (p *ClockPlayer) Load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.cfg.Reject != nil {
		if err := p.cfg.Reject(url); err != nil {
			return &recite.PlaybackSourceError{URL: url, Err: err}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return recite.ErrPlayerClosed
	}
	p.stopTimer()
	p.url = url
	p.base = 0
	p.endFired = false
	p.state = StatePaused
	return nil
}

// Play implements recite.Player.
func (p *ClockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	case StatePlaying:
		return nil
	}
	p.since = p.cfg.Now()
	p.state = StatePlaying
	p.scheduleEnd()
	return nil
}

// Pause implements recite.Player.
func (p *ClockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	case StatePaused:
		return nil
	}
	p.base = p.positionLocked()
	p.state = StatePaused
	p.stopTimer()
	return nil
}

// Position implements recite.Player.
func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Seek implements recite.Player.
func (p *ClockPlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return recite.ErrPlayerClosed
	case StateStopped:
		return recite.ErrPlayerNotLoaded
	}
	if pos < 0 || (p.cfg.Duration > 0 && pos > p.cfg.Duration) {
		return recite.ErrSeekOutOfRange
	}
	p.base = pos
	p.since = p.cfg.Now()
	p.endFired = false
	if p.state == StatePlaying {
		p.scheduleEnd()
	}
	return nil
}

// SetRate implements recite.Player.
func (p *ClockPlayer) SetRate(rate float64) error {
	if rate < recite.MinRate || rate > recite.MaxRate {
		return recite.ErrRateUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return recite.ErrPlayerClosed
	}
	p.base = p.positionLocked()
	p.since = p.cfg.Now()
	p.rate = rate
	if p.state == StatePlaying {
		p.scheduleEnd()
	}
	return nil
}

// Ended implements recite.Player.
func (p *ClockPlayer) Ended() <-chan struct{} {
	return p.ended
}

// Close implements recite.Player.
func (p *ClockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimer()
	p.state = StateClosed
	return nil
}

// State returns the transport state.
func (p *ClockPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// URL returns the loaded URL.
func (p *ClockPlayer) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *ClockPlayer) positionLocked() time.Duration {
	pos := p.base
	if p.state == StatePlaying {
		elapsed := p.cfg.Now().Sub(p.since)
		pos += time.Duration(float64(elapsed) * p.rate)
	}
	if p.cfg.Duration > 0 && pos >= p.cfg.Duration {
		pos = p.cfg.Duration
		if p.state == StatePlaying {
			p.finishLocked()
		}
	}
	return pos
}

// finishLocked stops the clock at the end of the track and signals Ended
// once.
func (p *ClockPlayer) finishLocked() {
	p.base = p.cfg.Duration
	p.state = StatePaused
	p.stopTimer()
	if p.endFired {
		return
	}
	p.endFired = true
	select {
	case p.ended <- struct{}{}:
	default:
	}
}

func (p *ClockPlayer) scheduleEnd() {
	p.stopTimer()
	if p.cfg.Duration <= 0 {
		return
	}
	remaining := time.Duration(float64(p.cfg.Duration-p.base) / p.rate)
	// Callers hold p.mu, so the callback cannot observe t before it is set.
	var t *time.Timer
	t = time.AfterFunc(remaining, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.endTimer == t && p.state == StatePlaying {
			p.finishLocked()
		}
	})
	p.endTimer = t
}

func (p *ClockPlayer) stopTimer() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}
