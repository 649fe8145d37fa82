// Package sync keeps the highlighted verse in step with audio playback.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tartil/recite"
)

// OffsetFunc returns the offset to apply to the next sample.
type OffsetFunc func() time.Duration

// Tracker samples a player's position and publishes corrected positions.
// It listens to the player's progress events when the player offers them
// and polls on a ticker otherwise.
type Tracker struct {
	player      recite.Player
	offset      OffsetFunc
	interval    time.Duration
	minInterval time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker for player. A nil offset means no correction.
func NewTracker(player recite.Player, offset OffsetFunc, cfg recite.SyncConfig) *Tracker {
	if offset == nil {
		offset = func() time.Duration { return 0 }
	}
	def := recite.DefaultSyncConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.MinSampleInterval < 0 {
		cfg.MinSampleInterval = 0
	}
	return &Tracker{
		player:      player,
		offset:      offset,
		interval:    cfg.SampleInterval,
		minInterval: cfg.MinSampleInterval,
	}
}

// Sample reads the player once.
func (t *Tracker) Sample() recite.Position {
	return recite.NewPosition(t.player.Position(), t.offset())
}

// Start begins sampling, stopping any previous run. It returns the run's
// generation and a channel that is closed when the run ends.
func (t *Tracker) Start(ctx context.Context) (uint64, <-chan recite.Position) {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan recite.Position, 1)
	done := make(chan struct{})

	t.gen++
	t.cancel = cancel
	t.done = done

	var progress <-chan time.Duration
	if n, ok := t.player.(recite.ProgressNotifier); ok {
		progress = n.Progress()
	}

	go func() {
		defer close(done)
		defer close(out)
		if progress != nil {
			t.follow(ctx, progress, out)
			return
		}
		t.poll(ctx, out)
	}()

	log.Debug("tracker started", "gen", t.gen, "events", progress != nil)
	return t.gen, out
}

// Stop ends the current run and waits for its goroutine to exit. It is
// safe to call when nothing is running.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Debug("tracker stopped")
}

// Running reports whether a run is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Generation returns the generation of the latest run.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Tracker) poll(ctx context.Context, out chan<- recite.Position) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if !t.emit(ctx, out, t.Sample()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.emit(ctx, out, t.Sample()) {
				return
			}
		}
	}
}

// follow forwards progress events, at most one per minInterval. The latest
// event dropped inside an interval is sent when the interval closes, so a
// pause right after a verse boundary still lands on the new verse.
func (t *Tracker) follow(ctx context.Context, progress <-chan time.Duration, out chan<- recite.Position) {
	throttle := rate.Sometimes{Interval: t.minInterval}
	if t.minInterval <= 0 {
		// A zero Sometimes fires only once.
		throttle = rate.Sometimes{Every: 1}
	}

	var (
		timer    *time.Timer
		trailing <-chan time.Time
		dropped  bool
		last     time.Duration
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	if !t.emit(ctx, out, t.Sample()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-progress:
			if !ok {
				return
			}
			sent := false
			ok = true
			throttle.Do(func() {
				sent = true
				ok = t.emit(ctx, out, recite.NewPosition(raw, t.offset()))
			})
			if !ok {
				return
			}
			if sent {
				dropped = false
				continue
			}
			last, dropped = raw, true
			if trailing == nil {
				timer = time.NewTimer(t.minInterval)
				trailing = timer.C
			}
		case <-trailing:
			trailing = nil
			if !dropped {
				continue
			}
			dropped = false
			if !t.emit(ctx, out, recite.NewPosition(last, t.offset())) {
				return
			}
		}
	}
}

// emit delivers pos unless the run is cancelled first.
func (t *Tracker) emit(ctx context.Context, out chan<- recite.Position, pos recite.Position) bool {
	select {
	case out <- pos:
		return true
	case <-ctx.Done():
		return false
	}
}
