package sync_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/sync"
)

// notifyingPlayer pushes progress events like mpv does.
type notifyingPlayer struct {
	*fakePlayer
	progress chan time.Duration
}

func (p *notifyingPlayer) Progress() <-chan time.Duration { return p.progress }

func receive(t *testing.T, ch <-chan recite.Position) recite.Position {
	t.Helper()
	select {
	case pos, ok := <-ch:
		if !ok {
			t.Fatal("sample channel closed")
		}
		return pos
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sample")
	}
	return recite.Position{}
}

func waitClosed(t *testing.T, ch <-chan recite.Position) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("sample channel not closed")
		}
	}
}

func TestTrackerPolls(t *testing.T) {
	player := newFakePlayer()
	player.pos = 3 * time.Second

	var offset atomic.Int64
	offset.Store(int64(200 * time.Millisecond))

	cfg := recite.DefaultSyncConfig()
	cfg.SampleInterval = 10 * time.Millisecond
	tr := sync.NewTracker(player, func() time.Duration { return time.Duration(offset.Load()) }, cfg)

	gen, ch := tr.Start(context.Background())
	if gen != 1 {
		t.Errorf("first run generation = %d, want 1", gen)
	}

	pos := receive(t, ch)
	if pos.Raw != 3*time.Second || pos.Corrected != 3200*time.Millisecond {
		t.Errorf("sample = %+v", pos)
	}

	// The offset is read at every sample.
	offset.Store(int64(-time.Second))
	deadline := time.After(2 * time.Second)
	for {
		pos = receive(t, ch)
		if pos.Offset == -time.Second {
			break
		}
		select {
		case <-deadline:
			t.Fatal("new offset never applied")
		default:
		}
	}
	if pos.Corrected != 2*time.Second {
		t.Errorf("corrected = %v, want 2s", pos.Corrected)
	}

	tr.Stop()
	waitClosed(t, ch)
	if tr.Running() {
		t.Error("tracker still running after Stop")
	}
}

func TestTrackerFollowsProgressEvents(t *testing.T) {
	player := &notifyingPlayer{
		fakePlayer: newFakePlayer(),
		progress:   make(chan time.Duration),
	}
	cfg := recite.DefaultSyncConfig()
	cfg.SampleInterval = time.Hour // polling would never fire
	cfg.MinSampleInterval = 0
	tr := sync.NewTracker(player, nil, cfg)

	_, ch := tr.Start(context.Background())
	defer tr.Stop()

	// Initial sample reads the player directly.
	if pos := receive(t, ch); pos.Raw != 0 {
		t.Errorf("initial sample = %+v", pos)
	}

	for _, raw := range []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond} {
		player.progress <- raw
		if pos := receive(t, ch); pos.Raw != raw {
			t.Errorf("sample = %v, want %v", pos.Raw, raw)
		}
	}
}

func TestTrackerThrottlesProgressEvents(t *testing.T) {
	player := &notifyingPlayer{
		fakePlayer: newFakePlayer(),
		progress:   make(chan time.Duration, 16),
	}
	cfg := recite.DefaultSyncConfig()
	cfg.MinSampleInterval = time.Hour
	tr := sync.NewTracker(player, nil, cfg)

	_, ch := tr.Start(context.Background())
	defer tr.Stop()
	receive(t, ch)

	for i := 1; i <= 5; i++ {
		player.progress <- time.Duration(i) * time.Second
	}
	// The first event passes, the rest fall inside the interval.
	if pos := receive(t, ch); pos.Raw != time.Second {
		t.Errorf("sample = %v, want 1s", pos.Raw)
	}
	select {
	case pos := <-ch:
		t.Errorf("unexpected sample %+v inside throttle interval", pos)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerSendsLastThrottledEvent(t *testing.T) {
	player := &notifyingPlayer{
		fakePlayer: newFakePlayer(),
		progress:   make(chan time.Duration, 16),
	}
	cfg := recite.DefaultSyncConfig()
	cfg.SampleInterval = time.Hour
	cfg.MinSampleInterval = 100 * time.Millisecond
	tr := sync.NewTracker(player, nil, cfg)

	_, ch := tr.Start(context.Background())
	defer tr.Stop()
	receive(t, ch)

	// Playback pauses after the third event; nothing else arrives.
	for _, raw := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		player.progress <- raw
	}
	if pos := receive(t, ch); pos.Raw != time.Second {
		t.Fatalf("sample = %v, want 1s", pos.Raw)
	}
	if pos := receive(t, ch); pos.Raw != 3*time.Second {
		t.Errorf("trailing sample = %v, want 3s", pos.Raw)
	}
	select {
	case pos := <-ch:
		t.Errorf("unexpected sample %+v after the trailing one", pos)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestTrackerRestartClosesPreviousRun(t *testing.T) {
	cfg := recite.DefaultSyncConfig()
	tr := sync.NewTracker(newFakePlayer(), nil, cfg)

	gen1, first := tr.Start(context.Background())
	gen2, second := tr.Start(context.Background())
	defer tr.Stop()

	if gen2 <= gen1 {
		t.Errorf("generation did not advance: %d then %d", gen1, gen2)
	}
	waitClosed(t, first)
	receive(t, second)
	if tr.Generation() != gen2 {
		t.Errorf("Generation() = %d, want %d", tr.Generation(), gen2)
	}
}

func TestTrackerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := sync.NewTracker(newFakePlayer(), nil, recite.DefaultSyncConfig())

	_, ch := tr.Start(ctx)
	cancel()
	waitClosed(t, ch)

	// Stop after the context ended must not block.
	tr.Stop()
	tr.Stop()
}
