package sync_test

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/sync"
	"github.com/dgnsrekt/tartil/recite/timing"
)

// fakePlayer is a Player whose position only moves when told to.
type fakePlayer struct {
	mu      stdsync.Mutex
	pos     time.Duration
	seeks   []time.Duration
	seekErr error
	ended   chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{ended: make(chan struct{})}
}

func (p *fakePlayer) Load(context.Context, string) error { return nil }
func (p *fakePlayer) Play() error                        { return nil }
func (p *fakePlayer) Pause() error                       { return nil }
func (p *fakePlayer) SetRate(float64) error              { return nil }
func (p *fakePlayer) Ended() <-chan struct{}             { return p.ended }
func (p *fakePlayer) Close() error                       { return nil }

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seekErr != nil {
		return p.seekErr
	}
	p.pos = pos
	p.seeks = append(p.seeks, pos)
	return nil
}

func (p *fakePlayer) seekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks)
}

// recordingScroller remembers every scroll request.
type recordingScroller struct {
	calls []int
}

func (s *recordingScroller) ScrollToVerse(i int) {
	s.calls = append(s.calls, i)
}

// mapLoader serves tables by surah.
type mapLoader struct {
	tables map[int]*timing.Table
}

func (l mapLoader) Load(_ context.Context, surah int) (*timing.Table, error) {
	t, ok := l.tables[surah]
	if !ok {
		return nil, timing.ErrTimingUnavailable
	}
	return t, nil
}

func table(t *testing.T, surah int, stamps ...int64) *timing.Table {
	t.Helper()
	tbl, err := timing.FromTimestamps(surah, stamps)
	if err != nil {
		t.Fatalf("FromTimestamps: %v", err)
	}
	return tbl
}

type fixture struct {
	player   *fakePlayer
	scroller *recordingScroller
	ctrl     *sync.Controller
}

func newFixture(t *testing.T, offset time.Duration, tables map[int]*timing.Table) *fixture {
	t.Helper()
	f := &fixture{
		player:   newFakePlayer(),
		scroller: &recordingScroller{},
	}
	cfg := recite.DefaultSyncConfig()
	f.ctrl = sync.NewController(sync.ControllerConfig{
		Player:   f.player,
		Loader:   mapLoader{tables: tables},
		Scroller: f.scroller,
		Offset:   func() time.Duration { return offset },
		Sync:     cfg,
	})
	t.Cleanup(f.ctrl.Stop)
	return f
}

// track selects surah and applies its load synchronously.
func (f *fixture) track(t *testing.T, surah int) {
	t.Helper()
	load := f.ctrl.SelectSurah(surah)
	if !f.ctrl.ApplyLoad(load()) {
		t.Fatalf("ApplyLoad(%d) did not start tracking", surah)
	}
}

func at(ms int64) recite.Position {
	return recite.NewPosition(time.Duration(ms)*time.Millisecond, 0)
}

func TestControllerStartsIdle(t *testing.T) {
	f := newFixture(t, 0, nil)

	if f.ctrl.State() != recite.StateIdle {
		t.Errorf("State() = %v, want idle", f.ctrl.State())
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Error("Current() should be none")
	}
	if f.ctrl.Observe(at(1000)) {
		t.Error("Observe should be a no-op while idle")
	}
	if _, ch := f.ctrl.Samples(); ch != nil {
		t.Error("Samples() should be nil while idle")
	}
}

func TestObserveDeduplicates(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000, 20000)})
	f.track(t, 1)

	samples := []struct {
		ms      int64
		changed bool
	}{
		{100, true},
		{100, false},
		{2000, false},
		{4999, false},
		{5000, true},
		{5000, false},
		{11000, false},
		{25000, true},
		{30000, false},
	}

	for _, s := range samples {
		if got := f.ctrl.Observe(at(s.ms)); got != s.changed {
			t.Errorf("Observe(%dms) changed = %v, want %v", s.ms, got, s.changed)
		}
	}

	want := []int{0, 1, 2}
	if len(f.scroller.calls) != len(want) {
		t.Fatalf("scrolls = %v, want %v", f.scroller.calls, want)
	}
	for i := range want {
		if f.scroller.calls[i] != want[i] {
			t.Errorf("scroll %d = %d, want %d", i, f.scroller.calls[i], want[i])
		}
	}
}

func TestObserveIntoGapClearsWithoutScrolling(t *testing.T) {
	tbl, err := timing.NewTable(2, []timing.VerseTiming{
		{Surah: 2, Verse: 1, Start: 0, Duration: time.Second},
		{Surah: 2, Verse: 2, Start: 2 * time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, 0, map[int]*timing.Table{2: tbl})
	f.track(t, 2)

	f.ctrl.Observe(at(500))
	if !f.ctrl.Observe(at(1500)) {
		t.Fatal("moving into a gap should change the current verse")
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Error("Current() should be none inside a gap")
	}
	if len(f.scroller.calls) != 1 {
		t.Errorf("scrolls = %v, want exactly one", f.scroller.calls)
	}
}

func TestAutoScrollDisabled(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)
	f.ctrl.SetAutoScroll(false)

	f.ctrl.Observe(at(0))
	f.ctrl.Observe(at(6000))

	if len(f.scroller.calls) != 0 {
		t.Errorf("scrolls = %v, want none", f.scroller.calls)
	}
	if got, _ := f.ctrl.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
	if f.ctrl.Snapshot().AutoScroll {
		t.Error("Snapshot().AutoScroll should be false")
	}
}

func TestSeekToVerseRoundTrip(t *testing.T) {
	for _, offset := range []time.Duration{0, 300 * time.Millisecond, -250 * time.Millisecond} {
		t.Run(offset.String(), func(t *testing.T) {
			tbl := table(t, 1, 0, 5000, 12000, 20000, 26000)
			f := newFixture(t, offset, map[int]*timing.Table{1: tbl})
			f.track(t, 1)

			for i := 0; i < tbl.Len(); i++ {
				if !f.ctrl.SeekToVerse(i) {
					t.Fatalf("SeekToVerse(%d) failed", i)
				}
				if got, _ := f.ctrl.Current(); got != i {
					t.Fatalf("Current() after seek = %d, want %d", got, i)
				}
				// A sample at the position the player landed on
				// confirms the optimistic index.
				pos := recite.NewPosition(f.player.Position(), offset)
				if got := tbl.Locate(pos.Corrected); got != i {
					t.Errorf("locate after SeekToVerse(%d) = %d", i, got)
				}
			}
		})
	}
}

func TestSeekToVerseOutOfRange(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)
	f.ctrl.Observe(at(6000))

	for _, i := range []int{-1, 2, 100} {
		if f.ctrl.SeekToVerse(i) {
			t.Errorf("SeekToVerse(%d) should fail", i)
		}
	}
	if got, _ := f.ctrl.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
	if n := f.player.seekCount(); n != 0 {
		t.Errorf("player seeked %d times, want 0", n)
	}
}

func TestSeekToVerseWithoutTable(t *testing.T) {
	f := newFixture(t, 0, nil)
	if f.ctrl.SeekToVerse(0) {
		t.Error("SeekToVerse without timings should fail")
	}
}

func TestSeekToVerseFailedSeek(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)
	f.ctrl.Observe(at(0))
	f.player.seekErr = errors.New("broken pipe")

	if f.ctrl.SeekToVerse(1) {
		t.Error("SeekToVerse should report the failed seek")
	}
	if got, _ := f.ctrl.Current(); got != 0 {
		t.Errorf("Current() = %d, want 0", got)
	}
}

func TestSeekToTime(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)

	if err := f.ctrl.SeekToTime(7 * time.Second); err != nil {
		t.Fatalf("SeekToTime: %v", err)
	}
	if got, _ := f.ctrl.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}

	f.player.seekErr = errors.New("closed")
	if err := f.ctrl.SeekToTime(time.Second); err == nil {
		t.Error("expected an error from a failing seek")
	}
}

func TestNextPrevious(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000, 20000)})
	f.track(t, 1)

	if f.ctrl.Previous() {
		t.Error("Previous() from the first verse should fail")
	}
	if !f.ctrl.Next() {
		t.Fatal("Next() failed")
	}
	if got, _ := f.ctrl.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
	f.ctrl.Next()
	if f.ctrl.Next() {
		t.Error("Next() past the last verse should fail")
	}
	if !f.ctrl.Previous() {
		t.Fatal("Previous() failed")
	}
	if got, _ := f.ctrl.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
}

func TestSelectSurahClearsBeforeLoad(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)
	f.ctrl.Observe(at(6000))

	load := f.ctrl.SelectSurah(2)

	if _, ok := f.ctrl.Current(); ok {
		t.Error("Current() should be none as soon as the surah changes")
	}
	if f.ctrl.State() != recite.StateIdle {
		t.Errorf("State() = %v, want idle", f.ctrl.State())
	}

	// Surah 2 has no timings: the failed load keeps the verse cleared.
	if f.ctrl.ApplyLoad(load()) {
		t.Error("ApplyLoad should fail without timings")
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Error("Current() should stay none after a failed load")
	}
	if f.ctrl.Observe(at(6000)) {
		t.Error("Observe should be a no-op with sync disabled")
	}
}

func TestStaleLoadIsDropped(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{
		1: table(t, 1, 0, 5000, 12000),
		2: table(t, 2, 0, 1000, 2000, 3000),
	})

	first := f.ctrl.SelectSurah(1)
	second := f.ctrl.SelectSurah(2)

	// The second load finishes first.
	if !f.ctrl.ApplyLoad(second()) {
		t.Fatal("current load should apply")
	}
	if f.ctrl.ApplyLoad(first()) {
		t.Error("superseded load should be dropped")
	}
	if f.ctrl.Surah() != 2 || f.ctrl.Table().Surah() != 2 {
		t.Errorf("active surah = %d, table surah = %d, want 2", f.ctrl.Surah(), f.ctrl.Table().Surah())
	}
}

func TestTrackerFollowsTrackingState(t *testing.T) {
	f := newFixture(t, 0, map[int]*timing.Table{1: table(t, 1, 0, 5000, 12000)})
	f.track(t, 1)

	gen, ch := f.ctrl.Samples()
	if ch == nil {
		t.Fatal("Samples() should be live while tracking")
	}
	if gen == 0 {
		t.Error("tracker generation should be set")
	}

	f.ctrl.SelectSurah(1)

	// The old run's channel must be closed, not merely abandoned.
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if _, now := f.ctrl.Samples(); now != nil {
					t.Error("Samples() should be nil while idle")
				}
				return
			}
		case <-timeout:
			t.Fatal("sample channel not closed after leaving tracking")
		}
	}
}
