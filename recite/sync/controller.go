package sync

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/timing"
)

// None is the verse index when no verse is current.
const None = timing.None

// State is a snapshot of the controller's verse state.
type State struct {
	Current    int
	AutoScroll bool
}

// LoadResult is the outcome of an asynchronous timing load.
type LoadResult struct {
	Generation uint64
	Surah      int
	Table      *timing.Table
	Err        error
}

// LoadFunc performs a timing load. It is safe to run off the UI loop.
type LoadFunc func() LoadResult

// ControllerConfig wires a controller to its collaborators.
type ControllerConfig struct {
	Player   recite.Player
	Loader   timing.Loader
	Scroller recite.Scroller
	Offset   OffsetFunc
	Sync     recite.SyncConfig

	// Context bounds timing loads and tracker runs. Defaults to
	// context.Background.
	Context context.Context
}

// Controller owns the current verse of one playback session. All methods
// must be called from the same goroutine (the UI loop); only the LoadFunc
// returned by SelectSurah and the tracker run elsewhere.
type Controller struct {
	player   recite.Player
	loader   timing.Loader
	scroller recite.Scroller
	tracker  *Tracker
	machine  *recite.StateMachine
	ctx      context.Context

	surah      int
	table      *timing.Table
	current    int
	autoScroll bool

	loadGen   uint64
	sampleGen uint64
	samples   <-chan recite.Position
}

// NewController creates a controller in the Idle state.
func NewController(cfg ControllerConfig) *Controller {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Controller{
		player:     cfg.Player,
		loader:     cfg.Loader,
		scroller:   cfg.Scroller,
		tracker:    NewTracker(cfg.Player, cfg.Offset, cfg.Sync),
		machine:    recite.NewStateMachine(),
		ctx:        ctx,
		current:    None,
		autoScroll: cfg.Sync.AutoScroll,
	}

	c.machine.OnEnter(recite.StateTracking, func() {
		c.sampleGen, c.samples = c.tracker.Start(c.ctx)
	})
	c.machine.OnExit(recite.StateTracking, func() {
		c.tracker.Stop()
		c.samples = nil
	})

	return c
}

// SelectSurah switches the session to surah. The current verse is cleared
// and tracking stops immediately; the returned LoadFunc fetches the new
// timing table and its result must be handed to ApplyLoad.
func (c *Controller) SelectSurah(surah int) LoadFunc {
	c.current = None
	c.table = nil
	c.surah = surah
	c.machine.Transition(recite.StateIdle)

	c.loadGen++
	gen, ctx, loader := c.loadGen, c.ctx, c.loader

	log.Debug("surah selected", "surah", surah, "gen", gen)

	return func() LoadResult {
		res := LoadResult{Generation: gen, Surah: surah}
		if loader == nil {
			res.Err = recite.ErrTimingUnavailable
			return res
		}
		res.Table, res.Err = loader.Load(ctx, surah)
		return res
	}
}

// ApplyLoad installs a finished timing load. Results from superseded loads
// are dropped. It reports whether the controller started tracking.
func (c *Controller) ApplyLoad(res LoadResult) bool {
	if res.Generation != c.loadGen {
		log.Debug("stale timing load dropped", "surah", res.Surah, "gen", res.Generation, "current", c.loadGen)
		return false
	}
	if res.Err != nil {
		log.Debug("verse sync disabled", "surah", res.Surah, "error", res.Err)
		return false
	}
	if res.Table == nil || res.Table.Len() == 0 {
		log.Debug("verse sync disabled", "surah", res.Surah, "error", "empty timing table")
		return false
	}

	c.table = res.Table
	c.machine.Transition(recite.StateTracking)
	log.Debug("tracking", "surah", res.Surah, "verses", res.Table.Len())
	return true
}

// Observe feeds one position sample. It reports whether the current verse
// changed.
func (c *Controller) Observe(pos recite.Position) bool {
	if c.machine.Current() != recite.StateTracking {
		return false
	}
	idx := c.table.Locate(pos.Corrected)
	log.Debug("locate", "raw", pos.Raw, "corrected", pos.Corrected, "verse", idx)
	return c.setCurrent(idx)
}

// SeekToVerse moves playback to the start of the verse at index and makes
// it current. Out-of-range indexes, a missing table, or a failed seek
// leave everything unchanged and return false.
func (c *Controller) SeekToVerse(index int) bool {
	if c.table == nil {
		return false
	}
	v, ok := c.table.At(index)
	if !ok {
		log.Debug("seek out of range ignored", "verse", index, "verses", c.table.Len())
		return false
	}

	// The player position is corrected by the offset before locating, so
	// compensate to land exactly on the verse start.
	target := v.Start - c.tracker.offset()
	if target < 0 {
		target = 0
	}
	if err := c.player.Seek(target); err != nil {
		log.Debug("seek failed", "verse", index, "error", err)
		return false
	}

	c.setCurrent(index)
	return true
}

// SeekToTime moves playback to pos and re-locates at once.
func (c *Controller) SeekToTime(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	if err := c.player.Seek(pos); err != nil {
		return recite.NewError(err, "sync", "seek")
	}
	c.Observe(recite.NewPosition(pos, c.tracker.offset()))
	return nil
}

// Next seeks to the verse after the current one.
func (c *Controller) Next() bool {
	if c.table == nil {
		return false
	}
	base := c.current
	if base == None {
		base = c.table.Locate(c.tracker.Sample().Corrected)
	}
	return c.SeekToVerse(base + 1)
}

// Previous seeks to the verse before the current one.
func (c *Controller) Previous() bool {
	if c.table == nil {
		return false
	}
	base := c.current
	if base == None {
		base = c.table.Locate(c.tracker.Sample().Corrected)
	}
	if base == None {
		return false
	}
	return c.SeekToVerse(base - 1)
}

// Stop ends tracking and clears the current verse. The surah and its table
// are forgotten; a new SelectSurah is needed to resume.
func (c *Controller) Stop() {
	c.loadGen++
	c.current = None
	c.table = nil
	c.machine.Transition(recite.StateIdle)
}

// SetAutoScroll turns scrolling on verse changes on or off.
func (c *Controller) SetAutoScroll(on bool) {
	c.autoScroll = on
}

// Current returns the current verse index, if any.
func (c *Controller) Current() (int, bool) {
	return c.current, c.current != None
}

// Snapshot returns the controller's verse state.
func (c *Controller) Snapshot() State {
	return State{Current: c.current, AutoScroll: c.autoScroll}
}

// State returns the sync state.
func (c *Controller) State() recite.StateType {
	return c.machine.Current()
}

// Surah returns the selected surah, or 0.
func (c *Controller) Surah() int {
	return c.surah
}

// Table returns the active timing table, or nil when sync is disabled.
func (c *Controller) Table() *timing.Table {
	return c.table
}

// Samples returns the active tracker run's generation and sample channel.
// The channel is nil while Idle.
func (c *Controller) Samples() (uint64, <-chan recite.Position) {
	return c.sampleGen, c.samples
}

// setCurrent records a new current verse, scrolling to it when enabled.
// Repeating the current index is a no-op; a move to none clears the
// highlight without scrolling.
func (c *Controller) setCurrent(idx int) bool {
	if idx == c.current {
		return false
	}
	prev := c.current
	c.current = idx
	log.Debug("verse changed", "from", prev, "to", idx)

	if c.autoScroll && idx != None && c.scroller != nil {
		c.scroller.ScrollToVerse(idx)
	}
	return true
}
