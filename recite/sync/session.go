package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/timing"
)

// SessionConfig describes one playback session.
type SessionConfig struct {
	Player   recite.Player
	Loader   timing.Loader
	Scroller recite.Scroller

	// Offset is shared with the config watcher so edits apply live. A nil
	// Offset starts at Sync.Offset.
	Offset *recite.LiveOffset
	Sync   recite.SyncConfig
	Rate   float64
}

// Session is the explicit context of one active playback: the player, the
// verse controller and the rate. It is created when a surah view opens and
// closed when the view goes away.
type Session struct {
	Player     recite.Player
	Controller *Controller
	Rate       *recite.RateController
	Offset     *recite.LiveOffset

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewSession builds a session around cfg.Player.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Player == nil {
		return nil, fmt.Errorf("%w: session needs a player", recite.ErrInvalidConfig)
	}

	offset := cfg.Offset
	if offset == nil {
		offset = recite.NewLiveOffset(cfg.Sync.Offset)
	}

	rc := recite.NewRateController()
	if cfg.Rate != 0 {
		if err := rc.Set(cfg.Rate); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Player: cfg.Player,
		Rate:   rc,
		Offset: offset,
		ctx:    ctx,
		cancel: cancel,
	}
	s.Controller = NewController(ControllerConfig{
		Player:   cfg.Player,
		Loader:   cfg.Loader,
		Scroller: cfg.Scroller,
		Offset:   offset.Get,
		Sync:     cfg.Sync,
		Context:  ctx,
	})
	return s, nil
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close stops tracking, cancels in-flight work and releases the player.
// Later calls do nothing.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.Controller.Stop()
		s.cancel()
		if cerr := s.Player.Close(); cerr != nil && !errors.Is(cerr, recite.ErrPlayerClosed) {
			err = fmt.Errorf("closing player: %w", cerr)
		}
		log.Debug("session closed")
	})
	return err
}
