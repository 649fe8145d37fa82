package sync_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/sync"
	"github.com/dgnsrekt/tartil/recite/timing"
)

type closeCountingPlayer struct {
	*fakePlayer
	closed int
}

func (p *closeCountingPlayer) Close() error {
	p.closed++
	return nil
}

func TestNewSession(t *testing.T) {
	tests := []struct {
		name    string
		cfg     sync.SessionConfig
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  sync.SessionConfig{Player: newFakePlayer(), Sync: recite.DefaultSyncConfig()},
		},
		{
			name: "custom rate",
			cfg:  sync.SessionConfig{Player: newFakePlayer(), Sync: recite.DefaultSyncConfig(), Rate: 1.5},
		},
		{
			name:    "no player",
			cfg:     sync.SessionConfig{Sync: recite.DefaultSyncConfig()},
			wantErr: true,
		},
		{
			name:    "rate out of range",
			cfg:     sync.SessionConfig{Player: newFakePlayer(), Sync: recite.DefaultSyncConfig(), Rate: 4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := sync.NewSession(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, recite.ErrInvalidConfig) {
					t.Fatalf("error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSession: %v", err)
			}
			defer s.Close() //nolint:errcheck

			if tt.cfg.Rate != 0 && s.Rate.Current() != tt.cfg.Rate {
				t.Errorf("rate = %v, want %v", s.Rate.Current(), tt.cfg.Rate)
			}
			if s.Controller.State() != recite.StateIdle {
				t.Errorf("new session state = %v, want idle", s.Controller.State())
			}
		})
	}
}

func TestSessionLiveOffset(t *testing.T) {
	tbl, err := timing.FromTimestamps(1, []int64{0, 5000, 12000})
	if err != nil {
		t.Fatal(err)
	}
	player := newFakePlayer()
	offset := recite.NewLiveOffset(0)
	s, err := sync.NewSession(sync.SessionConfig{
		Player: player,
		Loader: mapLoader{tables: map[int]*timing.Table{1: tbl}},
		Offset: offset,
		Sync:   recite.DefaultSyncConfig(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close() //nolint:errcheck

	s.Controller.ApplyLoad(s.Controller.SelectSurah(1)())

	// Seeking compensates for whatever offset is live at that moment.
	offset.Set(time.Second)
	s.Controller.SeekToVerse(1)
	if got := player.Position(); got != 4*time.Second {
		t.Errorf("player position = %v, want 4s", got)
	}
}

func TestSessionClose(t *testing.T) {
	player := &closeCountingPlayer{fakePlayer: newFakePlayer()}
	s, err := sync.NewSession(sync.SessionConfig{Player: player, Sync: recite.DefaultSyncConfig()})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if player.closed != 1 {
		t.Errorf("player closed %d times, want 1", player.closed)
	}
	select {
	case <-s.Context().Done():
	default:
		t.Error("session context not cancelled")
	}
}
