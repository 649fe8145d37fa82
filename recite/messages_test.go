package recite

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubPlayer struct {
	loadErr error
	playErr error
	pos     time.Duration
	ended   chan struct{}
}

func (p *stubPlayer) Load(context.Context, string) error { return p.loadErr }
func (p *stubPlayer) Play() error                        { return p.playErr }
func (p *stubPlayer) Pause() error                       { return nil }
func (p *stubPlayer) Position() time.Duration            { return p.pos }
func (p *stubPlayer) Seek(time.Duration) error           { return nil }
func (p *stubPlayer) SetRate(float64) error              { return ErrRateUnsupported }
func (p *stubPlayer) Ended() <-chan struct{}             { return p.ended }
func (p *stubPlayer) Close() error                       { return nil }

func TestLoadAudioCmd(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
		check   func(*testing.T, any)
	}{
		{
			name: "loaded",
			check: func(t *testing.T, msg any) {
				m, ok := msg.(AudioLoadedMsg)
				if !ok || m.Surah != 36 {
					t.Errorf("msg = %#v", msg)
				}
			},
		},
		{
			name:    "backend failure becomes a source error",
			loadErr: errors.New("end-file: error"),
			check: func(t *testing.T, msg any) {
				m, ok := msg.(PlaybackErrorMsg)
				if !ok || !m.IsSourceError() {
					t.Fatalf("msg = %#v", msg)
				}
				var src *PlaybackSourceError
				if !errors.As(m.Err, &src) || src.Surah != 36 || src.URL != "https://x/036.mp3" {
					t.Errorf("source error = %+v", src)
				}
			},
		},
		{
			name:    "source error kept as is",
			loadErr: &PlaybackSourceError{URL: "other", Surah: 1},
			check: func(t *testing.T, msg any) {
				var src *PlaybackSourceError
				if !errors.As(msg.(PlaybackErrorMsg).Err, &src) || src.URL != "other" {
					t.Errorf("source error = %+v", src)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPlayer{loadErr: tt.loadErr}
			msg := LoadAudioCmd(context.Background(), p, "https://x/036.mp3", 36)()
			tt.check(t, msg)
		})
	}
}

func TestPlayerCmds(t *testing.T) {
	p := &stubPlayer{pos: 2 * time.Second}

	if m, ok := PlayCmd(p)().(PlayingMsg); !ok || m.Position != 2*time.Second {
		t.Errorf("PlayCmd msg = %#v", m)
	}
	if _, ok := PauseCmd(p)().(PausedMsg); !ok {
		t.Error("PauseCmd should return PausedMsg")
	}
	m, ok := SetRateCmd(p, 1.5)().(PlaybackErrorMsg)
	if !ok || !errors.Is(m.Err, ErrRateUnsupported) || m.Action != "set_rate" {
		t.Errorf("SetRateCmd msg = %#v", m)
	}

	p.playErr = ErrPlayerNotLoaded
	if m, ok := PlayCmd(p)().(PlaybackErrorMsg); !ok || m.Action != "play" {
		t.Errorf("PlayCmd failure msg = %#v", m)
	}
}

func TestWaitForSampleCmd(t *testing.T) {
	if WaitForSampleCmd(1, nil) != nil {
		t.Error("nil channel should give a nil command")
	}

	ch := make(chan Position, 1)
	ch <- NewPosition(time.Second, 100*time.Millisecond)
	msg, ok := WaitForSampleCmd(7, ch)().(SampleMsg)
	if !ok || msg.Gen != 7 || msg.Position.Corrected != 1100*time.Millisecond {
		t.Errorf("msg = %#v", msg)
	}

	close(ch)
	if closed, ok := WaitForSampleCmd(7, ch)().(SamplesClosedMsg); !ok || closed.Gen != 7 {
		t.Errorf("msg after close = %#v", closed)
	}
}

func TestWaitForEndCmd(t *testing.T) {
	p := &stubPlayer{ended: make(chan struct{}, 1)}
	p.ended <- struct{}{}
	if m, ok := WaitForEndCmd(context.Background(), p, 112)().(PlaybackEndedMsg); !ok || m.Surah != 112 {
		t.Errorf("msg = %#v", m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := WaitForEndCmd(ctx, p, 112)(); msg != nil {
		t.Errorf("cancelled wait returned %#v", msg)
	}
}

func TestPositionHelpers(t *testing.T) {
	p := NewPosition(1500*time.Millisecond, -500*time.Millisecond)
	if p.Corrected != time.Second {
		t.Errorf("Corrected = %v", p.Corrected)
	}
	if got := FromSeconds(12.25); got != 12250*time.Millisecond {
		t.Errorf("FromSeconds(12.25) = %v", got)
	}
}
