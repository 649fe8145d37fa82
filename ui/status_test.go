package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite"
)

func TestPlaybackStatusIdleIsEmpty(t *testing.T) {
	s := newPlaybackStatus()
	if got := s.compact(); got != "" {
		t.Errorf("idle status = %q, want empty", got)
	}
	s.state = playbackNoAudio
	if got := s.compact(); got != "" {
		t.Errorf("no-audio status = %q, want empty", got)
	}
}

func TestPlaybackStatusCompact(t *testing.T) {
	tests := []struct {
		name   string
		status playbackStatus
		want   []string
		absent []string
	}{
		{
			name:   "playing synced",
			status: playbackStatus{state: playbackPlaying, ayah: 2, total: 7, synced: true, position: 72 * time.Second, rate: 1},
			want:   []string{"▶", "1:12", "3/7"},
			absent: []string{"1x", "ms"},
		},
		{
			name:   "paused without a current ayah",
			status: playbackStatus{state: playbackPaused, ayah: -1, total: 7, synced: true, rate: 1},
			want:   []string{"⏸", "–/7"},
		},
		{
			name:   "no timings",
			status: playbackStatus{state: playbackPlaying, ayah: -1, total: 286, rate: 1},
			want:   []string{"no sync"},
		},
		{
			name:   "rate and offset",
			status: playbackStatus{state: playbackPlaying, ayah: 0, total: 4, synced: true, rate: 1.25, offset: -250 * time.Millisecond},
			want:   []string{"1.25x", "-250ms"},
		},
		{
			name:   "load failed",
			status: playbackStatus{state: playbackError, ayah: -1, rate: 1},
			want:   []string{"✗", "0:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.status.compact()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("compact() = %q, missing %q", got, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("compact() = %q, should not contain %q", got, a)
				}
			}
		})
	}
}

func TestPlaybackStatusUpdate(t *testing.T) {
	s := newPlaybackStatus()

	s.update(recite.AudioLoadedMsg{Surah: 1})
	if s.state != playbackPaused {
		t.Errorf("after load state = %v, want paused", s.state)
	}

	s.update(recite.PlayingMsg{Position: 3 * time.Second})
	if s.state != playbackPlaying || s.position != 3*time.Second {
		t.Errorf("after play = %+v", s)
	}

	s.update(recite.SampleMsg{Position: recite.NewPosition(5*time.Second, 100*time.Millisecond)})
	if s.position != 5*time.Second || s.offset != 100*time.Millisecond {
		t.Errorf("after sample position=%v offset=%v", s.position, s.offset)
	}

	s.update(recite.RateChangedMsg{Rate: 1.5})
	if s.rate != 1.5 {
		t.Errorf("rate = %v, want 1.5", s.rate)
	}

	s.update(recite.PlaybackErrorMsg{Err: recite.ErrRateUnsupported, Action: "set_rate"})
	if s.state != playbackPlaying {
		t.Errorf("a rate error should not stop playback, state = %v", s.state)
	}

	s.update(recite.PlaybackErrorMsg{Err: recite.ErrPlaybackSource, Action: "load"})
	if s.state != playbackError {
		t.Errorf("after load error state = %v, want error", s.state)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{42*time.Minute + 7*time.Second, "42:07"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "+0ms"},
		{250 * time.Millisecond, "+250ms"},
		{-1500 * time.Millisecond, "-1500ms"},
	}
	for _, tt := range tests {
		if got := formatOffset(tt.in); got != tt.want {
			t.Errorf("formatOffset(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
