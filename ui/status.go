package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/tartil/recite"
)

type playbackState int

const (
	playbackIdle playbackState = iota
	playbackLoading
	playbackPaused
	playbackPlaying
	playbackError
	playbackNoAudio
)

// playbackStatus is what the status bar knows about the audio.
type playbackStatus struct {
	state    playbackState
	ayah     int // zero-based, -1 when none is current
	total    int
	synced   bool
	position time.Duration
	rate     float64
	offset   time.Duration
}

func newPlaybackStatus() playbackStatus {
	return playbackStatus{ayah: -1, rate: recite.DefaultRate}
}

// update folds a player message into the status.
func (s *playbackStatus) update(msg any) {
	switch m := msg.(type) {
	case recite.AudioLoadedMsg:
		s.state = playbackPaused
		s.position = 0
	case recite.PlayingMsg:
		s.state = playbackPlaying
		s.position = m.Position
	case recite.PausedMsg:
		s.state = playbackPaused
		s.position = m.Position
	case recite.RateChangedMsg:
		s.rate = m.Rate
	case recite.SampleMsg:
		s.position = m.Position.Raw
		s.offset = m.Position.Offset
	case recite.PlaybackEndedMsg:
		s.state = playbackPaused
	case recite.PlaybackErrorMsg:
		if m.Action == "load" {
			s.state = playbackError
		}
	}
}

func (s playbackStatus) icon() string {
	switch s.state {
	case playbackLoading:
		return "⟳"
	case playbackPlaying:
		return "▶"
	case playbackPaused:
		return "⏸"
	case playbackError:
		return "✗"
	default:
		return "■"
	}
}

func (s playbackStatus) color() lipgloss.TerminalColor {
	switch s.state {
	case playbackPlaying:
		return green
	case playbackPaused:
		return gold
	case playbackError:
		return red
	default:
		return gray
	}
}

// compact renders the playback part of the status bar, e.g.
// "▶ 1:12 · 3/7 · 1.25x · +250ms".
func (s playbackStatus) compact() string {
	if s.state == playbackIdle || s.state == playbackNoAudio {
		return ""
	}

	parts := []string{
		lipgloss.NewStyle().Foreground(s.color()).Render(s.icon()) + " " + formatDuration(s.position),
	}
	if s.total > 0 {
		switch {
		case !s.synced:
			parts = append(parts, "no sync")
		case s.ayah >= 0:
			parts = append(parts, fmt.Sprintf("%d/%d", s.ayah+1, s.total))
		default:
			parts = append(parts, fmt.Sprintf("–/%d", s.total))
		}
	}
	if s.rate != recite.DefaultRate {
		parts = append(parts, recite.FormatRate(s.rate))
	}
	if s.offset != 0 {
		parts = append(parts, formatOffset(s.offset))
	}
	return strings.Join(parts, " · ")
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func formatOffset(d time.Duration) string {
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	return fmt.Sprintf("%s%dms", sign, d.Milliseconds())
}
