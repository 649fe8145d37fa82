package recite

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages for Bubble Tea communication between the player and the UI.

// AudioLoadedMsg indicates a surah's audio is loaded and ready to play.
type AudioLoadedMsg struct {
	Surah int
	URL   string
}

// PlayingMsg indicates playback has started or resumed.
type PlayingMsg struct {
	Position time.Duration
}

// PausedMsg indicates playback has been paused.
type PausedMsg struct {
	Position time.Duration
}

// RateChangedMsg indicates the playback rate has changed.
type RateChangedMsg struct {
	Rate float64
}

// SampleMsg carries one position sample from a tracker. Gen identifies the
// tracker run so samples from a stopped run can be dropped.
type SampleMsg struct {
	Gen      uint64
	Position Position
}

// SamplesClosedMsg indicates a tracker run has ended.
type SamplesClosedMsg struct {
	Gen uint64
}

// PlaybackEndedMsg indicates the loaded audio played to the end.
type PlaybackEndedMsg struct {
	Surah int
}

// PlaybackErrorMsg indicates a player operation failed.
type PlaybackErrorMsg struct {
	Err       error
	Component string
	Action    string
}

// IsSourceError reports whether the failure was the audio source itself.
func (m PlaybackErrorMsg) IsSourceError() bool {
	return errors.Is(m.Err, ErrPlaybackSource)
}

// Commands for async player operations.

// LoadAudioCmd loads the audio for surah into player.
func LoadAudioCmd(ctx context.Context, player Player, url string, surah int) tea.Cmd {
	return func() tea.Msg {
		if err := player.Load(ctx, url); err != nil {
			var srcErr *PlaybackSourceError
			if !errors.As(err, &srcErr) {
				err = &PlaybackSourceError{URL: url, Surah: surah, Err: err}
			}
			return PlaybackErrorMsg{Err: err, Component: "player", Action: "load"}
		}
		return AudioLoadedMsg{Surah: surah, URL: url}
	}
}

// PlayCmd starts or resumes playback.
func PlayCmd(player Player) tea.Cmd {
	return func() tea.Msg {
		if err := player.Play(); err != nil {
			return PlaybackErrorMsg{Err: err, Component: "player", Action: "play"}
		}
		return PlayingMsg{Position: player.Position()}
	}
}

// PauseCmd pauses playback.
func PauseCmd(player Player) tea.Cmd {
	return func() tea.Msg {
		if err := player.Pause(); err != nil {
			return PlaybackErrorMsg{Err: err, Component: "player", Action: "pause"}
		}
		return PausedMsg{Position: player.Position()}
	}
}

// SetRateCmd changes the playback rate.
func SetRateCmd(player Player, rate float64) tea.Cmd {
	return func() tea.Msg {
		if err := player.SetRate(rate); err != nil {
			return PlaybackErrorMsg{Err: err, Component: "player", Action: "set_rate"}
		}
		return RateChangedMsg{Rate: rate}
	}
}

// WaitForSampleCmd blocks until the next sample arrives on ch.
func WaitForSampleCmd(gen uint64, ch <-chan Position) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		pos, ok := <-ch
		if !ok {
			return SamplesClosedMsg{Gen: gen}
		}
		return SampleMsg{Gen: gen, Position: pos}
	}
}

// WaitForEndCmd blocks until the player reports the end of the audio or ctx
// is done.
func WaitForEndCmd(ctx context.Context, player Player, surah int) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-player.Ended():
			return PlaybackEndedMsg{Surah: surah}
		case <-ctx.Done():
			return nil
		}
	}
}
