package recite

import (
	"fmt"
	"strings"
	"time"
)

// Player backends.
const (
	PlayerMPV   = "mpv"
	PlayerOto   = "oto"
	PlayerClock = "clock"
)

// DefaultAudioServer is the moshaf server used until a reciter is picked.
const DefaultAudioServer = "https://server8.mp3quran.net/afs"

// Config contains all playback and synchronization options.
type Config struct {
	// Player backend: mpv, oto or clock
	Player string `yaml:"player" env:"TARTIL_PLAYER" envDefault:"mpv"`

	// Audio source
	Server  string  `yaml:"server" env:"TARTIL_AUDIO_SERVER"`
	Reciter int     `yaml:"reciter" env:"TARTIL_RECITER"`
	Moshaf  int     `yaml:"moshaf" env:"TARTIL_MOSHAF"`
	Rate    float64 `yaml:"rate" env:"TARTIL_RATE" envDefault:"1.0"`

	Sync    SyncConfig    `yaml:"sync"`
	Timings TimingsConfig `yaml:"timings"`
	MPV     MPVConfig     `yaml:"mpv"`
}

// SyncConfig controls verse tracking.
type SyncConfig struct {
	// Offset is added to every raw playback position before locating.
	Offset     time.Duration `yaml:"offset" env:"TARTIL_SYNC_OFFSET" envDefault:"0ms"`
	AutoScroll bool          `yaml:"auto_scroll" env:"TARTIL_SYNC_AUTO_SCROLL" envDefault:"true"`

	// SampleInterval is the polling period for players without progress
	// events. MinSampleInterval throttles event-driven players.
	SampleInterval    time.Duration `yaml:"sample_interval" env:"TARTIL_SYNC_SAMPLE_INTERVAL" envDefault:"500ms"`
	MinSampleInterval time.Duration `yaml:"min_sample_interval" env:"TARTIL_SYNC_MIN_SAMPLE_INTERVAL" envDefault:"100ms"`
}

// TimingsConfig locates verse timing assets.
type TimingsConfig struct {
	// Source is a directory, an aggregate timings.json file, or an
	// http(s) base URL.
	Source  string        `yaml:"source" env:"TARTIL_TIMINGS_SOURCE"`
	Timeout time.Duration `yaml:"timeout" env:"TARTIL_TIMINGS_TIMEOUT" envDefault:"10s"`
}

// MPVConfig contains mpv backend settings.
type MPVConfig struct {
	Binary       string        `yaml:"binary" env:"TARTIL_MPV_BINARY" envDefault:"mpv"`
	Socket       string        `yaml:"socket" env:"TARTIL_MPV_SOCKET"`
	StartTimeout time.Duration `yaml:"start_timeout" env:"TARTIL_MPV_START_TIMEOUT" envDefault:"5s"`
	ExtraArgs    []string      `yaml:"extra_args" env:"TARTIL_MPV_EXTRA_ARGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Player: PlayerMPV,
		Server: DefaultAudioServer,
		Rate:   DefaultRate,
		Sync:   DefaultSyncConfig(),
		Timings: TimingsConfig{
			Timeout: 10 * time.Second,
		},
		MPV: DefaultMPVConfig(),
	}
}

// DefaultSyncConfig returns default sync settings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		AutoScroll:        true,
		SampleInterval:    500 * time.Millisecond,
		MinSampleInterval: 100 * time.Millisecond,
	}
}

// DefaultMPVConfig returns default mpv settings.
func DefaultMPVConfig() MPVConfig {
	return MPVConfig{
		Binary:       "mpv",
		StartTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validPlayers := []string{PlayerMPV, PlayerOto, PlayerClock}
	playerValid := false
	for _, p := range validPlayers {
		if strings.EqualFold(c.Player, p) {
			playerValid = true
			c.Player = strings.ToLower(c.Player)
			break
		}
	}
	if !playerValid {
		return fmt.Errorf("%w: player '%s' must be one of %v", ErrInvalidConfig, c.Player, validPlayers)
	}

	if c.Rate < MinRate || c.Rate > MaxRate {
		return fmt.Errorf("%w: rate must be between %.2f and %.2f, got %.2f", ErrInvalidConfig, MinRate, MaxRate, c.Rate)
	}

	if c.Server != "" && !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("%w: audio server must be an http(s) URL, got %q", ErrInvalidConfig, c.Server)
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if c.Player == PlayerMPV {
		if err := c.MPV.Validate(); err != nil {
			return fmt.Errorf("mpv config: %w", err)
		}
	}

	return nil
}

// Validate checks the sync settings.
func (c *SyncConfig) Validate() error {
	if c.Offset < -10*time.Second || c.Offset > 10*time.Second {
		return fmt.Errorf("%w: offset must be within ±10s, got %v", ErrInvalidConfig, c.Offset)
	}
	if c.SampleInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: sample_interval must be at least 10ms, got %v", ErrInvalidConfig, c.SampleInterval)
	}
	if c.MinSampleInterval < 0 || c.MinSampleInterval > c.SampleInterval {
		return fmt.Errorf("%w: min_sample_interval must be between 0 and sample_interval, got %v", ErrInvalidConfig, c.MinSampleInterval)
	}
	return nil
}

// Validate checks the mpv settings.
func (c *MPVConfig) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("%w: mpv binary path cannot be empty", ErrInvalidConfig)
	}
	if c.StartTimeout < 100*time.Millisecond {
		return fmt.Errorf("%w: start_timeout must be at least 100ms, got %v", ErrInvalidConfig, c.StartTimeout)
	}
	return nil
}
