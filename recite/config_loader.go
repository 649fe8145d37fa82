package recite

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads playback configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("player") {
		cfg.Player = v.GetString("player")
	}
	if v.IsSet("server") {
		cfg.Server = v.GetString("server")
	}
	if v.IsSet("reciter") {
		cfg.Reciter = v.GetInt("reciter")
	}
	if v.IsSet("moshaf") {
		cfg.Moshaf = v.GetInt("moshaf")
	}
	if v.IsSet("rate") {
		cfg.Rate = v.GetFloat64("rate")
	}

	cfg.Sync = loadSyncConfig(v)

	if v.IsSet("timings.source") {
		cfg.Timings.Source = v.GetString("timings.source")
	}
	if v.IsSet("timings.timeout") {
		cfg.Timings.Timeout = v.GetDuration("timings.timeout")
	}

	cfg.MPV = loadMPVConfig(v)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid playback configuration: %w", err)
	}

	return cfg, nil
}

func loadSyncConfig(v *viper.Viper) SyncConfig {
	cfg := DefaultSyncConfig()

	if v.IsSet("sync.offset") {
		cfg.Offset = parseOffset(v)
	}
	if v.IsSet("sync.auto_scroll") {
		cfg.AutoScroll = v.GetBool("sync.auto_scroll")
	}
	if v.IsSet("sync.sample_interval") {
		cfg.SampleInterval = v.GetDuration("sync.sample_interval")
	}
	if v.IsSet("sync.min_sample_interval") {
		cfg.MinSampleInterval = v.GetDuration("sync.min_sample_interval")
	}

	return cfg
}

func loadMPVConfig(v *viper.Viper) MPVConfig {
	cfg := DefaultMPVConfig()

	if v.IsSet("mpv.binary") {
		cfg.Binary = v.GetString("mpv.binary")
	}
	if v.IsSet("mpv.socket") {
		cfg.Socket = v.GetString("mpv.socket")
	}
	if v.IsSet("mpv.start_timeout") {
		cfg.StartTimeout = v.GetDuration("mpv.start_timeout")
	}
	if v.IsSet("mpv.extra_args") {
		cfg.ExtraArgs = v.GetStringSlice("mpv.extra_args")
	}

	return cfg
}

// parseOffset accepts either a duration string ("-250ms") or a bare number
// of milliseconds.
func parseOffset(v *viper.Viper) time.Duration {
	raw := v.GetString("sync.offset")
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return time.Duration(v.GetInt64("sync.offset")) * time.Millisecond
}

// SetDefaults sets default values in Viper for playback configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("player", defaults.Player)
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("rate", defaults.Rate)

	viper.SetDefault("sync.offset", "0ms")
	viper.SetDefault("sync.auto_scroll", defaults.Sync.AutoScroll)
	viper.SetDefault("sync.sample_interval", defaults.Sync.SampleInterval)
	viper.SetDefault("sync.min_sample_interval", defaults.Sync.MinSampleInterval)

	viper.SetDefault("timings.timeout", defaults.Timings.Timeout)

	viper.SetDefault("mpv.binary", defaults.MPV.Binary)
	viper.SetDefault("mpv.start_timeout", defaults.MPV.StartTimeout)
}

// LiveOffset holds the sync offset so it can be tuned while playing. The
// tracker reads it on every sample.
type LiveOffset struct {
	ns atomic.Int64
}

// NewLiveOffset creates a LiveOffset holding d.
func NewLiveOffset(d time.Duration) *LiveOffset {
	o := &LiveOffset{}
	o.Set(d)
	return o
}

// Get returns the current offset.
func (o *LiveOffset) Get() time.Duration {
	return time.Duration(o.ns.Load())
}

// Set replaces the offset.
func (o *LiveOffset) Set(d time.Duration) {
	o.ns.Store(int64(d))
}

// Add shifts the offset by d and returns the new value.
func (o *LiveOffset) Add(d time.Duration) time.Duration {
	return time.Duration(o.ns.Add(int64(d)))
}

// WatchOffset re-reads sync.offset from the config file whenever it is
// written and stores it in o. The returned function stops watching.
func WatchOffset(path string, o *LiveOffset) (func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("error watching %s: %w", dir, err)
	}
	log.Debug("fsnotify watching config", "file", path)

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				d, err := readOffset(path)
				if err != nil {
					log.Warn("could not reload sync offset", "file", path, "error", err)
					continue
				}
				if d != o.Get() {
					log.Debug("sync offset reloaded", "offset", d)
					o.Set(d)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Debug("fsnotify error", "file", path, "error", err)
			}
		}
	}()

	return w.Close, nil
}

func readOffset(path string) (time.Duration, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return 0, err
	}
	if !v.IsSet("sync.offset") {
		return 0, nil
	}
	return parseOffset(v), nil
}
