package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	gap "github.com/muesli/go-app-paths"
)

var (
	// ErrItemTooLarge is returned when an item exceeds a level's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("cache closed")
)

// Key prefixes used by the asset consumers.
const (
	PrefixCatalog = "catalog:"
	PrefixTimings = "timings:"
	PrefixAudio   = "audio:"
)

// Level identifies a cache tier.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one level.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	LastEvict time.Time
}

// HitRate is hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Entry describes a cached item without its bytes.
type Entry struct {
	Key        string
	Size       int64
	Stored     time.Time
	LastAccess time.Time
	Hits       int64
	Level      Level
}

// Kind returns the key prefix without the colon, e.g. "audio".
func (e Entry) Kind() string {
	if i := strings.IndexByte(e.Key, ':'); i > 0 {
		return e.Key[:i]
	}
	return "other"
}

// Config sizes the two levels.
type Config struct {
	MemoryCapacity int64 `yaml:"memory_capacity" env:"TARTIL_CACHE_MEMORY" envDefault:"67108864"`
	DiskCapacity   int64 `yaml:"disk_capacity" env:"TARTIL_CACHE_DISK" envDefault:"1073741824"`

	// DiskPath defaults to DefaultDir.
	DiskPath string `yaml:"disk_path" env:"TARTIL_CACHE_DIR"`

	// CompressionLevel is the zstd level; 0 stores items as-is.
	CompressionLevel int `yaml:"compression_level" env:"TARTIL_CACHE_COMPRESSION" envDefault:"3"`

	// TTL removes disk entries older than this. Zero keeps them forever.
	TTL             time.Duration `yaml:"ttl" env:"TARTIL_CACHE_TTL" envDefault:"720h"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"TARTIL_CACHE_CLEANUP_INTERVAL" envDefault:"1h"`

	// MemoryOnly skips the disk level.
	MemoryOnly bool `yaml:"memory_only" env:"TARTIL_CACHE_MEMORY_ONLY"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     1 << 30,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// DefaultDir returns the asset directory under the user cache dir.
func DefaultDir() (string, error) {
	scope := gap.NewScope(gap.User, "tartil")
	dirs, err := scope.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs, "assets"), nil
}

// Tier is implemented by both levels.
type Tier interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Contains(key string) bool
	Size() int64
	Stats() Stats
	Entries() []Entry
}
