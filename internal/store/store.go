package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is implemented by every persistence backend. Lists are ordered
// newest first; memorization goals by LastPracticed.
type Store interface {
	Bookmarks(ctx context.Context) ([]Bookmark, error)
	Bookmark(ctx context.Context, id int64) (*Bookmark, error)
	CreateBookmark(ctx context.Context, in NewBookmark) (*Bookmark, error)
	UpdateBookmark(ctx context.Context, id int64, p BookmarkPatch) (*Bookmark, error)
	DeleteBookmark(ctx context.Context, id int64) error

	Downloads(ctx context.Context) ([]Download, error)
	Download(ctx context.Context, id int64) (*Download, error)
	CreateDownload(ctx context.Context, in NewDownload) (*Download, error)
	UpdateDownload(ctx context.Context, id int64, p DownloadPatch) (*Download, error)
	DeleteDownload(ctx context.Context, id int64) error

	Memorizations(ctx context.Context) ([]Memorization, error)
	Memorization(ctx context.Context, id int64) (*Memorization, error)
	CreateMemorization(ctx context.Context, in NewMemorization) (*Memorization, error)
	UpdateMemorization(ctx context.Context, id int64, p MemorizationPatch) (*Memorization, error)
	DeleteMemorization(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config selects and configures a backend.
type Config struct {
	Driver  string `env:"DRIVER" envDefault:"memory"`
	DSN     string `env:"DSN"`
	Migrate bool   `env:"MIGRATE" envDefault:"true"`
}

// Open returns the backend named by cfg.Driver. SQL backends are migrated
// to the latest schema when cfg.Migrate is set.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres, "postgresql":
		return OpenSQL(ctx, DriverPostgres, cfg.DSN, cfg.Migrate)
	case DriverSQLite, "sqlite":
		return OpenSQL(ctx, DriverSQLite, cfg.DSN, cfg.Migrate)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
