package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	connectAttempts = 5
	connectInterval = 2 * time.Second

	sqliteParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
)

const (
	bookmarkColumns     = `id, surah_number, ayah_number, type, seconds, is_favorite, reciter_id, created_at, updated_at`
	downloadColumns     = `id, surah_number, reciter_id, local_path, status, progress, created_at, updated_at`
	memorizationColumns = `id, surah_number, start_ayah, end_ayah, status, mastery_level, last_practiced, created_at`
)

// SQL stores records in postgres or sqlite through sqlx. Queries are
// written with ? placeholders and rebound for the driver.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQL)(nil)

// OpenSQL connects to the database and optionally migrates it. Postgres
// connections are retried while the server comes up.
func OpenSQL(ctx context.Context, driver, dsn string, migrate bool) (*SQL, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = connectPostgres(ctx, dsn)
	case DriverSQLite:
		db, err = openSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	s := NewSQL(db)
	if migrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewSQL wraps an open connection pool.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func connectPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var db *sqlx.DB
		db, err = sqlx.ConnectContext(ctx, DriverPostgres, dsn)
		if err == nil {
			log.Info("connected to database", "driver", DriverPostgres)
			return db, nil
		}
		log.Warn("unable to connect to database", "attempt", attempt, "retry", connectInterval, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectInterval):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", connectAttempts, err)
}

func openSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a database path")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?" + sqliteParams
	}
	db, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	log.Info("opened database", "driver", DriverSQLite, "path", path)
	return db, nil
}

// Ping implements Store.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Bookmarks implements Store.
func (s *SQL) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	out := []Bookmark{}
	q := `SELECT ` + bookmarkColumns + ` FROM bookmarks ORDER BY created_at DESC, id DESC`
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("unable to list bookmarks: %w", err)
	}
	return out, nil
}

// Bookmark implements Store.
func (s *SQL) Bookmark(ctx context.Context, id int64) (*Bookmark, error) {
	var b Bookmark
	if err := getBookmark(ctx, s.db, &b, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBookmark implements Store.
func (s *SQL) CreateBookmark(ctx context.Context, in NewBookmark) (*Bookmark, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	q := s.db.Rebind(`
	INSERT INTO bookmarks (surah_number, ayah_number, type, seconds, is_favorite, reciter_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + bookmarkColumns)

	var b Bookmark
	err := s.db.GetContext(ctx, &b, q,
		in.SurahNumber, in.AyahNumber, string(in.Type), in.Seconds, in.IsFavorite, in.ReciterID, now, now)
	if err != nil {
		return nil, fmt.Errorf("unable to create bookmark: %w", err)
	}
	return &b, nil
}

// UpdateBookmark implements Store. The merged record is validated before
// anything is written.
func (s *SQL) UpdateBookmark(ctx context.Context, id int64, p BookmarkPatch) (*Bookmark, error) {
	var b Bookmark
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var cur Bookmark
		if err := getBookmark(ctx, tx, &cur, id); err != nil {
			return err
		}
		if err := p.Apply(cur).validate(); err != nil {
			return err
		}
		q := tx.Rebind(`
		UPDATE bookmarks SET
			surah_number = COALESCE(?, surah_number),
			ayah_number  = COALESCE(?, ayah_number),
			type         = COALESCE(?, type),
			seconds      = COALESCE(?, seconds),
			is_favorite  = COALESCE(?, is_favorite),
			reciter_id   = COALESCE(?, reciter_id),
			updated_at   = ?
		WHERE id = ?
		RETURNING ` + bookmarkColumns)
		return tx.GetContext(ctx, &b, q,
			p.SurahNumber, p.AyahNumber, optString(p.Type), p.Seconds, p.IsFavorite, p.ReciterID, s.now(), id)
	})
	if err != nil {
		return nil, wrapUpdate("bookmark", err)
	}
	return &b, nil
}

// DeleteBookmark implements Store.
func (s *SQL) DeleteBookmark(ctx context.Context, id int64) error {
	return s.delete(ctx, "bookmarks", id)
}

// Downloads implements Store.
func (s *SQL) Downloads(ctx context.Context) ([]Download, error) {
	out := []Download{}
	q := `SELECT ` + downloadColumns + ` FROM downloads ORDER BY created_at DESC, id DESC`
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("unable to list downloads: %w", err)
	}
	return out, nil
}

// Download implements Store.
func (s *SQL) Download(ctx context.Context, id int64) (*Download, error) {
	var d Download
	if err := getDownload(ctx, s.db, &d, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDownload implements Store.
func (s *SQL) CreateDownload(ctx context.Context, in NewDownload) (*Download, error) {
	rec := in.record()
	if err := rec.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	q := s.db.Rebind(`
	INSERT INTO downloads (surah_number, reciter_id, local_path, status, progress, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + downloadColumns)

	var d Download
	err := s.db.GetContext(ctx, &d, q,
		rec.SurahNumber, rec.ReciterID, rec.LocalPath, string(rec.Status), rec.Progress, now, now)
	if err != nil {
		return nil, fmt.Errorf("unable to create download: %w", err)
	}
	return &d, nil
}

// UpdateDownload implements Store.
func (s *SQL) UpdateDownload(ctx context.Context, id int64, p DownloadPatch) (*Download, error) {
	var d Download
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var cur Download
		if err := getDownload(ctx, tx, &cur, id); err != nil {
			return err
		}
		next := p.Apply(cur)
		if err := next.validate(); err != nil {
			return err
		}
		q := tx.Rebind(`
		UPDATE downloads SET
			local_path = ?,
			status     = ?,
			progress   = ?,
			updated_at = ?
		WHERE id = ?
		RETURNING ` + downloadColumns)
		return tx.GetContext(ctx, &d, q, next.LocalPath, string(next.Status), next.Progress, s.now(), id)
	})
	if err != nil {
		return nil, wrapUpdate("download", err)
	}
	return &d, nil
}

// DeleteDownload implements Store.
func (s *SQL) DeleteDownload(ctx context.Context, id int64) error {
	return s.delete(ctx, "downloads", id)
}

// Memorizations implements Store.
func (s *SQL) Memorizations(ctx context.Context) ([]Memorization, error) {
	out := []Memorization{}
	q := `SELECT ` + memorizationColumns + ` FROM memorization_progress ORDER BY last_practiced DESC, id DESC`
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("unable to list memorization goals: %w", err)
	}
	return out, nil
}

// Memorization implements Store.
func (s *SQL) Memorization(ctx context.Context, id int64) (*Memorization, error) {
	var m Memorization
	if err := getMemorization(ctx, s.db, &m, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMemorization implements Store.
func (s *SQL) CreateMemorization(ctx context.Context, in NewMemorization) (*Memorization, error) {
	rec := in.record()
	if err := rec.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	q := s.db.Rebind(`
	INSERT INTO memorization_progress (surah_number, start_ayah, end_ayah, status, mastery_level, last_practiced, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + memorizationColumns)

	var m Memorization
	err := s.db.GetContext(ctx, &m, q,
		rec.SurahNumber, rec.StartAyah, rec.EndAyah, string(rec.Status), rec.MasteryLevel, now, now)
	if err != nil {
		return nil, fmt.Errorf("unable to create memorization goal: %w", err)
	}
	return &m, nil
}

// UpdateMemorization implements Store. LastPracticed is set to now.
func (s *SQL) UpdateMemorization(ctx context.Context, id int64, p MemorizationPatch) (*Memorization, error) {
	var m Memorization
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var cur Memorization
		if err := getMemorization(ctx, tx, &cur, id); err != nil {
			return err
		}
		if err := p.Apply(cur).validate(); err != nil {
			return err
		}
		q := tx.Rebind(`
		UPDATE memorization_progress SET
			surah_number   = COALESCE(?, surah_number),
			start_ayah     = COALESCE(?, start_ayah),
			end_ayah       = COALESCE(?, end_ayah),
			status         = COALESCE(?, status),
			mastery_level  = COALESCE(?, mastery_level),
			last_practiced = ?
		WHERE id = ?
		RETURNING ` + memorizationColumns)
		return tx.GetContext(ctx, &m, q,
			p.SurahNumber, p.StartAyah, p.EndAyah, optString(p.Status), p.MasteryLevel, s.now(), id)
	})
	if err != nil {
		return nil, wrapUpdate("memorization goal", err)
	}
	return &m, nil
}

// DeleteMemorization implements Store.
func (s *SQL) DeleteMemorization(ctx context.Context, id int64) error {
	return s.delete(ctx, "memorization_progress", id)
}

func (s *SQL) delete(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM `+table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("unable to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

func getBookmark(ctx context.Context, q queryer, dst *Bookmark, id int64) error {
	return getRow(ctx, q, dst, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id)
}

func getDownload(ctx context.Context, q queryer, dst *Download, id int64) error {
	return getRow(ctx, q, dst, `SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
}

func getMemorization(ctx context.Context, q queryer, dst *Memorization, id int64) error {
	return getRow(ctx, q, dst, `SELECT `+memorizationColumns+` FROM memorization_progress WHERE id = ?`, id)
}

func getRow(ctx context.Context, q queryer, dst any, query string, id int64) error {
	err := q.GetContext(ctx, dst, q.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func wrapUpdate(what string, err error) error {
	if errors.Is(err, ErrNotFound) || IsValidation(err) {
		return err
	}
	return fmt.Errorf("unable to update %s: %w", what, err)
}

// optString turns a typed string pointer into a driver value, nil when
// unset.
func optString[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}
