package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every Store implementation that can run without
// external services, each with a fresh clock starting at base.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	mem := NewMemory()
	mem.now = stepClock()

	sq, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "tartil.db"), true)
	require.NoError(t, err)
	sq.now = stepClock()
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{"memory": mem, "sqlite": sq}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := base
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func ptr[T any](v T) *T { return &v }

func TestBookmarkLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			b, err := s.CreateBookmark(ctx, NewBookmark{SurahNumber: 2, AyahNumber: 255, Type: BookmarkRead})
			require.NoError(t, err)
			assert.Positive(t, b.ID)
			assert.Equal(t, 2, b.SurahNumber)
			assert.Equal(t, 255, b.AyahNumber)
			assert.Nil(t, b.Seconds)
			assert.False(t, b.Favorite())

			list, err := s.Bookmarks(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, b.ID, list[0].ID)

			require.NoError(t, s.DeleteBookmark(ctx, b.ID))
			list, err = s.Bookmarks(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			assert.ErrorIs(t, s.DeleteBookmark(ctx, b.ID), ErrNotFound)
			_, err = s.Bookmark(ctx, b.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBookmarkOrdering(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []int64
			for ayah := 1; ayah <= 3; ayah++ {
				b, err := s.CreateBookmark(ctx, NewBookmark{SurahNumber: 1, AyahNumber: ayah, Type: BookmarkRead})
				require.NoError(t, err)
				ids = append(ids, b.ID)
			}

			list, err := s.Bookmarks(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{list[0].ID, list[1].ID, list[2].ID})
		})
	}
}

func TestUpdateBookmark(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, err := s.CreateBookmark(ctx, NewBookmark{
				SurahNumber: 18, AyahNumber: 10, Type: BookmarkAudio, Seconds: ptr(42), ReciterID: ptr(7),
			})
			require.NoError(t, err)

			got, err := s.UpdateBookmark(ctx, b.ID, BookmarkPatch{IsFavorite: ptr(true), Seconds: ptr(90)})
			require.NoError(t, err)
			assert.Equal(t, b.ID, got.ID)
			assert.True(t, got.CreatedAt.Equal(b.CreatedAt), "created_at changed")
			assert.True(t, got.UpdatedAt.After(b.UpdatedAt), "updated_at not advanced")
			assert.True(t, got.Favorite())
			assert.Equal(t, 90, *got.Seconds)
			assert.Equal(t, 7, *got.ReciterID)
			assert.Equal(t, 18, got.SurahNumber)
			assert.Equal(t, BookmarkAudio, got.Type)

			_, err = s.UpdateBookmark(ctx, b.ID, BookmarkPatch{SurahNumber: ptr(115)})
			assert.True(t, IsValidation(err), "err = %v", err)

			// The rejected patch left the record untouched.
			again, err := s.Bookmark(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, 18, again.SurahNumber)

			_, err = s.UpdateBookmark(ctx, 9999, BookmarkPatch{IsFavorite: ptr(false)})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCreateBookmarkValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    NewBookmark
		field string
	}{
		{"missing surah", NewBookmark{AyahNumber: 1, Type: BookmarkRead}, "surahNumber"},
		{"surah too large", NewBookmark{SurahNumber: 115, AyahNumber: 1, Type: BookmarkRead}, "surahNumber"},
		{"missing ayah", NewBookmark{SurahNumber: 1, Type: BookmarkRead}, "ayahNumber"},
		{"unknown type", NewBookmark{SurahNumber: 1, AyahNumber: 1, Type: "video"}, "type"},
		{"negative seconds", NewBookmark{SurahNumber: 1, AyahNumber: 1, Type: BookmarkAudio, Seconds: ptr(-1)}, "seconds"},
		{"bad reciter", NewBookmark{SurahNumber: 1, AyahNumber: 1, Type: BookmarkAudio, ReciterID: ptr(0)}, "reciterId"},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					_, err := s.CreateBookmark(context.Background(), tt.in)
					var ve *ValidationError
					require.ErrorAs(t, err, &ve)
					assert.Equal(t, tt.field, ve.Field)
				})
			}
			list, err := s.Bookmarks(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list, "rejected payloads must not be stored")
		})
	}
}

func TestDownloads(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			d, err := s.CreateDownload(ctx, NewDownload{SurahNumber: 36, ReciterID: 5, LocalPath: " /music/036.mp3 "})
			require.NoError(t, err)
			assert.Equal(t, DownloadPending, d.Status)
			assert.Equal(t, 0, d.Progress)
			assert.Equal(t, "/music/036.mp3", d.LocalPath)

			got, err := s.UpdateDownload(ctx, d.ID, DownloadPatch{Status: ptr(DownloadDownloading), Progress: ptr(40)})
			require.NoError(t, err)
			assert.Equal(t, DownloadDownloading, got.Status)
			assert.Equal(t, 40, got.Progress)
			assert.Equal(t, d.LocalPath, got.LocalPath)

			_, err = s.UpdateDownload(ctx, d.ID, DownloadPatch{Progress: ptr(101)})
			assert.True(t, IsValidation(err))
			_, err = s.UpdateDownload(ctx, d.ID, DownloadPatch{Status: ptr(DownloadStatus("paused"))})
			assert.True(t, IsValidation(err))

			_, err = s.CreateDownload(ctx, NewDownload{SurahNumber: 36, ReciterID: 5})
			assert.True(t, IsValidation(err), "missing local path")

			list, err := s.Downloads(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, 40, list[0].Progress)

			require.NoError(t, s.DeleteDownload(ctx, d.ID))
			_, err = s.Download(ctx, d.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemorization(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			g, err := s.CreateMemorization(ctx, NewMemorization{
				SurahNumber: 67, StartAyah: 1, EndAyah: 10, Status: MemorizationInProgress,
			})
			require.NoError(t, err)
			assert.Equal(t, 0, g.MasteryLevel)
			assert.Equal(t, MemorizationInProgress, g.Status)
			assert.Equal(t, 10, g.Ayahs())

			got, err := s.UpdateMemorization(ctx, g.ID, MemorizationPatch{
				MasteryLevel: ptr(100), Status: ptr(MemorizationCompleted),
			})
			require.NoError(t, err)
			assert.Equal(t, 100, got.MasteryLevel)
			assert.Equal(t, MemorizationCompleted, got.Status)
			assert.True(t, got.LastPracticed.After(g.LastPracticed), "last practiced not advanced")
			assert.True(t, got.CreatedAt.Equal(g.CreatedAt))

			fetched, err := s.Memorization(ctx, g.ID)
			require.NoError(t, err)
			assert.Equal(t, 100, fetched.MasteryLevel)
			assert.Equal(t, MemorizationCompleted, fetched.Status)

			_, err = s.UpdateMemorization(ctx, g.ID, MemorizationPatch{EndAyah: ptr(0)})
			assert.True(t, IsValidation(err), "end before start")
			_, err = s.UpdateMemorization(ctx, g.ID, MemorizationPatch{MasteryLevel: ptr(-5)})
			assert.True(t, IsValidation(err))
			_, err = s.UpdateMemorization(ctx, 404, MemorizationPatch{})
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.DeleteMemorization(ctx, g.ID))
			assert.ErrorIs(t, s.DeleteMemorization(ctx, g.ID), ErrNotFound)
		})
	}
}

func TestMemorizationOrderedByPractice(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := s.CreateMemorization(ctx, NewMemorization{SurahNumber: 1, StartAyah: 1, EndAyah: 7, Status: MemorizationInProgress})
			require.NoError(t, err)
			second, err := s.CreateMemorization(ctx, NewMemorization{SurahNumber: 112, StartAyah: 1, EndAyah: 4, Status: MemorizationInProgress})
			require.NoError(t, err)

			list, err := s.Memorizations(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, second.ID, list[0].ID)

			// Practising the older goal moves it to the front.
			_, err = s.UpdateMemorization(ctx, first.ID, MemorizationPatch{MasteryLevel: ptr(20)})
			require.NoError(t, err)
			list, err = s.Memorizations(ctx)
			require.NoError(t, err)
			assert.Equal(t, first.ID, list[0].ID)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.NoError(t, s.Ping(ctx))

	s, err = Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db"), Migrate: true})
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, s)
	assert.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "mongo"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverSQLite})
	assert.Error(t, err, "sqlite without a path")
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tartil.db")

	s, err := OpenSQL(ctx, DriverSQLite, path, true)
	require.NoError(t, err)
	_, err = s.CreateBookmark(ctx, NewBookmark{SurahNumber: 1, AyahNumber: 1, Type: BookmarkRead})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQL(ctx, DriverSQLite, path, true)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	require.NoError(t, Migrate(ctx, s.db), "second run finds no change")
	list, err := s.Bookmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryConcurrentCreates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(ayah int) {
			defer wg.Done()
			_, err := s.CreateBookmark(ctx, NewBookmark{SurahNumber: 2, AyahNumber: ayah, Type: BookmarkRead})
			assert.NoError(t, err)
		}(i + 1)
	}
	wg.Wait()

	list, err := s.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 50)
	seen := make(map[int64]bool)
	for _, b := range list {
		assert.False(t, seen[b.ID], "duplicate id %d", b.ID)
		seen[b.ID] = true
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewMemorization{SurahNumber: 1, StartAyah: 5, EndAyah: 2, Status: MemorizationInProgress}.Validate()
	require.Error(t, err)
	assert.Equal(t, "endAyah must not be before startAyah", err.Error())
	assert.Equal(t, "plain", (&ValidationError{Message: "plain"}).Error())
}
