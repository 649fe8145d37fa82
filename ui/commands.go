package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/tartil/internal/catalog"
	"github.com/dgnsrekt/tartil/internal/store"
	"github.com/dgnsrekt/tartil/recite/sync"
)

const fetchTimeout = 30 * time.Second

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	surahsLoadedMsg struct {
		surahs []catalog.Surah
		err    error
	}

	recitersLoadedMsg struct {
		reciters []catalog.Reciter
		err      error
	}

	progressLoadedMsg struct {
		items []store.Memorization
		err   error
	}

	surahTextMsg struct {
		surah  int
		detail catalog.SurahDetail
		err    error
	}

	timingLoadedMsg sync.LoadResult

	// storeResultMsg reports a persistence action back to the reader.
	storeResultMsg struct {
		message      string
		err          error
		memorization *store.Memorization
	}

	// sourceFallbackMsg fires a while after an audio source failed.
	sourceFallbackMsg struct {
		surah int
	}

	positionTickMsg struct {
		gen uint64
	}

	statusMessageTimeoutMsg struct{}
)

func loadSurahs(cat Catalog) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		surahs, err := cat.Surahs(ctx)
		if err != nil {
			log.Error("unable to load surahs", "error", err)
		}
		return surahsLoadedMsg{surahs: surahs, err: err}
	}
}

func loadReciters(cat Catalog) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		rs, err := cat.Reciters(ctx)
		if err != nil {
			log.Warn("unable to load reciters", "error", err)
		}
		return recitersLoadedMsg{reciters: rs, err: err}
	}
}

func loadProgress(st store.Store) tea.Cmd {
	if st == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		items, err := st.Memorizations(ctx)
		if err != nil {
			log.Debug("memorization progress unavailable", "error", err)
		}
		return progressLoadedMsg{items: items, err: err}
	}
}

func loadSurahText(cat Catalog, surah int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		d, err := cat.Surah(ctx, surah)
		return surahTextMsg{surah: surah, detail: d, err: err}
	}
}

func loadTimings(load sync.LoadFunc) tea.Cmd {
	return func() tea.Msg {
		return timingLoadedMsg(load())
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

func positionTick(gen uint64) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return positionTickMsg{gen: gen}
	})
}

// verseRef identifies the ayah an action applies to.
type verseRef struct {
	surah     int
	ayah      int
	position  time.Duration
	playing   bool
	reciterID int
}

func (v verseRef) String() string {
	return fmt.Sprintf("%d:%d", v.surah, v.ayah)
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// bookmarkCmd saves a read bookmark, or an audio bookmark at the current
// position while audio is playing.
func bookmarkCmd(st store.Store, v verseRef) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()

		in := store.NewBookmark{SurahNumber: v.surah, AyahNumber: v.ayah, Type: store.BookmarkRead}
		if v.playing {
			secs := int(v.position / time.Second)
			in.Type = store.BookmarkAudio
			in.Seconds = &secs
			if v.reciterID > 0 {
				id := v.reciterID
				in.ReciterID = &id
			}
		}
		b, err := st.CreateBookmark(ctx, in)
		if err != nil {
			return storeResultMsg{err: fmt.Errorf("bookmark %s: %w", v, err)}
		}
		msg := "Bookmarked " + v.String()
		if b.Type == store.BookmarkAudio && b.Seconds != nil {
			msg += " at " + formatDuration(time.Duration(*b.Seconds)*time.Second)
		}
		return storeResultMsg{message: msg}
	}
}

// favoriteCmd toggles the favorite flag on the ayah's bookmark, creating a
// favorite read bookmark when there is none.
func favoriteCmd(st store.Store, v verseRef) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()

		list, err := st.Bookmarks(ctx)
		if err != nil {
			return storeResultMsg{err: fmt.Errorf("favorite %s: %w", v, err)}
		}
		for _, b := range list {
			if b.SurahNumber != v.surah || b.AyahNumber != v.ayah {
				continue
			}
			fav := !b.Favorite()
			if _, err := st.UpdateBookmark(ctx, b.ID, store.BookmarkPatch{IsFavorite: &fav}); err != nil {
				return storeResultMsg{err: fmt.Errorf("favorite %s: %w", v, err)}
			}
			if fav {
				return storeResultMsg{message: "Favorited " + v.String()}
			}
			return storeResultMsg{message: "Unfavorited " + v.String()}
		}

		fav := true
		in := store.NewBookmark{SurahNumber: v.surah, AyahNumber: v.ayah, Type: store.BookmarkRead, IsFavorite: &fav}
		if _, err := st.CreateBookmark(ctx, in); err != nil {
			return storeResultMsg{err: fmt.Errorf("favorite %s: %w", v, err)}
		}
		return storeResultMsg{message: "Favorited " + v.String()}
	}
}

// Fetcher downloads surah audio.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// downloadCmd records a download, saves the audio under dir and marks the
// record completed. A failed fetch puts the record back to pending.
func downloadCmd(st store.Store, f Fetcher, dir, url string, surah, reciterID int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		path := filepath.Join(dir, fmt.Sprint(reciterID), fmt.Sprintf("%03d.mp3", surah))
		status := store.DownloadDownloading
		d, err := st.CreateDownload(ctx, store.NewDownload{
			SurahNumber: surah,
			ReciterID:   reciterID,
			LocalPath:   path,
			Status:      status,
		})
		if err != nil {
			return storeResultMsg{err: fmt.Errorf("download surah %d: %w", surah, err)}
		}

		data, err := f.Fetch(ctx, url)
		if err == nil {
			err = writeFile(path, data)
		}
		if err != nil {
			pending, zero := store.DownloadPending, 0
			if _, uerr := st.UpdateDownload(ctx, d.ID, store.DownloadPatch{Status: &pending, Progress: &zero}); uerr != nil {
				err = errors.Join(err, uerr)
			}
			return storeResultMsg{err: fmt.Errorf("download surah %d: %w", surah, err)}
		}

		done, full := store.DownloadCompleted, 100
		if _, err := st.UpdateDownload(ctx, d.ID, store.DownloadPatch{Status: &done, Progress: &full}); err != nil {
			return storeResultMsg{err: fmt.Errorf("download surah %d: %w", surah, err)}
		}
		return storeResultMsg{message: fmt.Sprintf("Downloaded surah %d (%s)", surah, humanize.Bytes(uint64(len(data))))}
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec
}

const masteryStep = 10

// practiceCmd logs a memorization practice of the whole surah: the goal is
// created on first practice and its mastery raised on later ones.
func practiceCmd(st store.Store, surah catalog.Surah) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()

		list, err := st.Memorizations(ctx)
		if err != nil {
			return storeResultMsg{err: fmt.Errorf("practice: %w", err)}
		}

		for _, m := range list {
			if m.SurahNumber != surah.Number || m.StartAyah != 1 || m.EndAyah != surah.NumberOfAyahs {
				continue
			}
			level := min(100, m.MasteryLevel+masteryStep)
			patch := store.MemorizationPatch{MasteryLevel: &level}
			if level == 100 {
				s := store.MemorizationCompleted
				patch.Status = &s
			}
			got, err := st.UpdateMemorization(ctx, m.ID, patch)
			if err != nil {
				return storeResultMsg{err: fmt.Errorf("practice: %w", err)}
			}
			return storeResultMsg{
				message:      fmt.Sprintf("Practiced %s · mastery %d%%", surah.EnglishName, got.MasteryLevel),
				memorization: got,
			}
		}

		got, err := st.CreateMemorization(ctx, store.NewMemorization{
			SurahNumber: surah.Number,
			StartAyah:   1,
			EndAyah:     surah.NumberOfAyahs,
			Status:      store.MemorizationInProgress,
		})
		if err != nil {
			return storeResultMsg{err: fmt.Errorf("practice: %w", err)}
		}
		return storeResultMsg{
			message:      "Started memorizing " + surah.EnglishName,
			memorization: got,
		}
	}
}
