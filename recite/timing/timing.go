// Package timing holds per-surah verse timing tables and the locator that
// maps a playback position to a verse.
package timing

import (
	"fmt"
	"sort"
	"time"

	"github.com/dgnsrekt/tartil/recite"
)

// Re-exported so callers of this package need not import recite for
// errors.Is checks.
var (
	ErrTimingUnavailable    = recite.ErrTimingUnavailable
	ErrMalformedTimingAsset = recite.ErrMalformedTimingAsset
)

// SurahCount is the number of surahs in the Quran.
const SurahCount = 114

// None is returned by Locate when no verse covers the position.
const None = -1

// VerseTiming is the time window of one verse within a surah recording.
// The window is [Start, Start+Duration). A zero Duration on the final verse
// means the window is open-ended.
type VerseTiming struct {
	Surah    int
	Verse    int
	Start    time.Duration
	Duration time.Duration
}

// End returns the exclusive end of the window.
func (v VerseTiming) End() time.Duration {
	return v.Start + v.Duration
}

// Contains reports whether t falls inside the window.
func (v VerseTiming) Contains(t time.Duration) bool {
	return t >= v.Start && t < v.End()
}

// Table is the ordered, immutable list of verse windows of one surah.
type Table struct {
	surah  int
	verses []VerseTiming
}

// NewTable validates verses and builds a table. Verses must be numbered
// 1..N in order with strictly increasing starts, and no window may overlap
// the next one. Gaps are allowed.
func NewTable(surah int, verses []VerseTiming) (*Table, error) {
	if surah < 1 || surah > SurahCount {
		return nil, fmt.Errorf("%w: surah %d out of range 1-%d", ErrMalformedTimingAsset, surah, SurahCount)
	}
	if len(verses) == 0 {
		return nil, fmt.Errorf("%w: surah %d has no verses", ErrMalformedTimingAsset, surah)
	}

	vs := make([]VerseTiming, len(verses))
	copy(vs, verses)

	last := len(vs) - 1
	for i, v := range vs {
		switch {
		case v.Surah != surah:
			return nil, fmt.Errorf("%w: entry %d belongs to surah %d, want %d", ErrMalformedTimingAsset, i, v.Surah, surah)
		case v.Verse != i+1:
			return nil, fmt.Errorf("%w: entry %d has verse %d, want %d", ErrMalformedTimingAsset, i, v.Verse, i+1)
		case v.Start < 0:
			return nil, fmt.Errorf("%w: verse %d starts at negative time %v", ErrMalformedTimingAsset, v.Verse, v.Start)
		case v.Duration < 0, v.Duration == 0 && i != last:
			return nil, fmt.Errorf("%w: verse %d has non-positive duration %v", ErrMalformedTimingAsset, v.Verse, v.Duration)
		}
		if i == 0 {
			continue
		}
		prev := vs[i-1]
		if v.Start <= prev.Start {
			return nil, fmt.Errorf("%w: verse %d starts at %v, not after verse %d at %v",
				ErrMalformedTimingAsset, v.Verse, v.Start, prev.Verse, prev.Start)
		}
		if prev.End() > v.Start {
			return nil, fmt.Errorf("%w: verse %d ends at %v, after verse %d starts at %v",
				ErrMalformedTimingAsset, prev.Verse, prev.End(), v.Verse, v.Start)
		}
	}

	return &Table{surah: surah, verses: vs}, nil
}

// FromTimestamps builds a table from N+1 boundary timestamps in
// milliseconds, giving N contiguous verses.
func FromTimestamps(surah int, stamps []int64) (*Table, error) {
	if len(stamps) < 2 {
		return nil, fmt.Errorf("%w: surah %d needs at least 2 timestamps, got %d", ErrMalformedTimingAsset, surah, len(stamps))
	}
	verses := make([]VerseTiming, 0, len(stamps)-1)
	for i := 0; i < len(stamps)-1; i++ {
		if stamps[i] < 0 {
			return nil, fmt.Errorf("%w: negative timestamp %d at line %d", ErrMalformedTimingAsset, stamps[i], i+1)
		}
		if stamps[i+1] <= stamps[i] {
			return nil, fmt.Errorf("%w: timestamp %d at line %d does not increase", ErrMalformedTimingAsset, stamps[i+1], i+2)
		}
		verses = append(verses, VerseTiming{
			Surah:    surah,
			Verse:    i + 1,
			Start:    ms(stamps[i]),
			Duration: ms(stamps[i+1] - stamps[i]),
		})
	}
	return NewTable(surah, verses)
}

// Surah returns the surah number.
func (t *Table) Surah() int {
	return t.surah
}

// Len returns the number of verses.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.verses)
}

// At returns the verse at index i (0-based).
func (t *Table) At(i int) (VerseTiming, bool) {
	if t == nil || i < 0 || i >= len(t.verses) {
		return VerseTiming{}, false
	}
	return t.verses[i], true
}

// Verses returns a copy of the verse windows.
func (t *Table) Verses() []VerseTiming {
	if t == nil {
		return nil
	}
	out := make([]VerseTiming, len(t.verses))
	copy(out, t.verses)
	return out
}

// Locate returns the index of the verse whose window contains pos.
func (t *Table) Locate(pos time.Duration) int {
	return Locate(pos, t)
}

// Locate returns the 0-based index of the verse whose window contains pos,
// or None. Windows are half-open; the final verse extends to the end of the
// audio. Positions before the first verse or inside a gap give None.
func Locate(pos time.Duration, t *Table) int {
	if t == nil || len(t.verses) == 0 {
		return None
	}
	v := t.verses

	// First verse starting after pos; the candidate is the one before it.
	i := sort.Search(len(v), func(i int) bool { return v[i].Start > pos })
	if i == 0 {
		return None
	}
	i--
	if i == len(v)-1 || pos < v[i].End() {
		return i
	}
	return None
}

// ValidSurah checks that n is a surah number.
func ValidSurah(n int) error {
	if n < 1 || n > SurahCount {
		return fmt.Errorf("%w: surah %d out of range 1-%d", ErrTimingUnavailable, n, SurahCount)
	}
	return nil
}

func ms(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}
