package timing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/tartil/recite/timing"
)

func mustTable(t *testing.T, surah int, stamps ...int64) *timing.Table {
	t.Helper()
	tbl, err := timing.FromTimestamps(surah, stamps)
	if err != nil {
		t.Fatalf("FromTimestamps(%d, %v): %v", surah, stamps, err)
	}
	return tbl
}

func TestLocateWorkedExample(t *testing.T) {
	tbl := mustTable(t, 1, 0, 5000, 12000, 20000)

	tests := []struct {
		name string
		pos  time.Duration
		want int
	}{
		{"before start", -1 * time.Millisecond, timing.None},
		{"first instant", 0, 0},
		{"end of first verse", 4999 * time.Millisecond, 0},
		{"boundary belongs to next verse", 5000 * time.Millisecond, 1},
		{"inside last verse", 19999 * time.Millisecond, 2},
		{"last verse is unbounded", 25000 * time.Millisecond, 2},
		{"far past the end", time.Hour, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timing.Locate(tt.pos, tbl); got != tt.want {
				t.Errorf("Locate(%v) = %d, want %d", tt.pos, got, tt.want)
			}
		})
	}
}

func TestLocatePartitionsTimeline(t *testing.T) {
	stamps := []int64{0, 1200, 1300, 4000, 4001, 9050, 15000}
	tbl := mustTable(t, 112, stamps...)

	if tbl.Len() != len(stamps)-1 {
		t.Fatalf("Len() = %d, want %d", tbl.Len(), len(stamps)-1)
	}

	// Every millisecond maps to exactly the window it falls in, and the
	// index never decreases as time moves forward.
	prev := timing.None
	for ms := int64(0); ms < stamps[len(stamps)-1]+500; ms++ {
		pos := time.Duration(ms) * time.Millisecond
		got := tbl.Locate(pos)
		if got == timing.None {
			t.Fatalf("Locate(%v) = none inside a contiguous table", pos)
		}
		if got < prev {
			t.Fatalf("Locate(%v) = %d went backwards from %d", pos, got, prev)
		}
		v, _ := tbl.At(got)
		if got < tbl.Len()-1 && !v.Contains(pos) {
			t.Fatalf("Locate(%v) = %d but window is [%v, %v)", pos, got, v.Start, v.End())
		}
		prev = got
	}
}

func TestLocateIsPure(t *testing.T) {
	tbl := mustTable(t, 1, 0, 5000, 12000, 20000)
	before := tbl.Verses()
	for i := 0; i < 3; i++ {
		if got := tbl.Locate(7 * time.Second); got != 1 {
			t.Fatalf("call %d: Locate(7s) = %d, want 1", i, got)
		}
	}
	after := tbl.Verses()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("verse %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestLocateEmpty(t *testing.T) {
	if got := timing.Locate(time.Second, nil); got != timing.None {
		t.Errorf("Locate on nil table = %d, want none", got)
	}
}

func TestLocateGap(t *testing.T) {
	tbl, err := timing.NewTable(2, []timing.VerseTiming{
		{Surah: 2, Verse: 1, Start: 0, Duration: 2 * time.Second},
		{Surah: 2, Verse: 2, Start: 3 * time.Second, Duration: 2 * time.Second},
		{Surah: 2, Verse: 3, Start: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	tests := []struct {
		pos  time.Duration
		want int
	}{
		{1999 * time.Millisecond, 0},
		{2 * time.Second, timing.None},
		{2500 * time.Millisecond, timing.None},
		{3 * time.Second, 1},
		{5 * time.Second, 2},
		{time.Minute, 2},
	}
	for _, tt := range tests {
		if got := tbl.Locate(tt.pos); got != tt.want {
			t.Errorf("Locate(%v) = %d, want %d", tt.pos, got, tt.want)
		}
	}
}

func TestFromTimestampsRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		surah  int
		stamps []int64
	}{
		{"no timestamps", 1, nil},
		{"single timestamp", 1, []int64{0}},
		{"equal timestamps", 1, []int64{0, 100, 100}},
		{"decreasing timestamps", 1, []int64{0, 500, 200}},
		{"negative start", 1, []int64{-10, 100}},
		{"surah zero", 0, []int64{0, 100}},
		{"surah past the end", 115, []int64{0, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := timing.FromTimestamps(tt.surah, tt.stamps)
			if !errors.Is(err, timing.ErrMalformedTimingAsset) {
				t.Errorf("error = %v, want ErrMalformedTimingAsset", err)
			}
		})
	}
}

func TestNewTableRejectsOverlap(t *testing.T) {
	_, err := timing.NewTable(3, []timing.VerseTiming{
		{Surah: 3, Verse: 1, Start: 0, Duration: 6 * time.Second},
		{Surah: 3, Verse: 2, Start: 5 * time.Second, Duration: time.Second},
	})
	if !errors.Is(err, timing.ErrMalformedTimingAsset) {
		t.Errorf("error = %v, want ErrMalformedTimingAsset", err)
	}
}

func TestTableAt(t *testing.T) {
	tbl := mustTable(t, 1, 0, 5000, 12000)

	v, ok := tbl.At(1)
	if !ok {
		t.Fatal("At(1) not found")
	}
	if v.Verse != 2 || v.Start != 5*time.Second || v.Duration != 7*time.Second {
		t.Errorf("At(1) = %+v", v)
	}
	for _, i := range []int{-1, 2} {
		if _, ok := tbl.At(i); ok {
			t.Errorf("At(%d) should be out of range", i)
		}
	}
}
