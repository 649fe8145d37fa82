package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// popularity ranks reciters by the server code of their first moshaf.
var popularity = map[string]int{
	"basit": 1, "hussary": 1, "husr": 1, "minsh": 1, "ismail": 1, "mustafa": 1,

	"sudais": 2, "sds": 2, "shur": 2, "juhani": 2, "jhn": 2, "maher": 2,
	"alafasy": 2, "afs": 2, "s_gmd": 2, "shatri": 2, "ajm": 2, "rifai": 2,
	"hani": 2, "tunaiji": 2,

	"dosari": 3, "yasser": 3, "qatami": 3, "qtm": 3, "luhaidan": 3, "lhdan": 3,
}

// Popularity returns the rank for a server code, 0 when unranked.
func Popularity(code string) int {
	return popularity[code]
}

// ParseSurahList parses mp3quran's comma-separated surah_list.
func ParseSurahList(list string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: surah list entry %q", ErrInvalidResponse, f)
		}
		if n < 1 || n > SurahCount {
			return nil, fmt.Errorf("%w: surah list entry %d out of range", ErrInvalidResponse, n)
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// normalizeReciters parses surah lists, drops editions without a usable
// server or surah list and reciters left with none, and ranks the rest.
func normalizeReciters(in []Reciter) []Reciter {
	out := make([]Reciter, 0, len(in))
	for _, r := range in {
		if r.ID <= 0 || strings.TrimSpace(r.Name) == "" {
			continue
		}
		moshafs := r.Moshaf[:0:0]
		for _, m := range r.Moshaf {
			if !strings.HasPrefix(m.Server, "http") {
				continue
			}
			surahs, err := ParseSurahList(m.SurahList)
			if err != nil || len(surahs) == 0 {
				continue
			}
			m.Surahs = surahs
			m.Server = strings.TrimRight(m.Server, "/")
			moshafs = append(moshafs, m)
		}
		if len(moshafs) == 0 {
			continue
		}
		r.Moshaf = moshafs
		r.Popularity = Popularity(moshafs[0].Code())
		out = append(out, r)
	}
	SortReciters(out)
	return out
}

// SortReciters orders ranked reciters first (1 before 3), then by name.
func SortReciters(rs []Reciter) {
	rank := func(p int) int {
		if p == 0 {
			return 99
		}
		return p
	}
	sort.SliceStable(rs, func(i, j int) bool {
		pi, pj := rank(rs[i].Popularity), rank(rs[j].Popularity)
		if pi != pj {
			return pi < pj
		}
		return rs[i].Name < rs[j].Name
	})
}

// ForSurah keeps reciters with at least one edition containing surah and
// trims their editions to those that do.
func ForSurah(rs []Reciter, surah int) []Reciter {
	var out []Reciter
	for _, r := range rs {
		var ms []Moshaf
		for _, m := range r.Moshaf {
			if m.Has(surah) {
				ms = append(ms, m)
			}
		}
		if len(ms) == 0 {
			continue
		}
		r.Moshaf = ms
		out = append(out, r)
	}
	return out
}

// FindMoshaf looks up an edition by reciter and moshaf ID.
func FindMoshaf(rs []Reciter, reciterID, moshafID int) (Reciter, Moshaf, bool) {
	for _, r := range rs {
		if r.ID != reciterID {
			continue
		}
		for _, m := range r.Moshaf {
			if m.ID == moshafID {
				return r, m, true
			}
		}
	}
	return Reciter{}, Moshaf{}, false
}
