// Package catalog fetches Quran metadata: surahs and ayahs from
// api.alquran.cloud and reciters from mp3quran.net.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Quran-wide bounds.
const (
	SurahCount = 114
	AyahCount  = 6236
)

// Surah is one entry of the surah index.
type Surah struct {
	Number                 int    `json:"number"`
	Name                   string `json:"name"`
	EnglishName            string `json:"englishName"`
	EnglishNameTranslation string `json:"englishNameTranslation"`
	NumberOfAyahs          int    `json:"numberOfAyahs"`
	RevelationType         string `json:"revelationType"`
}

// Validate checks a surah as received from the API.
func (s Surah) Validate() error {
	if s.Number < 1 || s.Number > SurahCount {
		return fmt.Errorf("%w: surah number %d", ErrInvalidResponse, s.Number)
	}
	if s.NumberOfAyahs < 1 {
		return fmt.Errorf("%w: surah %d has %d ayahs", ErrInvalidResponse, s.Number, s.NumberOfAyahs)
	}
	if strings.TrimSpace(s.EnglishName) == "" && strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: surah %d has no name", ErrInvalidResponse, s.Number)
	}
	return nil
}

// Ayah is one verse. Translation is filled in by SurahDetail and
// RandomAyah from the English edition.
type Ayah struct {
	Number        int    `json:"number"`
	NumberInSurah int    `json:"numberInSurah"`
	Text          string `json:"text"`
	Translation   string `json:"translation,omitempty"`
	Juz           int    `json:"juz"`
	Page          int    `json:"page"`
	Sajda         Sajda  `json:"sajda"`
}

// Sajda is false or an object describing a prostration verse; only its
// presence matters here.
type Sajda bool

// UnmarshalJSON accepts both the boolean and the object form.
func (s *Sajda) UnmarshalJSON(b []byte) error {
	v := strings.TrimSpace(string(b))
	switch {
	case v == "false" || v == "null":
		*s = false
	case v == "true" || strings.HasPrefix(v, "{"):
		*s = true
	default:
		return fmt.Errorf("unexpected sajda value %s", v)
	}
	return nil
}

// MarshalJSON writes a plain boolean.
func (s Sajda) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatBool(bool(s))), nil
}

// SurahDetail is a surah with its ayahs in reading order.
type SurahDetail struct {
	Surah
	Ayahs []Ayah `json:"ayahs"`
}

// Validate checks ayah numbering against the surah header.
func (d SurahDetail) Validate() error {
	if err := d.Surah.Validate(); err != nil {
		return err
	}
	if len(d.Ayahs) != d.NumberOfAyahs {
		return fmt.Errorf("%w: surah %d lists %d ayahs, header says %d",
			ErrInvalidResponse, d.Number, len(d.Ayahs), d.NumberOfAyahs)
	}
	for i, a := range d.Ayahs {
		if a.NumberInSurah != i+1 {
			return fmt.Errorf("%w: surah %d ayah %d numbered %d",
				ErrInvalidResponse, d.Number, i+1, a.NumberInSurah)
		}
	}
	return nil
}

// VerseAyah is a single ayah with the surah it belongs to.
type VerseAyah struct {
	Ayah
	Surah Surah `json:"surah"`
}

// Reference formats the ayah as "surah:ayah".
func (v VerseAyah) Reference() string {
	return fmt.Sprintf("%d:%d", v.Surah.Number, v.NumberInSurah)
}

// Reciter is a mp3quran.net reciter with the editions it recorded.
type Reciter struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Letter string   `json:"letter"`
	Moshaf []Moshaf `json:"moshaf"`

	// Popularity ranks well-known reciters: 1 most popular, 3 least,
	// 0 unranked. Derived from the server code.
	Popularity int `json:"popularity"`
}

// Moshaf is one recorded edition with its audio server.
type Moshaf struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Server     string `json:"server"`
	SurahTotal int    `json:"surah_total"`
	SurahList  string `json:"surah_list"`

	// Surahs is SurahList parsed and sorted.
	Surahs []int `json:"-"`
}

// Has reports whether the edition includes surah.
func (m Moshaf) Has(surah int) bool {
	for _, n := range m.Surahs {
		if n == surah {
			return true
		}
	}
	return false
}

// Next returns the first surah after surah in this edition.
func (m Moshaf) Next(surah int) (int, bool) {
	for _, n := range m.Surahs {
		if n > surah {
			return n, true
		}
	}
	return 0, false
}

// Code is the server path segment identifying the reciter, e.g. "afs"
// for https://server8.mp3quran.net/afs/.
func (m Moshaf) Code() string {
	rest := m.Server
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
