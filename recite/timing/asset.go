package timing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// record is one entry of a JSON timing asset. Times are milliseconds.
type record struct {
	Sourate    int   `json:"sourate"`
	Verset     int   `json:"verset"`
	TempsDebut int64 `json:"tempsDebut"`
	Duree      int64 `json:"duree"`
}

// ParseAsset decodes a timing asset for surah. Both the JSON array form and
// the legacy newline-delimited timestamp form are accepted.
func ParseAsset(surah int, data []byte) (*Table, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: surah %d asset is empty", ErrMalformedTimingAsset, surah)
	}
	if trimmed[0] == '[' {
		return ParseJSON(surah, trimmed)
	}
	stamps, err := ParseTimestamps(trimmed)
	if err != nil {
		return nil, err
	}
	return FromTimestamps(surah, stamps)
}

// ParseJSON decodes the JSON array form.
func ParseJSON(surah int, data []byte) (*Table, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: surah %d: %v", ErrMalformedTimingAsset, surah, err)
	}
	verses := make([]VerseTiming, len(recs))
	for i, r := range recs {
		verses[i] = VerseTiming{
			Surah:    r.Sourate,
			Verse:    r.Verset,
			Start:    ms(r.TempsDebut),
			Duration: ms(r.Duree),
		}
	}
	return NewTable(surah, verses)
}

// ParseTimestamps reads one millisecond timestamp per line, skipping blank
// lines.
func ParseTimestamps(data []byte) ([]int64, error) {
	var stamps []int64
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q is not a timestamp", ErrMalformedTimingAsset, line, s)
		}
		stamps = append(stamps, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTimingAsset, err)
	}
	return stamps, nil
}

// MarshalJSON encodes the table in the JSON asset form.
func (t *Table) MarshalJSON() ([]byte, error) {
	recs := make([]record, len(t.verses))
	for i, v := range t.verses {
		recs[i] = record{
			Sourate:    v.Surah,
			Verset:     v.Verse,
			TempsDebut: v.Start.Milliseconds(),
			Duree:      v.Duration.Milliseconds(),
		}
	}
	return json.Marshal(recs)
}

// EncodeIndent encodes the table as an indented JSON asset.
func EncodeIndent(t *Table) ([]byte, error) {
	raw, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// FileName returns the per-surah asset name, e.g. surah_002.json.
func FileName(surah int) string {
	return fmt.Sprintf("surah_%03d.json", surah)
}

// LegacyFileName returns the legacy timestamp file name, e.g. 002.txt.
func LegacyFileName(surah int) string {
	return fmt.Sprintf("%03d.txt", surah)
}

// AggregateFileName is the name of the all-surahs asset.
const AggregateFileName = "timings.json"
