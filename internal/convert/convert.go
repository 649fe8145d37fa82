// Package convert turns a directory of legacy per-surah timestamp files
// (NNN.txt, one millisecond boundary per line) into JSON timing assets.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/tartil/recite/timing"
)

// DisclaimerFile ships with the EveryAyah timing archives and holds no
// timings.
const DisclaimerFile = "000_disclaimer.txt"

// DefaultOutputDir is used under the input directory when no output
// directory is given.
const DefaultOutputDir = "json_output"

// Options configures a conversion.
type Options struct {
	InputDir  string
	OutputDir string // default InputDir/json_output

	// Workers bounds parallel file conversions. Default GOMAXPROCS.
	Workers int

	// Publisher, when set, receives every written file.
	Publisher Publisher
}

// Converted describes one surah written to disk.
type Converted struct {
	Surah  int
	Verses int
	File   string
	Bytes  int64
	URL    string // set when published
}

// Skipped is a file that produced no output.
type Skipped struct {
	File   string
	Reason string
	Err    error // nil for benign skips such as empty files
}

// Report summarizes a run.
type Report struct {
	OutputDir string
	Converted []Converted
	Skipped   []Skipped
	Aggregate Converted
}

// Failed returns the skips caused by errors.
func (r *Report) Failed() []Skipped {
	var out []Skipped
	for _, s := range r.Skipped {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Verses returns the number of verses written across all surahs.
func (r *Report) Verses() int {
	n := 0
	for _, c := range r.Converted {
		n += c.Verses
	}
	return n
}

var errEmpty = errors.New("empty file")

// Run converts every NNN.txt in opts.InputDir. A file that cannot be
// converted is reported in Report.Skipped and does not stop the run;
// only I/O failures on the output side are fatal.
func Run(ctx context.Context, opts Options) (*Report, error) {
	info, err := os.Stat(opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", opts.InputDir)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(opts.InputDir, DefaultOutputDir)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}

	files, err := listInputs(opts.InputDir)
	if err != nil {
		return nil, err
	}
	log.Info("converting timing files", "count", len(files), "input", opts.InputDir, "output", opts.OutputDir)

	var (
		mu     sync.Mutex
		report = &Report{OutputDir: opts.OutputDir}
		tables = make(map[int]*timing.Table)
	)
	skip := func(file, reason string, err error) {
		mu.Lock()
		report.Skipped = append(report.Skipped, Skipped{File: file, Reason: reason, Err: err})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			surah, table, err := convertFile(filepath.Join(opts.InputDir, name))
			switch {
			case errors.Is(err, errEmpty):
				log.Warn("empty timing file, skipped", "file", name)
				skip(name, "empty", nil)
				return nil
			case err != nil:
				log.Error("unable to convert timing file", "file", name, "error", err)
				skip(name, "invalid", err)
				return nil
			}

			data, err := timing.EncodeIndent(table)
			if err != nil {
				return fmt.Errorf("encoding surah %d: %w", surah, err)
			}
			out := filepath.Join(opts.OutputDir, timing.FileName(surah))
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			c := Converted{Surah: surah, Verses: table.Len(), File: out, Bytes: int64(len(data))}
			if opts.Publisher != nil {
				if c.URL, err = opts.Publisher.Publish(gctx, timing.FileName(surah), data); err != nil {
					return fmt.Errorf("publishing surah %d: %w", surah, err)
				}
			}
			log.Debug("converted surah", "surah", surah, "verses", table.Len())

			mu.Lock()
			tables[surah] = table
			report.Converted = append(report.Converted, c)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Converted, func(i, j int) bool { return report.Converted[i].Surah < report.Converted[j].Surah })
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].File < report.Skipped[j].File })

	agg, err := EncodeAggregate(tables)
	if err != nil {
		return report, err
	}
	aggPath := filepath.Join(opts.OutputDir, timing.AggregateFileName)
	if err := os.WriteFile(aggPath, agg, 0o644); err != nil {
		return report, fmt.Errorf("writing %s: %w", aggPath, err)
	}
	report.Aggregate = Converted{Verses: report.Verses(), File: aggPath, Bytes: int64(len(agg))}
	if opts.Publisher != nil {
		if report.Aggregate.URL, err = opts.Publisher.Publish(ctx, timing.AggregateFileName, agg); err != nil {
			return report, fmt.Errorf("publishing aggregate: %w", err)
		}
	}
	return report, nil
}

// listInputs returns the .txt files to convert, sorted.
func listInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".txt") || name == DisclaimerFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SurahFromFile parses the surah number out of a name like 007.txt.
func SurahFromFile(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(name), ".txt"))
	if err != nil {
		return 0, fmt.Errorf("file name %q is not a surah number", name)
	}
	if err := timing.ValidSurah(n); err != nil {
		return 0, err
	}
	return n, nil
}

func convertFile(path string) (int, *timing.Table, error) {
	surah, err := SurahFromFile(path)
	if err != nil {
		return 0, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return surah, nil, err
	}
	stamps, err := timing.ParseTimestamps(data)
	if err != nil {
		return surah, nil, err
	}
	if len(stamps) == 0 {
		return surah, nil, errEmpty
	}
	table, err := timing.FromTimestamps(surah, stamps)
	return surah, table, err
}

// EncodeAggregate writes tables as one indented JSON object keyed by surah
// number, in numeric order.
func EncodeAggregate(tables map[int]*timing.Table) ([]byte, error) {
	surahs := make([]int, 0, len(tables))
	for n := range tables {
		surahs = append(surahs, n)
	}
	sort.Ints(surahs)

	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, n := range surahs {
		if i > 0 {
			compact.WriteByte(',')
		}
		raw, err := tables[n].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding surah %d: %w", n, err)
		}
		fmt.Fprintf(&compact, "%q:", strconv.Itoa(n))
		compact.Write(raw)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
