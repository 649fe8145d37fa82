package timing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
)

// Source fetches the raw timing asset of one surah. A missing asset is
// reported as ErrTimingUnavailable.
type Source interface {
	Fetch(ctx context.Context, surah int) ([]byte, error)
}

// BytesCache is the subset of the asset cache used by HTTPSource.
type BytesCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// NewSource picks a source from a location: an http(s) base URL, an
// aggregate .json file, or a directory of per-surah assets.
func NewSource(location string, timeout time.Duration, cache BytesCache) (Source, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: no timing source configured", ErrTimingUnavailable)
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, &http.Client{Timeout: timeout}, cache), nil
	}

	path, err := homedir.Expand(location)
	if err != nil {
		return nil, fmt.Errorf("unable to expand %s: %w", location, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimingUnavailable, err)
	}
	if info.IsDir() {
		return DirSource{Dir: path}, nil
	}
	return NewAggregateSource(path), nil
}

// DirSource reads surah_NNN.json, falling back to the legacy NNN.txt.
type DirSource struct {
	Dir string
}

// Fetch implements Source.
func (s DirSource) Fetch(_ context.Context, surah int) ([]byte, error) {
	for _, name := range []string{FileName(surah), LegacyFileName(surah)} {
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read timing asset: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: no asset for surah %d in %s", ErrTimingUnavailable, surah, s.Dir)
}

// AggregateSource serves surahs out of a single timings.json keyed by
// surah number. The file is read once.
type AggregateSource struct {
	Path string

	once   sync.Once
	surahs map[string]json.RawMessage
	err    error
}

// NewAggregateSource creates a source backed by the file at path.
func NewAggregateSource(path string) *AggregateSource {
	return &AggregateSource{Path: path}
}

// Fetch implements Source.
func (s *AggregateSource) Fetch(_ context.Context, surah int) ([]byte, error) {
	s.once.Do(func() {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			s.err = fmt.Errorf("%w: %v", ErrTimingUnavailable, err)
			return
		}
		if err := json.Unmarshal(data, &s.surahs); err != nil {
			s.err = fmt.Errorf("%w: %s: %v", ErrMalformedTimingAsset, s.Path, err)
		}
	})
	if s.err != nil {
		return nil, s.err
	}
	raw, ok := s.surahs[strconv.Itoa(surah)]
	if !ok {
		return nil, fmt.Errorf("%w: surah %d not in %s", ErrTimingUnavailable, surah, s.Path)
	}
	return raw, nil
}

// HTTPSource fetches BaseURL/surah_NNN.json. Successful responses are kept
// in the asset cache so timings survive restarts and work offline.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Cache   BytesCache
}

// NewHTTPSource creates an HTTP source. cache may be nil.
func NewHTTPSource(baseURL string, client *http.Client, cache BytesCache) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Cache:   cache,
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, surah int) ([]byte, error) {
	url := s.BaseURL + "/" + FileName(surah)
	key := "timings:" + url

	if s.Cache != nil {
		if data, ok := s.Cache.Get(key); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimingUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTimingUnavailable, url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTimingUnavailable, url, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Put(key, data); err != nil {
			log.Debug("could not cache timing asset", "url", url, "error", err)
		}
	}
	return data, nil
}
