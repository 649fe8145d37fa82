package timing

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Loader resolves the timing table of a surah.
type Loader interface {
	Load(ctx context.Context, surah int) (*Table, error)
}

// Store loads timing tables from a Source and keeps them for the life of
// the process. Concurrent loads of the same surah share one fetch. Failed
// loads are not remembered, so a later attempt may succeed.
type Store struct {
	source Source

	mu     sync.RWMutex
	tables map[int]*Table

	group singleflight.Group
}

// NewStore creates a store over src.
func NewStore(src Source) *Store {
	return &Store{
		source: src,
		tables: make(map[int]*Table),
	}
}

// Load returns the table for surah, fetching and parsing it on first use.
func (s *Store) Load(ctx context.Context, surah int) (*Table, error) {
	if err := ValidSurah(surah); err != nil {
		return nil, err
	}
	if t, ok := s.Cached(surah); ok {
		return t, nil
	}

	v, err, shared := s.group.Do(strconv.Itoa(surah), func() (any, error) {
		if t, ok := s.Cached(surah); ok {
			return t, nil
		}
		data, err := s.source.Fetch(ctx, surah)
		if err != nil {
			return nil, err
		}
		t, err := ParseAsset(surah, data)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.tables[surah] = t
		s.mu.Unlock()

		log.Debug("timing table loaded", "surah", surah, "verses", t.Len())
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading timings for surah %d: %w", surah, err)
	}
	if shared {
		log.Debug("timing load shared", "surah", surah)
	}
	return v.(*Table), nil
}

// Cached returns a previously loaded table without fetching.
func (s *Store) Cached(surah int) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[surah]
	return t, ok
}

// Len returns the number of cached tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
