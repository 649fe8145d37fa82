package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps records in maps. It is safe for concurrent use.
type Memory struct {
	mu            sync.RWMutex
	bookmarks     map[int64]Bookmark
	downloads     map[int64]Download
	memorizations map[int64]Memorization
	lastID        struct{ bookmark, download, memorization int64 }

	now func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bookmarks:     make(map[int64]Bookmark),
		downloads:     make(map[int64]Download),
		memorizations: make(map[int64]Memorization),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Bookmarks implements Store.
func (m *Memory) Bookmarks(context.Context) ([]Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Bookmark, 0, len(m.bookmarks))
	for _, b := range m.bookmarks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

// Bookmark implements Store.
func (m *Memory) Bookmark(_ context.Context, id int64) (*Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookmarks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

// CreateBookmark implements Store.
func (m *Memory) CreateBookmark(_ context.Context, in NewBookmark) (*Bookmark, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID.bookmark++
	now := m.now()
	b := Bookmark{
		ID:          m.lastID.bookmark,
		SurahNumber: in.SurahNumber,
		AyahNumber:  in.AyahNumber,
		Type:        in.Type,
		Seconds:     in.Seconds,
		IsFavorite:  in.IsFavorite,
		ReciterID:   in.ReciterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.bookmarks[b.ID] = b
	return &b, nil
}

// UpdateBookmark implements Store. A rejected patch leaves the record as
// it was.
func (m *Memory) UpdateBookmark(_ context.Context, id int64, p BookmarkPatch) (*Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.bookmarks[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := p.Apply(cur)
	if err := next.validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now()
	m.bookmarks[id] = next
	return &next, nil
}

// DeleteBookmark implements Store.
func (m *Memory) DeleteBookmark(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookmarks[id]; !ok {
		return ErrNotFound
	}
	delete(m.bookmarks, id)
	return nil
}

// Downloads implements Store.
func (m *Memory) Downloads(context.Context) ([]Download, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

// Download implements Store.
func (m *Memory) Download(_ context.Context, id int64) (*Download, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.downloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// CreateDownload implements Store.
func (m *Memory) CreateDownload(_ context.Context, in NewDownload) (*Download, error) {
	d := in.record()
	if err := d.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID.download++
	d.ID = m.lastID.download
	d.CreatedAt = m.now()
	d.UpdatedAt = d.CreatedAt
	m.downloads[d.ID] = d
	return &d, nil
}

// UpdateDownload implements Store.
func (m *Memory) UpdateDownload(_ context.Context, id int64, p DownloadPatch) (*Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.downloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := p.Apply(cur)
	if err := next.validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now()
	m.downloads[id] = next
	return &next, nil
}

// DeleteDownload implements Store.
func (m *Memory) DeleteDownload(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.downloads[id]; !ok {
		return ErrNotFound
	}
	delete(m.downloads, id)
	return nil
}

// Memorizations implements Store.
func (m *Memory) Memorizations(context.Context) ([]Memorization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Memorization, 0, len(m.memorizations))
	for _, g := range m.memorizations {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].LastPracticed, out[j].LastPracticed, out[i].ID, out[j].ID)
	})
	return out, nil
}

// Memorization implements Store.
func (m *Memory) Memorization(_ context.Context, id int64) (*Memorization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.memorizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

// CreateMemorization implements Store.
func (m *Memory) CreateMemorization(_ context.Context, in NewMemorization) (*Memorization, error) {
	g := in.record()
	if err := g.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID.memorization++
	g.ID = m.lastID.memorization
	g.CreatedAt = m.now()
	g.LastPracticed = g.CreatedAt
	m.memorizations[g.ID] = g
	return &g, nil
}

// UpdateMemorization implements Store. LastPracticed is set to now.
func (m *Memory) UpdateMemorization(_ context.Context, id int64, p MemorizationPatch) (*Memorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.memorizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := p.Apply(cur)
	if err := next.validate(); err != nil {
		return nil, err
	}
	next.LastPracticed = m.now()
	m.memorizations[id] = next
	return &next, nil
}

// DeleteMemorization implements Store.
func (m *Memory) DeleteMemorization(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memorizations[id]; !ok {
		return ErrNotFound
	}
	delete(m.memorizations, id)
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }

// newer orders by time descending, then id descending.
func newer(a, b time.Time, aID, bID int64) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}
