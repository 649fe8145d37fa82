package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager puts a memory LRU in front of the disk cache. Reads promote disk
// hits into memory; writes land in memory immediately and on disk in the
// background.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when MemoryOnly
	cfg    Config

	mu         sync.Mutex
	idle       *sync.Cond // signalled when pending drops to zero
	pending    int
	closed     bool
	promotions int64
	cleanups   int64
	lastClean  time.Time

	stop chan struct{}
	done chan struct{}
}

// Report aggregates both levels.
type Report struct {
	Memory      Stats
	Disk        Stats
	Promotions  int64
	Cleanups    int64
	LastCleanup time.Time
	Dir         string
}

// Hits returns the hits across both levels.
func (r Report) Hits() int64 { return r.Memory.Hits + r.Disk.Hits }

// New creates a Manager. An empty DiskPath resolves to DefaultDir.
func New(cfg Config) (*Manager, error) {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.idle = sync.NewCond(&m.mu)

	if !cfg.MemoryOnly {
		if cfg.DiskPath == "" {
			dir, err := DefaultDir()
			if err != nil {
				return nil, fmt.Errorf("unable to locate cache directory: %w", err)
			}
			cfg.DiskPath = dir
		}
		if cfg.DiskCapacity <= 0 {
			cfg.DiskCapacity = DefaultConfig().DiskCapacity
		}
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		m.disk = disk
	}
	m.cfg = cfg

	if m.disk != nil && cfg.CleanupInterval > 0 {
		go m.cleanupLoop(cfg.CleanupInterval)
	} else {
		close(m.done)
	}

	log.Debug("asset cache ready", "dir", cfg.DiskPath, "memory", cfg.MemoryCapacity, "disk", cfg.DiskCapacity)
	return m, nil
}

// Get looks in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}
	if m.disk == nil {
		return nil, false
	}
	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	// Promotion is best effort; items larger than memory stay on disk.
	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promotions++
		m.mu.Unlock()
	}
	return data, true
}

// Put stores value in memory and schedules the disk write. Items too
// large for memory still go to disk.
func (m *Manager) Put(key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pending++
	m.mu.Unlock()

	memErr := m.memory.Put(key, value)

	if m.disk == nil {
		m.writeDone()
		return memErr
	}
	go func() {
		defer m.writeDone()
		if err := m.disk.Put(key, value); err != nil {
			log.Warn("unable to write asset to disk cache", "key", key, "error", err)
		}
	}()
	if errors.Is(memErr, ErrItemTooLarge) {
		return nil
	}
	return memErr
}

// Flush waits for pending disk writes.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.pending > 0 {
		m.idle.Wait()
	}
}

func (m *Manager) writeDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if m.pending == 0 {
		m.idle.Broadcast()
	}
}

// Delete removes key from both levels.
func (m *Manager) Delete(key string) error {
	m.Flush()
	_ = m.memory.Delete(key)
	if m.disk != nil {
		return m.disk.Delete(key)
	}
	return nil
}

// Clear empties both levels.
func (m *Manager) Clear() error {
	m.Flush()
	_ = m.memory.Clear()
	if m.disk != nil {
		if err := m.disk.Clear(); err != nil {
			return fmt.Errorf("unable to clear disk cache: %w", err)
		}
	}
	return nil
}

// Purge removes every key starting with prefix and returns how many
// distinct keys were removed.
func (m *Manager) Purge(prefix string) int {
	removed := make(map[string]struct{})
	for _, e := range m.Entries() {
		if strings.HasPrefix(e.Key, prefix) {
			_ = m.Delete(e.Key)
			removed[e.Key] = struct{}{}
		}
	}
	return len(removed)
}

// Contains reports whether either level holds key.
func (m *Manager) Contains(key string) bool {
	return m.memory.Contains(key) || (m.disk != nil && m.disk.Contains(key))
}

// Entries lists disk entries followed by memory-only ones.
func (m *Manager) Entries() []Entry {
	m.Flush()
	var out []Entry
	seen := make(map[string]struct{})
	if m.disk != nil {
		for _, e := range m.disk.Entries() {
			seen[e.Key] = struct{}{}
			out = append(out, e)
		}
	}
	for _, e := range m.memory.Entries() {
		if _, ok := seen[e.Key]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// Report returns statistics for both levels.
func (m *Manager) Report() Report {
	r := Report{Memory: m.memory.Stats(), Dir: m.cfg.DiskPath}
	if m.disk != nil {
		r.Disk = m.disk.Stats()
	}
	m.mu.Lock()
	r.Promotions = m.promotions
	r.Cleanups = m.cleanups
	r.LastCleanup = m.lastClean
	m.mu.Unlock()
	return r
}

// Cleanup expires old disk entries and trims both levels.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	m.cleanups++
	m.lastClean = time.Now()
	m.mu.Unlock()

	if m.cfg.TTL > 0 {
		m.memory.Prune(m.cfg.TTL)
		if m.disk != nil {
			if n := m.disk.RemoveOlderThan(time.Now().Add(-m.cfg.TTL)); n > 0 {
				log.Debug("expired cached assets", "count", n)
			}
		}
	}
	if m.disk != nil && m.disk.Size() > m.cfg.DiskCapacity {
		m.disk.Trim()
	}
}

func (m *Manager) cleanupLoop(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

// Close stops the cleanup loop, waits for writes and saves the disk index.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	m.Flush()

	if m.disk != nil {
		if err := m.disk.Close(); err != nil {
			return fmt.Errorf("unable to save cache index: %w", err)
		}
	}
	return nil
}
