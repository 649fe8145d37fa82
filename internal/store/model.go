// Package store persists the user's bookmarks, downloads and memorization
// goals. Two backends implement Store: an in-memory one for development and
// tests, and a SQL one that runs on postgres or sqlite.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no record has the requested identity.
var ErrNotFound = errors.New("record not found")

// ValidationError describes a malformed create or update payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const (
	maxSurah   = 114
	maxPercent = 100
)

// BookmarkType tells whether a bookmark marks a reading or a listening
// position.
type BookmarkType string

const (
	BookmarkRead  BookmarkType = "read"
	BookmarkAudio BookmarkType = "audio"
)

// Valid reports whether t is a known bookmark type.
func (t BookmarkType) Valid() bool {
	return t == BookmarkRead || t == BookmarkAudio
}

// Bookmark is a saved verse. Seconds is the audio resume position for
// audio bookmarks.
type Bookmark struct {
	ID          int64        `json:"id" db:"id"`
	SurahNumber int          `json:"surahNumber" db:"surah_number"`
	AyahNumber  int          `json:"ayahNumber" db:"ayah_number"`
	Type        BookmarkType `json:"type" db:"type"`
	Seconds     *int         `json:"seconds" db:"seconds"`
	IsFavorite  *bool        `json:"isFavorite" db:"is_favorite"`
	ReciterID   *int         `json:"reciterId" db:"reciter_id"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`
}

// Favorite reports whether the bookmark is flagged as a favorite.
func (b Bookmark) Favorite() bool {
	return b.IsFavorite != nil && *b.IsFavorite
}

// NewBookmark is the payload for creating a bookmark.
type NewBookmark struct {
	SurahNumber int          `json:"surahNumber"`
	AyahNumber  int          `json:"ayahNumber"`
	Type        BookmarkType `json:"type"`
	Seconds     *int         `json:"seconds,omitempty"`
	IsFavorite  *bool        `json:"isFavorite,omitempty"`
	ReciterID   *int         `json:"reciterId,omitempty"`
}

// Validate checks the payload.
func (n NewBookmark) Validate() error {
	return Bookmark{
		SurahNumber: n.SurahNumber,
		AyahNumber:  n.AyahNumber,
		Type:        n.Type,
		Seconds:     n.Seconds,
		ReciterID:   n.ReciterID,
	}.validate()
}

// BookmarkPatch is a partial update; nil fields are left unchanged.
type BookmarkPatch struct {
	SurahNumber *int          `json:"surahNumber,omitempty"`
	AyahNumber  *int          `json:"ayahNumber,omitempty"`
	Type        *BookmarkType `json:"type,omitempty"`
	Seconds     *int          `json:"seconds,omitempty"`
	IsFavorite  *bool         `json:"isFavorite,omitempty"`
	ReciterID   *int          `json:"reciterId,omitempty"`
}

// Apply returns b with the patch applied. ID and CreatedAt never change.
func (p BookmarkPatch) Apply(b Bookmark) Bookmark {
	setInt(&b.SurahNumber, p.SurahNumber)
	setInt(&b.AyahNumber, p.AyahNumber)
	if p.Type != nil {
		b.Type = *p.Type
	}
	if p.Seconds != nil {
		b.Seconds = p.Seconds
	}
	if p.IsFavorite != nil {
		b.IsFavorite = p.IsFavorite
	}
	if p.ReciterID != nil {
		b.ReciterID = p.ReciterID
	}
	return b
}

func (b Bookmark) validate() error {
	if err := validateSurah(b.SurahNumber); err != nil {
		return err
	}
	if b.AyahNumber < 1 {
		return invalid("ayahNumber", "must be at least 1")
	}
	if !b.Type.Valid() {
		return invalid("type", "must be one of %q or %q", BookmarkRead, BookmarkAudio)
	}
	if b.Seconds != nil && *b.Seconds < 0 {
		return invalid("seconds", "must not be negative")
	}
	if b.ReciterID != nil && *b.ReciterID < 1 {
		return invalid("reciterId", "must be a positive id")
	}
	return nil
}

// DownloadStatus tracks an offline copy of a recitation.
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
)

// Valid reports whether s is a known status.
func (s DownloadStatus) Valid() bool {
	switch s {
	case DownloadPending, DownloadDownloading, DownloadCompleted:
		return true
	}
	return false
}

// Download records a surah recitation saved for offline listening.
type Download struct {
	ID          int64          `json:"id" db:"id"`
	SurahNumber int            `json:"surahNumber" db:"surah_number"`
	ReciterID   int            `json:"reciterId" db:"reciter_id"`
	LocalPath   string         `json:"localPath" db:"local_path"`
	Status      DownloadStatus `json:"status" db:"status"`
	Progress    int            `json:"progress" db:"progress"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

// NewDownload is the payload for recording a download. Status defaults to
// pending.
type NewDownload struct {
	SurahNumber int            `json:"surahNumber"`
	ReciterID   int            `json:"reciterId"`
	LocalPath   string         `json:"localPath"`
	Status      DownloadStatus `json:"status,omitempty"`
	Progress    int            `json:"progress,omitempty"`
}

func (n NewDownload) record() Download {
	d := Download{
		SurahNumber: n.SurahNumber,
		ReciterID:   n.ReciterID,
		LocalPath:   strings.TrimSpace(n.LocalPath),
		Status:      n.Status,
		Progress:    n.Progress,
	}
	if d.Status == "" {
		d.Status = DownloadPending
	}
	return d
}

// Validate checks the payload.
func (n NewDownload) Validate() error {
	return n.record().validate()
}

// DownloadPatch is a partial update; nil fields are left unchanged.
type DownloadPatch struct {
	LocalPath *string         `json:"localPath,omitempty"`
	Status    *DownloadStatus `json:"status,omitempty"`
	Progress  *int            `json:"progress,omitempty"`
}

// Apply returns d with the patch applied.
func (p DownloadPatch) Apply(d Download) Download {
	if p.LocalPath != nil {
		d.LocalPath = strings.TrimSpace(*p.LocalPath)
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	setInt(&d.Progress, p.Progress)
	return d
}

func (d Download) validate() error {
	if err := validateSurah(d.SurahNumber); err != nil {
		return err
	}
	if d.ReciterID < 1 {
		return invalid("reciterId", "is required")
	}
	if d.LocalPath == "" {
		return invalid("localPath", "is required")
	}
	if !d.Status.Valid() {
		return invalid("status", "must be one of %q, %q or %q", DownloadPending, DownloadDownloading, DownloadCompleted)
	}
	return validatePercent("progress", d.Progress)
}

// MemorizationStatus is the state of a memorization goal.
type MemorizationStatus string

const (
	MemorizationInProgress MemorizationStatus = "in_progress"
	MemorizationCompleted  MemorizationStatus = "completed"
)

// Valid reports whether s is a known status.
func (s MemorizationStatus) Valid() bool {
	return s == MemorizationInProgress || s == MemorizationCompleted
}

// Memorization is a goal covering the ayahs StartAyah..EndAyah of a surah.
// LastPracticed advances on every update.
type Memorization struct {
	ID            int64              `json:"id" db:"id"`
	SurahNumber   int                `json:"surahNumber" db:"surah_number"`
	StartAyah     int                `json:"startAyah" db:"start_ayah"`
	EndAyah       int                `json:"endAyah" db:"end_ayah"`
	Status        MemorizationStatus `json:"status" db:"status"`
	MasteryLevel  int                `json:"masteryLevel" db:"mastery_level"`
	LastPracticed time.Time          `json:"lastPracticed" db:"last_practiced"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
}

// Ayahs returns the number of ayahs the goal covers.
func (m Memorization) Ayahs() int {
	return m.EndAyah - m.StartAyah + 1
}

// NewMemorization is the payload for creating a goal. MasteryLevel
// defaults to 0.
type NewMemorization struct {
	SurahNumber  int                `json:"surahNumber"`
	StartAyah    int                `json:"startAyah"`
	EndAyah      int                `json:"endAyah"`
	Status       MemorizationStatus `json:"status"`
	MasteryLevel *int               `json:"masteryLevel,omitempty"`
}

func (n NewMemorization) record() Memorization {
	m := Memorization{
		SurahNumber: n.SurahNumber,
		StartAyah:   n.StartAyah,
		EndAyah:     n.EndAyah,
		Status:      n.Status,
	}
	setInt(&m.MasteryLevel, n.MasteryLevel)
	return m
}

// Validate checks the payload.
func (n NewMemorization) Validate() error {
	return n.record().validate()
}

// MemorizationPatch is a partial update; nil fields are left unchanged.
type MemorizationPatch struct {
	SurahNumber  *int                `json:"surahNumber,omitempty"`
	StartAyah    *int                `json:"startAyah,omitempty"`
	EndAyah      *int                `json:"endAyah,omitempty"`
	Status       *MemorizationStatus `json:"status,omitempty"`
	MasteryLevel *int                `json:"masteryLevel,omitempty"`
}

// Apply returns m with the patch applied.
func (p MemorizationPatch) Apply(m Memorization) Memorization {
	setInt(&m.SurahNumber, p.SurahNumber)
	setInt(&m.StartAyah, p.StartAyah)
	setInt(&m.EndAyah, p.EndAyah)
	if p.Status != nil {
		m.Status = *p.Status
	}
	setInt(&m.MasteryLevel, p.MasteryLevel)
	return m
}

func (m Memorization) validate() error {
	if err := validateSurah(m.SurahNumber); err != nil {
		return err
	}
	if m.StartAyah < 1 {
		return invalid("startAyah", "must be at least 1")
	}
	if m.EndAyah < m.StartAyah {
		return invalid("endAyah", "must not be before startAyah")
	}
	if !m.Status.Valid() {
		return invalid("status", "must be one of %q or %q", MemorizationInProgress, MemorizationCompleted)
	}
	return validatePercent("masteryLevel", m.MasteryLevel)
}

func validateSurah(n int) error {
	if n < 1 || n > maxSurah {
		return invalid("surahNumber", "must be between 1 and %d", maxSurah)
	}
	return nil
}

func validatePercent(field string, v int) error {
	if v < 0 || v > maxPercent {
		return invalid(field, "must be between 0 and %d", maxPercent)
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
