package recite

import (
	"errors"
	"fmt"
)

// Common errors for the recitation system.
var (
	// Timing errors
	ErrTimingUnavailable    = errors.New("timing asset unavailable")
	ErrMalformedTimingAsset = errors.New("malformed timing asset")

	// Player errors
	ErrPlaybackSource    = errors.New("audio source cannot be played")
	ErrPlayerNotLoaded   = errors.New("no audio loaded")
	ErrPlayerClosed      = errors.New("player has been closed")
	ErrRateUnsupported   = errors.New("playback rate not supported by this player")
	ErrPlayerUnavailable = errors.New("player backend is not available")
	ErrSeekOutOfRange    = errors.New("seek position out of range")

	// Sync errors
	ErrNoTimings       = errors.New("no verse timings loaded")
	ErrVerseOutOfRange = errors.New("verse index out of range")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRecoverableError reports whether playback can continue after err.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrPlayerClosed),
		errors.Is(err, ErrPlayerUnavailable),
		errors.Is(err, ErrInvalidConfig):
		return false
	}

	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for problems that only degrade a feature, such as
	// missing timings disabling verse sync.
	SeverityWarning
	// SeverityError is for errors that prevent normal operation.
	SeverityError
)

// String returns the string representation of the severity.
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Error carries the component and action that produced an error.
type Error struct {
	Err       error         // The underlying error
	Component string        // Component that generated the error
	Action    string        // Action being performed when error occurred
	Severity  ErrorSeverity // Severity of the error
	Context   map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return "unknown recite error"
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *Error) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewError wraps err with the component and action that produced it.
func NewError(err error, component, action string) *Error {
	return &Error{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  SeverityError,
		Context:   make(map[string]any),
	}
}

// WithSeverity sets the error severity.
func (e *Error) WithSeverity(severity ErrorSeverity) *Error {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// PlaybackSourceError reports that the media backend could not load or
// decode an audio URL, typically because the reciter has no recording of the
// requested surah.
type PlaybackSourceError struct {
	URL   string
	Surah int
	Err   error
}

func (e *PlaybackSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot play surah %d from %s: %v", e.Surah, e.URL, e.Err)
	}
	return fmt.Sprintf("cannot play surah %d from %s", e.Surah, e.URL)
}

// Unwrap returns ErrPlaybackSource so callers can match with errors.Is, as
// well as the backend error when one is present.
func (e *PlaybackSourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPlaybackSource}
	}
	return []error{ErrPlaybackSource, e.Err}
}
