package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Default endpoints and editions.
const (
	DefaultQuranURL    = "https://api.alquran.cloud/v1"
	DefaultRecitersURL = "https://www.mp3quran.net/api/v3"

	ArabicEdition  = "quran-uthmani"
	EnglishEdition = "en.asad"

	cachePrefix = "catalog:"
)

var (
	// ErrNotFound is returned for a 404 or an out-of-range number.
	ErrNotFound = errors.New("not found")

	// ErrInvalidResponse is returned when a response fails validation.
	ErrInvalidResponse = errors.New("invalid catalog response")

	// ErrUnavailable is returned when a provider keeps failing.
	ErrUnavailable = errors.New("catalog provider unavailable")
)

// StatusError is an unexpected HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Status)
}

// temporary reports whether retrying may help.
func (e *StatusError) temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Cache keeps raw responses. internal/cache.Manager satisfies it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Config configures a Client.
type Config struct {
	QuranURL    string        `yaml:"quran_url" env:"TARTIL_CATALOG_QURAN_URL"`
	RecitersURL string        `yaml:"reciters_url" env:"TARTIL_CATALOG_RECITERS_URL"`
	Language    string        `yaml:"language" env:"TARTIL_CATALOG_LANGUAGE" envDefault:"eng"`
	Timeout     time.Duration `yaml:"timeout" env:"TARTIL_CATALOG_TIMEOUT" envDefault:"15s"`

	// RequestsPerMinute limits calls to both providers together.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"TARTIL_CATALOG_RPM" envDefault:"60"`
	MaxRetries        int `yaml:"max_retries" env:"TARTIL_CATALOG_MAX_RETRIES" envDefault:"3"`

	// Backoff is the first retry delay; it doubles each attempt.
	Backoff time.Duration `yaml:"backoff" env:"TARTIL_CATALOG_BACKOFF" envDefault:"1s"`
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		QuranURL:          DefaultQuranURL,
		RecitersURL:       DefaultRecitersURL,
		Language:          "eng",
		Timeout:           15 * time.Second,
		RequestsPerMinute: 60,
		MaxRetries:        3,
		Backoff:           time.Second,
	}
}

// Client talks to the catalog providers.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   Cache
	limiter *rate.Limiter
	group   singleflight.Group
}

// New creates a client. cache may be nil.
func New(cfg Config, cache Cache) *Client {
	def := DefaultConfig()
	if cfg.QuranURL == "" {
		cfg.QuranURL = def.QuranURL
	}
	if cfg.RecitersURL == "" {
		cfg.RecitersURL = def.RecitersURL
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	cfg.QuranURL = strings.TrimRight(cfg.QuranURL, "/")
	cfg.RecitersURL = strings.TrimRight(cfg.RecitersURL, "/")

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 4),
	}
}

// envelope wraps every api.alquran.cloud response.
type envelope[T any] struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// Surahs returns the surah index in order.
func (c *Client) Surahs(ctx context.Context) ([]Surah, error) {
	var env envelope[[]Surah]
	err := c.fetch(ctx, c.cfg.QuranURL+"/surah", func(b []byte) error {
		if err := json.Unmarshal(b, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if len(env.Data) != SurahCount {
			return fmt.Errorf("%w: %d surahs listed", ErrInvalidResponse, len(env.Data))
		}
		for i, s := range env.Data {
			if err := s.Validate(); err != nil {
				return err
			}
			if s.Number != i+1 {
				return fmt.Errorf("%w: surah %d listed at position %d", ErrInvalidResponse, s.Number, i+1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Surah returns a surah in the Uthmani script with the English
// translation merged into each ayah.
func (c *Client) Surah(ctx context.Context, n int) (SurahDetail, error) {
	if n < 1 || n > SurahCount {
		return SurahDetail{}, fmt.Errorf("%w: surah %d", ErrNotFound, n)
	}
	url := fmt.Sprintf("%s/surah/%d/editions/%s,%s", c.cfg.QuranURL, n, ArabicEdition, EnglishEdition)

	var detail SurahDetail
	err := c.fetch(ctx, url, func(b []byte) error {
		var env envelope[[]SurahDetail]
		if err := json.Unmarshal(b, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if len(env.Data) != 2 {
			return fmt.Errorf("%w: expected 2 editions, got %d", ErrInvalidResponse, len(env.Data))
		}
		arabic, english := env.Data[0], env.Data[1]
		if err := arabic.Validate(); err != nil {
			return err
		}
		if arabic.Number != n {
			return fmt.Errorf("%w: asked for surah %d, got %d", ErrInvalidResponse, n, arabic.Number)
		}
		if len(english.Ayahs) != len(arabic.Ayahs) {
			return fmt.Errorf("%w: translation has %d ayahs, text has %d",
				ErrInvalidResponse, len(english.Ayahs), len(arabic.Ayahs))
		}
		for i := range arabic.Ayahs {
			arabic.Ayahs[i].Translation = english.Ayahs[i].Text
		}
		detail = arabic
		return nil
	})
	return detail, err
}

// Ayah returns the ayah with global number n (1..6236) in both editions.
func (c *Client) Ayah(ctx context.Context, n int) (VerseAyah, error) {
	if n < 1 || n > AyahCount {
		return VerseAyah{}, fmt.Errorf("%w: ayah %d", ErrNotFound, n)
	}
	url := fmt.Sprintf("%s/ayah/%d/editions/%s,%s", c.cfg.QuranURL, n, ArabicEdition, EnglishEdition)

	var ayah VerseAyah
	err := c.fetch(ctx, url, func(b []byte) error {
		var env envelope[[]VerseAyah]
		if err := json.Unmarshal(b, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if len(env.Data) != 2 {
			return fmt.Errorf("%w: expected 2 editions, got %d", ErrInvalidResponse, len(env.Data))
		}
		arabic := env.Data[0]
		if arabic.Number != n {
			return fmt.Errorf("%w: asked for ayah %d, got %d", ErrInvalidResponse, n, arabic.Number)
		}
		if err := arabic.Surah.Validate(); err != nil {
			return err
		}
		if arabic.NumberInSurah < 1 || arabic.NumberInSurah > arabic.Surah.NumberOfAyahs {
			return fmt.Errorf("%w: ayah %d of surah %d", ErrInvalidResponse, arabic.NumberInSurah, arabic.Surah.Number)
		}
		arabic.Translation = env.Data[1].Text
		ayah = arabic
		return nil
	})
	return ayah, err
}

// RandomAyah picks an ayah uniformly from the whole Quran.
func (c *Client) RandomAyah(ctx context.Context) (VerseAyah, error) {
	return c.Ayah(ctx, rand.IntN(AyahCount)+1)
}

// Reciters returns every reciter with a playable edition, ranked.
func (c *Client) Reciters(ctx context.Context) ([]Reciter, error) {
	url := fmt.Sprintf("%s/reciters?language=%s", c.cfg.RecitersURL, c.cfg.Language)

	var reciters []Reciter
	err := c.fetch(ctx, url, func(b []byte) error {
		var body struct {
			Reciters []Reciter `json:"reciters"`
		}
		if err := json.Unmarshal(b, &body); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		reciters = normalizeReciters(body.Reciters)
		if len(reciters) == 0 {
			return fmt.Errorf("%w: no usable reciters", ErrInvalidResponse)
		}
		return nil
	})
	return reciters, err
}

// fetch gets url from the cache or the network and hands the body to
// decode. Bodies are cached only once decode accepted them.
func (c *Client) fetch(ctx context.Context, url string, decode func([]byte) error) error {
	key := cachePrefix + url
	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			if err := decode(body); err == nil {
				return nil
			}
			log.Debug("ignoring unreadable cached catalog response", "url", url)
		}
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		return c.download(ctx, url)
	})
	if err != nil {
		return err
	}
	body := v.([]byte)
	if err := decode(body); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	if c.cache != nil {
		if err := c.cache.Put(key, body); err != nil {
			log.Debug("could not cache catalog response", "url", url, "error", err)
		}
	}
	return nil
}

// download retries temporary failures with exponential backoff.
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}

		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.temporary() {
			if se.Status == http.StatusNotFound {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
			}
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < c.cfg.MaxRetries-1 {
			backoff := c.cfg.Backoff << attempt
			log.Warn("catalog request failed, retrying", "url", url, "attempt", attempt+1, "backoff", backoff, "error", err)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tartil")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	log.Debug("catalog fetched", "url", url, "bytes", len(body))
	return body, nil
}
