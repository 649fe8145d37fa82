package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/tartil/internal/store"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordedEvents) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) Close() {}

func (r *recordedEvents) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type harness struct {
	t      *testing.T
	srv    *Server
	events *recordedEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ev := &recordedEvents{}
	srv := New(Config{}, store.NewMemory(), NewMemoryVersions(), ev)
	return &harness{t: t, srv: srv, events: ev}
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBookmarkRoundTrip(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 2, "ayahNumber": 255, "type": "read"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[store.Bookmark](t, rec)
	assert.Positive(t, created.ID)

	rec = h.do(http.MethodGet, "/api/bookmarks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]store.Bookmark](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SurahNumber)
	assert.Equal(t, 255, list[0].AyahNumber)
	assert.Equal(t, created.ID, list[0].ID)

	rec = h.do(http.MethodDelete, "/api/bookmarks/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/bookmarks", nil)
	assert.Empty(t, decode[[]store.Bookmark](t, rec))

	events := h.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, ActionCreated, events[0].Action)
	assert.Equal(t, ActionDeleted, events[1].Action)
	assert.Equal(t, created.ID, events[1].ID)
}

func TestBookmarkUpdate(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 36, "ayahNumber": 1, "type": "audio", "seconds": 12})
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[store.Bookmark](t, rec)

	rec = h.do(http.MethodPut, "/api/bookmarks/"+itoa(b.ID), map[string]any{"isFavorite": true, "id": 999})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[store.Bookmark](t, rec)
	assert.Equal(t, b.ID, got.ID, "id is not patchable")
	assert.True(t, got.Favorite())
	assert.Equal(t, 12, *got.Seconds)
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt))

	rec = h.do(http.MethodGet, "/api/bookmarks/"+itoa(b.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[store.Bookmark](t, rec).Favorite())
}

func TestErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"non-numeric id", http.MethodDelete, "/api/bookmarks/abc", nil, http.StatusBadRequest, "Invalid ID"},
		{"zero id", http.MethodGet, "/api/downloads/0", nil, http.StatusBadRequest, "Invalid ID"},
		{"missing bookmark", http.MethodDelete, "/api/bookmarks/42", nil, http.StatusNotFound, "bookmark not found"},
		{"update missing", http.MethodPut, "/api/memorization/42", map[string]any{"masteryLevel": 10}, http.StatusNotFound, "memorization goal not found"},
		{"bad type", http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 1, "ayahNumber": 1, "type": "video"}, http.StatusBadRequest, `type must be one of "read" or "audio"`},
		{"bad surah", http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 0, "ayahNumber": 1, "type": "read"}, http.StatusBadRequest, "surahNumber must be between 1 and 114"},
		{"bad status", http.MethodPost, "/api/downloads", map[string]any{"surahNumber": 1, "reciterId": 1, "localPath": "x", "status": "paused"}, http.StatusBadRequest, ""},
		{"mastery too high", http.MethodPost, "/api/memorization", map[string]any{"surahNumber": 1, "startAyah": 1, "endAyah": 7, "status": "in_progress", "masteryLevel": 101}, http.StatusBadRequest, "masteryLevel must be between 0 and 100"},
		{"malformed json", http.MethodPost, "/api/bookmarks", "{", http.StatusBadRequest, ""},
		{"wrong field type", http.MethodPost, "/api/bookmarks", `{"surahNumber":"two"}`, http.StatusBadRequest, ""},
		{"unknown route", http.MethodGet, "/api/nothing", nil, http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[map[string]string](t, rec)
			assert.NotEmpty(t, body["message"])
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body["message"])
			}
		})
	}
	assert.Empty(t, h.events.all(), "failed requests publish nothing")
}

func TestDownloads(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/downloads", map[string]any{"surahNumber": 18, "reciterId": 123, "localPath": "/tmp/018.mp3"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decode[store.Download](t, rec)
	assert.Equal(t, store.DownloadPending, d.Status)

	rec = h.do(http.MethodPut, "/api/downloads/"+itoa(d.ID), map[string]any{"status": "completed", "progress": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, store.DownloadCompleted, decode[store.Download](t, rec).Status)

	rec = h.do(http.MethodGet, "/api/downloads", nil)
	list := decode[[]store.Download](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 100, list[0].Progress)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/downloads/"+itoa(d.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/downloads/"+itoa(d.ID), nil).Code)
}

func TestMemorizationDefaultsAndUpdate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/memorization", map[string]any{"surahNumber": 67, "startAyah": 1, "endAyah": 30, "status": "in_progress"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decode[store.Memorization](t, rec)
	assert.Equal(t, 0, g.MasteryLevel)
	assert.Equal(t, store.MemorizationInProgress, g.Status)

	time.Sleep(2 * time.Millisecond)
	rec = h.do(http.MethodPut, "/api/memorization/"+itoa(g.ID), map[string]any{"masteryLevel": 100, "status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/memorization", nil)
	list := decode[[]store.Memorization](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 100, list[0].MasteryLevel)
	assert.Equal(t, store.MemorizationCompleted, list[0].Status)
	assert.True(t, list[0].LastPracticed.After(g.LastPracticed))

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/memorization/"+itoa(g.ID), nil).Code)
}

func TestListETag(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/bookmarks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	rec = h.do(http.MethodGet, "/api/bookmarks", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	// Other resources keep their own tags.
	rec = h.do(http.MethodPost, "/api/downloads", map[string]any{"surahNumber": 1, "reciterId": 1, "localPath": "a"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusNotModified, h.do(http.MethodGet, "/api/bookmarks", nil, "If-None-Match", tag).Code)

	rec = h.do(http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 1, "ayahNumber": 1, "type": "read"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/api/bookmarks", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, tag, rec.Header().Get("ETag"))
	assert.Len(t, decode[[]store.Bookmark](t, rec), 1)
}

func TestListWithoutVersions(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	versions := NewRedisVersions(rdb)
	defer versions.Close() //nolint:errcheck

	srv := New(Config{}, store.NewMemory(), versions, nopEvents{})
	h := &harness{t: t, srv: srv}

	rec := h.do(http.MethodGet, "/api/bookmarks", nil, "If-None-Match", `"bookmarks-0"`)
	assert.Equal(t, http.StatusOK, rec.Code, "an unreachable redis only disables tags")
	assert.Empty(t, rec.Header().Get("ETag"))

	rec = h.do(http.MethodPost, "/api/bookmarks", map[string]any{"surahNumber": 1, "ayahNumber": 1, "type": "read"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type failingStore struct{ store.Store }

func (failingStore) Ping(context.Context) error { return errors.New("db down") }

func (failingStore) Bookmarks(context.Context) ([]store.Bookmark, error) {
	return nil, errors.New("connection reset")
}

func TestHealthAndInternalErrors(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	bad := &harness{t: t, srv: New(Config{}, failingStore{store.NewMemory()}, NewMemoryVersions(), nopEvents{})}
	rec = bad.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = bad.do(http.MethodGet, "/api/bookmarks", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[map[string]string](t, rec)["message"])
}

func TestCORS(t *testing.T) {
	srv := New(Config{CORSOrigins: []string{"https://tartil.app"}}, store.NewMemory(), NewMemoryVersions(), nopEvents{})
	h := &harness{t: t, srv: srv}

	rec := h.do(http.MethodGet, "/api/bookmarks", nil, "Origin", "https://tartil.app")
	assert.Equal(t, "https://tartil.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Etag")

	rec = h.do(http.MethodGet, "/api/bookmarks", nil, "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TARTIL_ADDR", ":9999")
	t.Setenv("TARTIL_STORE_DRIVER", "sqlite3")
	t.Setenv("TARTIL_STORE_DSN", "/tmp/tartil.db")
	t.Setenv("TARTIL_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TARTIL_MQTT_BROKER", "tcp://localhost:1883")

	cfg, err := LoadConfig("does-not-exist.env")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "/tmp/tartil.db", cfg.Store.DSN)
	assert.True(t, cfg.Store.Migrate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "tartil", cfg.MQTT.Topic)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.Redis.Addr)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeBroker struct {
	mu        sync.Mutex
	topics    []string
	payloads  [][]byte
	err       error
	connected bool
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload.([]byte))
	return newFakeToken(b.err)
}

func (b *fakeBroker) Disconnect(uint) { b.connected = false }

func TestMQTTEvents(t *testing.T) {
	broker := &fakeBroker{connected: true}
	ev := newMQTTEvents(broker, "tartil", time.Second)

	e := Event{Resource: ResourceBookmarks, Action: ActionCreated, ID: 7, At: time.Unix(0, 0).UTC()}
	require.NoError(t, ev.Publish(context.Background(), e))
	require.Equal(t, []string{"tartil/bookmarks/created"}, broker.topics)

	var got Event
	require.NoError(t, json.Unmarshal(broker.payloads[0], &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, ActionCreated, got.Action)

	broker.err = errors.New("not connected")
	assert.Error(t, ev.Publish(context.Background(), e))

	ev.Close()
	assert.False(t, broker.connected)

	none, err := NewEvents(MQTTConfig{})
	require.NoError(t, err)
	assert.NoError(t, none.Publish(context.Background(), e))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
