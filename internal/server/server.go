// Package server exposes the persistence store over a small REST API:
// bookmarks, downloads and memorization goals under /api, plus /healthz.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/dgnsrekt/tartil/internal/store"
)

// Server owns the HTTP listener and everything the handlers talk to.
type Server struct {
	cfg      Config
	engine   *gin.Engine
	store    store.Store
	versions Versions
	events   Events
	logger   *log.Logger
}

// Open builds a Server from cfg, connecting the store, redis and MQTT.
func Open(ctx context.Context, cfg Config) (*Server, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("unable to open store: %w", err)
	}
	events, err := NewEvents(cfg.MQTT)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return New(cfg, st, NewVersions(cfg.Redis), events), nil
}

// New wires a Server around existing collaborators. Nil versions and
// events fall back to in-process tags and no events.
func New(cfg Config, st store.Store, versions Versions, events Events) *Server {
	if versions == nil {
		versions = NewMemoryVersions()
	}
	if events == nil {
		events = nopEvents{}
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "http",
	})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		versions: versions,
		events:   events,
		logger:   logger,
	}

	// Tags handed out by an earlier process must not match.
	for _, r := range []string{ResourceBookmarks, ResourceDownloads, ResourceMemorization} {
		if err := versions.Bump(context.Background(), r); err != nil {
			logger.Warn("unable to reset list version", "resource", r, "error", err)
		}
	}

	engine := gin.New()
	engine.Use(recovery(logger), requestLogger(logger), corsMiddleware(cfg.CORSOrigins))
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})
	engine.GET("/healthz", s.health)

	h := &handlers{store: st, versions: versions, events: events}
	MountGroup(engine, "/api",
		BookmarkModule(h),
		DownloadModule(h),
		MemorizationModule(h),
	)
	s.engine = engine
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down cleanly: %w", err)
	}
	return nil
}

// Close releases the store, redis and MQTT connections.
func (s *Server) Close() error {
	s.events.Close()
	return errors.Join(s.versions.Close(), s.store.Close())
}
