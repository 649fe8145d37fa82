package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/dgnsrekt/tartil/internal/store"
)

// Resource names used in routes, ETags and events.
const (
	ResourceBookmarks    = "bookmarks"
	ResourceDownloads    = "downloads"
	ResourceMemorization = "memorization"
)

type handlers struct {
	store    store.Store
	versions Versions
	events   Events
}

// list answers 304 when the client's tag matches the resource version.
// Version lookups that fail only disable the tag.
func (h *handlers) list(resource string, fetch func(ctx context.Context) (any, error)) HandlerFunc {
	return func(c *gin.Context) (any, *Error) {
		ctx := c.Request.Context()

		tag := ""
		if v, err := h.versions.Version(ctx, resource); err != nil {
			log.Warn("unable to read list version", "resource", resource, "error", err)
		} else {
			tag = etag(resource, v)
			if c.GetHeader("If-None-Match") == tag {
				c.Header("ETag", tag)
				return notModified{}, nil
			}
		}

		out, err := fetch(ctx)
		if err != nil {
			return nil, storeError(err, resource)
		}
		if tag != "" {
			c.Header("ETag", tag)
		}
		return out, nil
	}
}

// changed invalidates list tags and announces the change. Failures are
// logged; the mutation already succeeded.
func (h *handlers) changed(ctx context.Context, resource, action string, id int64, record any) {
	if err := h.versions.Bump(ctx, resource); err != nil {
		log.Warn("unable to invalidate list version", "resource", resource, "error", err)
	}
	e := Event{Resource: resource, Action: action, ID: id, Record: record, At: time.Now().UTC()}
	if err := h.events.Publish(ctx, e); err != nil {
		log.Warn("unable to publish change", "resource", resource, "action", action, "id", id, "error", err)
	}
}

// BookmarkModule mounts /bookmarks.
func BookmarkModule(h *handlers) Module {
	return ModuleFunc(func(c *Controller) {
		c.GET("/bookmarks", h.list(ResourceBookmarks, func(ctx context.Context) (any, error) {
			return h.store.Bookmarks(ctx)
		}))
		c.GET("/bookmarks/:id", h.getBookmark)
		c.POST("/bookmarks", h.createBookmark)
		c.PUT("/bookmarks/:id", h.updateBookmark)
		c.DELETE("/bookmarks/:id", h.deleteBookmark)
	})
}

func (h *handlers) getBookmark(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	b, err := h.store.Bookmark(c.Request.Context(), id)
	if err != nil {
		return nil, storeError(err, "bookmark")
	}
	return b, nil
}

func (h *handlers) createBookmark(c *gin.Context) (any, *Error) {
	in, apiErr := bindJSON[store.NewBookmark](c)
	if apiErr != nil {
		return nil, apiErr
	}
	b, err := h.store.CreateBookmark(c.Request.Context(), in)
	if err != nil {
		return nil, storeError(err, "bookmark")
	}
	h.changed(c.Request.Context(), ResourceBookmarks, ActionCreated, b.ID, b)
	return b, nil
}

func (h *handlers) updateBookmark(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	p, apiErr := bindJSON[store.BookmarkPatch](c)
	if apiErr != nil {
		return nil, apiErr
	}
	b, err := h.store.UpdateBookmark(c.Request.Context(), id, p)
	if err != nil {
		return nil, storeError(err, "bookmark")
	}
	h.changed(c.Request.Context(), ResourceBookmarks, ActionUpdated, b.ID, b)
	return b, nil
}

func (h *handlers) deleteBookmark(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	if err := h.store.DeleteBookmark(c.Request.Context(), id); err != nil {
		return nil, storeError(err, "bookmark")
	}
	h.changed(c.Request.Context(), ResourceBookmarks, ActionDeleted, id, nil)
	return nil, nil
}

// DownloadModule mounts /downloads.
func DownloadModule(h *handlers) Module {
	return ModuleFunc(func(c *Controller) {
		c.GET("/downloads", h.list(ResourceDownloads, func(ctx context.Context) (any, error) {
			return h.store.Downloads(ctx)
		}))
		c.GET("/downloads/:id", h.getDownload)
		c.POST("/downloads", h.createDownload)
		c.PUT("/downloads/:id", h.updateDownload)
		c.DELETE("/downloads/:id", h.deleteDownload)
	})
}

func (h *handlers) getDownload(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	d, err := h.store.Download(c.Request.Context(), id)
	if err != nil {
		return nil, storeError(err, "download")
	}
	return d, nil
}

func (h *handlers) createDownload(c *gin.Context) (any, *Error) {
	in, apiErr := bindJSON[store.NewDownload](c)
	if apiErr != nil {
		return nil, apiErr
	}
	d, err := h.store.CreateDownload(c.Request.Context(), in)
	if err != nil {
		return nil, storeError(err, "download")
	}
	h.changed(c.Request.Context(), ResourceDownloads, ActionCreated, d.ID, d)
	return d, nil
}

func (h *handlers) updateDownload(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	p, apiErr := bindJSON[store.DownloadPatch](c)
	if apiErr != nil {
		return nil, apiErr
	}
	d, err := h.store.UpdateDownload(c.Request.Context(), id, p)
	if err != nil {
		return nil, storeError(err, "download")
	}
	h.changed(c.Request.Context(), ResourceDownloads, ActionUpdated, d.ID, d)
	return d, nil
}

func (h *handlers) deleteDownload(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	if err := h.store.DeleteDownload(c.Request.Context(), id); err != nil {
		return nil, storeError(err, "download")
	}
	h.changed(c.Request.Context(), ResourceDownloads, ActionDeleted, id, nil)
	return nil, nil
}

// MemorizationModule mounts /memorization.
func MemorizationModule(h *handlers) Module {
	return ModuleFunc(func(c *Controller) {
		c.GET("/memorization", h.list(ResourceMemorization, func(ctx context.Context) (any, error) {
			return h.store.Memorizations(ctx)
		}))
		c.GET("/memorization/:id", h.getMemorization)
		c.POST("/memorization", h.createMemorization)
		c.PUT("/memorization/:id", h.updateMemorization)
		c.DELETE("/memorization/:id", h.deleteMemorization)
	})
}

func (h *handlers) getMemorization(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	m, err := h.store.Memorization(c.Request.Context(), id)
	if err != nil {
		return nil, storeError(err, "memorization goal")
	}
	return m, nil
}

func (h *handlers) createMemorization(c *gin.Context) (any, *Error) {
	in, apiErr := bindJSON[store.NewMemorization](c)
	if apiErr != nil {
		return nil, apiErr
	}
	m, err := h.store.CreateMemorization(c.Request.Context(), in)
	if err != nil {
		return nil, storeError(err, "memorization goal")
	}
	h.changed(c.Request.Context(), ResourceMemorization, ActionCreated, m.ID, m)
	return m, nil
}

func (h *handlers) updateMemorization(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	p, apiErr := bindJSON[store.MemorizationPatch](c)
	if apiErr != nil {
		return nil, apiErr
	}
	m, err := h.store.UpdateMemorization(c.Request.Context(), id, p)
	if err != nil {
		return nil, storeError(err, "memorization goal")
	}
	h.changed(c.Request.Context(), ResourceMemorization, ActionUpdated, m.ID, m)
	return m, nil
}

func (h *handlers) deleteMemorization(c *gin.Context) (any, *Error) {
	id, apiErr := parseID(c)
	if apiErr != nil {
		return nil, apiErr
	}
	if err := h.store.DeleteMemorization(c.Request.Context(), id); err != nil {
		return nil, storeError(err, "memorization goal")
	}
	h.changed(c.Request.Context(), ResourceMemorization, ActionDeleted, id, nil)
	return nil, nil
}
