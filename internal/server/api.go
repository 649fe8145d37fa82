package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/dgnsrekt/tartil/internal/store"
)

// Error is returned by handlers and rendered as {"message": ...}.
type Error struct {
	Code    int
	Message string
}

// HandlerFunc returns the response body or an error.
type HandlerFunc func(c *gin.Context) (any, *Error)

// notModified tells Resolve to answer 304 without a body.
type notModified struct{}

// Resolve adapts h to gin, answering with status on success.
func Resolve(status int, h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, apiErr := h(c)
		if apiErr != nil {
			c.AbortWithStatusJSON(apiErr.Code, gin.H{"message": apiErr.Message})
			return
		}
		if _, ok := result.(notModified); ok {
			c.Status(http.StatusNotModified)
			return
		}
		if status == http.StatusNoContent || result == nil {
			c.Status(status)
			return
		}
		c.JSON(status, result)
	}
}

// Module attaches a set of endpoints to a Controller.
type Module interface {
	Mount(c *Controller)
}

// ModuleFunc lets a function act as a Module.
type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// Controller registers handlers on a route group with the status code
// each verb answers with.
type Controller struct {
	Group *gin.RouterGroup
}

func (c *Controller) GET(path string, h HandlerFunc) {
	c.Group.GET(path, Resolve(http.StatusOK, h))
}

func (c *Controller) POST(path string, h HandlerFunc) {
	c.Group.POST(path, Resolve(http.StatusCreated, h))
}

func (c *Controller) PUT(path string, h HandlerFunc) {
	c.Group.PUT(path, Resolve(http.StatusOK, h))
}

func (c *Controller) DELETE(path string, h HandlerFunc) {
	c.Group.DELETE(path, Resolve(http.StatusNoContent, h))
}

// MountGroup mounts modules under prefix.
func MountGroup(r gin.IRouter, prefix string, modules ...Module) {
	ctl := &Controller{Group: r.Group(prefix)}
	for _, m := range modules {
		m.Mount(ctl)
	}
}

func parseID(c *gin.Context) (int64, *Error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, &Error{Code: http.StatusBadRequest, Message: "Invalid ID"}
	}
	return id, nil
}

func bindJSON[T any](c *gin.Context) (T, *Error) {
	var v T
	if err := c.ShouldBindJSON(&v); err != nil {
		return v, &Error{Code: http.StatusBadRequest, Message: "invalid request body: " + err.Error()}
	}
	return v, nil
}

// storeError maps persistence errors to responses. Unexpected errors are
// logged and hidden from the client.
func storeError(err error, what string) *Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: http.StatusNotFound, Message: what + " not found"}
	case store.IsValidation(err):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	log.Error("store request failed", "resource", what, "error", err)
	return &Error{Code: http.StatusInternalServerError, Message: "internal server error"}
}
