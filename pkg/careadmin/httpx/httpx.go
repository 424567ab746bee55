// Package httpx holds the gin plumbing shared by the API handlers.
package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Page is a limit/offset window parsed from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset. Out-of-range values fall back to defaults.
func ParsePage(c *gin.Context) Page {
	p := Page{Limit: DefaultLimit}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= MaxLimit {
			p.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}
	return p
}

// List is the response envelope of paginated endpoints.
type List[T any] struct {
	Data   []T   `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// NewList wraps one page of items.
func NewList[T any](items []T, total int64, p Page) List[T] {
	if items == nil {
		items = []T{}
	}
	return List[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

// ParseID reads a positive numeric path parameter, writing a 400 when it is malformed.
func ParseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// RequestLogger logs every handled request.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	log = log.WithField("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"remote":   c.ClientIP(),
			"duration": time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Warn("Request failed")
		default:
			entry.Debug("Request handled")
		}
	}
}
