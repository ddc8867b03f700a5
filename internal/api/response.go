// Package api is the HTTP surface: gin handlers, the route map, and the
// response envelope shared by every endpoint.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"membership/internal/apperr"
)

// envelope is the uniform response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// pagination describes one page of a listing.
type pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	NextPage    *int `json:"nextPage"`
	PrevPage    *int `json:"prevPage"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func respondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

func respondPage(c *gin.Context, data any, page, limit, total int) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	p := pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
	if p.HasNextPage {
		n := page + 1
		p.NextPage = &n
	}
	if p.HasPrevPage {
		n := page - 1
		p.PrevPage = &n
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       data,
		"pagination": p,
	})
}

// respondErr maps application errors onto the envelope. Consistency breaches are
// logged at error level with the request path; other errors are the caller's
// fault and logged at debug only.
func respondErr(c *gin.Context, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, envelope{Success: false, Message: "internal server error"})
		return
	}

	if ae.Kind == apperr.KindConsistency {
		log.Error("consistency breach surfaced to client",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := envelope{Success: false, Message: ae.Message}
	if len(ae.Fields) > 0 {
		body.Errors = ae.Fields
	}
	c.JSON(status, body)
}

func respondBadJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, envelope{
		Success: false, Message: "invalid request body: " + err.Error()})
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// pageParams reads page/limit query parameters and clamps them to sane values,
// so the query filter and the pagination envelope always agree.
func pageParams(c *gin.Context) (page, limit int) {
	page = queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = queryInt(c, "limit", 20)
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// queryDate parses an optional date query parameter in RFC3339 or YYYY-MM-DD.
func queryDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("invalid date for "+key, map[string]string{
		key: "must be RFC3339 or YYYY-MM-DD"})
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("invalid date", map[string]string{
		"date": "must be RFC3339 or YYYY-MM-DD"})
}
