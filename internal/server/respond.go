package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mergedesk/internal/browser"
	"mergedesk/internal/compare"
	"mergedesk/internal/merge"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/scan"
	"mergedesk/internal/workspace"
)

const (
	sessionKey = "session"
	groupKey   = "group"
)

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

// confirmation reads the optional {"confirm": bool} body. A missing or
// malformed body declines.
func confirmation(c *gin.Context) notify.Confirm {
	var req confirmRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return notify.Decline
		}
	}
	if req.Confirm {
		return notify.Accept
	}
	return notify.Decline
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrUnknownGroup),
		errors.Is(err, browser.ErrUnknownGroup):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrClosed),
		errors.Is(err, browser.ErrClosed),
		errors.Is(err, scan.ErrClosed),
		errors.Is(err, merge.ErrClosed):
		return http.StatusGone
	case errors.Is(err, merge.ErrMergeNotAllowed),
		errors.Is(err, scan.ErrScanActive),
		errors.Is(err, scan.ErrNoActiveJob):
		return http.StatusConflict
	case errors.Is(err, scan.ErrScopeRequired),
		errors.Is(err, scan.ErrInvalidTime),
		errors.Is(err, browser.ErrInvalidPageSize),
		errors.Is(err, browser.ErrFilterField),
		errors.Is(err, compare.ErrUnknownRecord):
		return http.StatusBadRequest
	}
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusBadGateway {
		message = remote.Message(err)
	}
	writeError(c, status, message)
}

func currentSession(c *gin.Context) *workspace.Session {
	return c.MustGet(sessionKey).(*workspace.Session)
}

func currentGroup(c *gin.Context) *merge.Workspace {
	return c.MustGet(groupKey).(*merge.Workspace)
}
