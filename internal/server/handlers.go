package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mergedesk/internal/compare"
	"mergedesk/internal/logging"
)

const defaultHistoryLimit = 50

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	count := len(s.sessions)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": count})
}

func historyLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}

func (s *Server) handleMergeHistory(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"merges": []any{}})
		return
	}
	entries, err := s.journal.ListMerges(c.Request.Context(), historyLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merges": entries})
}

func (s *Server) handleJobHistory(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []any{}})
		return
	}
	entries, err := s.journal.ListJobs(c.Request.Context(), historyLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": entries})
}

// Sessions.

func (s *Server) handleCreateSession(c *gin.Context) {
	sess := s.newSession()
	if err := sess.Open(c.Request.Context()); err != nil {
		// The listing error is part of the view; the session stays usable.
		s.logger.Debug("initial load failed", logging.String(logging.FieldSessionID, sess.ID()), logging.Error(err))
	}
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) withSession(c *gin.Context) {
	sess, ok := s.session(c.Param("session"))
	if !ok {
		writeError(c, http.StatusNotFound, "session not found")
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func (s *Server) handleSessionView(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c).View())
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if sess, ok := s.dropSession(c.Param("session")); ok {
		sess.Close()
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": currentSession(c).Drain()})
}

func (s *Server) handleReload(c *gin.Context) {
	sess := currentSession(c)
	// Listing failures are reported through the view error.
	_ = sess.Browser().Reload(c.Request.Context())
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleRefresh(c *gin.Context) {
	sess := currentSession(c)
	ran, _ := sess.Browser().Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"refreshed": ran, "view": sess.View()})
}

func (s *Server) handleConfigurationSaved(c *gin.Context) {
	sess := currentSession(c)
	sess.ConfigurationSaved(c.Request.Context())
	c.JSON(http.StatusOK, sess.View())
}

// Listing.

type scopeRequest struct {
	ObjectType string `json:"objectType"`
}

func (s *Server) handleScope(c *gin.Context) {
	var req scopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	s.listingResult(c, currentSession(c).Browser().SetObjectType(c.Request.Context(), req.ObjectType))
}

type searchRequest struct {
	Term string `json:"term"`
	// Immediate applies the term without waiting for the debounce.
	Immediate bool `json:"immediate"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	b := currentSession(c).Browser()
	if req.Immediate {
		s.listingResult(c, b.SetSearch(c.Request.Context(), req.Term))
		return
	}
	b.TypeSearch(req.Term)
	c.JSON(http.StatusAccepted, currentSession(c).View())
}

type filterRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleSetFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	s.listingResult(c, currentSession(c).Browser().SetFilter(c.Request.Context(), req.Field, req.Value))
}

func (s *Server) handleClearFilters(c *gin.Context) {
	s.listingResult(c, currentSession(c).Browser().ClearFilters(c.Request.Context()))
}

type pageSizeRequest struct {
	PageSize int `json:"pageSize"`
}

func (s *Server) handlePageSize(c *gin.Context) {
	var req pageSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	s.listingResult(c, currentSession(c).Browser().SetPageSize(c.Request.Context(), req.PageSize))
}

func (s *Server) handleNextPage(c *gin.Context) {
	moved, err := currentSession(c).Browser().NextPage(c.Request.Context())
	s.pageResult(c, moved, err)
}

func (s *Server) handlePrevPage(c *gin.Context) {
	moved, err := currentSession(c).Browser().PrevPage(c.Request.Context())
	s.pageResult(c, moved, err)
}

func (s *Server) pageResult(c *gin.Context, moved bool, err error) {
	if err != nil && statusFor(err) != http.StatusBadGateway {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved, "view": currentSession(c).View()})
}

// listingResult renders the session view. Remote failures are already part
// of the view as its error, so only local rejections become HTTP errors.
func (s *Server) listingResult(c *gin.Context, err error) {
	if err != nil && statusFor(err) != http.StatusBadGateway {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, currentSession(c).View())
}

func (s *Server) handleListingDelete(c *gin.Context) {
	sess := currentSession(c)
	deleted, err := sess.Browser().Delete(c.Request.Context(), c.Param("group"), confirmation(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "view": sess.View()})
}

// Scans.

func (s *Server) handleScanStart(c *gin.Context) {
	sess := currentSession(c)
	jobID, err := sess.StartScan(c.Request.Context(), confirmation(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "started": jobID != "", "view": sess.View()})
}

func (s *Server) handleScanAbort(c *gin.Context) {
	sess := currentSession(c)
	aborted, err := sess.Scans().Abort(c.Request.Context(), confirmation(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aborted": aborted, "view": sess.View()})
}

func (s *Server) handleSchedules(c *gin.Context) {
	schedules, err := currentSession(c).Scans().Schedules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

type scheduleRequest struct {
	Time string `json:"time"`
}

func (s *Server) handleSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	if err := currentSession(c).ScheduleScan(c.Request.Context(), req.Time); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnschedule(c *gin.Context) {
	if err := currentSession(c).UnscheduleScan(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Merge workspaces.

func (s *Server) handleOpenGroup(c *gin.Context) {
	ws, err := currentSession(c).OpenGroup(c.Request.Context(), c.Param("group"))
	if ws == nil {
		respondError(c, err)
		return
	}
	// A failed load is shown in the workspace view.
	c.JSON(http.StatusOK, ws.View())
}

func (s *Server) withGroup(c *gin.Context) {
	ws, err := currentSession(c).Group(c.Param("group"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(groupKey, ws)
	c.Next()
}

func (s *Server) handleGroupView(c *gin.Context) {
	c.JSON(http.StatusOK, currentGroup(c).View())
}

type recordRequest struct {
	RecordID string `json:"recordId"`
}

func (s *Server) handleSelectMaster(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	ws := currentGroup(c)
	if err := ws.SelectMaster(req.RecordID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.View())
}

func (s *Server) handleSelectValue(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	ws := currentGroup(c)
	if !ws.SelectValue(c.Param("field"), req.RecordID) {
		writeError(c, http.StatusConflict, "field value cannot be selected")
		return
	}
	c.JSON(http.StatusOK, ws.View())
}

func (s *Server) handleGroupFilter(c *gin.Context) {
	var req compare.Filter
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request")
		return
	}
	ws := currentGroup(c)
	ws.SetFilter(req)
	c.JSON(http.StatusOK, ws.View())
}

func (s *Server) handleMerge(c *gin.Context) {
	ws := currentGroup(c)
	outcome, err := ws.Merge(c.Request.Context(), confirmation(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "view": ws.View()})
}

func (s *Server) handleGroupDelete(c *gin.Context) {
	ws := currentGroup(c)
	outcome, err := ws.Delete(c.Request.Context(), confirmation(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleCloseGroup(c *gin.Context) {
	currentGroup(c).Close(c.Request.Context())
	c.Status(http.StatusNoContent)
}
