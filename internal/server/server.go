package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mergedesk/internal/config"
	"mergedesk/internal/journal"
	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/timer"
	"mergedesk/internal/workspace"
)

// History reads the audit journal.
type History interface {
	ListMerges(ctx context.Context, limit int) ([]journal.MergeEntry, error)
	ListJobs(ctx context.Context, limit int) ([]journal.JobEntry, error)
}

// Options wires a Server. Config and Backend are required.
type Options struct {
	Config  *config.Config
	Backend remote.Backend
	Journal *journal.Store
	Sink    notify.Sink
	Logger  *slog.Logger
	Clock   timer.Clock
}

// Server exposes workspace sessions over HTTP to a hosting view.
type Server struct {
	cfg     *config.Config
	backend remote.Backend
	journal *journal.Store
	sink    notify.Sink
	logger  *slog.Logger
	clock   timer.Clock
	engine  *gin.Engine

	idle time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	sweeper  timer.Timer
	stopped  bool

	listener net.Listener
	server   *http.Server
}

type sessionEntry struct {
	session  *workspace.Session
	lastUsed time.Time
}

// maxSweepInterval bounds how late an idle session can be closed.
const maxSweepInterval = time.Minute

// New builds the server and its routes. Sessions idle longer than
// paths.session_idle_minutes are closed by a periodic sweep.
func New(opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = timer.System()
	}
	s := &Server{
		cfg:      opts.Config,
		backend:  opts.Backend,
		journal:  opts.Journal,
		sink:     opts.Sink,
		logger:   logging.NewComponentLogger(opts.Logger, "api"),
		clock:    clock,
		idle:     opts.Config.SessionIdleTimeout(),
		sessions: map[string]*sessionEntry{},
	}
	s.engine = s.routes()
	if s.idle > 0 {
		s.mu.Lock()
		s.scheduleSweepLocked()
		s.mu.Unlock()
	}
	return s
}

func (s *Server) scheduleSweepLocked() {
	s.sweeper = s.clock.AfterFunc(min(s.idle, maxSweepInterval), s.sweep)
}

// sweep closes every session unused for longer than the idle timeout.
func (s *Server) sweep() {
	now := s.clock.Now()
	var expired []*workspace.Session
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	for id, entry := range s.sessions {
		if now.Sub(entry.lastUsed) >= s.idle {
			expired = append(expired, entry.session)
			delete(s.sessions, id)
		}
	}
	s.scheduleSweepLocked()
	s.mu.Unlock()

	for _, sess := range expired {
		s.logger.Info("closing idle session",
			logging.String(logging.FieldSessionID, sess.ID()),
			logging.Duration("idle_timeout", s.idle),
		)
		sess.Close()
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/health", s.handleHealth)

	api := r.Group("/api", authMiddleware(strings.TrimSpace(s.cfg.Paths.APIToken)))
	api.GET("/history/merges", s.handleMergeHistory)
	api.GET("/history/jobs", s.handleJobHistory)

	api.POST("/sessions", s.handleCreateSession)
	sess := api.Group("/sessions/:session", s.withSession)
	sess.GET("", s.handleSessionView)
	sess.DELETE("", s.handleCloseSession)
	sess.GET("/events", s.handleEvents)
	sess.POST("/reload", s.handleReload)
	sess.POST("/refresh", s.handleRefresh)
	sess.POST("/configuration-saved", s.handleConfigurationSaved)

	sess.PUT("/scope", s.handleScope)
	sess.PUT("/search", s.handleSearch)
	sess.PUT("/filters", s.handleSetFilter)
	sess.DELETE("/filters", s.handleClearFilters)
	sess.PUT("/page-size", s.handlePageSize)
	sess.POST("/page/next", s.handleNextPage)
	sess.POST("/page/prev", s.handlePrevPage)
	sess.POST("/listing/:group/delete", s.handleListingDelete)

	sess.POST("/scan/start", s.handleScanStart)
	sess.POST("/scan/abort", s.handleScanAbort)
	sess.GET("/scan/schedules", s.handleSchedules)
	sess.PUT("/scan/schedule", s.handleSchedule)
	sess.DELETE("/scan/schedule", s.handleUnschedule)

	sess.POST("/groups/:group/open", s.handleOpenGroup)
	grp := sess.Group("/groups/:group", s.withGroup)
	grp.GET("", s.handleGroupView)
	grp.PUT("/master", s.handleSelectMaster)
	grp.PUT("/fields/:field", s.handleSelectValue)
	grp.PUT("/filter", s.handleGroupFilter)
	grp.POST("/merge", s.handleMerge)
	grp.POST("/delete", s.handleGroupDelete)
	grp.POST("/close", s.handleCloseGroup)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

// Start listens on paths.api_bind and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and closes every session.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	s.stopped = true
	timer.Stop(s.sweeper)
	s.sweeper = nil
	sessions := s.sessions
	s.sessions = map[string]*sessionEntry{}
	s.mu.Unlock()
	for _, entry := range sessions {
		entry.session.Close()
	}
}

func (s *Server) newSession() *workspace.Session {
	opts := workspace.Options{
		Config:  s.cfg,
		Backend: s.backend,
		Sink:    s.sink,
		Logger:  s.logger,
		Clock:   s.clock,
	}
	if s.journal != nil {
		opts.Journal = s.journal
	}
	sess := workspace.New(opts)
	s.mu.Lock()
	s.sessions[sess.ID()] = &sessionEntry{session: sess, lastUsed: s.clock.Now()}
	s.mu.Unlock()
	return sess
}

// session looks up id and marks it used.
func (s *Server) session(id string) (*workspace.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastUsed = s.clock.Now()
	return entry.session, true
}

func (s *Server) dropSession(id string) (*workspace.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	return entry.session, true
}
