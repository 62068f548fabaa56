package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mergedesk/internal/browser"
	"mergedesk/internal/config"
	"mergedesk/internal/logging"
	"mergedesk/internal/merge"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/scan"
	"mergedesk/internal/timer"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// ErrUnknownGroup is returned when no merge workspace is open for a group.
var ErrUnknownGroup = errors.New("group is not open")

// Journal records merges and observed scan jobs.
type Journal interface {
	merge.Journal
	scan.Journal
}

// Options wires a session. Config and Backend are required.
type Options struct {
	Config  *config.Config
	Backend remote.Backend
	Journal Journal
	// Sink receives every notification in addition to the session recorder.
	Sink   notify.Sink
	Logger *slog.Logger
	Clock  timer.Clock
}

// Session is one reviewer's workspace: the listing, the scan tracker and the
// merge workspaces opened from it. Notifications and events are recorded for
// the host to drain.
type Session struct {
	id       string
	created  time.Time
	cfg      *config.Config
	backend  remote.Backend
	journal  Journal
	recorder *notify.Recorder
	sink     notify.Sink
	logger   *slog.Logger
	base     *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	browser *browser.State
	scans   *scan.Tracker

	mu     sync.Mutex
	groups map[string]*merge.Workspace
	closed bool
}

// New assembles a session and wires its collaborators. Call Open to load
// the first page.
func New(opts Options) *Session {
	id := uuid.NewString()
	clock := opts.Clock
	if clock == nil {
		clock = timer.System()
	}
	ctx, cancel := context.WithCancel(logging.WithSessionID(context.Background(), id))
	s := &Session{
		id:       id,
		created:  clock.Now(),
		cfg:      opts.Config,
		backend:  opts.Backend,
		journal:  opts.Journal,
		recorder: &notify.Recorder{},
		logger:   logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "session")),
		base:     logging.WithContext(ctx, opts.Logger),
		ctx:      ctx,
		cancel:   cancel,
		groups:   map[string]*merge.Workspace{},
	}
	sinks := []notify.Sink{s.recorder}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}
	s.sink = &router{session: s, next: notify.Multi(sinks...)}

	scanOpts := scan.Options{
		Clock:    clock,
		Interval: opts.Config.PollInterval(),
		Sink:     s.sink,
		Logger:   s.base,
		OnFinish: s.reload,
	}
	if opts.Journal != nil {
		scanOpts.Journal = opts.Journal
	}
	s.scans = scan.New(opts.Backend, scanOpts)
	s.browser = browser.New(opts.Backend, browser.Options{
		Clock:        clock,
		Debounce:     opts.Config.SearchDebounce(),
		PageSize:     opts.Config.Browser.PageSize,
		Sink:         s.sink,
		Logger:       s.base,
		ScopeChanged: s.scans.Detach,
		RecentJobs:   func(jobs []remote.JobStatus) { s.scans.Resume(jobs) },
	})
	s.logger.Info("session opened")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// Browser returns the listing state.
func (s *Session) Browser() *browser.State { return s.browser }

// Scans returns the scan tracker.
func (s *Session) Scans() *scan.Tracker { return s.scans }

// Open loads the object-type options and the first page.
func (s *Session) Open(ctx context.Context) error {
	if err := s.browser.LoadObjectTypes(ctx); err != nil {
		s.logger.Debug("continuing without object type options", logging.Error(err))
	}
	return s.browser.Reload(ctx)
}

func (s *Session) reload(ctx context.Context) {
	if err := s.browser.Reload(ctx); err != nil && !errors.Is(err, browser.ErrClosed) {
		s.logger.Debug("reload after scan failed", logging.Error(err))
	}
}

// OpenGroup opens a merge workspace for groupID and loads its comparison. A
// workspace already open for the group is reloaded and returned. A failed
// load still returns the workspace in its load-failed phase.
func (s *Session) OpenGroup(ctx context.Context, groupID string) (*merge.Workspace, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	ws, ok := s.groups[groupID]
	if !ok {
		opts := merge.Options{
			Sink:      s.sink,
			Logger:    s.base,
			RecordURL: s.cfg.RecordURL,
		}
		if s.journal != nil {
			opts.Journal = s.journal
		}
		ws = merge.New(groupID, s.backend, opts)
		s.groups[groupID] = ws
	}
	s.mu.Unlock()

	if err := ws.Load(ctx); err != nil {
		return ws, err
	}
	return ws, nil
}

// Group returns the open merge workspace of groupID.
func (s *Session) Group(groupID string) (*merge.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ws, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	return ws, nil
}

// CloseGroup closes the merge workspace of groupID.
func (s *Session) CloseGroup(ctx context.Context, groupID string) error {
	ws, err := s.Group(groupID)
	if err != nil {
		return err
	}
	ws.Close(ctx)
	return nil
}

// OpenGroups lists the groups with an open merge workspace.
func (s *Session) OpenGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartScan scans the object type currently selected in the listing.
func (s *Session) StartScan(ctx context.Context, confirm notify.Confirm) (string, error) {
	return s.scans.Start(ctx, s.browser.Query().ObjectType, confirm)
}

// ScheduleScan schedules a daily scan of the selected object type.
func (s *Session) ScheduleScan(ctx context.Context, at string) error {
	return s.scans.Schedule(ctx, s.browser.Query().ObjectType, at)
}

// UnscheduleScan cancels the daily scan of the selected object type.
func (s *Session) UnscheduleScan(ctx context.Context) error {
	return s.scans.Unschedule(ctx, s.browser.Query().ObjectType)
}

// ConfigurationSaved tells the session that field configuration changed.
func (s *Session) ConfigurationSaved(ctx context.Context) {
	s.sink.Emit(ctx, notify.Event{Kind: notify.EventSave})
}

// Drain returns and clears the notifications and events recorded since the
// last drain.
func (s *Session) Drain() []notify.Entry {
	return s.recorder.Drain()
}

// Close stops every timer and closes all merge workspaces. Nothing mutates
// after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	groups := make([]*merge.Workspace, 0, len(s.groups))
	for _, ws := range s.groups {
		groups = append(groups, ws)
	}
	s.mu.Unlock()

	s.scans.Close()
	s.browser.Close()
	for _, ws := range groups {
		ws.Close(s.ctx)
	}
	s.cancel()
	s.logger.Info("session closed")
}

// router forwards notifications and reacts to workspace events before
// forwarding them.
type router struct {
	session *Session
	next    notify.Sink
}

func (r *router) Notify(ctx context.Context, n notify.Notification) {
	r.next.Notify(ctx, n)
}

func (r *router) Emit(ctx context.Context, e notify.Event) {
	r.next.Emit(ctx, e)
	s := r.session
	switch e.Kind {
	case notify.EventMergeComplete:
		if err := s.browser.MergeCompleted(ctx); err != nil && !errors.Is(err, browser.ErrClosed) {
			s.logger.Debug("reload after merge failed", logging.Error(err))
		}
	case notify.EventClose:
		s.mu.Lock()
		delete(s.groups, e.GroupID)
		s.mu.Unlock()
	case notify.EventSave:
		if err := s.browser.ConfigurationSaved(ctx); err != nil && !errors.Is(err, browser.ErrClosed) {
			s.logger.Debug("reload after configuration save failed", logging.Error(err))
		}
	}
}
