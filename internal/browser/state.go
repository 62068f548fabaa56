package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mergedesk/internal/config"
	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/timer"
)

// DefaultDebounce is the keystroke silence required before a search fires.
const DefaultDebounce = 300 * time.Millisecond

// Confirmation and notice texts.
const (
	DeleteQuestion = "Are you sure you want to delete this duplicate set?"
	NoticeDeleted  = "Duplicate set deleted successfully."
)

var (
	// ErrInvalidPageSize rejects page sizes outside config.PageSizes.
	ErrInvalidPageSize = fmt.Errorf("page size must be one of %v", config.PageSizes)
	// ErrUnknownGroup is returned when deleting a set that is not listed.
	ErrUnknownGroup = errors.New("duplicate set is not on the current page")
	// ErrFilterField rejects a filter without a field name.
	ErrFilterField = errors.New("filter field is required")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("browser closed")
)

// Options wires a State to its collaborators. Zero values are safe.
type Options struct {
	Clock    timer.Clock
	Debounce time.Duration
	PageSize int
	Sink     notify.Sink
	Logger   *slog.Logger
	// ScopeChanged runs after the object type changed, before the reload.
	ScopeChanged func(objectType string)
	// RecentJobs receives the recent scan jobs of every applied reload.
	RecentJobs func(jobs []remote.JobStatus)
}

// State is the listing state of one session. Methods are safe for concurrent
// use; the state lock is never held across remote calls.
type State struct {
	listings     remote.Listings
	clock        timer.Clock
	debounce     time.Duration
	sink         notify.Sink
	logger       *slog.Logger
	scopeChanged func(string)
	recentJobs   func([]remote.JobStatus)

	baseCtx context.Context
	cancel  context.CancelFunc

	// reloadMu serializes reloads.
	reloadMu sync.Mutex

	mu           sync.Mutex
	objectType   string
	typed        string
	searchTerm   string
	filters      map[string]string
	pageIndex    int
	pageSize     int
	groups       []remote.DuplicateGroup
	totalCount   int
	summary      remote.Summary
	jobs         []remote.JobStatus
	filterFields []remote.FilterField
	objectTypes  []remote.ObjectTypeOption
	loading      bool
	errMsg       string
	searchTimer  timer.Timer
	searchGen    uint64
	dataGen      uint64
	closed       bool
}

// New returns a browser scoped to all object types on page 1. Nothing is
// fetched until Reload.
func New(listings remote.Listings, opts Options) *State {
	clock := opts.Clock
	if clock == nil {
		clock = timer.System()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pageSize := opts.PageSize
	if !config.ValidPageSize(pageSize) {
		pageSize = config.PageSizes[0]
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &State{
		listings:     listings,
		clock:        clock,
		debounce:     debounce,
		sink:         sink,
		logger:       logging.NewComponentLogger(opts.Logger, "browser"),
		scopeChanged: opts.ScopeChanged,
		recentJobs:   opts.RecentJobs,
		baseCtx:      ctx,
		cancel:       cancel,
		objectType:   AllObjects,
		filters:      map[string]string{},
		pageIndex:    1,
		pageSize:     pageSize,
	}
}

func (s *State) queryLocked() PageQuery {
	return PageQuery{
		ObjectType: s.objectType,
		SearchTerm: s.searchTerm,
		Filters:    maps.Clone(s.filters),
		PageIndex:  s.pageIndex,
		PageSize:   s.pageSize,
	}
}

// Query derives the current listing request.
func (s *State) Query() PageQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked()
}

// Offset is the offset of the current page.
func (s *State) Offset() int {
	return s.Query().Offset()
}

// TotalPages is the page count for the last known total.
func (s *State) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TotalPages(s.totalCount, s.pageSize)
}

// CanPrev reports whether a previous page exists.
func (s *State) CanPrev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageIndex > 1
}

// CanNext reports whether a next page exists.
func (s *State) CanNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageIndex < TotalPages(s.totalCount, s.pageSize)
}

// cancelSearchLocked stops the debounce timer and invalidates a callback
// that already fired but has not taken the lock yet.
func (s *State) cancelSearchLocked() {
	timer.Stop(s.searchTimer)
	s.searchTimer = nil
	s.searchGen++
}

// Reload fetches the listing, summary and recent jobs concurrently. Any
// failure becomes the single view error. Reloads are serialized.
func (s *State) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.reloadLocked(ctx)
}

// Refresh reloads unless a reload is already running, in which case it does
// nothing and reports false.
func (s *State) Refresh(ctx context.Context) (bool, error) {
	if !s.reloadMu.TryLock() {
		s.logger.Debug("refresh skipped; reload in progress")
		return false, nil
	}
	defer s.reloadMu.Unlock()
	return true, s.reloadLocked(ctx)
}

func (s *State) reloadLocked(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		query := s.queryLocked()
		gen := s.dataGen
		s.loading = true
		s.errMsg = ""
		s.mu.Unlock()

		var (
			page    *remote.GroupPage
			summary *remote.Summary
			jobs    []remote.JobStatus
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := s.listings.ListGroups(gctx, query.ListQuery())
			if err != nil {
				return fmt.Errorf("list groups: %w", err)
			}
			page = p
			return nil
		})
		g.Go(func() error {
			sum, err := s.listings.GetSummary(gctx)
			if err != nil {
				return fmt.Errorf("load summary: %w", err)
			}
			summary = sum
			return nil
		})
		g.Go(func() error {
			recent, err := s.listings.RecentJobs(gctx)
			if err != nil {
				return fmt.Errorf("load recent jobs: %w", err)
			}
			jobs = recent
			return nil
		})
		err := g.Wait()

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		s.loading = false
		if err != nil {
			s.errMsg = remote.Message(err)
			s.mu.Unlock()
			s.logger.Warn("reload failed",
				logging.Error(err),
				logging.String(logging.FieldObjectType, query.ObjectType),
				logging.String(logging.FieldEventType, "reload_failed"),
				logging.String(logging.FieldErrorHint, "check backend connectivity, then refresh"),
			)
			return err
		}
		if gen != s.dataGen {
			// Superseded by a newer change; its own reload applies fresh data.
			s.mu.Unlock()
			return nil
		}
		if page == nil {
			page = &remote.GroupPage{}
		}
		if summary == nil {
			summary = &remote.Summary{}
		}
		s.groups = page.DuplicateSets
		s.totalCount = page.TotalCount
		s.summary = *summary
		s.jobs = jobs
		if last := TotalPages(s.totalCount, s.pageSize); s.pageIndex > last && attempt == 0 {
			s.pageIndex = last
			s.dataGen++
			s.mu.Unlock()
			continue
		}
		hook := s.recentJobs
		s.mu.Unlock()

		s.logger.Debug("listing reloaded",
			logging.String(logging.FieldObjectType, query.ObjectType),
			logging.Int("page", query.PageIndex),
			logging.Int("total", page.TotalCount),
		)
		if hook != nil {
			hook(jobs)
		}
		return nil
	}
}

// LoadObjectTypes fetches the selectable object-type scopes.
func (s *State) LoadObjectTypes(ctx context.Context) error {
	options, err := s.listings.ObjectTypes(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "object types unavailable", "object_types_failed", logging.Error(err))
		return fmt.Errorf("load object types: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.objectTypes = options
	}
	return nil
}

// loadFilterFields replaces the filter fields of objectType. Failures leave
// an empty list.
func (s *State) loadFilterFields(ctx context.Context, objectType string) {
	var (
		fields []remote.FilterField
		err    error
	)
	if objectType != AllObjects {
		fields, err = s.listings.FilterFields(ctx, objectType)
	}
	if err != nil {
		logging.WarnWithContext(s.logger, "filter fields unavailable", "filter_fields_failed",
			logging.Error(err),
			logging.String(logging.FieldObjectType, objectType),
		)
		fields = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.objectType != objectType {
		return
	}
	s.filterFields = fields
}

// SetObjectType changes the scope: filters are cleared, a pending search is
// applied immediately, the scope hook runs and the first page reloads.
func (s *State) SetObjectType(ctx context.Context, objectType string) error {
	objectType = strings.TrimSpace(objectType)
	if objectType == "" {
		objectType = AllObjects
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.objectType = objectType
	s.filters = map[string]string{}
	s.filterFields = nil
	s.cancelSearchLocked()
	s.searchTerm = strings.TrimSpace(s.typed)
	s.pageIndex = 1
	s.dataGen++
	hook := s.scopeChanged
	s.mu.Unlock()

	s.logger.Info("object type selected", logging.String(logging.FieldObjectType, objectType))
	if hook != nil {
		hook(objectType)
	}
	s.loadFilterFields(ctx, objectType)
	return s.Reload(ctx)
}

// TypeSearch records a keystroke. Only the last keystroke's timer fires,
// after the debounce interval, and applies the term with a reload.
func (s *State) TypeSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.typed = term
	s.cancelSearchLocked()
	gen := s.searchGen
	s.searchTimer = s.clock.AfterFunc(s.debounce, func() { s.fireSearch(gen) })
}

func (s *State) fireSearch(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.searchGen {
		s.mu.Unlock()
		return
	}
	s.searchTimer = nil
	s.searchTerm = strings.TrimSpace(s.typed)
	s.pageIndex = 1
	s.dataGen++
	ctx := s.baseCtx
	term := s.searchTerm
	s.mu.Unlock()

	s.logger.Debug("search applied", logging.String("term", term))
	if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
		s.logger.Debug("search reload failed", logging.Error(err))
	}
}

// SetSearch applies term immediately, bypassing the debounce.
func (s *State) SetSearch(ctx context.Context, term string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelSearchLocked()
	s.typed = term
	s.searchTerm = strings.TrimSpace(term)
	s.pageIndex = 1
	s.dataGen++
	s.mu.Unlock()
	return s.Reload(ctx)
}

// SetFilter constrains field to value for the current object type. An empty
// value removes the constraint.
func (s *State) SetFilter(ctx context.Context, field, value string) error {
	field = strings.TrimSpace(field)
	if field == "" {
		return ErrFilterField
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if value = strings.TrimSpace(value); value == "" {
		delete(s.filters, field)
	} else {
		s.filters[field] = value
	}
	s.pageIndex = 1
	s.dataGen++
	s.mu.Unlock()
	return s.Reload(ctx)
}

// ClearFilters removes every filter constraint.
func (s *State) ClearFilters(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.filters = map[string]string{}
	s.pageIndex = 1
	s.dataGen++
	s.mu.Unlock()
	return s.Reload(ctx)
}

// SetPageSize changes the page size to one of config.PageSizes.
func (s *State) SetPageSize(ctx context.Context, size int) error {
	if !config.ValidPageSize(size) {
		return ErrInvalidPageSize
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pageSize = size
	s.pageIndex = 1
	s.dataGen++
	s.mu.Unlock()
	return s.Reload(ctx)
}

// NextPage moves forward one page. It reports false without fetching when
// the current page is the last.
func (s *State) NextPage(ctx context.Context) (bool, error) {
	return s.step(ctx, 1)
}

// PrevPage moves back one page. It reports false on page 1.
func (s *State) PrevPage(ctx context.Context) (bool, error) {
	return s.step(ctx, -1)
}

func (s *State) step(ctx context.Context, delta int) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	next := s.pageIndex + delta
	if next < 1 || next > TotalPages(s.totalCount, s.pageSize) {
		s.mu.Unlock()
		return false, nil
	}
	s.pageIndex = next
	s.dataGen++
	s.mu.Unlock()
	return true, s.Reload(ctx)
}

// Delete asks for confirmation and deletes a listed set. The item and the
// aggregate counters are updated before the remote call; a failed delete
// reloads everything to restore the backend's view.
func (s *State) Delete(ctx context.Context, groupID string, confirm notify.Confirm) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if indexOf(s.groups, groupID) < 0 {
		s.mu.Unlock()
		return false, ErrUnknownGroup
	}
	s.mu.Unlock()

	if !notify.Ask(ctx, confirm, DeleteQuestion) {
		return false, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if i := indexOf(s.groups, groupID); i >= 0 {
		item := s.groups[i]
		s.groups = append(s.groups[:i:i], s.groups[i+1:]...)
		s.totalCount = max(0, s.totalCount-1)
		s.summary.TotalSets = max(0, s.summary.TotalSets-1)
		s.summary.SetsByObject = decrementObject(s.summary.SetsByObject, item.ObjectType)
	}
	s.dataGen++
	clamped := false
	if last := TotalPages(s.totalCount, s.pageSize); s.pageIndex > last {
		s.pageIndex = last
		clamped = true
	}
	s.mu.Unlock()

	if err := s.listings.DeleteGroup(ctx, groupID); err != nil {
		s.logger.Warn("duplicate set delete failed",
			logging.Error(err),
			logging.String(logging.FieldGroupID, groupID),
			logging.String(logging.FieldEventType, "delete_failed"),
			logging.String(logging.FieldErrorHint, "listing reloaded from the backend"),
		)
		s.sink.Notify(ctx, notify.Failure(notify.SourceBrowser, remote.Message(err)))
		if reloadErr := s.Reload(ctx); reloadErr != nil {
			s.logger.Debug("reload after failed delete failed", logging.Error(reloadErr))
		}
		return false, fmt.Errorf("delete group: %w", err)
	}

	s.logger.Info("duplicate set deleted", logging.String(logging.FieldGroupID, groupID))
	s.sink.Notify(ctx, notify.Success(notify.SourceBrowser, NoticeDeleted))
	if clamped {
		return true, s.Reload(ctx)
	}
	return true, s.refreshSummary(ctx)
}

func indexOf(groups []remote.DuplicateGroup, id string) int {
	for i, g := range groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func decrementObject(counts []remote.ObjectCount, objectType string) []remote.ObjectCount {
	out := make([]remote.ObjectCount, len(counts))
	copy(out, counts)
	for i := range out {
		if out[i].ObjectType == objectType {
			out[i].Count = max(0, out[i].Count-1)
		}
	}
	return out
}

func (s *State) refreshSummary(ctx context.Context) error {
	summary, err := s.listings.GetSummary(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "summary refresh failed", "summary_failed", logging.Error(err))
		return fmt.Errorf("load summary: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && summary != nil {
		s.summary = *summary
	}
	return nil
}

// MergeCompleted reloads after a merge workspace reported success.
func (s *State) MergeCompleted(ctx context.Context) error {
	return s.Reload(ctx)
}

// ConfigurationSaved refetches the filter fields and reloads after the
// field configuration changed.
func (s *State) ConfigurationSaved(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	objectType := s.objectType
	s.mu.Unlock()
	s.loadFilterFields(ctx, objectType)
	return s.Reload(ctx)
}

// Close cancels the debounce timer and any fetch started by it. No state
// changes after Close.
func (s *State) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelSearchLocked()
	s.mu.Unlock()
	s.cancel()
}
