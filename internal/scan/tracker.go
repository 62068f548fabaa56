package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/timer"
)

// DefaultInterval is the poll period for a running job.
const DefaultInterval = 2 * time.Second

// AllScopes is the listing scope covering every object type.
const AllScopes = "All"

var (
	// ErrScopeRequired rejects scans and schedules without a specific object type.
	ErrScopeRequired = errors.New("select a specific object type to scan")
	// ErrScanActive rejects a start while a job for the scope is still running.
	ErrScanActive = errors.New("a scan is already in progress")
	// ErrNoActiveJob is returned by Abort when nothing is running.
	ErrNoActiveJob = errors.New("no active scan job")
	// ErrInvalidTime rejects schedule times that are not HH:MM.
	ErrInvalidTime = errors.New("schedule time must be HH:MM")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scan tracker closed")
)

// Notice texts shown to the user.
const (
	NoticeScopeRequired = "Please select a specific object type to scan."
	NoticeScanActive    = "A scan is already in progress. Please wait for it to complete."
	NoticeCompleted     = "Duplicate scan completed successfully!"
	NoticeStopped       = "Scan has been stopped."
	AbortQuestion       = "Are you sure you want to stop the scan?"
)

// StartQuestion is the confirmation shown before a scan replaces existing sets.
func StartQuestion(scope string) string {
	return fmt.Sprintf("Warning: Starting a new scan will delete all existing Duplicate Record Sets for %s.\n\n"+
		"If your org has a large number of records, this scan may take a significant amount of time to complete.\n\n"+
		"Do you want to proceed?", scope)
}

// State is the lifecycle position of the tracked job.
type State string

const (
	StateIdle       State = "idle"
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateAborted    State = "aborted"
)

// StateOf derives the state of a job snapshot. A nil snapshot is idle.
func StateOf(job *remote.JobStatus) State {
	switch {
	case job == nil:
		return StateIdle
	case !job.IsComplete && job.Status == remote.StatusQueued:
		return StateQueued
	case !job.IsComplete:
		return StateProcessing
	case job.Status == remote.StatusAborted:
		return StateAborted
	case job.IsSuccess:
		return StateSucceeded
	default:
		return StateFailed
	}
}

// Journal records observed job states.
type Journal interface {
	RecordJob(ctx context.Context, status remote.JobStatus) error
}

// Options wires a Tracker to its collaborators. Zero values are safe.
type Options struct {
	Clock    timer.Clock
	Interval time.Duration
	Sink     notify.Sink
	Journal  Journal
	Logger   *slog.Logger
	// OnFinish runs after a job completes or is aborted, typically a reload.
	OnFinish func(ctx context.Context)
}

// Tracker runs at most one scan job per object-type scope for a session and
// polls it until completion. Poll results that arrive after the job stopped
// being tracked are discarded.
type Tracker struct {
	scans    remote.Scans
	clock    timer.Clock
	interval time.Duration
	sink     notify.Sink
	journal  Journal
	logger   *slog.Logger
	onFinish func(context.Context)

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	job       *remote.JobStatus
	scope     string
	starting  map[string]bool
	dismissed map[string]bool
	detached  map[string]bool
	view      string
	pollTimer timer.Timer
	polling   bool
	gen       uint64
	closed    bool
}

// New returns an idle tracker.
func New(scans remote.Scans, opts Options) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = timer.System()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		scans:     scans,
		clock:     clock,
		interval:  interval,
		sink:      sink,
		journal:   opts.Journal,
		logger:    logging.NewComponentLogger(opts.Logger, "scan"),
		onFinish:  opts.OnFinish,
		baseCtx:   ctx,
		cancel:    cancel,
		starting:  map[string]bool{},
		dismissed: map[string]bool{},
		detached:  map[string]bool{},
	}
}

// SetOnFinish replaces the completion hook.
func (t *Tracker) SetOnFinish(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFinish = fn
}

func scopeUnspecified(scope string) bool {
	scope = strings.TrimSpace(scope)
	return scope == "" || strings.EqualFold(scope, AllScopes)
}

func (t *Tracker) activeForLocked(scope string) bool {
	if t.starting[scope] {
		return true
	}
	if t.job == nil || t.job.IsComplete {
		return false
	}
	return t.scope == "" || t.scope == scope
}

// Start asks for confirmation and starts a scan of scope. It returns the new
// job id, or "" when the user declined. Rejections are reported as info
// notices and never reach the backend.
func (t *Tracker) Start(ctx context.Context, scope string, confirm notify.Confirm) (string, error) {
	scope = strings.TrimSpace(scope)
	if scopeUnspecified(scope) {
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeScopeRequired))
		return "", ErrScopeRequired
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	active := t.activeForLocked(scope)
	t.mu.Unlock()
	if active {
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeScanActive))
		return "", ErrScanActive
	}

	if !notify.Ask(ctx, confirm, StartQuestion(scope)) {
		return "", nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	if t.activeForLocked(scope) {
		t.mu.Unlock()
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeScanActive))
		return "", ErrScanActive
	}
	t.starting[scope] = true
	t.mu.Unlock()

	jobID, err := t.scans.StartScan(ctx, scope)

	t.mu.Lock()
	delete(t.starting, scope)
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("scan start failed",
			logging.Error(err),
			logging.String(logging.FieldObjectType, scope),
			logging.String(logging.FieldEventType, "scan_start_failed"),
			logging.String(logging.FieldErrorHint, "check backend connectivity and scan permissions"),
		)
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, remote.Message(err)))
		return "", fmt.Errorf("start scan: %w", err)
	}
	if t.closed {
		t.mu.Unlock()
		return jobID, ErrClosed
	}
	snapshot := remote.JobStatus{JobID: jobID, Status: remote.StatusQueued, ObjectType: scope}
	t.view = scope
	t.trackLocked(snapshot, scope)
	t.mu.Unlock()

	t.logger.Info("scan started",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldObjectType, scope),
	)
	t.record(snapshot)
	t.sink.Notify(ctx, notify.Success(notify.SourceScan,
		fmt.Sprintf("Duplicate scan started for %s. Monitoring progress...", scope)))
	return jobID, nil
}

// trackLocked replaces the tracked job and starts polling it.
func (t *Tracker) trackLocked(snapshot remote.JobStatus, scope string) {
	t.stopLocked()
	t.job = &snapshot
	t.scope = scope
	t.polling = true
	t.scheduleLocked(t.gen)
}

// stopLocked cancels any pending poll and invalidates in-flight results.
func (t *Tracker) stopLocked() {
	timer.Stop(t.pollTimer)
	t.pollTimer = nil
	t.polling = false
	t.gen++
}

func (t *Tracker) scheduleLocked(gen uint64) {
	t.pollTimer = t.clock.AfterFunc(t.interval, func() { t.poll(gen) })
}

func (t *Tracker) poll(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen || t.job == nil {
		t.mu.Unlock()
		return
	}
	t.pollTimer = nil
	jobID := t.job.JobID
	previous := t.job.Status
	ctx := t.baseCtx
	t.mu.Unlock()

	status, err := t.scans.GetJobStatus(ctx, jobID)

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.polling = false
		t.mu.Unlock()
		logging.WarnWithContext(t.logger, "job poll failed; polling stopped", "scan_poll_failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldErrorHint, "refresh to resume monitoring the scan"),
		)
		return
	}
	snapshot := *status
	if snapshot.JobID == "" {
		snapshot.JobID = jobID
	}
	if snapshot.ObjectType == "" {
		snapshot.ObjectType = t.scope
	}
	t.job = &snapshot
	if !snapshot.IsComplete {
		t.scheduleLocked(gen)
		t.mu.Unlock()
		if snapshot.Status != previous {
			t.record(snapshot)
		}
		return
	}
	t.polling = false
	onFinish := t.onFinish
	t.mu.Unlock()

	t.logger.Info("scan finished",
		logging.String(logging.FieldJobID, jobID),
		logging.String("status", snapshot.Status),
		logging.Bool("success", snapshot.IsSuccess),
	)
	t.record(snapshot)
	switch {
	case snapshot.IsSuccess:
		t.sink.Notify(ctx, notify.Success(notify.SourceScan, NoticeCompleted))
	case snapshot.Status == remote.StatusAborted:
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeStopped))
	default:
		reason := strings.TrimSpace(snapshot.ExtendedStatus)
		if reason == "" {
			reason = "Unknown error"
		}
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, "Scan failed: "+reason))
	}
	if onFinish != nil {
		onFinish(ctx)
	}
}

// Abort asks for confirmation, aborts the running job, clears it and runs
// the finish hook. It reports whether the job was aborted. A failed abort
// leaves polling running.
func (t *Tracker) Abort(ctx context.Context, confirm notify.Confirm) (bool, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, ErrClosed
	}
	if t.job == nil || t.job.IsComplete {
		t.mu.Unlock()
		return false, ErrNoActiveJob
	}
	job := *t.job
	t.mu.Unlock()

	if !notify.Ask(ctx, confirm, AbortQuestion) {
		return false, nil
	}

	if err := t.scans.AbortJob(ctx, job.JobID); err != nil {
		t.logger.Warn("scan abort failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, job.JobID),
			logging.String(logging.FieldEventType, "scan_abort_failed"),
			logging.String(logging.FieldErrorHint, "retry the abort or wait for the scan to finish"),
		)
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, remote.Message(err)))
		return false, fmt.Errorf("abort job: %w", err)
	}

	t.mu.Lock()
	if t.job != nil && t.job.JobID == job.JobID {
		t.stopLocked()
		t.job = nil
		t.scope = ""
	}
	t.dismissed[job.JobID] = true
	onFinish := t.onFinish
	closed := t.closed
	t.mu.Unlock()

	job.Status = remote.StatusAborted
	job.IsComplete = true
	t.record(job)
	t.logger.Info("scan aborted", logging.String(logging.FieldJobID, job.JobID))
	if closed {
		return true, nil
	}
	t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeStopped))
	if onFinish != nil {
		onFinish(ctx)
	}
	return true, nil
}

// Resume adopts the first incomplete job from a recent-jobs listing and polls
// it, unless an active job is already tracked. A job detached by a scope
// change is only adopted again once the viewed scope is its own. It reports
// whether a job was adopted.
func (t *Tracker) Resume(jobs []remote.JobStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	for _, j := range jobs {
		if j.IsComplete || t.dismissed[j.JobID] {
			continue
		}
		if t.detached[j.JobID] && !strings.EqualFold(j.ObjectType, t.view) {
			continue
		}
		if t.job != nil && !t.job.IsComplete && !t.detached[t.job.JobID] {
			if t.job.JobID != j.JobID || t.polling {
				return false
			}
		}
		delete(t.detached, j.JobID)
		t.logger.Info("resuming scan monitoring", logging.String(logging.FieldJobID, j.JobID))
		t.trackLocked(j, j.ObjectType)
		return true
	}
	return false
}

// Detach stops polling because the viewed scope changed to scope. The job
// snapshot is kept, and Resume leaves the job alone until scope is its own
// again.
func (t *Tracker) Detach(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view = strings.TrimSpace(scope)
	if t.job != nil && !t.job.IsComplete {
		t.detached[t.job.JobID] = true
	}
	if t.polling {
		t.logger.Debug("scan polling detached", logging.String(logging.FieldObjectType, t.view))
	}
	t.stopLocked()
}

// Close stops polling for good and cancels any in-flight poll.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stopLocked()
	t.mu.Unlock()
	t.cancel()
}

// Snapshot returns the last known job status.
func (t *Tracker) Snapshot() (remote.JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return remote.JobStatus{}, false
	}
	return *t.job, true
}

// State derives the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return StateOf(t.job)
}

// Polling reports whether a poll is scheduled or in flight.
func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polling
}

// Running reports whether the tracked job is incomplete.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job != nil && !t.job.IsComplete
}

// CanStart reports whether Start would reach the confirmation gate for scope.
func (t *Tracker) CanStart(scope string) bool {
	if scopeUnspecified(scope) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && !t.activeForLocked(strings.TrimSpace(scope))
}

func (t *Tracker) record(status remote.JobStatus) {
	if t.journal == nil {
		return
	}
	if err := t.journal.RecordJob(context.WithoutCancel(t.baseCtx), status); err != nil {
		logging.WarnWithContext(t.logger, "journal write failed", "journal_failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, status.JobID),
		)
	}
}
