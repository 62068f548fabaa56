package scan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/remote/remotetest"
	"mergedesk/internal/scan"
	"mergedesk/internal/testsupport"
)

type fixture struct {
	backend  *remotetest.Backend
	clock    *testsupport.Clock
	sink     *notify.Recorder
	tracker  *scan.Tracker
	finished int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: remotetest.New(),
		clock:   testsupport.NewClock(),
		sink:    &notify.Recorder{},
	}
	cfg := testsupport.NewConfig(t)
	f.tracker = scan.New(f.backend, scan.Options{
		Clock:    f.clock,
		Sink:     f.sink,
		Journal:  testsupport.MustOpenJournal(t, cfg),
		OnFinish: func(context.Context) { f.finished++ },
	})
	t.Cleanup(f.tracker.Close)
	return f
}

func (f *fixture) start(t *testing.T, scope string) string {
	t.Helper()
	jobID, err := f.tracker.Start(context.Background(), scope, notify.Accept)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return jobID
}

func TestStartRejectsUnspecifiedScope(t *testing.T) {
	f := newFixture(t)
	for _, scope := range []string{"", "All", " "} {
		if _, err := f.tracker.Start(context.Background(), scope, notify.Accept); !errors.Is(err, scan.ErrScopeRequired) {
			t.Fatalf("scope %q: expected ErrScopeRequired, got %v", scope, err)
		}
	}
	if f.backend.Calls(remotetest.OpStartScan) != 0 {
		t.Fatal("expected no remote start")
	}
	last, _ := f.sink.Last()
	if last.Severity != notify.SeverityInfo || last.Message != scan.NoticeScopeRequired {
		t.Fatalf("expected info notice, got %#v", last)
	}
}

func TestStartWhileActiveNeverCallsRemote(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	if jobID != "job-1" {
		t.Fatalf("unexpected job id %q", jobID)
	}
	if f.tracker.State() != scan.StateQueued {
		t.Fatalf("expected queued, got %s", f.tracker.State())
	}

	if _, err := f.tracker.Start(context.Background(), "Contact", notify.Accept); !errors.Is(err, scan.ErrScanActive) {
		t.Fatalf("expected ErrScanActive, got %v", err)
	}
	if f.backend.Calls(remotetest.OpStartScan) != 1 {
		t.Fatalf("expected exactly one remote start, got %d", f.backend.Calls(remotetest.OpStartScan))
	}
	if last, _ := f.sink.Last(); last.Message != scan.NoticeScanActive {
		t.Fatalf("unexpected notice %#v", last)
	}
	if f.tracker.CanStart("Contact") {
		t.Fatal("expected CanStart false while active")
	}
}

func TestStartDeclineSkipsRemote(t *testing.T) {
	f := newFixture(t)
	var question string
	jobID, err := f.tracker.Start(context.Background(), "Lead", func(_ context.Context, q string) bool {
		question = q
		return false
	})
	if err != nil || jobID != "" {
		t.Fatalf("expected silent decline, got %q %v", jobID, err)
	}
	if !strings.Contains(question, "delete all existing Duplicate Record Sets for Lead") {
		t.Fatalf("unexpected question %q", question)
	}
	if f.backend.Calls(remotetest.OpStartScan) != 0 {
		t.Fatal("expected no remote start after decline")
	}
}

func TestStartFailureNotifies(t *testing.T) {
	f := newFixture(t)
	f.backend.Fail(remotetest.OpStartScan, &remote.Error{Op: "start scan", StatusCode: 403, Message: "Insufficient privileges"})
	if _, err := f.tracker.Start(context.Background(), "Account", notify.Accept); err == nil {
		t.Fatal("expected error")
	}
	if last, _ := f.sink.Last(); last.Severity != notify.SeverityError || last.Message != "Insufficient privileges" {
		t.Fatalf("unexpected notice %#v", last)
	}
	if f.tracker.State() != scan.StateIdle {
		t.Fatalf("expected idle, got %s", f.tracker.State())
	}
	if !f.tracker.CanStart("Account") {
		t.Fatal("expected retry permitted")
	}
}

func TestPollUpdatesSnapshotAndStopsOnCompletion(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")

	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusProcessing, ProgressPercent: 40})
	f.clock.Advance(scan.DefaultInterval)
	snap, _ := f.tracker.Snapshot()
	if snap.ProgressPercent != 40 || f.tracker.State() != scan.StateProcessing {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	if snap.ObjectType != "Contact" {
		t.Fatalf("expected scope kept on snapshot, got %q", snap.ObjectType)
	}

	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusCompleted, ProgressPercent: 100, IsComplete: true, IsSuccess: true})
	f.clock.Advance(scan.DefaultInterval)
	if f.tracker.State() != scan.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", f.tracker.State())
	}
	if f.tracker.Polling() || f.clock.Pending() != 0 {
		t.Fatal("expected polling stopped")
	}
	if f.finished != 1 {
		t.Fatalf("expected one reload, got %d", f.finished)
	}
	if last, _ := f.sink.Last(); last.Message != scan.NoticeCompleted || last.Severity != notify.SeveritySuccess {
		t.Fatalf("unexpected notice %#v", last)
	}

	polls := f.backend.Calls(remotetest.OpGetJobStatus)
	f.clock.Advance(10 * scan.DefaultInterval)
	if got := f.backend.Calls(remotetest.OpGetJobStatus); got != polls {
		t.Fatalf("expected no polls after completion, got %d more", got-polls)
	}
	if !f.tracker.CanStart("Contact") {
		t.Fatal("expected a new scan to be allowed after completion")
	}
}

func TestFailedJobNotifiesWithDiagnostic(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusFailed, IsComplete: true, ExtendedStatus: "Apex CPU time limit exceeded"})
	f.clock.Advance(scan.DefaultInterval)

	if f.tracker.State() != scan.StateFailed {
		t.Fatalf("expected failed, got %s", f.tracker.State())
	}
	last, _ := f.sink.Last()
	if last.Severity != notify.SeverityError || last.Message != "Scan failed: Apex CPU time limit exceeded" {
		t.Fatalf("unexpected notice %#v", last)
	}
	if f.finished != 1 {
		t.Fatal("expected reload after failure")
	}
}

func TestPollTransportFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusProcessing, ProgressPercent: 55})
	f.clock.Advance(scan.DefaultInterval)

	f.backend.Fail(remotetest.OpGetJobStatus, errors.New("connection reset"))
	f.clock.Advance(scan.DefaultInterval)

	if f.tracker.Polling() {
		t.Fatal("expected polling stopped after transport failure")
	}
	snap, ok := f.tracker.Snapshot()
	if !ok || snap.ProgressPercent != 55 || snap.Status != remote.StatusProcessing {
		t.Fatalf("expected last snapshot preserved, got %#v", snap)
	}
	polls := f.backend.Calls(remotetest.OpGetJobStatus)
	f.clock.Advance(5 * scan.DefaultInterval)
	if f.backend.Calls(remotetest.OpGetJobStatus) != polls {
		t.Fatal("expected no further polls")
	}
	if f.finished != 0 {
		t.Fatal("expected no reload on poll failure")
	}
}

func TestAbortClearsJobAndReloads(t *testing.T) {
	f := newFixture(t)
	f.start(t, "Contact")

	aborted, err := f.tracker.Abort(context.Background(), notify.Decline)
	if err != nil || aborted {
		t.Fatalf("expected decline, got %v %v", aborted, err)
	}
	if f.backend.Calls(remotetest.OpAbortJob) != 0 {
		t.Fatal("expected no remote abort after decline")
	}

	aborted, err = f.tracker.Abort(context.Background(), notify.Accept)
	if err != nil || !aborted {
		t.Fatalf("expected abort, got %v %v", aborted, err)
	}
	if f.tracker.State() != scan.StateIdle || f.tracker.Polling() {
		t.Fatal("expected cleared idle tracker")
	}
	if f.clock.Pending() != 0 {
		t.Fatal("expected poll timer cancelled")
	}
	if f.finished != 1 {
		t.Fatal("expected reload after abort")
	}
	if last, _ := f.sink.Last(); last.Message != scan.NoticeStopped {
		t.Fatalf("unexpected notice %#v", last)
	}

	if _, err := f.tracker.Abort(context.Background(), notify.Accept); !errors.Is(err, scan.ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
}

func TestAbortFailureKeepsPolling(t *testing.T) {
	f := newFixture(t)
	f.start(t, "Contact")
	f.backend.Fail(remotetest.OpAbortJob, &remote.Error{Op: "abort job", Message: "Job already finishing"})

	if _, err := f.tracker.Abort(context.Background(), notify.Accept); err == nil {
		t.Fatal("expected abort error")
	}
	if !f.tracker.Polling() || f.tracker.State() != scan.StateQueued {
		t.Fatal("expected polling to continue")
	}
	if last, _ := f.sink.Last(); last.Message != "Job already finishing" {
		t.Fatalf("unexpected notice %#v", last)
	}
}

func TestLatePollResultAfterAbortIsDiscarded(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusProcessing, ProgressPercent: 90})

	f.backend.OnCall(remotetest.OpGetJobStatus, func(context.Context) {
		f.backend.OnCall(remotetest.OpGetJobStatus, nil)
		if _, err := f.tracker.Abort(context.Background(), notify.Accept); err != nil {
			t.Errorf("Abort returned error: %v", err)
		}
	})
	f.clock.Advance(scan.DefaultInterval)

	if _, ok := f.tracker.Snapshot(); ok {
		t.Fatal("expected in-flight poll result discarded after abort")
	}
	if f.clock.Pending() != 0 {
		t.Fatal("expected no rescheduled poll")
	}
}

func TestCloseCancelsTimerAndInFlightPoll(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	f.backend.SetJobStatus(remote.JobStatus{JobID: jobID, Status: remote.StatusCompleted, IsComplete: true, IsSuccess: true})

	var pollCtx context.Context
	f.backend.OnCall(remotetest.OpGetJobStatus, func(ctx context.Context) {
		pollCtx = ctx
		f.tracker.Close()
	})
	f.clock.Advance(scan.DefaultInterval)

	if pollCtx == nil || pollCtx.Err() == nil {
		t.Fatal("expected in-flight poll context cancelled by Close")
	}
	if f.tracker.State() != scan.StateQueued {
		t.Fatalf("expected no mutation after close, got %s", f.tracker.State())
	}
	if f.finished != 0 {
		t.Fatal("expected no reload after close")
	}
	if f.clock.Pending() != 0 {
		t.Fatal("expected no pending timers after close")
	}
	if _, err := f.tracker.Start(context.Background(), "Lead", notify.Accept); !errors.Is(err, scan.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDetachStopsPollingKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	f.tracker.Detach("Lead")
	if f.tracker.Polling() || f.clock.Pending() != 0 {
		t.Fatal("expected polling cancelled")
	}
	if snap, ok := f.tracker.Snapshot(); !ok || snap.JobID != jobID {
		t.Fatal("expected snapshot kept")
	}
	f.clock.Advance(time.Minute)
	if f.backend.Calls(remotetest.OpGetJobStatus) != 0 {
		t.Fatal("expected no polls after detach")
	}
}

func TestResumeSkipsDetachedJobUntilScopeReturns(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	listed := []remote.JobStatus{{JobID: jobID, Status: remote.StatusProcessing, ProgressPercent: 10, ObjectType: "Contact"}}

	f.tracker.Detach("Lead")
	if f.tracker.Resume(listed) {
		t.Fatal("expected detached job to stay detached")
	}
	if f.tracker.Polling() || f.clock.Pending() != 0 {
		t.Fatal("expected no polling after resume of a detached job")
	}
	if !f.tracker.CanStart("Lead") {
		t.Fatal("expected the viewed scope to accept a new scan")
	}
	if f.tracker.CanStart("Contact") {
		t.Fatal("expected the detached job to keep its scope busy")
	}

	f.tracker.Detach("Contact")
	if !f.tracker.Resume(listed) {
		t.Fatal("expected job adopted once its scope is viewed again")
	}
	if !f.tracker.Polling() || f.clock.Pending() != 1 {
		t.Fatal("expected polling resumed")
	}
}

func TestResumeAdoptsRunningJob(t *testing.T) {
	f := newFixture(t)
	jobs := []remote.JobStatus{
		{JobID: "old", Status: remote.StatusCompleted, IsComplete: true, IsSuccess: true},
		{JobID: "run", Status: remote.StatusProcessing, ProgressPercent: 20, ObjectType: "Lead"},
	}
	if !f.tracker.Resume(jobs) {
		t.Fatal("expected running job adopted")
	}
	if f.tracker.Resume(jobs) {
		t.Fatal("expected second resume to be a no-op while polling")
	}
	if f.tracker.CanStart("Lead") {
		t.Fatal("expected resumed scope to be busy")
	}

	f.backend.SetJobStatus(remote.JobStatus{JobID: "run", Status: remote.StatusCompleted, IsComplete: true, IsSuccess: true})
	f.clock.Advance(scan.DefaultInterval)
	if f.tracker.State() != scan.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", f.tracker.State())
	}
}

func TestResumeSkipsAbortedJob(t *testing.T) {
	f := newFixture(t)
	jobID := f.start(t, "Contact")
	if _, err := f.tracker.Abort(context.Background(), notify.Accept); err != nil {
		t.Fatalf("Abort returned error: %v", err)
	}
	stale := []remote.JobStatus{{JobID: jobID, Status: remote.StatusProcessing}}
	if f.tracker.Resume(stale) {
		t.Fatal("expected aborted job not to be resumed")
	}
}

func TestStartOtherScopeSupersedesTrackedJob(t *testing.T) {
	f := newFixture(t)
	first := f.start(t, "Contact")
	second := f.start(t, "Lead")
	if first == second {
		t.Fatal("expected distinct job ids")
	}
	snap, _ := f.tracker.Snapshot()
	if snap.JobID != second {
		t.Fatalf("expected tracker to follow %s, got %s", second, snap.JobID)
	}
	if f.clock.Pending() != 1 {
		t.Fatalf("expected exactly one poll timer, got %d", f.clock.Pending())
	}
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		job  *remote.JobStatus
		want scan.State
	}{
		{nil, scan.StateIdle},
		{&remote.JobStatus{Status: remote.StatusQueued}, scan.StateQueued},
		{&remote.JobStatus{Status: remote.StatusProcessing}, scan.StateProcessing},
		{&remote.JobStatus{Status: remote.StatusCompleted, IsComplete: true, IsSuccess: true}, scan.StateSucceeded},
		{&remote.JobStatus{Status: remote.StatusFailed, IsComplete: true}, scan.StateFailed},
		{&remote.JobStatus{Status: remote.StatusAborted, IsComplete: true}, scan.StateAborted},
	}
	for _, tt := range tests {
		if got := scan.StateOf(tt.job); got != tt.want {
			t.Fatalf("StateOf(%#v) = %s, want %s", tt.job, got, tt.want)
		}
	}
}

func TestScheduleAndUnschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.tracker.Schedule(ctx, "All", "02:00"); !errors.Is(err, scan.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}
	if err := f.tracker.Schedule(ctx, "Contact", "25:00"); !errors.Is(err, scan.ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if f.backend.Calls(remotetest.OpSchedule) != 0 {
		t.Fatal("expected rejected schedules not to reach the backend")
	}

	if err := f.tracker.Schedule(ctx, "Contact", "2:30"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if last, _ := f.sink.Last(); last.Message != "Daily scan scheduled for Contact at 02:30" {
		t.Fatalf("unexpected notice %#v", last)
	}
	schedules, err := f.tracker.Schedules(ctx)
	if err != nil {
		t.Fatalf("Schedules returned error: %v", err)
	}
	current, ok := scan.ScheduleFor(schedules, "Contact")
	if !ok || !current.IsScheduled || current.ScheduledTime != "02:30" {
		t.Fatalf("unexpected schedule %#v", current)
	}

	if err := f.tracker.Unschedule(ctx, "Contact"); err != nil {
		t.Fatalf("Unschedule returned error: %v", err)
	}
	if last, _ := f.sink.Last(); last.Message != "Daily scan cancelled for Contact" {
		t.Fatalf("unexpected notice %#v", last)
	}
}
