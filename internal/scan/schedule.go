package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
)

// Schedules lists the daily scan schedules. Failures are logged and returned.
func (t *Tracker) Schedules(ctx context.Context) ([]remote.ScheduleStatus, error) {
	schedules, err := t.scans.Schedules(ctx)
	if err != nil {
		logging.WarnWithContext(t.logger, "schedule status unavailable", "schedule_load_failed", logging.Error(err))
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	return schedules, nil
}

// ScheduleFor returns the schedule of scope from a listing.
func ScheduleFor(schedules []remote.ScheduleStatus, scope string) (remote.ScheduleStatus, bool) {
	if scopeUnspecified(scope) {
		return remote.ScheduleStatus{}, false
	}
	for _, s := range schedules {
		if s.ObjectType == scope {
			return s, true
		}
	}
	return remote.ScheduleStatus{}, false
}

// NormalizeTime validates an HH:MM time of day and returns it zero padded.
func NormalizeTime(at string) (string, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}
	return parsed.Format("15:04"), nil
}

// Schedule sets a daily scan of scope at the HH:MM time at.
func (t *Tracker) Schedule(ctx context.Context, scope, at string) error {
	scope = strings.TrimSpace(scope)
	if scopeUnspecified(scope) {
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeScopeRequired))
		return ErrScopeRequired
	}
	normalized, err := NormalizeTime(at)
	if err != nil {
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, "Enter the scan time as HH:MM."))
		return err
	}
	if err := t.scans.ScheduleScan(ctx, scope, normalized); err != nil {
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, remote.Message(err)))
		return fmt.Errorf("schedule scan: %w", err)
	}
	t.logger.Info("daily scan scheduled",
		logging.String(logging.FieldObjectType, scope),
		logging.String("at", normalized),
	)
	t.sink.Notify(ctx, notify.Success(notify.SourceScan,
		fmt.Sprintf("Daily scan scheduled for %s at %s", scope, normalized)))
	return nil
}

// Unschedule cancels the daily scan of scope.
func (t *Tracker) Unschedule(ctx context.Context, scope string) error {
	scope = strings.TrimSpace(scope)
	if scopeUnspecified(scope) {
		t.sink.Notify(ctx, notify.Info(notify.SourceScan, "Info", NoticeScopeRequired))
		return ErrScopeRequired
	}
	if err := t.scans.UnscheduleScan(ctx, scope); err != nil {
		t.sink.Notify(ctx, notify.Failure(notify.SourceScan, remote.Message(err)))
		return fmt.Errorf("unschedule scan: %w", err)
	}
	t.logger.Info("daily scan cancelled", logging.String(logging.FieldObjectType, scope))
	t.sink.Notify(ctx, notify.Success(notify.SourceScan, fmt.Sprintf("Daily scan cancelled for %s", scope)))
	return nil
}
