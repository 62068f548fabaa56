package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mergedesk/internal/compare"
	"mergedesk/internal/journal"
	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
)

// ErrMergeNotAllowed rejects a merge whose preconditions do not hold.
var ErrMergeNotAllowed = errors.New("merge not allowed")

// ErrClosed is returned by operations on a closed workspace.
var ErrClosed = errors.New("merge workspace closed")

// Phase is the lifecycle position of a merge workspace.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseLoadFailed Phase = "load-failed"
	PhaseReady      Phase = "ready"
	PhaseMerging    Phase = "merging"
	PhaseMerged     Phase = "merged"
)

// Outcome reports how a confirmed action ended.
type Outcome string

const (
	OutcomeDeclined Outcome = "declined"
	OutcomeMerged   Outcome = "merged"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeFailed   Outcome = "failed"
)

// Journal records merge attempts.
type Journal interface {
	RecordMerge(ctx context.Context, entry journal.MergeEntry) (journal.MergeEntry, error)
}

// Options wires a Workspace to its collaborators. Zero values are safe.
type Options struct {
	Sink      notify.Sink
	Journal   Journal
	Logger    *slog.Logger
	RecordURL func(id string) string
}

// Result is the outcome of a successful merge.
type Result struct {
	MasterID    string `json:"masterRecordId"`
	MergedCount int    `json:"mergedCount"`
	Message     string `json:"message,omitempty"`
	RecordURL   string `json:"recordUrl,omitempty"`
}

// Workspace owns the comparison of one duplicate group while it is reviewed
// and merged. Methods are safe for concurrent use; the lock is never held
// across remote calls or confirmation prompts.
type Workspace struct {
	groupID     string
	comparisons remote.Comparisons
	sink        notify.Sink
	journal     Journal
	logger      *slog.Logger
	recordURL   func(string) string

	mu        sync.Mutex
	phase     Phase
	loadErr   string
	selection *compare.Selection
	filter    compare.Filter
	result    *Result
	loadGen   uint64
	revision  uint64
	closed    bool
}

// New returns a workspace for groupID in the loading phase. Call Load to
// fetch the comparison.
func New(groupID string, comparisons remote.Comparisons, opts Options) *Workspace {
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}
	logger := logging.NewComponentLogger(opts.Logger, "merge").With(logging.String(logging.FieldGroupID, groupID))
	return &Workspace{
		groupID:     groupID,
		comparisons: comparisons,
		sink:        sink,
		journal:     opts.Journal,
		logger:      logger,
		recordURL:   opts.RecordURL,
		phase:       PhaseLoading,
		selection:   compare.NewSelection(nil),
		filter:      compare.DefaultFilter(),
	}
}

// GroupID returns the duplicate group under review.
func (w *Workspace) GroupID() string { return w.groupID }

// Load fetches the comparison and replaces the selection wholesale. A failed
// load leaves the workspace in PhaseLoadFailed with the extracted message.
func (w *Workspace) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.phase == PhaseMerging {
		w.mu.Unlock()
		return ErrMergeNotAllowed
	}
	w.loadGen++
	gen := w.loadGen
	w.phase = PhaseLoading
	w.loadErr = ""
	w.mu.Unlock()

	cmp, err := w.comparisons.GetComparison(ctx, w.groupID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.loadGen {
		return nil
	}
	if err != nil {
		w.phase = PhaseLoadFailed
		w.loadErr = remote.Message(err)
		w.logger.Warn("comparison load failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "comparison_load_failed"),
			logging.String(logging.FieldErrorHint, "check backend connectivity and the group id"),
		)
		return fmt.Errorf("load comparison: %w", err)
	}
	w.selection = compare.NewSelection(cmp)
	w.result = nil
	w.revision++
	w.phase = PhaseReady
	w.logger.Debug("comparison loaded",
		logging.Int("records", w.selection.RecordCount()),
		logging.Int("fields", w.selection.FieldCount()),
	)
	return nil
}

func (w *Workspace) mutate(fn func() bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.phase != PhaseReady {
		return false
	}
	if fn() {
		w.revision++
		return true
	}
	return false
}

// SelectMaster makes recordID the master, resetting every field choice.
func (w *Workspace) SelectMaster(recordID string) error {
	var err error
	ok := w.mutate(func() bool {
		err = w.selection.SetMaster(recordID)
		return err == nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrMergeNotAllowed
	}
	return nil
}

// SelectValue sources a field from recordID. It reports false when the
// choice is not permitted.
func (w *Workspace) SelectValue(apiName, recordID string) bool {
	return w.mutate(func() bool {
		return w.selection.Choose(apiName, recordID)
	})
}

// SetFilter replaces the field filter.
func (w *Workspace) SetFilter(f compare.Filter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.filter = f
	}
}

// ToggleDifferences flips visibility of differing fields.
func (w *Workspace) ToggleDifferences() {
	w.updateFilter(func(f *compare.Filter) { f.Differences = !f.Differences })
}

// ToggleSame flips visibility of identical fields.
func (w *Workspace) ToggleSame() {
	w.updateFilter(func(f *compare.Filter) { f.Same = !f.Same })
}

// ToggleEmpty flips visibility of empty fields.
func (w *Workspace) ToggleEmpty() {
	w.updateFilter(func(f *compare.Filter) { f.Empty = !f.Empty })
}

// SetSearch narrows visible fields by label, api name or value.
func (w *Workspace) SetSearch(term string) {
	w.updateFilter(func(f *compare.Filter) { f.Search = term })
}

func (w *Workspace) updateFilter(fn func(*compare.Filter)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		fn(&w.filter)
	}
}

// CanMerge reports whether Merge would reach the confirmation gate.
func (w *Workspace) CanMerge() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canMergeLocked()
}

func (w *Workspace) canMergeLocked() bool {
	return !w.closed &&
		w.phase == PhaseReady &&
		w.selection.Master() != "" &&
		w.selection.RecordCount() >= 2
}

// MergeQuestion is the confirmation text for merging count records into master.
func MergeQuestion(count int, master string) string {
	return fmt.Sprintf("Are you sure you want to merge %d record(s) into \"%s\"?\n\n"+
		"This action cannot be undone. The duplicate records will be deleted.", count, master)
}

// DeleteQuestion is the confirmation text for deleting a duplicate set.
const DeleteQuestion = "Are you sure you want to delete this duplicate set?"

// Merge asks for confirmation and sends the merge. It returns
// ErrMergeNotAllowed without a remote call when preconditions fail, and
// OutcomeDeclined with state untouched when confirmation is declined.
func (w *Workspace) Merge(ctx context.Context, confirm notify.Confirm) (Outcome, error) {
	w.mu.Lock()
	if !w.canMergeLocked() {
		w.mu.Unlock()
		return OutcomeFailed, ErrMergeNotAllowed
	}
	req := remote.MergeRequest{
		MasterID:        w.selection.Master(),
		DuplicateIDs:    w.selection.DuplicateIDs(),
		FieldSelections: w.selection.Overrides(),
		GroupID:         w.groupID,
	}
	question := MergeQuestion(len(req.DuplicateIDs), w.selection.MasterName())
	rev := w.revision
	w.mu.Unlock()

	if !notify.Ask(ctx, confirm, question) {
		return OutcomeDeclined, nil
	}

	w.mu.Lock()
	if !w.canMergeLocked() || rev != w.revision {
		w.mu.Unlock()
		return OutcomeFailed, ErrMergeNotAllowed
	}
	w.phase = PhaseMerging
	gen := w.loadGen
	w.mu.Unlock()

	w.logger.Info("merge requested",
		logging.String("master_id", req.MasterID),
		logging.Int("duplicates", len(req.DuplicateIDs)),
		logging.Int("overrides", len(req.FieldSelections)),
	)

	result, err := w.comparisons.MergeRecords(ctx, req)
	if err == nil && !result.Success {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = "Merge was not completed"
		}
		err = &remote.Error{Op: "merge records", Message: msg}
	}
	w.record(ctx, req, result, err)

	w.mu.Lock()
	if w.closed || gen != w.loadGen {
		w.mu.Unlock()
		if err != nil {
			return OutcomeFailed, err
		}
		// The records are merged on the backend even though this view is
		// gone, so the listing still has to hear about it.
		masterID := result.MasterRecordID
		if masterID == "" {
			masterID = req.MasterID
		}
		w.logger.Info("merge completed after workspace closed",
			logging.String("master_id", masterID),
			logging.Int("merged", result.MergedCount),
		)
		w.sink.Emit(ctx, notify.Event{
			Kind:        notify.EventMergeComplete,
			GroupID:     w.groupID,
			MasterID:    masterID,
			MergedCount: result.MergedCount,
		})
		return OutcomeMerged, nil
	}
	if err != nil {
		w.phase = PhaseReady
		w.mu.Unlock()
		w.logger.Warn("merge failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "merge_failed"),
			logging.String(logging.FieldErrorHint, "review the backend message and retry"),
		)
		w.sink.Notify(ctx, notify.Failure(notify.SourceMerge, remote.Message(err)))
		return OutcomeFailed, err
	}
	res := &Result{
		MasterID:    result.MasterRecordID,
		MergedCount: result.MergedCount,
		Message:     result.Message,
	}
	if res.MasterID == "" {
		res.MasterID = req.MasterID
	}
	if w.recordURL != nil {
		res.RecordURL = w.recordURL(res.MasterID)
	}
	w.phase = PhaseMerged
	w.result = res
	w.mu.Unlock()

	w.logger.Info("merge completed", logging.String("master_id", res.MasterID), logging.Int("merged", res.MergedCount))
	w.sink.Notify(ctx, notify.Success(notify.SourceMerge,
		fmt.Sprintf("Merged %d record(s) into %s", res.MergedCount, res.MasterID)))
	w.sink.Emit(ctx, notify.Event{
		Kind:        notify.EventMergeComplete,
		GroupID:     w.groupID,
		MasterID:    res.MasterID,
		MergedCount: res.MergedCount,
	})
	return OutcomeMerged, nil
}

func (w *Workspace) record(ctx context.Context, req remote.MergeRequest, result *remote.MergeResult, err error) {
	if w.journal == nil {
		return
	}
	entry := journal.MergeEntry{
		GroupID:      req.GroupID,
		MasterID:     req.MasterID,
		DuplicateIDs: req.DuplicateIDs,
		Overrides:    req.FieldSelections,
		Success:      err == nil,
	}
	if result != nil {
		entry.MergedCount = result.MergedCount
		entry.Message = result.Message
	}
	if err != nil {
		entry.Message = remote.Message(err)
	}
	if _, jerr := w.journal.RecordMerge(context.WithoutCancel(ctx), entry); jerr != nil {
		logging.WarnWithContext(w.logger, "journal write failed", "journal_failed", logging.Error(jerr))
	}
}

// Delete asks for confirmation and deletes the whole duplicate set. On
// success it emits merge-complete then close.
func (w *Workspace) Delete(ctx context.Context, confirm notify.Confirm) (Outcome, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return OutcomeFailed, ErrClosed
	}
	if w.phase == PhaseMerging {
		w.mu.Unlock()
		return OutcomeFailed, ErrMergeNotAllowed
	}
	w.mu.Unlock()

	if !notify.Ask(ctx, confirm, DeleteQuestion) {
		return OutcomeDeclined, nil
	}

	if err := w.comparisons.DeleteGroup(ctx, w.groupID); err != nil {
		w.logger.Warn("delete failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "group_delete_failed"),
			logging.String(logging.FieldErrorHint, "retry or reload the listing"),
		)
		msg := remote.Message(err)
		if msg == remote.FallbackMessage {
			msg = "Failed to delete set"
		}
		w.sink.Notify(ctx, notify.Failure(notify.SourceMerge, msg))
		return OutcomeFailed, fmt.Errorf("delete group: %w", err)
	}

	w.logger.Info("duplicate set deleted")
	w.sink.Notify(ctx, notify.Success(notify.SourceMerge, "Duplicate set deleted successfully."))
	w.sink.Emit(ctx, notify.Event{Kind: notify.EventMergeComplete, GroupID: w.groupID})
	w.Close(ctx)
	return OutcomeDeleted, nil
}

// Close emits the close event. Further calls are no-ops.
func (w *Workspace) Close(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.sink.Emit(ctx, notify.Event{Kind: notify.EventClose, GroupID: w.groupID})
}
