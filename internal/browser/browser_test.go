package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mergedesk/internal/browser"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
	"mergedesk/internal/remote/remotetest"
	"mergedesk/internal/testsupport"
)

type fixture struct {
	backend *remotetest.Backend
	clock   *testsupport.Clock
	sink    *notify.Recorder
	state   *browser.State
	scopes  []string
	jobs    [][]remote.JobStatus
}

func newFixture(t *testing.T, groups ...remote.DuplicateGroup) *fixture {
	t.Helper()
	f := &fixture{
		backend: remotetest.New(),
		clock:   testsupport.NewClock(),
		sink:    &notify.Recorder{},
	}
	f.backend.AddGroups(groups...)
	f.state = browser.New(f.backend, browser.Options{
		Clock:        f.clock,
		PageSize:     12,
		Sink:         f.sink,
		ScopeChanged: func(objectType string) { f.scopes = append(f.scopes, objectType) },
		RecentJobs:   func(jobs []remote.JobStatus) { f.jobs = append(f.jobs, jobs) },
	})
	t.Cleanup(f.state.Close)
	return f
}

func (f *fixture) reload(t *testing.T) {
	t.Helper()
	if err := f.state.Reload(context.Background()); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
}

func TestPageTwoOffsetAndLastPageRefused(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 30)...)
	ctx := context.Background()
	f.reload(t)

	if f.state.CanPrev() {
		t.Fatal("expected prev disabled on page 1")
	}
	moved, err := f.state.NextPage(ctx)
	if err != nil || !moved {
		t.Fatalf("NextPage = %v, %v", moved, err)
	}
	if f.state.Offset() != 12 {
		t.Fatalf("expected offset 12, got %d", f.state.Offset())
	}
	query, _ := f.backend.LastQuery()
	if query.Offset != 12 || query.Limit != 12 {
		t.Fatalf("unexpected listing query %#v", query)
	}

	if moved, _ := f.state.NextPage(ctx); !moved {
		t.Fatal("expected page 3")
	}
	if f.state.TotalPages() != 3 || f.state.CanNext() {
		t.Fatalf("expected last of 3 pages, total=%d", f.state.TotalPages())
	}
	calls := f.backend.Calls(remotetest.OpListGroups)
	moved, err = f.state.NextPage(ctx)
	if err != nil || moved {
		t.Fatalf("expected next refused, got %v %v", moved, err)
	}
	if f.backend.Calls(remotetest.OpListGroups) != calls {
		t.Fatal("refused navigation must not fetch")
	}
	if got := len(f.state.View().Groups); got != 6 {
		t.Fatalf("expected 6 items on the last page, got %d", got)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 12, 1},
		{1, 12, 1},
		{12, 12, 1},
		{13, 12, 2},
		{48, 24, 2},
	}
	for _, tt := range tests {
		if got := browser.TotalPages(tt.total, tt.size); got != tt.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestDimensionChangesResetPage(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 30)...)
	f.backend.SetFilterFields("Contact", remote.FilterField{APIName: "LeadSource", Label: "Lead Source", FieldType: "PICKLIST", IsFilterable: true, PicklistValues: []string{"Web"}})
	ctx := context.Background()
	f.reload(t)

	if _, err := f.state.NextPage(ctx); err != nil {
		t.Fatalf("NextPage returned error: %v", err)
	}
	if err := f.state.SetFilter(ctx, "LeadSource", "Web"); err != nil {
		t.Fatalf("SetFilter returned error: %v", err)
	}
	if q := f.state.Query(); q.PageIndex != 1 || q.Filters["LeadSource"] != "Web" {
		t.Fatalf("unexpected query %#v", q)
	}
	last, _ := f.backend.LastQuery()
	if len(last.Filters) != 1 || last.Filters[0] != (remote.FilterCriterion{Field: "LeadSource", Value: "Web"}) {
		t.Fatalf("expected filter criteria sent, got %#v", last.Filters)
	}

	if err := f.state.SetObjectType(ctx, "Contact"); err != nil {
		t.Fatalf("SetObjectType returned error: %v", err)
	}
	q := f.state.Query()
	if q.ObjectType != "Contact" || len(q.Filters) != 0 || q.PageIndex != 1 {
		t.Fatalf("expected filters cleared on scope change, got %#v", q)
	}
	if len(f.scopes) != 1 || f.scopes[0] != "Contact" {
		t.Fatalf("expected scope hook, got %v", f.scopes)
	}
	view := f.state.View()
	if len(view.FilterFields) != 1 || !view.FilterFields[0].IsPicklist() {
		t.Fatalf("expected filter fields for Contact, got %#v", view.FilterFields)
	}

	if err := f.state.SetObjectType(ctx, browser.AllObjects); err != nil {
		t.Fatalf("SetObjectType returned error: %v", err)
	}
	if len(f.state.View().FilterFields) != 0 {
		t.Fatal("expected no filter fields for all objects")
	}
	if f.backend.Calls(remotetest.OpFilterFields) != 1 {
		t.Fatal("expected filter fields fetched only for a specific object type")
	}
}

func TestFilterFieldFailureLeavesEmptyList(t *testing.T) {
	f := newFixture(t)
	f.backend.Fail(remotetest.OpFilterFields, errors.New("timeout"))
	if err := f.state.SetObjectType(context.Background(), "Lead"); err != nil {
		t.Fatalf("SetObjectType returned error: %v", err)
	}
	if view := f.state.View(); len(view.FilterFields) != 0 || view.Error != "" {
		t.Fatalf("expected empty filter fields without view error, got %#v", view)
	}
}

func TestSetPageSize(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 30)...)
	ctx := context.Background()
	if err := f.state.SetPageSize(ctx, 10); !errors.Is(err, browser.ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
	if err := f.state.SetPageSize(ctx, 24); err != nil {
		t.Fatalf("SetPageSize returned error: %v", err)
	}
	if f.state.TotalPages() != 2 {
		t.Fatalf("expected 2 pages of 24, got %d", f.state.TotalPages())
	}
}

func TestTypeSearchDebounce(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.reload(t)
	before := f.backend.Calls(remotetest.OpListGroups)

	for _, term := range []string{"s", "se", "set 2"} {
		f.state.TypeSearch(term)
		f.clock.Advance(100 * time.Millisecond)
	}
	if f.backend.Calls(remotetest.OpListGroups) != before {
		t.Fatal("expected no fetch while typing")
	}
	if f.clock.Pending() != 1 {
		t.Fatalf("expected one pending debounce timer, got %d", f.clock.Pending())
	}

	f.clock.Advance(browser.DefaultDebounce)
	if got := f.backend.Calls(remotetest.OpListGroups) - before; got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
	query, _ := f.backend.LastQuery()
	if query.SearchTerm != "set 2" || query.Offset != 0 {
		t.Fatalf("unexpected search query %#v", query)
	}
	view := f.state.View()
	if view.SearchResultsMessage != `Found 1 set matching "set 2"` {
		t.Fatalf("unexpected search message %q", view.SearchResultsMessage)
	}
}

func TestCloseCancelsDebounce(t *testing.T) {
	f := newFixture(t)
	f.state.TypeSearch("doe")
	f.state.Close()
	if f.clock.Pending() != 0 {
		t.Fatal("expected debounce timer cancelled")
	}
	f.clock.Advance(time.Second)
	if f.backend.Calls(remotetest.OpListGroups) != 0 {
		t.Fatal("expected no fetch after close")
	}
	if err := f.state.Reload(context.Background()); !errors.Is(err, browser.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestScopeChangeCancelsPendingSearch(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.state.TypeSearch("set 1")
	if err := f.state.SetObjectType(context.Background(), "Contact"); err != nil {
		t.Fatalf("SetObjectType returned error: %v", err)
	}
	if f.clock.Pending() != 0 {
		t.Fatal("expected debounce cancelled by scope change")
	}
	if q := f.state.Query(); q.SearchTerm != "set 1" {
		t.Fatalf("expected typed term applied with the scope change, got %q", q.SearchTerm)
	}
}

func TestDeleteDeclineNeverCallsRemote(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.reload(t)
	deleted, err := f.state.Delete(context.Background(), "contact-002", notify.Decline)
	if err != nil || deleted {
		t.Fatalf("expected decline, got %v %v", deleted, err)
	}
	if f.backend.Calls(remotetest.OpDeleteGroup) != 0 {
		t.Fatal("expected no remote delete")
	}
	if len(f.state.View().Groups) != 3 {
		t.Fatal("expected listing unchanged")
	}
}

func TestDeleteIsOptimistic(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.reload(t)

	var during browser.View
	f.backend.OnCall(remotetest.OpDeleteGroup, func(context.Context) { during = f.state.View() })
	deleted, err := f.state.Delete(context.Background(), "contact-002", notify.Accept)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if f.backend.Calls(remotetest.OpDeleteGroup) != 1 {
		t.Fatalf("expected exactly one remote delete, got %d", f.backend.Calls(remotetest.OpDeleteGroup))
	}
	if len(during.Groups) != 2 || during.TotalCount != 2 || during.Summary.TotalSets != 2 {
		t.Fatalf("expected one item removed before the remote call, got %d items total=%d sets=%d",
			len(during.Groups), during.TotalCount, during.Summary.TotalSets)
	}
	for _, g := range during.Groups {
		if g.ID == "contact-002" {
			t.Fatal("deleted item still listed")
		}
	}
	if during.Summary.SetsByObject[0].Count != 2 {
		t.Fatalf("expected per-object count decremented, got %#v", during.Summary.SetsByObject)
	}
	if last, _ := f.sink.Last(); last.Message != browser.NoticeDeleted || last.Severity != notify.SeveritySuccess {
		t.Fatalf("unexpected notice %#v", last)
	}
}

func TestDeleteFailureReloads(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.reload(t)
	f.backend.Fail(remotetest.OpDeleteGroup, &remote.Error{Op: "delete group", StatusCode: 500, Message: "Record locked"})

	if _, err := f.state.Delete(context.Background(), "contact-001", notify.Accept); err == nil {
		t.Fatal("expected error")
	}
	view := f.state.View()
	if len(view.Groups) != 3 || view.TotalCount != 3 {
		t.Fatalf("expected ground truth restored, got %d items", len(view.Groups))
	}
	if last, _ := f.sink.Last(); last.Severity != notify.SeverityError || last.Message != "Record locked" {
		t.Fatalf("unexpected notice %#v", last)
	}
}

func TestDeleteUnknownGroup(t *testing.T) {
	f := newFixture(t)
	if _, err := f.state.Delete(context.Background(), "nope", notify.Accept); !errors.Is(err, browser.ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestReloadFailureIsSingleViewError(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 3)...)
	f.backend.Fail(remotetest.OpGetSummary, &remote.Error{Op: "summary", StatusCode: 503, Message: "Service unavailable"})

	if err := f.state.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	view := f.state.View()
	if view.Error != "Service unavailable" {
		t.Fatalf("unexpected view error %q", view.Error)
	}
	if view.Loading || view.ShowEmptyState {
		t.Fatalf("expected error view, got %#v", view)
	}
	if len(f.jobs) != 0 {
		t.Fatal("recent jobs must not be handed over from a failed reload")
	}
}

func TestRefreshSkippedWhileReloading(t *testing.T) {
	f := newFixture(t, remotetest.Groups("Contact", 2)...)
	refreshed := true
	f.backend.OnCall(remotetest.OpListGroups, func(context.Context) {
		f.backend.OnCall(remotetest.OpListGroups, nil)
		refreshed, _ = f.state.Refresh(context.Background())
	})
	f.reload(t)
	if refreshed {
		t.Fatal("expected refresh skipped during reload")
	}
	if f.backend.Calls(remotetest.OpListGroups) != 1 {
		t.Fatalf("expected one listing fetch, got %d", f.backend.Calls(remotetest.OpListGroups))
	}

	if ok, err := f.state.Refresh(context.Background()); !ok || err != nil {
		t.Fatalf("expected idle refresh to run, got %v %v", ok, err)
	}
}

func TestReloadHandsRecentJobsOver(t *testing.T) {
	f := newFixture(t)
	f.backend.SetRecentJobs(remote.JobStatus{JobID: "707", Status: remote.StatusProcessing})
	f.reload(t)
	if len(f.jobs) != 1 || len(f.jobs[0]) != 1 || f.jobs[0][0].JobID != "707" {
		t.Fatalf("unexpected recent jobs %#v", f.jobs)
	}
}

func TestEmptyStateAndNoResultsMessages(t *testing.T) {
	f := newFixture(t)
	f.reload(t)
	if !f.state.View().ShowEmptyState {
		t.Fatal("expected empty state with no search or filters")
	}

	if err := f.state.SetSearch(context.Background(), "doe"); err != nil {
		t.Fatalf("SetSearch returned error: %v", err)
	}
	view := f.state.View()
	if view.ShowEmptyState || view.NoResultsMessage != `No duplicate sets match your search "doe"` {
		t.Fatalf("unexpected view %#v", view)
	}
	if view.SearchResultsMessage != `Found 0 sets matching "doe"` {
		t.Fatalf("unexpected search message %q", view.SearchResultsMessage)
	}
	if got := browser.NoResultsMessage("doe", true); got != `No duplicate sets match your search "doe" and filters` {
		t.Fatalf("unexpected message %q", got)
	}
	if got := browser.NoResultsMessage("", true); got != "No duplicate sets match your filters" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestBuildPreview(t *testing.T) {
	group := remote.DuplicateGroup{
		ID: "g1",
		SampleRecords: []remote.SampleRecord{
			{RecordName: "John Doe", FieldValues: map[string]any{"Email": "john@x.com", "FirstName": "John", "Phone": nil}},
			{RecordName: "J. Doe", FieldValues: map[string]any{"Email": "johnd@x.com", "FirstName": "John"}},
		},
		FieldDifferences: map[string]bool{"Email": true, "FirstName": false, "Phone": false},
		FieldLabels:      map[string]string{"Email": "Email Address"},
	}
	p := browser.BuildPreview(group)
	if p.FirstRecordName != "John Doe" {
		t.Fatalf("unexpected first record %q", p.FirstRecordName)
	}
	if len(p.Differing) != 1 || p.Differing[0].Label != "Email Address" || p.Differing[0].Value2 != "johnd@x.com" {
		t.Fatalf("unexpected differing fields %#v", p.Differing)
	}
	if len(p.Identical) != 1 || p.Identical[0].FieldName != "FirstName" || p.Identical[0].Value != "John" {
		t.Fatalf("expected empty identical fields skipped, got %#v", p.Identical)
	}

	group.FieldDifferences = nil
	p = browser.BuildPreview(group)
	if len(p.Differing) != 0 || len(p.Identical) != 2 {
		t.Fatalf("expected fallback to first record values, got %#v", p)
	}
	if !p.HasAnyFields() {
		t.Fatal("expected fields")
	}
}

func TestFormatValue(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{true, "Yes"},
		{false, "No"},
		{"2024-03-05", "Mar 5, 2024"},
		{"2024-03-05T10:00:00.000+0000", "Mar 5, 2024"},
		{"2024-13-45", "2024-13-45"},
		{float64(42), "42"},
		{long, long[:50] + "..."},
	}
	for _, tt := range tests {
		if got := browser.FormatValue(tt.in); got != tt.want {
			t.Fatalf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
