// Package remotetest provides an in-memory duplicate backend for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mergedesk/internal/compare"
	"mergedesk/internal/remote"
)

// Operation names accepted by Fail, Calls and OnCall.
const (
	OpGetComparison = "GetComparison"
	OpMergeRecords  = "MergeRecords"
	OpDeleteGroup   = "DeleteGroup"
	OpListGroups    = "ListGroups"
	OpGetSummary    = "GetSummary"
	OpStartScan     = "StartScan"
	OpGetJobStatus  = "GetJobStatus"
	OpAbortJob      = "AbortJob"
	OpRecentJobs    = "RecentJobs"
	OpFilterFields  = "FilterFields"
	OpObjectTypes   = "ObjectTypes"
	OpSchedules     = "Schedules"
	OpSchedule      = "ScheduleScan"
	OpUnschedule    = "UnscheduleScan"
)

// Backend is a goroutine-safe in-memory remote.Backend.
type Backend struct {
	mu           sync.Mutex
	comparisons  map[string]*remote.Comparison
	groups       []remote.DuplicateGroup
	jobs         map[string]remote.JobStatus
	recent       []string
	filterFields map[string][]remote.FilterField
	objectTypes  []remote.ObjectTypeOption
	schedules    map[string]remote.ScheduleStatus
	failures     map[string]error
	hooks        map[string]func(context.Context)
	calls        map[string]int
	merges       []remote.MergeRequest
	mergeResult  *remote.MergeResult
	queries      []remote.ListQuery
	nextJob      int
}

var _ remote.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		comparisons:  map[string]*remote.Comparison{},
		jobs:         map[string]remote.JobStatus{},
		filterFields: map[string][]remote.FilterField{},
		schedules:    map[string]remote.ScheduleStatus{},
		failures:     map[string]error{},
		hooks:        map[string]func(context.Context){},
		calls:        map[string]int{},
	}
}

// SetComparison registers the comparison returned for groupID.
func (b *Backend) SetComparison(groupID string, cmp *remote.Comparison) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.comparisons[groupID] = cmp
}

// AddGroups appends listing items.
func (b *Backend) AddGroups(groups ...remote.DuplicateGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups = append(b.groups, groups...)
}

// Groups returns the current listing items.
func (b *Backend) Groups() []remote.DuplicateGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]remote.DuplicateGroup(nil), b.groups...)
}

// SetJobStatus replaces the status reported for a job.
func (b *Backend) SetJobStatus(status remote.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[status.JobID] = status
}

// SetRecentJobs replaces the recent-jobs list. Jobs started later are
// listed ahead of these.
func (b *Backend) SetRecentJobs(jobs ...remote.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = b.recent[:0]
	for _, j := range jobs {
		b.recent = append(b.recent, j.JobID)
		b.jobs[j.JobID] = j
	}
}

// SetFilterFields registers the filter fields of objectType.
func (b *Backend) SetFilterFields(objectType string, fields ...remote.FilterField) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filterFields[objectType] = fields
}

// SetObjectTypes replaces the object-type options.
func (b *Backend) SetObjectTypes(options ...remote.ObjectTypeOption) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objectTypes = options
}

// SetMergeResult overrides the result of the next merges.
func (b *Backend) SetMergeResult(result remote.MergeResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mergeResult = &result
}

// Fail makes op return err until cleared with a nil err.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// OnCall runs fn at the start of every op call, outside the backend lock.
func (b *Backend) OnCall(op string, fn func(context.Context)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.hooks, op)
		return
	}
	b.hooks[op] = fn
}

// Calls reports how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Merges returns every merge request received.
func (b *Backend) Merges() []remote.MergeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]remote.MergeRequest(nil), b.merges...)
}

// Queries returns every listing query received.
func (b *Backend) Queries() []remote.ListQuery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]remote.ListQuery(nil), b.queries...)
}

// LastQuery returns the most recent listing query.
func (b *Backend) LastQuery() (remote.ListQuery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queries) == 0 {
		return remote.ListQuery{}, false
	}
	return b.queries[len(b.queries)-1], true
}

func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	hook := b.hooks[op]
	b.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[op]; err != nil {
		return err
	}
	return ctx.Err()
}

func (b *Backend) GetComparison(ctx context.Context, groupID string) (*remote.Comparison, error) {
	if err := b.enter(ctx, OpGetComparison); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cmp, ok := b.comparisons[groupID]
	if !ok {
		return nil, &remote.Error{Op: "get comparison", StatusCode: 404, Message: fmt.Sprintf("Duplicate set %s not found", groupID)}
	}
	clone := *cmp
	clone.Records = append([]remote.Record(nil), cmp.Records...)
	clone.Fields = append([]remote.Field(nil), cmp.Fields...)
	return &clone, nil
}

func (b *Backend) MergeRecords(ctx context.Context, req remote.MergeRequest) (*remote.MergeResult, error) {
	if err := b.enter(ctx, OpMergeRecords); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.merges = append(b.merges, req)
	if b.mergeResult != nil {
		result := *b.mergeResult
		return &result, nil
	}
	b.removeGroupLocked(req.GroupID)
	return &remote.MergeResult{Success: true, MasterRecordID: req.MasterID, MergedCount: len(req.DuplicateIDs)}, nil
}

func (b *Backend) DeleteGroup(ctx context.Context, groupID string) error {
	if err := b.enter(ctx, OpDeleteGroup); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeGroupLocked(groupID)
	return nil
}

func (b *Backend) removeGroupLocked(groupID string) {
	for i, g := range b.groups {
		if g.ID == groupID {
			b.groups = append(b.groups[:i], b.groups[i+1:]...)
			return
		}
	}
}

func (b *Backend) ListGroups(ctx context.Context, query remote.ListQuery) (*remote.GroupPage, error) {
	if err := b.enter(ctx, OpListGroups); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, query)

	var matched []remote.DuplicateGroup
	for _, g := range b.groups {
		if matchesQuery(g, query) {
			matched = append(matched, g)
		}
	}
	page := &remote.GroupPage{TotalCount: len(matched)}
	start := min(max(query.Offset, 0), len(matched))
	end := len(matched)
	if query.Limit > 0 {
		end = min(start+query.Limit, len(matched))
	}
	page.DuplicateSets = append([]remote.DuplicateGroup(nil), matched[start:end]...)
	return page, nil
}

func matchesQuery(g remote.DuplicateGroup, q remote.ListQuery) bool {
	if q.ObjectType != "" && q.ObjectType != "All" && g.ObjectType != q.ObjectType {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(q.SearchTerm)); term != "" {
		if !strings.Contains(strings.ToLower(g.Name), term) {
			return false
		}
	}
	for _, f := range q.Filters {
		found := false
		for _, r := range g.SampleRecords {
			if fmt.Sprint(r.FieldValues[f.Field]) == f.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (b *Backend) GetSummary(ctx context.Context) (*remote.Summary, error) {
	if err := b.enter(ctx, OpGetSummary); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	summary := &remote.Summary{TotalSets: len(b.groups)}
	counts := map[string]int{}
	for _, g := range b.groups {
		summary.TotalItems += g.RecordCount
		counts[g.ObjectType]++
	}
	for objectType, count := range counts {
		summary.SetsByObject = append(summary.SetsByObject, remote.ObjectCount{ObjectType: objectType, Count: count})
	}
	sort.Slice(summary.SetsByObject, func(i, j int) bool {
		return summary.SetsByObject[i].ObjectType < summary.SetsByObject[j].ObjectType
	})
	return summary, nil
}

func (b *Backend) StartScan(ctx context.Context, objectType string) (string, error) {
	if err := b.enter(ctx, OpStartScan); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextJob++
	jobID := fmt.Sprintf("job-%d", b.nextJob)
	b.jobs[jobID] = remote.JobStatus{JobID: jobID, Status: remote.StatusQueued, ObjectType: objectType}
	b.recent = append([]string{jobID}, b.recent...)
	return jobID, nil
}

func (b *Backend) GetJobStatus(ctx context.Context, jobID string) (*remote.JobStatus, error) {
	if err := b.enter(ctx, OpGetJobStatus); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.jobs[jobID]
	if !ok {
		return nil, &remote.Error{Op: "get job status", StatusCode: 404, Message: "Job not found"}
	}
	return &status, nil
}

func (b *Backend) AbortJob(ctx context.Context, jobID string) error {
	if err := b.enter(ctx, OpAbortJob); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.jobs[jobID]
	status.JobID = jobID
	status.Status = remote.StatusAborted
	status.IsComplete = true
	b.jobs[jobID] = status
	return nil
}

func (b *Backend) RecentJobs(ctx context.Context) ([]remote.JobStatus, error) {
	if err := b.enter(ctx, OpRecentJobs); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jobs := make([]remote.JobStatus, 0, len(b.recent))
	for _, id := range b.recent {
		jobs = append(jobs, b.jobs[id])
	}
	return jobs, nil
}

func (b *Backend) FilterFields(ctx context.Context, objectType string) ([]remote.FilterField, error) {
	if err := b.enter(ctx, OpFilterFields); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]remote.FilterField(nil), b.filterFields[objectType]...), nil
}

func (b *Backend) ObjectTypes(ctx context.Context) ([]remote.ObjectTypeOption, error) {
	if err := b.enter(ctx, OpObjectTypes); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]remote.ObjectTypeOption(nil), b.objectTypes...), nil
}

func (b *Backend) Schedules(ctx context.Context) ([]remote.ScheduleStatus, error) {
	if err := b.enter(ctx, OpSchedules); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]remote.ScheduleStatus, 0, len(b.schedules))
	for _, s := range b.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectType < out[j].ObjectType })
	return out, nil
}

func (b *Backend) ScheduleScan(ctx context.Context, objectType, at string) error {
	if err := b.enter(ctx, OpSchedule); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schedules[objectType] = remote.ScheduleStatus{ObjectType: objectType, IsScheduled: true, ScheduledTime: at}
	return nil
}

func (b *Backend) UnscheduleScan(ctx context.Context, objectType string) error {
	if err := b.enter(ctx, OpUnschedule); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.schedules, objectType)
	return nil
}

// Field builds a comparison field from display values, one per record.
// Blank displays are empty values. The field is updateable.
func Field(apiName string, displays ...string) remote.Field {
	f := remote.Field{APIName: apiName, Label: apiName, Type: "STRING", IsUpdateable: true}
	for _, d := range displays {
		v := remote.FieldValue{DisplayValue: d, IsEmpty: strings.TrimSpace(d) == ""}
		if !v.IsEmpty {
			v.Value = d
		}
		f.Values = append(f.Values, v)
	}
	return f
}

// ReadOnly marks f as not updateable.
func ReadOnly(f remote.Field) remote.Field {
	f.IsUpdateable = false
	return f
}

// Comparison assembles a comparison, assigning value record ids in record
// order and classifying each field.
func Comparison(records []remote.Record, fields ...remote.Field) *remote.Comparison {
	cmp := &remote.Comparison{Records: append([]remote.Record(nil), records...)}
	for _, f := range fields {
		values := make([]remote.FieldValue, len(f.Values))
		copy(values, f.Values)
		for i := range values {
			if i < len(records) {
				values[i].RecordID = records[i].RecordID
			}
		}
		f.Values = values
		compare.Classify(values).Apply(&f)
		cmp.Fields = append(cmp.Fields, f)
	}
	return cmp
}

// Records builds candidates named after their ids.
func Records(ids ...string) []remote.Record {
	out := make([]remote.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, remote.Record{RecordID: id, RecordName: "Record " + id})
	}
	return out
}

// ContactScenario is a two-record contact group: FirstName agrees, LastName
// and Email differ, Phone is empty on both.
func ContactScenario() *remote.Comparison {
	return Comparison(
		[]remote.Record{{RecordID: "A", RecordName: "John Doe"}, {RecordID: "B", RecordName: "J. Doe"}},
		Field("FirstName", "John", "John"),
		Field("LastName", "Doe", "D."),
		Field("Email", "john@x.com", "johnd@x.com"),
		Field("Phone", "", ""),
	)
}

// Groups builds n listing items of objectType with two records each.
func Groups(objectType string, n int) []remote.DuplicateGroup {
	out := make([]remote.DuplicateGroup, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, remote.DuplicateGroup{
			ID:          fmt.Sprintf("%s-%03d", strings.ToLower(objectType), i),
			Name:        fmt.Sprintf("%s set %d", objectType, i),
			ObjectType:  objectType,
			RecordCount: 2,
		})
	}
	return out
}
