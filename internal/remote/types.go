package remote

import "context"

// Record is a candidate record inside a duplicate group.
type Record struct {
	RecordID   string `json:"recordId"`
	RecordName string `json:"recordName"`
}

// FieldValue is one record's value for a compared field.
type FieldValue struct {
	RecordID     string `json:"recordId"`
	Value        any    `json:"value"`
	DisplayValue string `json:"displayValue"`
	IsEmpty      bool   `json:"isEmpty"`
}

// Field is a compared field with classification flags precomputed by the backend.
type Field struct {
	APIName       string       `json:"apiName"`
	Label         string       `json:"label"`
	Type          string       `json:"type"`
	IsUpdateable  bool         `json:"isUpdateable"`
	IsRequired    bool         `json:"isRequired"`
	IsNameField   bool         `json:"isNameField"`
	HasDifference bool         `json:"hasDifference"`
	AllSame       bool         `json:"allSame"`
	AllEmpty      bool         `json:"allEmpty"`
	Values        []FieldValue `json:"values"`
}

// Comparison is the field-by-field view of one duplicate group.
type Comparison struct {
	Records []Record `json:"records"`
	Fields  []Field  `json:"fields"`
}

// MergeRequest asks the backend to merge duplicates into the master record.
// FieldSelections only carries fields whose chosen source is not the master.
type MergeRequest struct {
	MasterID        string            `json:"masterRecordId"`
	DuplicateIDs    []string          `json:"duplicateRecordIds"`
	FieldSelections map[string]string `json:"fieldSelections"`
	GroupID         string            `json:"duplicateSetId,omitempty"`
}

// MergeResult is the backend's answer to a merge.
type MergeResult struct {
	Success        bool   `json:"success"`
	MasterRecordID string `json:"masterRecordId"`
	MergedCount    int    `json:"mergedCount"`
	Message        string `json:"message"`
}

// SampleRecord is a preview record attached to a listing item.
type SampleRecord struct {
	RecordID    string         `json:"recordId"`
	RecordName  string         `json:"recordName"`
	FieldValues map[string]any `json:"fieldValues"`
}

// DuplicateGroup is one item of a group listing.
type DuplicateGroup struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	ObjectType       string            `json:"objectType"`
	RecordCount      int               `json:"recordCount"`
	SampleRecords    []SampleRecord    `json:"sampleRecords"`
	FieldDifferences map[string]bool   `json:"fieldDifferences,omitempty"`
	FieldLabels      map[string]string `json:"fieldLabels,omitempty"`
}

// FilterCriterion constrains a listing to records whose field equals value.
type FilterCriterion struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ListQuery selects one page of duplicate groups.
type ListQuery struct {
	ObjectType string
	SearchTerm string
	Limit      int
	Offset     int
	Filters    []FilterCriterion
}

// GroupPage is one page of duplicate groups plus the total match count.
type GroupPage struct {
	DuplicateSets []DuplicateGroup `json:"duplicateSets"`
	TotalCount    int              `json:"totalCount"`
}

// ObjectCount is the number of duplicate groups for one object type.
type ObjectCount struct {
	ObjectType string `json:"objectType"`
	Count      int    `json:"count"`
}

// Summary aggregates duplicate counts across object types.
type Summary struct {
	TotalSets    int           `json:"totalSets"`
	TotalItems   int           `json:"totalItems"`
	SetsByObject []ObjectCount `json:"setsByObject"`
}

// Scan job statuses reported by the backend.
const (
	StatusQueued     = "Queued"
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
	StatusAborted    = "Aborted"
)

// JobStatus is a snapshot of a background scan job.
type JobStatus struct {
	JobID           string `json:"jobId"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progressPercent"`
	IsComplete      bool   `json:"isComplete"`
	IsSuccess       bool   `json:"isSuccess"`
	ExtendedStatus  string `json:"extendedStatus,omitempty"`
	ObjectType      string `json:"objectType,omitempty"`
}

// FilterField describes a field usable as a listing filter.
type FilterField struct {
	APIName        string   `json:"apiName"`
	Label          string   `json:"label"`
	FieldType      string   `json:"fieldType"`
	IsFilterable   bool     `json:"isFilterable"`
	PicklistValues []string `json:"picklistValues,omitempty"`
}

// IsPicklist reports whether the field takes one of a fixed set of values.
func (f FilterField) IsPicklist() bool {
	return f.FieldType == "PICKLIST" || f.FieldType == "MULTIPICKLIST"
}

// ObjectTypeOption is a selectable object-type scope.
type ObjectTypeOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ScheduleStatus describes the daily scan schedule for one object type.
type ScheduleStatus struct {
	ObjectType    string `json:"objectType"`
	IsScheduled   bool   `json:"isScheduled"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	NextFireTime  string `json:"nextFireTime,omitempty"`
}

// Comparisons loads and acts on a single duplicate group.
type Comparisons interface {
	GetComparison(ctx context.Context, groupID string) (*Comparison, error)
	MergeRecords(ctx context.Context, req MergeRequest) (*MergeResult, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// Scans starts, observes and schedules background scan jobs.
type Scans interface {
	StartScan(ctx context.Context, objectType string) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
	AbortJob(ctx context.Context, jobID string) error
	RecentJobs(ctx context.Context) ([]JobStatus, error)
	Schedules(ctx context.Context) ([]ScheduleStatus, error)
	ScheduleScan(ctx context.Context, objectType, at string) error
	UnscheduleScan(ctx context.Context, objectType string) error
}

// Listings pages through duplicate groups.
type Listings interface {
	ListGroups(ctx context.Context, query ListQuery) (*GroupPage, error)
	GetSummary(ctx context.Context) (*Summary, error)
	FilterFields(ctx context.Context, objectType string) ([]FilterField, error)
	ObjectTypes(ctx context.Context) ([]ObjectTypeOption, error)
	DeleteGroup(ctx context.Context, groupID string) error
	RecentJobs(ctx context.Context) ([]JobStatus, error)
}

// Backend is the full remote collaborator.
type Backend interface {
	Comparisons
	Scans
	Listings
}
