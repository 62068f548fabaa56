package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mergedesk/internal/remote"
)

// MergeEntry is one merge attempt that reached the backend.
type MergeEntry struct {
	ID           string            `json:"id"`
	GroupID      string            `json:"groupId"`
	MasterID     string            `json:"masterId"`
	DuplicateIDs []string          `json:"duplicateIds"`
	Overrides    map[string]string `json:"overrides"`
	MergedCount  int               `json:"mergedCount"`
	Success      bool              `json:"success"`
	Message      string            `json:"message,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// JobEntry is the last observed state of a scan job.
type JobEntry struct {
	remote.JobStatus
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordMerge appends a merge attempt. An empty ID is filled with a new UUID.
func (s *Store) RecordMerge(ctx context.Context, entry MergeEntry) (MergeEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.Overrides == nil {
		entry.Overrides = map[string]string{}
	}
	dupes, err := json.Marshal(entry.DuplicateIDs)
	if err != nil {
		return entry, fmt.Errorf("encode duplicate ids: %w", err)
	}
	overrides, err := json.Marshal(entry.Overrides)
	if err != nil {
		return entry, fmt.Errorf("encode overrides: %w", err)
	}
	err = s.exec(ctx, `INSERT INTO merges
		(id, group_id, master_id, duplicate_ids, overrides, merged_count, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.GroupID, entry.MasterID, string(dupes), string(overrides),
		entry.MergedCount, boolToInt(entry.Success), entry.Message, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return entry, fmt.Errorf("insert merge: %w", err)
	}
	return entry, nil
}

// RecordJob upserts the latest observed status of a scan job.
func (s *Store) RecordJob(ctx context.Context, status remote.JobStatus) error {
	now := formatTime(s.now().UTC())
	err := s.exec(ctx, `INSERT INTO scan_jobs
		(job_id, object_type, status, progress, complete, success, extended_status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			object_type = CASE WHEN excluded.object_type <> '' THEN excluded.object_type ELSE scan_jobs.object_type END,
			status = excluded.status,
			progress = excluded.progress,
			complete = excluded.complete,
			success = excluded.success,
			extended_status = excluded.extended_status,
			updated_at = excluded.updated_at`,
		status.JobID, status.ObjectType, status.Status, status.ProgressPercent,
		boolToInt(status.IsComplete), boolToInt(status.IsSuccess), status.ExtendedStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert scan job %s: %w", status.JobID, err)
	}
	return nil
}

// ListMerges returns up to limit merges, newest first. limit <= 0 returns all.
func (s *Store) ListMerges(ctx context.Context, limit int) ([]MergeEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT id, group_id, master_id, duplicate_ids, overrides,
		merged_count, success, message, created_at
		FROM merges ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query merges: %w", err)
	}
	defer rows.Close()

	var out []MergeEntry
	for rows.Next() {
		var (
			entry     MergeEntry
			dupes     string
			overrides string
			success   int
			created   string
		)
		if err := rows.Scan(&entry.ID, &entry.GroupID, &entry.MasterID, &dupes, &overrides,
			&entry.MergedCount, &success, &entry.Message, &created); err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		if err := json.Unmarshal([]byte(dupes), &entry.DuplicateIDs); err != nil {
			return nil, fmt.Errorf("decode duplicate ids of %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(overrides), &entry.Overrides); err != nil {
			return nil, fmt.Errorf("decode overrides of %s: %w", entry.ID, err)
		}
		entry.Success = success != 0
		entry.CreatedAt = parseTime(created)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListJobs returns up to limit scan jobs, most recently updated first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, object_type, status, progress, complete,
		success, extended_status, started_at, updated_at
		FROM scan_jobs ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query scan jobs: %w", err)
	}
	defer rows.Close()

	var out []JobEntry
	for rows.Next() {
		entry, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Job returns one scan job by id.
func (s *Store) Job(ctx context.Context, jobID string) (*JobEntry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT job_id, object_type, status, progress, complete,
		success, extended_status, started_at, updated_at
		FROM scan_jobs WHERE job_id = ?`, jobID)
	entry, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (JobEntry, error) {
	var (
		entry    JobEntry
		complete int
		success  int
		started  string
		updated  string
	)
	if err := row.Scan(&entry.JobID, &entry.ObjectType, &entry.Status, &entry.ProgressPercent,
		&complete, &success, &entry.ExtendedStatus, &started, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("scan job row: %w", err)
	}
	entry.IsComplete = complete != 0
	entry.IsSuccess = success != 0
	entry.StartedAt = parseTime(started)
	entry.UpdatedAt = parseTime(updated)
	return entry, nil
}

func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Fixed-width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
