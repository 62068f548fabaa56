package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const userAgent = "mergedesk/1.0"

// Client talks to the duplicate backend over HTTP and JSON.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// GetComparison loads the field-by-field comparison of a group.
func (c *Client) GetComparison(ctx context.Context, groupID string) (*Comparison, error) {
	var payload Comparison
	if err := c.do(ctx, "get comparison", http.MethodGet, "/api/groups/"+url.PathEscape(groupID)+"/comparison", nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MergeRecords merges duplicates into the master record.
func (c *Client) MergeRecords(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if req.FieldSelections == nil {
		req.FieldSelections = map[string]string{}
	}
	var payload MergeResult
	if err := c.do(ctx, "merge records", http.MethodPost, "/api/merge", nil, req, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DeleteGroup removes a duplicate group without merging.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, "delete group", http.MethodDelete, "/api/groups/"+url.PathEscape(groupID), nil, nil, nil)
}

// ListGroups fetches one page of duplicate groups.
func (c *Client) ListGroups(ctx context.Context, query ListQuery) (*GroupPage, error) {
	params := url.Values{}
	if query.ObjectType != "" {
		params.Set("objectType", query.ObjectType)
	}
	if query.SearchTerm != "" {
		params.Set("search", query.SearchTerm)
	}
	params.Set("limit", strconv.Itoa(query.Limit))
	params.Set("offset", strconv.Itoa(query.Offset))
	if len(query.Filters) > 0 {
		encoded, err := json.Marshal(query.Filters)
		if err != nil {
			return nil, fmt.Errorf("encode filter criteria: %w", err)
		}
		params.Set("filter", string(encoded))
	}
	var payload GroupPage
	if err := c.do(ctx, "list groups", http.MethodGet, "/api/groups", params, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetSummary fetches aggregate duplicate counts.
func (c *Client) GetSummary(ctx context.Context) (*Summary, error) {
	var payload Summary
	if err := c.do(ctx, "get summary", http.MethodGet, "/api/summary", nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// StartScan starts a scan for objectType and returns the job id.
func (c *Client) StartScan(ctx context.Context, objectType string) (string, error) {
	body := struct {
		ObjectType string `json:"objectType"`
	}{ObjectType: objectType}
	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, "start scan", http.MethodPost, "/api/scans", nil, body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.JobID) == "" {
		return "", &Error{Op: "start scan", Message: "backend returned no job id"}
	}
	return payload.JobID, nil
}

// GetJobStatus fetches the current status of a scan job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var payload JobStatus
	if err := c.do(ctx, "get job status", http.MethodGet, "/api/scans/"+url.PathEscape(jobID), nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// AbortJob asks the backend to stop a scan job.
func (c *Client) AbortJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "abort job", http.MethodPost, "/api/scans/"+url.PathEscape(jobID)+"/abort", nil, nil, nil)
}

// RecentJobs lists recently started scan jobs, newest first.
func (c *Client) RecentJobs(ctx context.Context) ([]JobStatus, error) {
	var payload []JobStatus
	if err := c.do(ctx, "recent jobs", http.MethodGet, "/api/scans", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FilterFields lists the filterable fields of objectType.
func (c *Client) FilterFields(ctx context.Context, objectType string) ([]FilterField, error) {
	var payload []FilterField
	if err := c.do(ctx, "filter fields", http.MethodGet, "/api/objects/"+url.PathEscape(objectType)+"/filter-fields", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ObjectTypes lists the object types that can be scanned.
func (c *Client) ObjectTypes(ctx context.Context) ([]ObjectTypeOption, error) {
	var payload []ObjectTypeOption
	if err := c.do(ctx, "object types", http.MethodGet, "/api/objects", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Schedules lists daily scan schedules.
func (c *Client) Schedules(ctx context.Context) ([]ScheduleStatus, error) {
	var payload []ScheduleStatus
	if err := c.do(ctx, "schedules", http.MethodGet, "/api/schedules", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ScheduleScan schedules a daily scan of objectType at the HH:MM time at.
func (c *Client) ScheduleScan(ctx context.Context, objectType, at string) error {
	body := struct {
		Time string `json:"time"`
	}{Time: at}
	return c.do(ctx, "schedule scan", http.MethodPut, "/api/schedules/"+url.PathEscape(objectType), nil, body, nil)
}

// UnscheduleScan cancels the daily scan of objectType.
func (c *Client) UnscheduleScan(ctx context.Context, objectType string) error {
	return c.do(ctx, "unschedule scan", http.MethodDelete, "/api/schedules/"+url.PathEscape(objectType), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	return ""
}
