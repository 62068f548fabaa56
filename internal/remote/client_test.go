package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mergedesk/internal/remote"
)

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := remote.New("  "); err == nil {
		t.Fatal("expected error when base url missing")
	}
}

func TestGetComparisonDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/groups/g1/comparison" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"recordId":"A","recordName":"John Doe"},{"recordId":"B","recordName":"J. Doe"}],
			"fields":[{"apiName":"LastName","label":"Last Name","isUpdateable":true,"hasDifference":true,
			"values":[{"recordId":"A","value":"Doe","displayValue":"Doe"},{"recordId":"B","value":"D.","displayValue":"D."}]}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL+"/", remote.WithToken("secret"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cmp, err := client.GetComparison(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetComparison returned error: %v", err)
	}
	if len(cmp.Records) != 2 || cmp.Records[1].RecordName != "J. Doe" {
		t.Fatalf("unexpected records: %#v", cmp.Records)
	}
	if len(cmp.Fields) != 1 || !cmp.Fields[0].HasDifference || cmp.Fields[0].Values[1].DisplayValue != "D." {
		t.Fatalf("unexpected fields: %#v", cmp.Fields)
	}
}

func TestMergeRecordsSendsEmptySelections(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/merge" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"masterRecordId":"A","mergedCount":1}`))
	}))
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	result, err := client.MergeRecords(context.Background(), remote.MergeRequest{MasterID: "A", DuplicateIDs: []string{"B"}})
	if err != nil {
		t.Fatalf("MergeRecords returned error: %v", err)
	}
	if !result.Success || result.MergedCount != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	selections, ok := received["fieldSelections"].(map[string]any)
	if !ok || len(selections) != 0 {
		t.Fatalf("expected empty fieldSelections object, got %#v", received["fieldSelections"])
	}
}

func TestListGroupsEncodesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("objectType") != "Contact" || q.Get("search") != "doe" {
			t.Fatalf("unexpected query %q", r.URL.RawQuery)
		}
		if q.Get("limit") != "12" || q.Get("offset") != "12" {
			t.Fatalf("unexpected paging %q", r.URL.RawQuery)
		}
		if q.Get("filter") != `[{"field":"Industry","value":"Banking"}]` {
			t.Fatalf("unexpected filter %q", q.Get("filter"))
		}
		_, _ = w.Write([]byte(`{"duplicateSets":[{"id":"g1","name":"Doe","recordCount":2}],"totalCount":13}`))
	}))
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	page, err := client.ListGroups(context.Background(), remote.ListQuery{
		ObjectType: "Contact",
		SearchTerm: "doe",
		Limit:      12,
		Offset:     12,
		Filters:    []remote.FilterCriterion{{Field: "Industry", Value: "Banking"}},
	})
	if err != nil {
		t.Fatalf("ListGroups returned error: %v", err)
	}
	if page.TotalCount != 13 || len(page.DuplicateSets) != 1 {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestStartScanReturnsJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ObjectType string `json:"objectType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.ObjectType != "Account" {
			t.Fatalf("unexpected object type %q", body.ObjectType)
		}
		_, _ = w.Write([]byte(`{"jobId":"707A"}`))
	}))
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	jobID, err := client.StartScan(context.Background(), "Account")
	if err != nil {
		t.Fatalf("StartScan returned error: %v", err)
	}
	if jobID != "707A" {
		t.Fatalf("expected job id 707A, got %q", jobID)
	}
}

func TestErrorBodyMessageIsExtracted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Record is locked"}`))
	}))
	t.Cleanup(server.Close)

	client, err := remote.New(server.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	err = client.DeleteGroup(context.Background(), "g1")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	var remoteErr *remote.Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *remote.Error, got %T", err)
	}
	if remoteErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", remoteErr.StatusCode)
	}
	if got := remote.Message(err); got != "Record is locked" {
		t.Fatalf("expected structured message, got %q", got)
	}
}

func TestMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: remote.FallbackMessage},
		{name: "plain", err: errors.New("connection refused"), want: "connection refused"},
		{name: "blank", err: errors.New("  "), want: remote.FallbackMessage},
		{name: "structured", err: &remote.Error{Op: "merge records", Message: "Duplicate rule blocked merge"}, want: "Duplicate rule blocked merge"},
		{name: "status only", err: &remote.Error{Op: "get summary", StatusCode: 502}, want: "get summary: status 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remote.Message(tt.err); got != tt.want {
				t.Fatalf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
