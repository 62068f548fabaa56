package remotetest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"mergedesk/internal/remote"
)

// Handler serves the backend over the same HTTP API remote.Client speaks, so
// commands wired to a real client can run against it through httptest.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/groups", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := remote.ListQuery{
			ObjectType: q.Get("objectType"),
			SearchTerm: q.Get("search"),
		}
		query.Limit, _ = strconv.Atoi(q.Get("limit"))
		query.Offset, _ = strconv.Atoi(q.Get("offset"))
		if raw := q.Get("filter"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &query.Filters); err != nil {
				writeFailure(w, http.StatusBadRequest, "invalid filter")
				return
			}
		}
		respond(w, r, func(ctx context.Context) (any, error) { return b.ListGroups(ctx, query) })
	})
	mux.HandleFunc("GET /api/summary", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func(ctx context.Context) (any, error) { return b.GetSummary(ctx) })
	})
	mux.HandleFunc("GET /api/groups/{id}/comparison", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		respond(w, r, func(ctx context.Context) (any, error) { return b.GetComparison(ctx, id) })
	})
	mux.HandleFunc("DELETE /api/groups/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		respond(w, r, func(ctx context.Context) (any, error) { return nil, b.DeleteGroup(ctx, id) })
	})
	mux.HandleFunc("POST /api/merge", func(w http.ResponseWriter, r *http.Request) {
		var req remote.MergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid merge request")
			return
		}
		respond(w, r, func(ctx context.Context) (any, error) { return b.MergeRecords(ctx, req) })
	})
	mux.HandleFunc("POST /api/scans", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ObjectType string `json:"objectType"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		respond(w, r, func(ctx context.Context) (any, error) {
			id, err := b.StartScan(ctx, body.ObjectType)
			return map[string]string{"jobId": id}, err
		})
	})
	mux.HandleFunc("GET /api/scans", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func(ctx context.Context) (any, error) { return b.RecentJobs(ctx) })
	})
	mux.HandleFunc("GET /api/scans/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		respond(w, r, func(ctx context.Context) (any, error) { return b.GetJobStatus(ctx, id) })
	})
	mux.HandleFunc("POST /api/scans/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		respond(w, r, func(ctx context.Context) (any, error) { return nil, b.AbortJob(ctx, id) })
	})
	mux.HandleFunc("GET /api/objects", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func(ctx context.Context) (any, error) { return b.ObjectTypes(ctx) })
	})
	mux.HandleFunc("GET /api/objects/{type}/filter-fields", func(w http.ResponseWriter, r *http.Request) {
		objectType := r.PathValue("type")
		respond(w, r, func(ctx context.Context) (any, error) { return b.FilterFields(ctx, objectType) })
	})
	mux.HandleFunc("GET /api/schedules", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func(ctx context.Context) (any, error) { return b.Schedules(ctx) })
	})
	mux.HandleFunc("PUT /api/schedules/{type}", func(w http.ResponseWriter, r *http.Request) {
		objectType := r.PathValue("type")
		var body struct {
			Time string `json:"time"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		respond(w, r, func(ctx context.Context) (any, error) { return nil, b.ScheduleScan(ctx, objectType, body.Time) })
	})
	mux.HandleFunc("DELETE /api/schedules/{type}", func(w http.ResponseWriter, r *http.Request) {
		objectType := r.PathValue("type")
		respond(w, r, func(ctx context.Context) (any, error) { return nil, b.UnscheduleScan(ctx, objectType) })
	})

	return mux
}

func respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (any, error)) {
	payload, err := fn(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, remote.Message(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
