package notify_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mergedesk/internal/config"
	"mergedesk/internal/notify"
)

func TestRecorderDrainPreservesOrder(t *testing.T) {
	var rec notify.Recorder
	ctx := context.Background()
	rec.Notify(ctx, notify.Success(notify.SourceMerge, "merged"))
	rec.Emit(ctx, notify.Event{Kind: notify.EventMergeComplete, MasterID: "A", MergedCount: 1})
	rec.Notify(ctx, notify.Failure(notify.SourceScan, "boom"))

	if last, ok := rec.Last(); !ok || last.Message != "boom" {
		t.Fatalf("unexpected last notification %#v", last)
	}

	entries := rec.Drain()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Event == nil || entries[1].Event.Kind != notify.EventMergeComplete {
		t.Fatalf("expected event second, got %#v", entries[1])
	}
	if len(rec.Drain()) != 0 {
		t.Fatal("expected recorder to be empty after drain")
	}
}

func TestAskTreatsNilAsDecline(t *testing.T) {
	if notify.Ask(context.Background(), nil, "continue?") {
		t.Fatal("expected nil confirm to decline")
	}
	if !notify.Ask(context.Background(), notify.Accept, "continue?") {
		t.Fatal("expected Accept to confirm")
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b notify.Recorder
	sink := notify.Multi(&a, nil, &b)
	sink.Notify(context.Background(), notify.Info(notify.SourceBrowser, "Info", "hello"))
	if len(a.Notifications()) != 1 || len(b.Notifications()) != 1 {
		t.Fatal("expected both recorders to receive the notification")
	}
}

func TestConsolePrintsPlainText(t *testing.T) {
	var buf bytes.Buffer
	console := notify.NewConsole(&buf, true)
	console.Notify(context.Background(), notify.Failure(notify.SourceMerge, "Record is locked"))
	console.Emit(context.Background(), notify.Event{Kind: notify.EventMergeComplete, MasterID: "A", MergedCount: 2})

	out := buf.String()
	if !strings.Contains(out, "Error: Record is locked") {
		t.Fatalf("unexpected console output %q", out)
	}
	if !strings.Contains(out, "merge complete: 2 record(s) into A") {
		t.Fatalf("unexpected console output %q", out)
	}
}

func TestNewNtfyReturnsDiscardWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	if _, ok := notify.NewNtfy(&cfg, nil).(notify.Discard); !ok {
		t.Fatal("expected Discard sink without topic")
	}
}

func TestNtfyFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		note           notify.Notification
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "scan completed",
			note:          notify.Success(notify.SourceScan, "Duplicate scan completed successfully!"),
			expectTitle:   "mergedesk - Scan",
			expectMessage: "🔎 Duplicate scan completed successfully!",
			expectTags:    "mergedesk,scan,success",
		},
		{
			name:          "merge completed",
			note:          notify.Success(notify.SourceMerge, "Successfully merged 1 record(s)"),
			expectTitle:   "mergedesk - Merge",
			expectMessage: "✅ Successfully merged 1 record(s)",
			expectTags:    "mergedesk,merge,completed",
		},
		{
			name:           "error",
			note:           notify.Failure(notify.SourceScan, "Scan failed: limit exceeded"),
			expectTitle:    "mergedesk - Error",
			expectMessage:  "❌ Scan failed: limit exceeded",
			expectTags:     "mergedesk,scan,error",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title, tags, priority, body string
			}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			notify.NewNtfy(&cfg, nil).Notify(context.Background(), tc.note)

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyIgnoresSuppressedNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Scans = false

	sink := notify.NewNtfy(&cfg, nil)
	ctx := context.Background()
	sink.Notify(ctx, notify.Info(notify.SourceScan, "Scan Started", "monitoring"))
	sink.Notify(ctx, notify.Info(notify.SourceBrowser, "Info", "Please select a specific object type to scan."))
	sink.Notify(ctx, notify.Info(notify.SourceMerge, "Info", "declined"))
	sink.Emit(ctx, notify.Event{Kind: notify.EventClose})
}
