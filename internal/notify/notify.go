package notify

import (
	"context"
)

// Severity tags a notification for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Source names the subsystem a notification came from.
type Source string

const (
	SourceMerge   Source = "merge"
	SourceScan    Source = "scan"
	SourceBrowser Source = "browser"
)

// Notification is a toast-style message for the hosting view.
type Notification struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Source   Source   `json:"source,omitempty"`
}

// Info builds an informational notification.
func Info(source Source, title, message string) Notification {
	return Notification{Title: title, Message: message, Severity: SeverityInfo, Source: source}
}

// Success builds a success notification.
func Success(source Source, message string) Notification {
	return Notification{Title: "Success", Message: message, Severity: SeveritySuccess, Source: source}
}

// Failure builds an error notification.
func Failure(source Source, message string) Notification {
	return Notification{Title: "Error", Message: message, Severity: SeverityError, Source: source}
}

// EventKind identifies an outbound event.
type EventKind string

const (
	// EventMergeComplete tells the browser a group was merged or deleted.
	EventMergeComplete EventKind = "merge-complete"
	// EventClose asks the host to dismiss the merge workspace.
	EventClose EventKind = "close"
	// EventSave reports that field configuration changed.
	EventSave EventKind = "save"
)

// Event is an outbound signal to the hosting view.
type Event struct {
	Kind        EventKind `json:"kind"`
	GroupID     string    `json:"groupId,omitempty"`
	MasterID    string    `json:"masterId,omitempty"`
	MergedCount int       `json:"mergedCount,omitempty"`
}

// Sink receives notifications and events.
type Sink interface {
	Notify(ctx context.Context, n Notification)
	Emit(ctx context.Context, e Event)
}

// Confirm asks the user a yes/no question. Returning false declines.
type Confirm func(ctx context.Context, question string) bool

// Accept confirms every question.
func Accept(context.Context, string) bool { return true }

// Decline declines every question.
func Decline(context.Context, string) bool { return false }

// Ask evaluates confirm, treating nil as a decline.
func Ask(ctx context.Context, confirm Confirm, question string) bool {
	if confirm == nil {
		return false
	}
	return confirm(ctx, question)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}

func (Discard) Emit(context.Context, Event) {}

// Multi fans out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var filtered []Sink
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return Discard{}
	case 1:
		return filtered[0]
	}
	return multiSink(filtered)
}

type multiSink []Sink

func (m multiSink) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

func (m multiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}
