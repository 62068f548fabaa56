package remote

import (
	"errors"
	"fmt"
	"strings"
)

// FallbackMessage is shown when a failure carries no usable text.
const FallbackMessage = "An unknown error occurred."

// Error is a failed backend call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message extracts the text to show a user for err: the structured backend
// message when present, else the error text, else FallbackMessage.
func Message(err error) string {
	if err == nil {
		return FallbackMessage
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) && strings.TrimSpace(remoteErr.Message) != "" {
		return strings.TrimSpace(remoteErr.Message)
	}
	if text := strings.TrimSpace(err.Error()); text != "" {
		return text
	}
	return FallbackMessage
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}
