package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Console prints notifications to a terminal, colored by severity.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color
	faint   *color.Color
}

var _ Sink = (*Console)(nil)

// NewConsole writes to out. Colors follow fatih/color's terminal detection;
// pass noColor to force plain output.
func NewConsole(out io.Writer, noColor bool) *Console {
	c := &Console{
		out:     out,
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgCyan),
		faint:   color.New(color.Faint),
	}
	if noColor {
		for _, col := range []*color.Color{c.success, c.failure, c.info, c.faint} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Notify(_ context.Context, n Notification) {
	if c == nil || c.out == nil {
		return
	}
	col := c.info
	switch n.Severity {
	case SeveritySuccess:
		col = c.success
	case SeverityError:
		col = c.failure
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = col.Fprintf(c.out, "%s: ", n.Title)
	_, _ = fmt.Fprintln(c.out, n.Message)
}

func (c *Console) Emit(_ context.Context, e Event) {
	if c == nil || c.out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case EventMergeComplete:
		if e.MergedCount > 0 {
			_, _ = c.faint.Fprintf(c.out, "merge complete: %d record(s) into %s\n", e.MergedCount, e.MasterID)
			return
		}
		_, _ = c.faint.Fprintf(c.out, "duplicate set %s removed\n", e.GroupID)
	default:
		_, _ = c.faint.Fprintf(c.out, "%s\n", e.Kind)
	}
}
