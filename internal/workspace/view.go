package workspace

import (
	"time"

	"mergedesk/internal/browser"
	"mergedesk/internal/remote"
	"mergedesk/internal/scan"
)

// ScanView is the scan panel of a session.
type ScanView struct {
	Job      *remote.JobStatus `json:"job,omitempty"`
	State    scan.State        `json:"state"`
	Polling  bool              `json:"polling"`
	CanStart bool              `json:"canStart"`
}

// View is a snapshot of the whole session.
type View struct {
	ID         string       `json:"id"`
	Created    time.Time    `json:"created"`
	Browser    browser.View `json:"browser"`
	Scan       ScanView     `json:"scan"`
	OpenGroups []string     `json:"openGroups"`
}

// View snapshots the session.
func (s *Session) View() View {
	b := s.browser.View()
	v := View{
		ID:         s.id,
		Created:    s.created,
		Browser:    b,
		OpenGroups: s.OpenGroups(),
		Scan: ScanView{
			State:    s.scans.State(),
			Polling:  s.scans.Polling(),
			CanStart: s.scans.CanStart(b.Query.ObjectType),
		},
	}
	if job, ok := s.scans.Snapshot(); ok {
		v.Scan.Job = &job
	}
	return v
}
