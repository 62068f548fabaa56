package browser

import (
	"fmt"
	"slices"

	"mergedesk/internal/remote"
)

// Group is a listed set with its card preview.
type Group struct {
	remote.DuplicateGroup
	Preview Preview `json:"preview"`
}

// View is a snapshot of the browser for rendering.
type View struct {
	Query                PageQuery                 `json:"query"`
	PendingSearch        string                    `json:"pendingSearch"`
	Groups               []Group                   `json:"groups"`
	TotalCount           int                       `json:"totalCount"`
	TotalPages           int                       `json:"totalPages"`
	CanPrev              bool                      `json:"canPrev"`
	CanNext              bool                      `json:"canNext"`
	Summary              remote.Summary            `json:"summary"`
	RecentJobs           []remote.JobStatus        `json:"recentJobs"`
	FilterFields         []remote.FilterField      `json:"filterFields"`
	ObjectTypes          []remote.ObjectTypeOption `json:"objectTypes"`
	Loading              bool                      `json:"loading"`
	Error                string                    `json:"error,omitempty"`
	ShowEmptyState       bool                      `json:"showEmptyState"`
	NoResultsMessage     string                    `json:"noResultsMessage,omitempty"`
	SearchResultsMessage string                    `json:"searchResultsMessage,omitempty"`
}

// View returns a snapshot with derived pagination flags and messages.
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Query:         s.queryLocked(),
		PendingSearch: s.typed,
		TotalCount:    s.totalCount,
		TotalPages:    TotalPages(s.totalCount, s.pageSize),
		Summary:       s.summary,
		RecentJobs:    slices.Clone(s.jobs),
		FilterFields:  slices.Clone(s.filterFields),
		ObjectTypes:   slices.Clone(s.objectTypes),
		Loading:       s.loading,
		Error:         s.errMsg,
	}
	v.Summary.SetsByObject = slices.Clone(s.summary.SetsByObject)
	v.CanPrev = s.pageIndex > 1
	v.CanNext = s.pageIndex < v.TotalPages
	v.Groups = make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		v.Groups = append(v.Groups, Group{DuplicateGroup: g, Preview: BuildPreview(g)})
	}

	filtered := len(s.filters) > 0
	searching := s.searchTerm != ""
	if len(s.groups) == 0 && !s.loading {
		if !searching && !filtered {
			v.ShowEmptyState = s.errMsg == ""
		} else {
			v.NoResultsMessage = NoResultsMessage(s.searchTerm, filtered)
		}
	}
	v.SearchResultsMessage = SearchResultsMessage(s.searchTerm, s.totalCount)
	return v
}

// NoResultsMessage explains an empty listing under search or filters.
func NoResultsMessage(term string, filtered bool) string {
	switch {
	case term != "" && filtered:
		return fmt.Sprintf("No duplicate sets match your search \"%s\" and filters", term)
	case term != "":
		return fmt.Sprintf("No duplicate sets match your search \"%s\"", term)
	default:
		return "No duplicate sets match your filters"
	}
}

// SearchResultsMessage reports the match count of a search, or "" without one.
func SearchResultsMessage(term string, total int) string {
	if term == "" {
		return ""
	}
	noun := "sets"
	if total == 1 {
		noun = "set"
	}
	return fmt.Sprintf("Found %d %s matching \"%s\"", total, noun, term)
}
