package browser

import (
	"sort"

	"mergedesk/internal/remote"
)

// AllObjects is the object-type scope that lists every duplicate set.
const AllObjects = "All"

// PageQuery is the listing request composed from the browser dimensions.
type PageQuery struct {
	ObjectType string            `json:"objectType"`
	SearchTerm string            `json:"searchTerm"`
	Filters    map[string]string `json:"filters"`
	PageIndex  int               `json:"pageIndex"`
	PageSize   int               `json:"pageSize"`
}

// Offset is the zero-based index of the first item on the page.
func (q PageQuery) Offset() int {
	if q.PageIndex < 1 {
		return 0
	}
	return (q.PageIndex - 1) * q.PageSize
}

// ListQuery converts q into the remote listing request. Filters are sorted by
// field name so identical queries encode identically.
func (q PageQuery) ListQuery() remote.ListQuery {
	out := remote.ListQuery{
		ObjectType: q.ObjectType,
		SearchTerm: q.SearchTerm,
		Limit:      q.PageSize,
		Offset:     q.Offset(),
	}
	for field, value := range q.Filters {
		out.Filters = append(out.Filters, remote.FilterCriterion{Field: field, Value: value})
	}
	sort.Slice(out.Filters, func(i, j int) bool { return out.Filters[i].Field < out.Filters[j].Field })
	return out
}

// TotalPages returns max(1, ceil(total/pageSize)).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
