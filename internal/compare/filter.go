package compare

import (
	"strings"

	"golang.org/x/text/cases"

	"mergedesk/internal/remote"
)

// Filter selects which field categories are visible and narrows them by search.
type Filter struct {
	Differences bool   `json:"differences"`
	Same        bool   `json:"same"`
	Empty       bool   `json:"empty"`
	Search      string `json:"search"`
}

// DefaultFilter shows differing fields only.
func DefaultFilter() Filter {
	return Filter{Differences: true}
}

// ValueView is one record's value in a visible field.
type ValueView struct {
	remote.FieldValue
	Selected  bool `json:"selected"`
	Highlight bool `json:"highlight"`
}

// FieldView is a visible field with selection state resolved.
type FieldView struct {
	APIName       string      `json:"apiName"`
	Label         string      `json:"label"`
	Type          string      `json:"type"`
	IsUpdateable  bool        `json:"isUpdateable"`
	IsRequired    bool        `json:"isRequired"`
	IsNameField   bool        `json:"isNameField"`
	HasDifference bool        `json:"hasDifference"`
	AllSame       bool        `json:"allSame"`
	AllEmpty      bool        `json:"allEmpty"`
	Values        []ValueView `json:"values"`
}

// Matches reports whether field f passes the filter.
func (fl Filter) Matches(f remote.Field) bool {
	visible := (f.HasDifference && fl.Differences) ||
		(f.AllSame && !f.AllEmpty && fl.Same) ||
		(f.AllEmpty && fl.Empty)
	if !visible {
		return false
	}
	term := strings.TrimSpace(fl.Search)
	if term == "" {
		return true
	}
	// Casers carry state and must not be shared across goroutines.
	folder := cases.Fold()
	term = folder.String(term)
	if strings.Contains(folder.String(f.Label), term) || strings.Contains(folder.String(f.APIName), term) {
		return true
	}
	for _, v := range f.Values {
		if v.DisplayValue != "" && strings.Contains(folder.String(v.DisplayValue), term) {
			return true
		}
	}
	return false
}

// Visible returns the fields passing filter, in comparison order.
func (s *Selection) Visible(filter Filter) []FieldView {
	var out []FieldView
	for _, f := range s.fields {
		if !filter.Matches(f) {
			continue
		}
		view := FieldView{
			APIName:       f.APIName,
			Label:         f.Label,
			Type:          f.Type,
			IsUpdateable:  f.IsUpdateable,
			IsRequired:    f.IsRequired,
			IsNameField:   f.IsNameField,
			HasDifference: f.HasDifference,
			AllSame:       f.AllSame,
			AllEmpty:      f.AllEmpty,
			Values:        make([]ValueView, 0, len(f.Values)),
		}
		chosen := s.choices[f.APIName]
		for _, v := range f.Values {
			view.Values = append(view.Values, ValueView{
				FieldValue: v,
				Selected:   v.RecordID == chosen,
				Highlight:  f.HasDifference && !v.IsEmpty,
			})
		}
		out = append(out, view)
	}
	return out
}
