package compare

import (
	"errors"
	"fmt"

	"mergedesk/internal/remote"
)

// ErrUnknownRecord is returned when a record id is not part of the comparison.
var ErrUnknownRecord = errors.New("record is not part of this duplicate group")

// Record is a merge candidate.
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMaster bool   `json:"isMaster"`
}

// Selection tracks the master record and the chosen source record of every
// field. It is not safe for concurrent use.
type Selection struct {
	records []remote.Record
	fields  []remote.Field
	master  string
	choices map[string]string
}

// NewSelection builds a selection where the first record is master and every
// field is sourced from it.
func NewSelection(cmp *remote.Comparison) *Selection {
	s := &Selection{choices: map[string]string{}}
	if cmp == nil {
		return s
	}
	s.records = append([]remote.Record(nil), cmp.Records...)
	s.fields = append([]remote.Field(nil), cmp.Fields...)
	if len(s.records) > 0 {
		s.master = s.records[0].RecordID
	}
	s.resetChoices()
	return s
}

func (s *Selection) resetChoices() {
	s.choices = make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		s.choices[f.APIName] = s.master
	}
}

// Master returns the master record id, or "" when the group has no records.
func (s *Selection) Master() string { return s.master }

// MasterName returns the display name of the master record.
func (s *Selection) MasterName() string {
	for _, r := range s.records {
		if r.RecordID == s.master {
			return r.RecordName
		}
	}
	return ""
}

// RecordCount returns the number of candidates.
func (s *Selection) RecordCount() int { return len(s.records) }

// FieldCount returns the number of compared fields.
func (s *Selection) FieldCount() int { return len(s.fields) }

// Records returns the candidates in comparison order.
func (s *Selection) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, Record{ID: r.RecordID, Name: r.RecordName, IsMaster: r.RecordID == s.master})
	}
	return out
}

func (s *Selection) hasRecord(id string) bool {
	for _, r := range s.records {
		if r.RecordID == id {
			return true
		}
	}
	return false
}

func (s *Selection) field(apiName string) (remote.Field, bool) {
	for _, f := range s.fields {
		if f.APIName == apiName {
			return f, true
		}
	}
	return remote.Field{}, false
}

// SetMaster makes id the master and resets every field choice to it, discarding
// all earlier overrides.
func (s *Selection) SetMaster(id string) error {
	if !s.hasRecord(id) {
		return fmt.Errorf("set master %q: %w", id, ErrUnknownRecord)
	}
	s.master = id
	s.resetChoices()
	return nil
}

// Choose sources field apiName from recordID. It reports false and changes
// nothing when the field is unknown or not updateable, or the record is unknown.
func (s *Selection) Choose(apiName, recordID string) bool {
	f, ok := s.field(apiName)
	if !ok || !f.IsUpdateable || !s.hasRecord(recordID) {
		return false
	}
	s.choices[apiName] = recordID
	return true
}

// Choice returns the record currently chosen for apiName.
func (s *Selection) Choice(apiName string) string { return s.choices[apiName] }

// Choices returns a copy of every field choice.
func (s *Selection) Choices() map[string]string {
	out := make(map[string]string, len(s.choices))
	for k, v := range s.choices {
		out[k] = v
	}
	return out
}

// Overrides returns the choices that differ from the master. It is never nil.
func (s *Selection) Overrides() map[string]string {
	out := map[string]string{}
	for k, v := range s.choices {
		if v != s.master {
			out[k] = v
		}
	}
	return out
}

// DuplicateIDs returns every record id except the master, in record order.
func (s *Selection) DuplicateIDs() []string {
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		if r.RecordID != s.master {
			out = append(out, r.RecordID)
		}
	}
	return out
}

// Stats counts fields per category.
type Stats struct {
	Differences int `json:"differences"`
	Same        int `json:"same"`
	Empty       int `json:"empty"`
	// Total counts fields that are not entirely empty.
	Total int `json:"total"`
	// Overrides counts fields sourced from a record other than the master.
	Overrides int `json:"overrides"`
}

// Stats summarizes the comparison.
func (s *Selection) Stats() Stats {
	var st Stats
	for _, f := range s.fields {
		if f.HasDifference {
			st.Differences++
		}
		if f.AllSame && !f.AllEmpty {
			st.Same++
		}
		if f.AllEmpty {
			st.Empty++
		} else {
			st.Total++
		}
	}
	st.Overrides = len(s.Overrides())
	return st
}
