package browser

import (
	"fmt"
	"regexp"
	"sort"
	"time"
	"unicode/utf8"

	"mergedesk/internal/remote"
)

const previewValueLimit = 50

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// DiffDisplay shows a field whose values differ between the first two
// sample records.
type DiffDisplay struct {
	FieldName   string `json:"fieldName"`
	Label       string `json:"label"`
	Value1      string `json:"value1"`
	Value2      string `json:"value2"`
	Value1Empty bool   `json:"value1Empty"`
	Value2Empty bool   `json:"value2Empty"`
}

// FieldDisplay shows a field once.
type FieldDisplay struct {
	FieldName string `json:"fieldName"`
	Label     string `json:"label"`
	Value     string `json:"value"`
}

// Preview is the compact card content of a listed set.
type Preview struct {
	FirstRecordName string         `json:"firstRecordName"`
	Differing       []DiffDisplay  `json:"differingFieldDisplays"`
	Identical       []FieldDisplay `json:"identicalFieldDisplays"`
}

// HasAnyFields reports whether the card shows any field.
func (p Preview) HasAnyFields() bool {
	return len(p.Differing) > 0 || len(p.Identical) > 0
}

// BuildPreview derives the card content of g. With difference flags from the
// backend, flagged fields are compared across the first two sample records
// and the rest are shown once; otherwise the first record's non-empty values
// are shown. Fields are ordered by api name.
func BuildPreview(g remote.DuplicateGroup) Preview {
	var p Preview
	if len(g.SampleRecords) == 0 {
		return p
	}
	first := g.SampleRecords[0]
	p.FirstRecordName = first.RecordName
	var second *remote.SampleRecord
	if len(g.SampleRecords) > 1 {
		second = &g.SampleRecords[1]
	}
	label := func(field string) string {
		if l := g.FieldLabels[field]; l != "" {
			return l
		}
		return field
	}

	if g.FieldDifferences != nil {
		for _, field := range sortedKeys(g.FieldDifferences) {
			value1 := FormatValue(first.FieldValues[field])
			if g.FieldDifferences[field] && second != nil {
				value2 := FormatValue(second.FieldValues[field])
				p.Differing = append(p.Differing, DiffDisplay{
					FieldName:   field,
					Label:       label(field),
					Value1:      value1,
					Value2:      value2,
					Value1Empty: value1 == "",
					Value2Empty: value2 == "",
				})
				continue
			}
			if value1 != "" {
				p.Identical = append(p.Identical, FieldDisplay{FieldName: field, Label: label(field), Value: value1})
			}
		}
		return p
	}

	for _, field := range sortedKeys(first.FieldValues) {
		if value := FormatValue(first.FieldValues[field]); value != "" {
			p.Identical = append(p.Identical, FieldDisplay{FieldName: field, Label: label(field), Value: value})
		}
	}
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatValue renders a raw preview value: nil is blank, booleans are Yes/No,
// strings starting with an ISO date render as "Jan 2, 2006", and anything
// longer than 50 characters is truncated with "...".
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case string:
		if isoDatePrefix.MatchString(v) {
			if t, err := time.Parse(time.DateOnly, v[:len(time.DateOnly)]); err == nil {
				return t.Format("Jan 2, 2006")
			}
		}
		return truncate(v)
	default:
		return truncate(fmt.Sprint(v))
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= previewValueLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewValueLimit]) + "..."
}
