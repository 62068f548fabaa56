package compare

import (
	"strings"

	"mergedesk/internal/remote"
)

// Flags is the tri-state classification of one field across a record group.
type Flags struct {
	HasDifference bool
	AllSame       bool
	AllEmpty      bool
}

// Classify derives Flags from display values. HasDifference holds when more
// than one distinct non-empty trimmed display value exists; AllEmpty when
// every value is empty. A field that is neither counts as AllSame, including
// one where some records are empty and the rest agree.
func Classify(values []remote.FieldValue) Flags {
	distinct := make(map[string]struct{}, len(values))
	empty := 0
	for _, v := range values {
		display := strings.TrimSpace(v.DisplayValue)
		if v.IsEmpty || display == "" {
			empty++
			continue
		}
		distinct[display] = struct{}{}
	}
	flags := Flags{
		HasDifference: len(distinct) > 1,
		AllEmpty:      empty == len(values),
	}
	flags.AllSame = !flags.HasDifference && !flags.AllEmpty
	return flags
}

// Apply copies the flags onto f.
func (fl Flags) Apply(f *remote.Field) {
	f.HasDifference = fl.HasDifference
	f.AllSame = fl.AllSame
	f.AllEmpty = fl.AllEmpty
}
