package merge

import "mergedesk/internal/compare"

// View is a read-only snapshot of a workspace for rendering.
type View struct {
	GroupID      string              `json:"groupId"`
	Phase        Phase               `json:"phase"`
	Error        string              `json:"error,omitempty"`
	Records      []compare.Record    `json:"records"`
	MasterID     string              `json:"masterId"`
	MasterName   string              `json:"masterName"`
	Fields       []compare.FieldView `json:"fields"`
	Stats        compare.Stats       `json:"stats"`
	Filter       compare.Filter      `json:"filter"`
	VisibleCount int                 `json:"visibleCount"`
	NoneVisible  bool                `json:"noneVisible"`
	CanMerge     bool                `json:"canMerge"`
	Result       *Result             `json:"result,omitempty"`
}

// View derives the current snapshot.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	fields := w.selection.Visible(w.filter)
	v := View{
		GroupID:      w.groupID,
		Phase:        w.phase,
		Error:        w.loadErr,
		Records:      w.selection.Records(),
		MasterID:     w.selection.Master(),
		MasterName:   w.selection.MasterName(),
		Fields:       fields,
		Stats:        w.selection.Stats(),
		Filter:       w.filter,
		VisibleCount: len(fields),
		NoneVisible:  len(fields) == 0 && w.selection.FieldCount() > 0,
		CanMerge:     w.canMergeLocked(),
	}
	if w.result != nil {
		res := *w.result
		v.Result = &res
	}
	return v
}

// Phase returns the current lifecycle phase.
func (w *Workspace) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Selection returns a copy of the current field choices.
func (w *Workspace) Selection() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selection.Choices()
}
