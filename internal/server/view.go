package server

import (
	"github.com/vehicert/vehicert/internal/flow"
)

// fieldView is the wire shape of a single flow UI field
type fieldView struct {
	Group string `json:"group"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Src   string `json:"src,omitempty"`
}

// flowView is the wire shape of a flow document returned to the UI
type flowView struct {
	ID       string         `json:"id"`
	Kind     flow.Kind      `json:"kind"`
	State    string         `json:"state"`
	ReturnTo string         `json:"return_to,omitempty"`
	Fields   []fieldView    `json:"fields"`
	Messages []flow.Message `json:"messages,omitempty"`
}

// viewOf renders a flow for JSON responses. The CSRF token is stripped: the
// browser never submits it directly, the orchestrator re-reads it from the
// live flow on every submission.
func viewOf(f *flow.Flow) *flowView {
	if f == nil {
		return nil
	}
	v := &flowView{
		ID:       f.ID,
		Kind:     f.Kind,
		State:    f.State,
		ReturnTo: f.ReturnTo,
		Fields:   make([]fieldView, 0, len(f.Fields)),
		Messages: f.Messages,
	}
	for _, fld := range f.Fields {
		if fld.Name == "csrf_token" {
			continue
		}
		v.Fields = append(v.Fields, fieldView{
			Group: string(fld.Group),
			Name:  fld.Name,
			Type:  fld.Type,
			Value: fld.Value,
			Src:   fld.Src,
		})
	}
	return v
}
