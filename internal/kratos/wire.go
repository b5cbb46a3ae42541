package kratos

import (
	"encoding/json"
	"fmt"

	"github.com/vehicert/vehicert/internal/flow"
)

// wireFlow is the provider's flow envelope. Only the pieces the orchestrator
// consumes are decoded; everything else passes through untouched.
type wireFlow struct {
	ID           string             `json:"id"`
	State        string             `json:"state"`
	ReturnTo     string             `json:"return_to"`
	UI           wireUI             `json:"ui"`
	ContinueWith []wireContinueWith `json:"continue_with"`
}

type wireUI struct {
	Nodes    []wireNode    `json:"nodes"`
	Messages []wireMessage `json:"messages"`
}

type wireNode struct {
	Type       string         `json:"type"`
	Group      string         `json:"group"`
	Attributes wireAttributes `json:"attributes"`
	Messages   []wireMessage  `json:"messages"`
}

// wireAttributes is a union over the provider's input, image and text node
// attribute shapes.
type wireAttributes struct {
	Name  string    `json:"name"`
	Type  string    `json:"type"`
	Value any       `json:"value"`
	Src   string    `json:"src"`
	ID    string    `json:"id"`
	Text  *wireText `json:"text"`
}

type wireText struct {
	Text string `json:"text"`
}

type wireMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireContinueWith struct {
	Action string `json:"action"`
	Flow   struct {
		ID string `json:"id"`
	} `json:"flow"`
}

// wireResult is a successful submission response. The provider either returns
// an updated flow (ui present), an established session, or both for flows
// that finish with a continue_with handoff.
type wireResult struct {
	wireFlow
	Session *Session `json:"session"`
}

func parseFlow(kind flow.Kind, data []byte) (*flow.Flow, error) {
	var wf wireFlow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decoding %s flow: %w", kind, err)
	}
	return wf.toFlow(kind), nil
}

func parseResult(kind flow.Kind, data []byte) (*flow.Result, error) {
	var wr wireResult
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", kind, err)
	}
	res := &flow.Result{
		SessionEstablished: wr.Session != nil,
	}
	// A submission answer with no UI carries no renderable flow.
	if wr.ID != "" && len(wr.UI.Nodes) > 0 {
		res.Flow = wr.wireFlow.toFlow(kind)
	} else if wr.ID != "" {
		f := wr.wireFlow.toFlow(kind)
		f.Fields = nil
		res.Flow = f
	}
	for _, cw := range wr.ContinueWith {
		res.ContinueWith = append(res.ContinueWith, flow.ContinueWith{
			Action: cw.Action,
			FlowID: cw.Flow.ID,
		})
	}
	return res, nil
}

func (wf *wireFlow) toFlow(kind flow.Kind) *flow.Flow {
	f := &flow.Flow{
		ID:       wf.ID,
		Kind:     kind,
		State:    wf.State,
		ReturnTo: wf.ReturnTo,
	}
	for _, n := range wf.UI.Nodes {
		field := flow.Field{
			Group: flow.Group(n.Group),
			Name:  n.Attributes.Name,
			Type:  n.Attributes.Type,
			Src:   n.Attributes.Src,
			Value: n.Attributes.Value,
		}
		// img and text nodes carry their kind on the node, not the attributes.
		if field.Type == "" {
			field.Type = n.Type
		}
		// Text nodes expose their payload under attributes.text and identify
		// themselves by attribute id rather than name.
		if field.Name == "" && n.Attributes.ID != "" {
			field.Name = n.Attributes.ID
		}
		if field.Value == nil && n.Attributes.Text != nil {
			field.Value = n.Attributes.Text.Text
		}
		f.Fields = append(f.Fields, field)
		for _, m := range n.Messages {
			f.Messages = append(f.Messages, flow.Message{Severity: m.Type, Text: m.Text})
		}
	}
	for _, m := range wf.UI.Messages {
		f.Messages = append(f.Messages, flow.Message{Severity: m.Type, Text: m.Text})
	}
	return f
}
