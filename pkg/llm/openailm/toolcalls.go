package openailm

import "reasoner/pkg/llm"

// toolCallSet assembles function calls from streamed item events in arrival order.
type toolCallSet struct {
	order []string
	calls map[string]*toolCall
}

type toolCall struct {
	llm.ToolCall
}

func (tc *toolCall) setName(name string) {
	if name != "" {
		tc.Name = name
		tc.Function.Name = name
	}
}

func newToolCallSet() *toolCallSet {
	return &toolCallSet{calls: make(map[string]*toolCall)}
}

func (s *toolCallSet) get(id string) *toolCall {
	tc, ok := s.calls[id]
	if !ok {
		tc = &toolCall{ToolCall: llm.ToolCall{ID: id}}
		s.calls[id] = tc
		s.order = append(s.order, id)
	}
	return tc
}

func (s *toolCallSet) list() []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.calls[id].ToolCall)
	}
	return out
}
