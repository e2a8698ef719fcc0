package agentd

import (
	"encoding/json"
	"strings"
)

// The invocation endpoint's response shape is heterogeneous: older gateways
// answer with a bare string, newer ones with an object carrying one of
// several output-bearing fields, and MCP-style tools with a content block
// list. decodeToolResult is the one place that discriminates; everything
// downstream sees only the normalized text.

type toolResult struct {
	text string
}

// Text returns the normalized output text of the invocation.
func (r toolResult) Text() string { return r.text }

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type invokeResponseBody struct {
	Content []contentBlock   `json:"content"`
	Output  *string          `json:"output"`
	Stdout  *string          `json:"stdout"`
	Text    *string          `json:"text"`
	Result  *json.RawMessage `json:"result"`
}

func decodeToolResult(body []byte) (toolResult, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return toolResult{}, nil
	}

	var s string
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
		return toolResult{text: s}, nil
	}

	var obj invokeResponseBody
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		// Not JSON at all: some gateways stream plain text.
		return toolResult{text: trimmed}, nil
	}

	if len(obj.Content) > 0 {
		var parts []string
		for _, b := range obj.Content {
			if b.Type == "" || b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return toolResult{text: strings.Join(parts, "\n")}, nil
	}

	for _, field := range []*string{obj.Output, obj.Stdout, obj.Text} {
		if field != nil {
			return toolResult{text: *field}, nil
		}
	}

	if obj.Result != nil {
		var rs string
		if err := json.Unmarshal(*obj.Result, &rs); err == nil {
			return toolResult{text: rs}, nil
		}
		return toolResult{text: string(*obj.Result)}, nil
	}

	return toolResult{}, nil
}
