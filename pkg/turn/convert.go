package turn

import (
	"encoding/json"
	"fmt"

	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
	"github.com/harun/dispatch/pkg/toolregistry"
)

// ToolSpecs declares every registered tool to the model, schema included.
func ToolSpecs(registry *toolregistry.Registry) ([]ToolSpec, error) {
	descriptors := registry.List()
	specs := make([]ToolSpec, 0, len(descriptors))
	for _, desc := range descriptors {
		schema, err := registry.Schema(desc.Name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ToolSpec{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: schema,
		})
	}
	return specs, nil
}

// RequestsFrom converts the model's tool uses into batch requests, keeping
// the order the model emitted them in.
func RequestsFrom(uses []ToolUse) []toolcall.Request {
	requests := make([]toolcall.Request, len(uses))
	for i, use := range uses {
		requests[i] = toolcall.Request{ID: use.ID, Tool: use.Name, Args: use.Args}
	}
	return requests
}

// ResultMessages renders a batch result as tool messages, one per record in
// the original request order. Denied, cancelled and failed calls become
// error results so the model learns what happened to each sibling.
func ResultMessages(result *scheduler.BatchResult) []Message {
	messages := make([]Message, 0, len(result.Results))
	for _, res := range result.Results {
		messages = append(messages, resultMessage(res))
	}
	return messages
}

func resultMessage(res toolcall.Result) Message {
	if res.State == toolcall.StateSuccess {
		return Message{
			Role:      RoleTool,
			ToolUseID: res.ID,
			Content:   renderPayload(res.Payload),
		}
	}

	content := "call did not complete"
	if res.Error != nil {
		content = res.Error.Error()
	}
	return Message{
		Role:      RoleTool,
		ToolUseID: res.ID,
		Content:   content,
		IsError:   true,
	}
}

func renderPayload(payload interface{}) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
