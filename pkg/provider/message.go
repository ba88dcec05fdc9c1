package provider

import (
	"encoding/json"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Message with a role and text content. Assistant messages may carry tool
// calls; tool messages carry the result of a tool call.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallId string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a request from the model to invoke a function
type ToolCall struct {
	Id       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and JSON-encoded arguments
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewSystemMessage returns a system message
func NewSystemMessage(content string) *Message {
	return &Message{Role: "system", Content: content}
}

// NewUserMessage returns a user message
func NewUserMessage(content string) *Message {
	return &Message{Role: "user", Content: content}
}

// NewToolResult returns a tool message carrying the result of a tool call
func NewToolResult(callId, name, content string) *Message {
	return &Message{Role: "tool", ToolCallId: callId, Name: name, Content: content}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Args decodes the tool call arguments into their JSON form. An empty
// arguments string decodes to an empty object.
func (t ToolCall) Args() json.RawMessage {
	if t.Function.Arguments == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(t.Function.Arguments)
}
