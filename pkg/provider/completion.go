package provider

import (
	"context"
	"encoding/json"

	// Packages
	client "github.com/mutablelogic/go-client"

	types "github.com/optimade-mcp/chat/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Completion request
type reqCompletion struct {
	Model       string     `json:"model"`
	Messages    []*Message `json:"messages"`
	MaxTokens   uint64     `json:"max_tokens,omitempty"`
	Temperature float64    `json:"temperature,omitempty"`
	Tools       []Tool     `json:"tools,omitempty"`
	ToolChoice  any        `json:"tool_choice,omitempty"`
}

// Completion Response
type Response struct {
	Id      string   `json:"id"`
	Type    string   `json:"object"`
	Created uint64   `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Metrics `json:"usage,omitempty"`
}

// Completion Variation
type Choice struct {
	Index   uint64   `json:"index"`
	Message *Message `json:"message"`
	Reason  string   `json:"finish_reason,omitempty"`
}

// Metrics
type Metrics struct {
	PromptTokens     uint64 `json:"prompt_tokens,omitempty"`
	CompletionTokens uint64 `json:"completion_tokens,omitempty"`
	TotalTokens      uint64 `json:"total_tokens,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r Response) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Completion requests a chat completion for the given messages, and
// returns the response. Options modify the request before it is sent.
func (c *Client) Completion(ctx context.Context, messages []*Message, opts ...Opt) (*Response, error) {
	// Apply options
	request := reqCompletion{
		Model:    c.model,
		Messages: messages,
	}
	for _, opt := range opts {
		if err := opt(&request); err != nil {
			return nil, err
		}
	}

	// Request
	req, err := client.NewJSONRequest(request)
	if err != nil {
		return nil, err
	}

	// Response
	var response Response
	if err := c.DoWithContext(ctx, req, &response, client.OptPath("chat", "completions")); err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, types.ErrProvider.With("no completion choices returned")
	}

	// Return success
	return &response, nil
}

// Message returns the message of the first completion choice
func (r *Response) Message() *Message {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message
}

// Text returns the text content of the first completion choice
func (r *Response) Text() string {
	if message := r.Message(); message != nil {
		return message.Content
	}
	return ""
}

// ToolCalls returns the tool calls of the first completion choice, or nil
// if the model did not request any
func (r *Response) ToolCalls() []ToolCall {
	if message := r.Message(); message != nil {
		return message.ToolCalls
	}
	return nil
}
