/*
Package chat bridges a chat-completions provider to an MCP server. A session
translates the server's tools into function declarations the model can call,
runs each query as a completion followed by tool execution and a follow-up
completion, and records queries in a bounded history.
*/
package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"

	mcp "github.com/optimade-mcp/chat/pkg/mcp"
	mcpclient "github.com/optimade-mcp/chat/pkg/mcp/client"
	provider "github.com/optimade-mcp/chat/pkg/provider"
	session "github.com/optimade-mcp/chat/pkg/session"
	types "github.com/optimade-mcp/chat/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Session connects a chat-completions provider to an MCP server
type Session struct {
	provider       *provider.Client
	mcp            *mcpclient.Client
	history        *session.History
	tools          []*mcp.Tool
	resources      []*mcp.Resource
	systemPrompt   string
	fallbackModel  string
	completionOpts []provider.Opt
}

// Opt modifies a session at creation time
type Opt func(*Session)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Token limits for the two phases of a query
	maxTokensToolPhase   = 1200
	maxTokensAnswerPhase = 1000

	// Model used when OpenRouter rejects the configured model for tool use
	openRouterToolFallback = "openai/gpt-4o-mini"

	defaultSystemPrompt = `You are an assistant for exploring materials science databases through the OPTIMADE API. ` +
		`Use the available tools to search for crystal structures, chemical compositions and database providers. ` +
		`When a question concerns specific materials, elements or formulas, call a tool rather than answering from memory, ` +
		`and base your answer on the returned data. Summarize results concisely and mention which database they came from.`
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a session over the given provider and MCP clients
func New(p *provider.Client, m *mcpclient.Client, opts ...Opt) *Session {
	s := &Session{
		provider:      p,
		mcp:           m,
		history:       session.NewHistory(session.DefaultLimit),
		systemPrompt:  defaultSystemPrompt,
		fallbackModel: openRouterToolFallback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OptSystemPrompt overrides the default system prompt
func OptSystemPrompt(prompt string) Opt {
	return func(s *Session) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// OptTemperature sets the sampling temperature for all completions
func OptTemperature(t float64) Opt {
	return func(s *Session) {
		s.completionOpts = append(s.completionOpts, provider.OptTemperature(t))
	}
}

// Close terminates the connection to the MCP server
func (s *Session) Close() error {
	return s.mcp.Close()
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Connect initializes the MCP connection and caches the server's tools, and
// its resources when that capability is declared.
func (s *Session) Connect(ctx context.Context) error {
	tools, err := s.mcp.ListTools(ctx)
	if err != nil {
		return types.ErrNotConnected.With(err.Error())
	}
	s.tools = tools

	if info := s.mcp.ServerInfo(); info != nil && info.HasResources() {
		resources, err := s.mcp.ListResources(ctx)
		if err != nil {
			return types.ErrNotConnected.With(err.Error())
		}
		s.resources = resources
	}

	return nil
}

// Tools returns the tools cached from the MCP server
func (s *Session) Tools() []*mcp.Tool {
	return s.tools
}

// Resources returns the resources cached from the MCP server
func (s *Session) Resources() []*mcp.Resource {
	return s.resources
}

// History returns the session's query history
func (s *Session) History() *session.History {
	return s.history
}

// Provider returns the provider client
func (s *Session) Provider() *provider.Client {
	return s.provider
}

// ServerInfo returns the MCP server information, or nil before Connect
func (s *Session) ServerInfo() *mcp.ResponseInitialize {
	return s.mcp.ServerInfo()
}

// ProcessQuery runs one query: a completion with the server's tools
// offered, execution of any tool calls the model makes, and a follow-up
// completion. The answer is the non-empty response chunks joined in order:
// the first completion's text, one chunk per tool call, and the follow-up
// text. The query and its chunks are appended to the history.
func (s *Session) ProcessQuery(ctx context.Context, query string) (string, error) {
	messages := []*provider.Message{
		provider.NewSystemMessage(s.systemPrompt),
		provider.NewUserMessage(query),
	}

	// Phase one: offer tools and let the model decide
	response, err := s.completion(ctx, messages, provider.OptTools(s.declarations()...), provider.OptMaxTokens(maxTokensToolPhase))
	if err != nil {
		return "", err
	}

	var chunks []string
	if text := response.Text(); text != "" {
		chunks = append(chunks, text)
	}

	// Execute the tool calls and collect results
	calls := response.ToolCalls()
	var used []string
	if len(calls) > 0 {
		messages = append(messages, response.Message())
		for _, call := range calls {
			used = append(used, call.Function.Name)
			result := s.executeTool(ctx, call)
			chunks = append(chunks, fmt.Sprintf("[tool call %s]\narguments: %s\nresult:\n%s",
				call.Function.Name, string(call.Args()), result))
			messages = append(messages, provider.NewToolResult(call.Id, call.Function.Name, result))
		}

		// Phase two: produce the final answer from the tool results
		response, err = s.completion(ctx, messages, provider.OptMaxTokens(maxTokensAnswerPhase))
		if err != nil {
			return "", err
		}
		if text := response.Text(); text != "" {
			chunks = append(chunks, text)
		}
	}

	s.history.Append(query, chunks, used...)
	return strings.Join(chunks, "\n"), nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// completion requests a completion. When OpenRouter returns a 404 saying
// the routed model does not support tool use, the session switches to a
// model known to support it and retries once.
func (s *Session) completion(ctx context.Context, messages []*provider.Message, opts ...provider.Opt) (*provider.Response, error) {
	opts = append(s.completionOpts, opts...)
	response, err := s.provider.Completion(ctx, messages, opts...)
	if err != nil && s.provider.Name() == provider.OpenRouter &&
		isStatus(err, http.StatusNotFound) && strings.Contains(strings.ToLower(err.Error()), "support tool use") {
		s.provider.SetModel(s.fallbackModel)
		return s.provider.Completion(ctx, messages, opts...)
	}
	return response, err
}

// executeTool calls a tool on the MCP server and formats the result for the
// model. Failures are embedded in the conversation rather than aborting the
// query, so the model can report them.
func (s *Session) executeTool(ctx context.Context, call provider.ToolCall) string {
	result, err := s.mcp.CallTool(ctx, call.Function.Name, call.Args())
	if err != nil {
		return fmt.Sprintf("<<tool %s failed: %v>>", call.Function.Name, err)
	}
	if result.Error {
		return fmt.Sprintf("<<tool %s failed: %s>>", call.Function.Name, formatToolResult(result))
	}
	return formatToolResult(result)
}

// declarations translates the cached MCP tools into function declarations
// for the provider.
func (s *Session) declarations() []provider.Tool {
	result := make([]provider.Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		result = append(result, provider.NewTool(tool.Name, tool.Description, tool.InputSchema))
	}
	return result
}

// formatToolResult renders a tool result as text for the model. Structured
// content wins over the content array; text content is passed through
// verbatim and binary content is summarized.
func formatToolResult(result *mcp.ResponseToolCall) string {
	if result.StructuredContent != nil {
		if data, err := json.MarshalIndent(result.StructuredContent, "", "  "); err == nil {
			return string(data)
		}
	}

	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		switch content.Type {
		case "text":
			parts = append(parts, content.Text)
		case "image", "audio":
			size := len(content.Data)
			if decoded, err := base64.StdEncoding.DecodeString(content.Data); err == nil {
				size = len(decoded)
			}
			parts = append(parts, fmt.Sprintf("[%s %s %d bytes]", content.Type, content.MimeType, size))
		case "resource_link":
			parts = append(parts, fmt.Sprintf("[resource %s]", content.URI))
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// isStatus checks if an error is an HTTP error with the given status code
func isStatus(err error, code int) bool {
	var httpErr httpresponse.Err
	if errors.As(err, &httpErr) && int(httpErr) == code {
		return true
	}
	return false
}
