package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	// Packages
	assert "github.com/stretchr/testify/assert"

	chat "github.com/optimade-mcp/chat/pkg/chat"
	mcp "github.com/optimade-mcp/chat/pkg/mcp"
	mcpclient "github.com/optimade-mcp/chat/pkg/mcp/client"
	provider "github.com/optimade-mcp/chat/pkg/provider"
)

///////////////////////////////////////////////////////////////////////////////
// FAKE SERVERS

// fakeMCP is a minimal MCP server over the Streamable HTTP transport
type fakeMCP struct {
	mu       sync.Mutex
	calls    []mcp.RequestToolCall // tools/call requests received
	tools    []*mcp.Tool
	result   *mcp.ResponseToolCall
	toolsErr bool // respond to tools/list with an error
}

func (s *fakeMCP) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}

		var req mcp.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case mcp.MessageTypeInitialize:
			w.Header().Set("Mcp-Session-Id", "s1")
			result = map[string]any{
				"protocolVersion": mcp.ProtocolVersion,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "fake", "version": "1"},
			}
		case mcp.NotificationTypeInitialize:
			w.WriteHeader(http.StatusAccepted)
			return
		case mcp.MessageTypeListTools:
			if s.toolsErr {
				s.respondErr(w, req.ID)
				return
			}
			result = mcp.ResponseListTools{Tools: s.tools}
		case mcp.MessageTypeCallTool:
			var call mcp.RequestToolCall
			json.Unmarshal(req.Payload, &call)
			s.mu.Lock()
			s.calls = append(s.calls, call)
			s.mu.Unlock()
			result = s.result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mcp.Response{Version: mcp.RPCVersion, ID: req.ID, Result: result})
	}
}

func (s *fakeMCP) respondErr(w http.ResponseWriter, id any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mcp.Response{
		Version: mcp.RPCVersion,
		ID:      id,
		Err:     mcp.NewError(mcp.ErrorCodeInternalError, "boom"),
	})
}

// fakeProvider is a chat-completions endpoint which requests a tool call
// when tools are offered, and otherwise returns a final answer.
type fakeProvider struct {
	mu           sync.Mutex
	requests     []map[string]any
	answer       string
	preamble     string // assistant text alongside the tool call
	toolCall     string // tool to call when tools are offered
	args         string
	notFound     int    // respond 404 to this many requests first
	notFoundBody string // body of the 404 response
}

func (s *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.requests = append(s.requests, body)
		notFound := s.notFound > 0
		if notFound {
			s.notFound--
		}
		s.mu.Unlock()

		if notFound {
			http.Error(w, s.notFoundBody, http.StatusNotFound)
			return
		}

		message := map[string]any{"role": "assistant", "content": s.answer}
		if _, hasTools := body["tools"]; hasTools && s.toolCall != "" {
			message = map[string]any{
				"role":    "assistant",
				"content": s.preamble,
				"tool_calls": []any{map[string]any{
					"id":   "call_1",
					"type": "function",
					"function": map[string]any{
						"name":      s.toolCall,
						"arguments": s.args,
					},
				}},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "cmpl", "object": "chat.completion", "model": body["model"],
			"choices": []any{map[string]any{"index": 0, "message": message}},
		})
	}
}

func newSession(t *testing.T, m *fakeMCP, p *fakeProvider, name provider.Name, opts ...chat.Opt) (*chat.Session, func()) {
	t.Helper()
	mcpSrv := httptest.NewServer(m.handler())
	provSrv := httptest.NewServer(p.handler())

	mc, err := mcpclient.New(mcpSrv.URL, mcpclient.TransportHTTP, mcp.ClientInfo{Name: "test", Version: "0"})
	if err != nil {
		t.Fatal(err)
	}
	pc, err := provider.New(name, "key", provSrv.URL, "")
	if err != nil {
		t.Fatal(err)
	}

	s := chat.New(pc, mc, opts...)
	return s, func() {
		s.Close()
		mcpSrv.Close()
		provSrv.Close()
	}
}

func queryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "query_optimade",
		Description: "Query OPTIMADE databases",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filter": map[string]any{"type": "string"},
			},
		},
	}
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_chat_001(t *testing.T) {
	assert := assert.New(t)

	m := &fakeMCP{tools: []*mcp.Tool{queryTool()}}
	p := &fakeProvider{answer: "hello"}
	s, teardown := newSession(t, m, p, provider.OpenAI)
	defer teardown()

	// Connect caches the server's tools
	assert.NoError(s.Connect(context.Background()))
	tools := s.Tools()
	if assert.Len(tools, 1) {
		assert.Equal("query_optimade", tools[0].Name)
	}

	// Connection failure surfaces as an error
	m2 := &fakeMCP{toolsErr: true}
	s2, teardown2 := newSession(t, m2, p, provider.OpenAI)
	defer teardown2()
	assert.Error(s2.Connect(context.Background()))
}

func Test_chat_002(t *testing.T) {
	assert := assert.New(t)

	// The model answers directly without calling tools
	m := &fakeMCP{tools: []*mcp.Tool{queryTool()}}
	p := &fakeProvider{answer: "Silicon is element 14."}
	s, teardown := newSession(t, m, p, provider.OpenAI)
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	answer, err := s.ProcessQuery(ctx, "What is silicon?")
	assert.NoError(err)
	assert.Equal("Silicon is element 14.", answer)

	// One completion request, with tools offered
	if assert.Len(p.requests, 1) {
		assert.NotNil(p.requests[0]["tools"])
		assert.Equal("auto", p.requests[0]["tool_choice"])
	}

	// No tool calls were made, and the query is in the history
	assert.Empty(m.calls)
	assert.Equal(1, s.History().Len())
	entry := s.History().Last(1)[0]
	assert.Equal("What is silicon?", entry.Query)
	assert.Empty(entry.Tools)
}

func Test_chat_003(t *testing.T) {
	assert := assert.New(t)

	// The model calls a tool, the result feeds a second completion
	m := &fakeMCP{
		tools: []*mcp.Tool{queryTool()},
		result: &mcp.ResponseToolCall{
			Content: []*mcp.Content{{Type: "text", Text: `{"data":[{"id":"mp-149"}]}`}},
		},
	}
	p := &fakeProvider{
		answer:   "Found mp-149.",
		preamble: "Let me check the database.",
		toolCall: "query_optimade",
		args:     `{"filter":"elements HAS \"Si\""}`,
	}
	s, teardown := newSession(t, m, p, provider.OpenAI)
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	// The answer joins the model's initial text, a chunk per tool call
	// and the follow-up text
	answer, err := s.ProcessQuery(ctx, "Find silicon structures")
	assert.NoError(err)
	assert.Contains(answer, "Let me check the database.")
	assert.Contains(answer, "[tool call query_optimade]")
	assert.Contains(answer, "mp-149")
	assert.Contains(answer, "Found mp-149.")

	// The tool was executed with the model's arguments
	if assert.Len(m.calls, 1) {
		assert.Equal("query_optimade", m.calls[0].Name)
		assert.JSONEq(`{"filter":"elements HAS \"Si\""}`, string(m.calls[0].Arguments))
	}

	// Two completion requests; the second has the tool result and no tools
	if assert.Len(p.requests, 2) {
		second := p.requests[1]
		assert.Nil(second["tools"])
		messages := second["messages"].([]any)
		last := messages[len(messages)-1].(map[string]any)
		assert.Equal("tool", last["role"])
		assert.Equal("call_1", last["tool_call_id"])
		assert.Contains(last["content"], "mp-149")
	}

	// History records the tool used and the response chunks in order
	entry := s.History().Last(1)[0]
	assert.Equal([]string{"query_optimade"}, entry.Tools)
	if assert.Len(entry.Response, 3) {
		assert.Equal("Let me check the database.", entry.Response[0])
		assert.Contains(entry.Response[1], "[tool call query_optimade]")
		assert.Equal("Found mp-149.", entry.Response[2])
	}
}

func Test_chat_004(t *testing.T) {
	assert := assert.New(t)

	// A failing tool is reported to the model, not fatal to the query
	m := &fakeMCP{
		tools:  []*mcp.Tool{queryTool()},
		result: &mcp.ResponseToolCall{Error: true, Content: []*mcp.Content{{Type: "text", Text: "database unreachable"}}},
	}
	p := &fakeProvider{
		answer:   "The database is unreachable.",
		toolCall: "query_optimade",
		args:     `{"filter":"nelements=2"}`,
	}
	s, teardown := newSession(t, m, p, provider.OpenAI)
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	answer, err := s.ProcessQuery(ctx, "Find binary compounds")
	assert.NoError(err)
	assert.Contains(answer, "<<tool query_optimade failed:")
	assert.Contains(answer, "The database is unreachable.")

	// The failure marker was embedded in the tool result message
	if assert.Len(p.requests, 2) {
		messages := p.requests[1]["messages"].([]any)
		last := messages[len(messages)-1].(map[string]any)
		assert.Contains(last["content"], "<<tool query_optimade failed:")
		assert.Contains(last["content"], "database unreachable")
	}
}

func Test_chat_005(t *testing.T) {
	assert := assert.New(t)

	// OpenRouter rejecting the model for tool use falls back to a model
	// known to support it
	m := &fakeMCP{tools: []*mcp.Tool{queryTool()}}
	p := &fakeProvider{answer: "ok", notFound: 1, notFoundBody: `{"error": "model does not support tool use"}`}
	s, teardown := newSession(t, m, p, provider.OpenRouter)
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	answer, err := s.ProcessQuery(ctx, "hello")
	assert.NoError(err)
	assert.Equal("ok", answer)

	// First request failed with 404, retry used the fallback model and
	// the switch is permanent
	if assert.Len(p.requests, 2) {
		assert.Equal("openai/gpt-4o-mini", p.requests[1]["model"])
	}
	assert.Equal("openai/gpt-4o-mini", s.Provider().Model())

	// A 404 which does not mention tool use is not retried
	p2 := &fakeProvider{answer: "ok", notFound: 1, notFoundBody: `{"error": "model not found"}`}
	s2, teardown2 := newSession(t, m, p2, provider.OpenRouter)
	defer teardown2()
	assert.NoError(s2.Connect(ctx))
	_, err = s2.ProcessQuery(ctx, "hello")
	assert.Error(err)
	assert.Len(p2.requests, 1)
}

func Test_chat_006(t *testing.T) {
	assert := assert.New(t)

	m := &fakeMCP{tools: []*mcp.Tool{queryTool()}}
	p := &fakeProvider{answer: "ok"}
	s, teardown := newSession(t, m, p, provider.OpenAI)
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	// Commands work bare and slash-prefixed
	result := s.Dispatch("help")
	if assert.NotNil(result) {
		assert.Contains(result.Output, "tools")
		assert.False(result.Quit)
	}
	result = s.Dispatch("/tools")
	if assert.NotNil(result) {
		assert.Contains(result.Output, "query_optimade")
	}

	// History starts empty, then records queries
	result = s.Dispatch("history")
	if assert.NotNil(result) {
		assert.Equal("history is empty", result.Output)
	}
	_, err := s.ProcessQuery(ctx, "What is silicon?")
	assert.NoError(err)
	result = s.Dispatch("history")
	if assert.NotNil(result) {
		assert.Contains(result.Output, "What is silicon?")
	}

	// Model inspection and switching
	result = s.Dispatch("model")
	if assert.NotNil(result) {
		assert.Contains(result.Output, "gpt-4o-mini")
	}
	result = s.Dispatch("model gpt-4o")
	assert.NotNil(result)
	assert.Equal("gpt-4o", s.Provider().Model())

	// Quit
	result = s.Dispatch("quit")
	if assert.NotNil(result) {
		assert.True(result.Quit)
	}

	// Anything else is not a command
	assert.Nil(s.Dispatch("find structures with silicon"))
}

func Test_chat_007(t *testing.T) {
	assert := assert.New(t)

	// A session temperature is applied to every completion request
	m := &fakeMCP{
		tools:  []*mcp.Tool{queryTool()},
		result: &mcp.ResponseToolCall{Content: []*mcp.Content{{Type: "text", Text: "ok"}}},
	}
	p := &fakeProvider{
		answer:   "done",
		toolCall: "query_optimade",
		args:     `{}`,
	}
	s, teardown := newSession(t, m, p, provider.OpenAI, chat.OptTemperature(0.2))
	defer teardown()

	ctx := context.Background()
	assert.NoError(s.Connect(ctx))

	_, err := s.ProcessQuery(ctx, "Find silicon structures")
	assert.NoError(err)
	if assert.Len(p.requests, 2) {
		assert.Equal(0.2, p.requests[0]["temperature"])
		assert.Equal(0.2, p.requests[1]["temperature"])
	}
}
