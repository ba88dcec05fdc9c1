package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	// Packages
	assert "github.com/stretchr/testify/assert"

	provider "github.com/optimade-mcp/chat/pkg/provider"
)

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_provider_001(t *testing.T) {
	assert := assert.New(t)

	// Unknown provider
	_, err := provider.New("anthropic", "key", "", "")
	assert.Error(err)

	// Missing API key
	_, err = provider.New(provider.OpenAI, "", "", "")
	assert.Error(err)

	// Default models
	c, err := provider.New(provider.OpenAI, "key", "", "")
	if assert.NoError(err) {
		assert.Equal(provider.OpenAI, c.Name())
		assert.Equal("gpt-4o-mini", c.Model())
	}
	c, err = provider.New(provider.OpenRouter, "key", "", "")
	if assert.NoError(err) {
		assert.Equal("openai/gpt-4o-mini", c.Model())
	}
	c, err = provider.New(provider.DeepSeek, "key", "", "")
	if assert.NoError(err) {
		assert.Equal("deepseek-chat", c.Model())
	}

	// Model override
	c, err = provider.New(provider.OpenAI, "key", "", "gpt-4o")
	if assert.NoError(err) {
		assert.Equal("gpt-4o", c.Model())
	}
	c.SetModel("gpt-4.1-mini")
	assert.Equal("gpt-4.1-mini", c.Model())
	c.SetModel("")
	assert.Equal("gpt-4.1-mini", c.Model())
}

func Test_provider_002(t *testing.T) {
	assert := assert.New(t)

	// Record the request and return a text completion
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Silicon is a semiconductor."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18}
		}`))
	}))
	defer srv.Close()

	c, err := provider.New(provider.OpenAI, "test-key", srv.URL, "")
	if !assert.NoError(err) {
		t.SkipNow()
	}

	response, err := c.Completion(context.Background(), []*provider.Message{
		provider.NewSystemMessage("You are a materials science assistant."),
		provider.NewUserMessage("What is silicon?"),
	}, provider.OptMaxTokens(1000))
	assert.NoError(err)

	// Response is decoded
	if assert.NotNil(response) {
		assert.Equal("Silicon is a semiconductor.", response.Text())
		assert.Nil(response.ToolCalls())
		assert.Equal(uint64(18), response.TotalTokens)
	}

	// Request carried the expected fields
	assert.Equal("/chat/completions", gotPath)
	assert.Equal("Bearer test-key", gotAuth)
	assert.Equal("gpt-4o-mini", gotBody["model"])
	assert.Equal(float64(1000), gotBody["max_tokens"])
	assert.Nil(gotBody["tools"])
}

func Test_provider_003(t *testing.T) {
	assert := assert.New(t)

	// Return a completion with a tool call
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-2", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {
					"name": "query_optimade", "arguments": "{\"filter\":\"elements HAS \\\"Si\\\"\"}"
				}}]
			}, "finish_reason": "tool_calls"}]
		}`))
	}))
	defer srv.Close()

	c, err := provider.New(provider.OpenAI, "test-key", srv.URL, "")
	if !assert.NoError(err) {
		t.SkipNow()
	}

	tool := provider.NewTool("query_optimade", "Query OPTIMADE databases", nil)
	response, err := c.Completion(context.Background(), []*provider.Message{
		provider.NewUserMessage("Find structures containing silicon"),
	}, provider.OptTools(tool), provider.OptMaxTokens(1200))
	assert.NoError(err)

	// Tool call is decoded, with arguments as a JSON string
	calls := response.ToolCalls()
	if assert.Len(calls, 1) {
		assert.Equal("call_1", calls[0].Id)
		assert.Equal("query_optimade", calls[0].Function.Name)

		var args map[string]any
		assert.NoError(json.Unmarshal(calls[0].Args(), &args))
		assert.Equal(`elements HAS "Si"`, args["filter"])
	}

	// Tools were offered with automatic tool choice
	assert.Equal("auto", gotBody["tool_choice"])
	tools, ok := gotBody["tools"].([]any)
	if assert.True(ok) && assert.Len(tools, 1) {
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal("query_optimade", fn["name"])

		// A nil schema is replaced with an empty object schema
		params := fn["parameters"].(map[string]any)
		assert.Equal("object", params["type"])
	}
}

func Test_provider_004(t *testing.T) {
	assert := assert.New(t)

	// An empty choices array is an error
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "cmpl-3", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	c, err := provider.New(provider.OpenAI, "test-key", srv.URL, "")
	if !assert.NoError(err) {
		t.SkipNow()
	}

	_, err = c.Completion(context.Background(), []*provider.Message{
		provider.NewUserMessage("hello"),
	})
	assert.Error(err)

	// Empty arguments decode to an empty object
	var call provider.ToolCall
	var args map[string]any
	assert.NoError(json.Unmarshal(call.Args(), &args))
	assert.Empty(args)
}

func Test_provider_005(t *testing.T) {
	assert := assert.New(t)

	// The temperature option is carried in the request
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-4", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	c, err := provider.New(provider.OpenAI, "test-key", srv.URL, "")
	if !assert.NoError(err) {
		t.SkipNow()
	}

	_, err = c.Completion(context.Background(), []*provider.Message{
		provider.NewUserMessage("hello"),
	}, provider.OptTemperature(0.7))
	assert.NoError(err)
	assert.Equal(0.7, gotBody["temperature"])

	// Out of range temperatures are rejected before the request is sent
	_, err = c.Completion(context.Background(), []*provider.Message{
		provider.NewUserMessage("hello"),
	}, provider.OptTemperature(2.5))
	assert.Error(err)
}
