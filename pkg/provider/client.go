/*
Package provider implements a chat-completions API client for the
OpenAI-compatible providers this project supports: OpenAI, OpenRouter and
DeepSeek. All three share the same wire format, so a single client covers
them with per-provider endpoints and default models.
*/
package provider

import (
	// Packages
	client "github.com/mutablelogic/go-client"

	types "github.com/optimade-mcp/chat/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Name identifies a chat-completions provider.
type Name string

// Client is an API client for a single provider. The zero value is not
// usable; create one with New.
type Client struct {
	*client.Client
	name  Name
	model string
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	OpenAI     Name = "openai"
	OpenRouter Name = "openrouter"
	DeepSeek   Name = "deepseek"
)

var (
	endpoints = map[Name]string{
		OpenAI:     "https://api.openai.com/v1",
		OpenRouter: "https://openrouter.ai/api/v1",
		DeepSeek:   "https://api.deepseek.com",
	}
	defaultModels = map[Name]string{
		OpenAI:     "gpt-4o-mini",
		OpenRouter: "openai/gpt-4o-mini",
		DeepSeek:   "deepseek-chat",
	}
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a client for the named provider. The baseURL and model
// arguments override the provider defaults when non-empty.
func New(name Name, apiKey, baseURL, model string, opts ...client.ClientOpt) (*Client, error) {
	endpoint, ok := endpoints[name]
	if !ok {
		return nil, types.ErrBadParameter.Withf("unknown provider: %q", name)
	}
	if apiKey == "" {
		return nil, types.ErrBadParameter.Withf("missing API key for provider %q", name)
	}
	if baseURL != "" {
		endpoint = baseURL
	}
	if model == "" {
		model = defaultModels[name]
	}

	// Create client
	opts = append(opts, client.OptEndpoint(endpoint))
	opts = append(opts, client.OptReqToken(client.Token{
		Scheme: client.Bearer,
		Value:  apiKey,
	}))
	client, err := client.New(opts...)
	if err != nil {
		return nil, err
	}

	// Return the client
	return &Client{Client: client, name: name, model: model}, nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Name returns the provider name
func (c *Client) Name() Name {
	return c.name
}

// Model returns the model used for completions
func (c *Client) Model() string {
	return c.model
}

// SetModel changes the model used for subsequent completions
func (c *Client) SetModel(model string) {
	if model != "" {
		c.model = model
	}
}

// DefaultModel returns the default model for the named provider, or an
// empty string if the provider is unknown.
func DefaultModel(name Name) string {
	return defaultModels[name]
}
