package provider

import (
	types "github.com/optimade-mcp/chat/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt modifies a completion request before it is sent
type Opt func(*reqCompletion) error

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// OptModel overrides the client's model for this request
func OptModel(model string) Opt {
	return func(req *reqCompletion) error {
		if model == "" {
			return types.ErrBadParameter.With("model")
		}
		req.Model = model
		return nil
	}
}

// OptMaxTokens limits the number of tokens in the completion
func OptMaxTokens(n uint64) Opt {
	return func(req *reqCompletion) error {
		req.MaxTokens = n
		return nil
	}
}

// OptTemperature sets the sampling temperature, between 0 and 2
func OptTemperature(t float64) Opt {
	return func(req *reqCompletion) error {
		if t < 0 || t > 2 {
			return types.ErrBadParameter.With("temperature")
		}
		req.Temperature = t
		return nil
	}
}

// OptTools offers function tools to the model, with automatic tool choice
func OptTools(tools ...Tool) Opt {
	return func(req *reqCompletion) error {
		if len(tools) > 0 {
			req.Tools = tools
			req.ToolChoice = "auto"
		}
		return nil
	}
}
