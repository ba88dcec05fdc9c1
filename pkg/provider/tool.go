package provider

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Tool is a function declaration offered to the model
type Tool struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function and its parameter schema
type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewTool returns a function tool declaration. A nil parameters schema is
// replaced with an empty object schema, which some providers require.
func NewTool(name, description string, parameters any) Tool {
	if parameters == nil {
		parameters = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
