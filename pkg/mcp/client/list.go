package client

import (
	"context"
	"encoding/json"

	// Packages
	mcp "github.com/optimade-mcp/chat/pkg/mcp"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ListTools returns the tools available on the MCP server, following
// pagination cursors until the list is complete.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	var result []*mcp.Tool
	var cursor string
	for {
		// Build the request with optional cursor
		var params json.RawMessage
		if cursor != "" {
			data, err := json.Marshal(mcp.RequestList{Cursor: cursor})
			if err != nil {
				return nil, err
			}
			params = data
		}

		req := mcp.Request{
			Version: mcp.RPCVersion,
			Method:  mcp.MessageTypeListTools,
			ID:      c.nextId(),
			Payload: params,
		}

		resp, err := c.doRPC(ctx, req)
		if err != nil {
			return nil, err
		}

		// Decode result
		var listResp mcp.ResponseListTools
		if err := decodeResult(resp.Result, &listResp); err != nil {
			return nil, err
		}

		result = append(result, listResp.Tools...)

		// Check for next page
		if listResp.NextCursor == "" {
			break
		}
		cursor = listResp.NextCursor
	}

	// Cache tools by name for validation in CallTool
	c.mu.Lock()
	c.tools = make(map[string]*mcp.Tool, len(result))
	for _, t := range result {
		c.tools[t.Name] = t
	}
	c.mu.Unlock()

	return result, nil
}

// ListResources returns the resources available on the MCP server,
// following pagination cursors until the list is complete.
func (c *Client) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	var result []*mcp.Resource
	var cursor string
	for {
		var params json.RawMessage
		if cursor != "" {
			data, err := json.Marshal(mcp.RequestList{Cursor: cursor})
			if err != nil {
				return nil, err
			}
			params = data
		}

		req := mcp.Request{
			Version: mcp.RPCVersion,
			Method:  mcp.MessageTypeListResources,
			ID:      c.nextId(),
			Payload: params,
		}

		resp, err := c.doRPC(ctx, req)
		if err != nil {
			return nil, err
		}

		var listResp mcp.ResponseListResources
		if err := decodeResult(resp.Result, &listResp); err != nil {
			return nil, err
		}

		result = append(result, listResp.Resources...)

		if listResp.NextCursor == "" {
			break
		}
		cursor = listResp.NextCursor
	}

	return result, nil
}
