package main

import (
	"encoding/json"
	"fmt"
	"os"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type ToolsCmd struct {
	Server string `arg:"" help:"MCP server URL or path to a local server script (.py or .js)"`
	JSON   bool   `name:"json" help:"Output tool definitions as JSON"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *ToolsCmd) Run(globals *Globals) error {
	mcp, err := globals.NewMCP(cmd.Server)
	if err != nil {
		return err
	}
	defer mcp.Close()

	tools, err := mcp.ListTools(globals.ctx)
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}

	for _, tool := range tools {
		fmt.Printf("%-24s %s\n", tool.Name, tool.Description)
	}
	return nil
}
