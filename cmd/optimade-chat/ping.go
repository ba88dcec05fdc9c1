package main

import (
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type PingCmd struct {
	Server string `arg:"" help:"MCP server URL or path to a local server script (.py or .js)"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *PingCmd) Run(globals *Globals) error {
	mcp, err := globals.NewMCP(cmd.Server)
	if err != nil {
		return err
	}
	defer mcp.Close()

	if err := mcp.Ping(globals.ctx); err != nil {
		return err
	}

	if info := mcp.ServerInfo(); info != nil {
		fmt.Printf("%s %s (protocol %s)\n", info.ServerInfo.Name, info.ServerInfo.Version, info.Version)
	} else {
		fmt.Println("ok")
	}
	return nil
}
