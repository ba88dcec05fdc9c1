package main

import (
	"fmt"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type QueryCmd struct {
	Server string   `arg:"" help:"MCP server URL or path to a local server script (.py or .js)"`
	Query  []string `arg:"" help:"The query to run"`
	System string   `name:"system" help:"Override the system prompt"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *QueryCmd) Run(globals *Globals) error {
	session, err := globals.NewSession(cmd.Server, cmd.System)
	if err != nil {
		return err
	}
	defer session.Close()

	answer, err := session.ProcessQuery(globals.ctx, strings.Join(cmd.Query, " "))
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}
