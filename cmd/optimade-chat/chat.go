package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	// Packages
	term "golang.org/x/term"

	chat "github.com/optimade-mcp/chat/pkg/chat"
	ui "github.com/optimade-mcp/chat/pkg/ui"
	termui "github.com/optimade-mcp/chat/pkg/ui/term"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type ChatCmd struct {
	Server string `arg:"" help:"MCP server URL or path to a local server script (.py or .js)"`
	System string `name:"system" help:"Override the system prompt"`
	Plain  bool   `name:"plain" help:"Use a plain line-oriented interface"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *ChatCmd) Run(globals *Globals) error {
	session, err := globals.NewSession(cmd.Server, cmd.System)
	if err != nil {
		return err
	}
	defer session.Close()

	// Full-screen TUI on a terminal, line-oriented otherwise
	var frontend ui.ChatUI
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive && !cmd.Plain {
		frontend, err = termui.New()
		if err != nil {
			return err
		}
	} else {
		fmt.Println(greeting(session))
		frontend = termui.NewPlain(os.Stdin, os.Stdout, interactive)
	}
	defer frontend.Close()

	// Event loop
	greeted := false
	for {
		evt, err := frontend.Receive(globals.ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			return err
		}

		if interactive && !cmd.Plain && !greeted {
			greeted = true
			evt.Context.SendText(globals.ctx, greeting(session))
		}

		// Interactive commands, bare or slash-prefixed
		if result := session.Dispatch(evt.Text); result != nil {
			if result.Quit {
				return nil
			}
			if err := evt.Context.SendText(globals.ctx, result.Output); err != nil {
				return err
			}
			continue
		}

		// Everything else is a query. Failures are reported and the
		// session continues.
		evt.Context.SetTyping(globals.ctx, true)
		answer, err := session.ProcessQuery(globals.ctx, evt.Text)
		evt.Context.SetTyping(globals.ctx, false)
		if errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			evt.Context.SendError(globals.ctx, err)
			continue
		}
		if err := evt.Context.SendMarkdown(globals.ctx, answer); err != nil {
			return err
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func greeting(session *chat.Session) string {
	name := "MCP server"
	if info := session.ServerInfo(); info != nil && info.ServerInfo.Name != "" {
		name = info.ServerInfo.Name
	}
	return fmt.Sprintf("Connected to %s with %d tools, using %s (%s). Type help for commands.",
		name, len(session.Tools()), session.Provider().Name(), session.Provider().Model())
}
