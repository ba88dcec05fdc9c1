package chat

import (
	"fmt"
	"strings"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Result is the outcome of an interactive command
type Result struct {
	Output string // text to display
	Quit   bool   // true when the session should end
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// How many history entries to display
	historyDisplayLimit = 5

	helpText = `Commands:
  help           show this help
  tools          list the tools available on the server
  history        show recent queries
  model <name>   switch the completion model
  quit           exit

Anything else is sent to the model as a query.`
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Dispatch interprets an interactive command line, with or without a
// leading slash. It returns nil when the line is not a command and should
// be processed as a query.
func (s *Session) Dispatch(line string) *Result {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")

	switch strings.ToLower(cmd) {
	case "help", "?":
		return &Result{Output: helpText}
	case "tools":
		return &Result{Output: s.toolsText()}
	case "history":
		return &Result{Output: s.historyText()}
	case "model":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return &Result{Output: "model: " + s.provider.Model()}
		}
		s.provider.SetModel(arg)
		return &Result{Output: "model set to " + arg}
	case "quit", "exit", "q":
		return &Result{Quit: true}
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s *Session) toolsText() string {
	if len(s.tools) == 0 {
		return "no tools available"
	}
	var b strings.Builder
	for _, tool := range s.tools {
		fmt.Fprintf(&b, "%-24s %s\n", tool.Name, tool.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Session) historyText() string {
	n := s.history.Len()
	if n == 0 {
		return "history is empty"
	}

	entries := s.history.Last(historyDisplayLimit)
	var b strings.Builder
	fmt.Fprintf(&b, "%d queries, showing last %d:\n", n, len(entries))
	for _, entry := range entries {
		b.WriteString(entry.String())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
