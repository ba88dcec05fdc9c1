// Package ui defines the interface for chat frontends. A frontend is an
// event source: callers loop over Receive to obtain user input, and send
// responses through the Context attached to each event.
package ui

import (
	"context"
)

///////////////////////////////////////////////////////////////////////////////
// INTERFACES

// ChatUI is the interface every chat frontend implements. Receive returns
// io.EOF when the frontend is permanently closed.
type ChatUI interface {
	// Receive blocks until the next incoming event is available, the
	// context is cancelled, or the interface is closed.
	Receive(ctx context.Context) (Event, error)

	// Close releases resources held by the interface
	Close() error
}

// Context provides methods for responding to an event.
type Context interface {
	// SendText sends a plain text message
	SendText(ctx context.Context, text string) error

	// SendMarkdown sends a Markdown-formatted message, rendered
	// appropriately for the frontend
	SendMarkdown(ctx context.Context, markdown string) error

	// SendError reports an error to the user
	SendError(ctx context.Context, err error) error

	// SetTyping shows or hides a busy indicator
	SetTyping(ctx context.Context, typing bool) error
}

///////////////////////////////////////////////////////////////////////////////
// EVENT TYPES

// EventType identifies the kind of incoming event
type EventType int

const (
	EventText    EventType = iota // user sent a text message
	EventCommand                  // user sent a slash command
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event represents an incoming event from the user
type Event struct {
	// Type identifies what kind of event this is
	Type EventType

	// Context provides the response methods for this event
	Context Context

	// Text contains the message text, or the full command string for
	// EventCommand
	Text string

	// Command contains the parsed command name without the leading
	// slash, for EventCommand only
	Command string

	// Args contains the parsed command arguments, for EventCommand only
	Args []string
}
