package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	// Packages
	ui "github.com/optimade-mcp/chat/pkg/ui"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Plain implements ui.ChatUI as a line-oriented reader and writer, for
// sessions where stdin or stdout is not a terminal.
type Plain struct {
	scanner *bufio.Scanner
	out     io.Writer
	ctx     *plainContext
	prompt  bool // write a prompt before reading
}

type plainContext struct {
	out io.Writer
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewPlain creates a line-oriented chat UI reading from r and writing to w.
// A prompt is written before each read when prompt is true.
func NewPlain(r io.Reader, w io.Writer, prompt bool) *Plain {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Plain{
		scanner: scanner,
		out:     w,
		ctx:     &plainContext{out: w},
		prompt:  prompt,
	}
}

// Close is a no-op; the caller owns the reader and writer
func (p *Plain) Close() error {
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Receive reads the next non-empty line. It returns io.EOF when the input
// is exhausted.
func (p *Plain) Receive(ctx context.Context) (ui.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ui.Event{}, err
		}
		if p.prompt {
			fmt.Fprint(p.out, "> ")
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return ui.Event{}, err
			}
			return ui.Event{}, io.EOF
		}
		text := strings.TrimSpace(p.scanner.Text())
		if text == "" {
			continue
		}
		return parseEvent(p.ctx, text), nil
	}
}

func (c *plainContext) SendText(_ context.Context, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *plainContext) SendMarkdown(ctx context.Context, markdown string) error {
	return c.SendText(ctx, markdown)
}

func (c *plainContext) SendError(_ context.Context, err error) error {
	_, werr := fmt.Fprintln(c.out, "error:", err)
	return werr
}

func (c *plainContext) SetTyping(context.Context, bool) error {
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// parseEvent classifies a line as a slash command or plain text
func parseEvent(ctx ui.Context, text string) ui.Event {
	evt := ui.Event{
		Context: ctx,
		Text:    text,
	}
	if strings.HasPrefix(text, "/") {
		parts := strings.Fields(text)
		evt.Type = ui.EventCommand
		evt.Command = strings.TrimPrefix(parts[0], "/")
		if len(parts) > 1 {
			evt.Args = parts[1:]
		}
	} else {
		evt.Type = ui.EventText
	}
	return evt
}
