package term_test

import (
	"context"
	"io"
	"strings"
	"testing"

	// Packages
	assert "github.com/stretchr/testify/assert"

	ui "github.com/optimade-mcp/chat/pkg/ui"
	term "github.com/optimade-mcp/chat/pkg/ui/term"
)

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_plain_001(t *testing.T) {
	assert := assert.New(t)

	input := strings.NewReader("find silicon structures\n\n/model gpt-4o\nquit\n")
	var output strings.Builder
	p := term.NewPlain(input, &output, false)
	ctx := context.Background()

	// Plain text
	evt, err := p.Receive(ctx)
	assert.NoError(err)
	assert.Equal(ui.EventText, evt.Type)
	assert.Equal("find silicon structures", evt.Text)

	// Blank lines are skipped; slash commands are parsed
	evt, err = p.Receive(ctx)
	assert.NoError(err)
	assert.Equal(ui.EventCommand, evt.Type)
	assert.Equal("model", evt.Command)
	assert.Equal([]string{"gpt-4o"}, evt.Args)

	// Bare words are text events; command interpretation happens upstream
	evt, err = p.Receive(ctx)
	assert.NoError(err)
	assert.Equal(ui.EventText, evt.Type)
	assert.Equal("quit", evt.Text)

	// End of input
	_, err = p.Receive(ctx)
	assert.ErrorIs(err, io.EOF)
}

func Test_plain_002(t *testing.T) {
	assert := assert.New(t)

	var output strings.Builder
	p := term.NewPlain(strings.NewReader("hello\n"), &output, true)

	evt, err := p.Receive(context.Background())
	assert.NoError(err)
	assert.Equal("> ", output.String())

	// Responses are written to the output
	assert.NoError(evt.Context.SendText(context.Background(), "hi"))
	assert.NoError(evt.Context.SendMarkdown(context.Background(), "**bold**"))
	assert.NoError(evt.Context.SendError(context.Background(), io.ErrUnexpectedEOF))
	assert.Contains(output.String(), "hi\n")
	assert.Contains(output.String(), "**bold**")
	assert.Contains(output.String(), "error:")
}
