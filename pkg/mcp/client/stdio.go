package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	// Packages
	mcp "github.com/optimade-mcp/chat/pkg/mcp"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// stdioTransport spawns a local MCP server script as a subprocess and
// exchanges newline-delimited JSON-RPC messages over its stdin/stdout.
// Requests are strictly sequential: each roundTrip writes one request and
// consumes lines until the matching response arrives, dispatching any
// interleaved notifications along the way. A reader goroutine delivers
// stdout lines over a channel so waiting observes context cancellation.
type stdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan []byte
	done    chan struct{}
	readErr error // set before lines is closed
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Grace period for the server process to exit after stdin closes
	stdioShutdownTimeout = 5 * time.Second

	// Server stdout lines can carry large tool results
	stdioBufferSize = 16 * 1024 * 1024
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// newStdioTransport validates the server script path, determines the
// interpreter from the file extension (.py or .js), and starts the
// subprocess. The server's stderr is passed through to our stderr.
func newStdioTransport(path string) (*stdioTransport, error) {
	var command string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		command = "python3"
	case ".js":
		command = "node"
	default:
		return nil, mcp.NewError(mcp.ErrorCodeInvalidParameters, "server script must be a .py or .js file: "+path)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, mcp.NewError(mcp.ErrorCodeInvalidParameters, "server script not found: "+path)
	}

	cmd := exec.Command(command, path)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting server %q: %w", path, err)
	}

	t := &stdioTransport{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
	go t.read(bufio.NewReaderSize(stdout, stdioBufferSize))

	return t, nil
}

// close shuts down the subprocess: closing stdin signals the server to
// exit; if it has not exited within the grace period it is killed.
func (t *stdioTransport) close() error {
	close(t.done)
	if t.stdin != nil {
		t.stdin.Close()
	}

	done := make(chan error, 1)
	go func() {
		done <- t.cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(stdioShutdownTimeout):
		if err := t.cmd.Process.Kill(); err != nil {
			return err
		}
		return <-done
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// initStdio performs the MCP initialize handshake over the stdio transport.
// Must be called with c.mu held.
func (c *Client) initStdio(ctx context.Context, initReq mcp.Request) error {
	resp, err := c.doStdioRPC(ctx, initReq)
	if err != nil {
		return err
	}

	// Decode server info from result
	if err := decodeResult(resp.Result, &c.server); err != nil {
		return err
	}

	// Send initialized notification (fire-and-forget, no response expected)
	if err := c.stdio.write(mcp.Request{
		Version: mcp.RPCVersion,
		Method:  mcp.NotificationTypeInitialize,
	}); err != nil {
		return err
	}

	c.initialized = true
	return nil
}

// doStdioRPC writes a request and blocks until the response with the
// matching ID arrives on the server's stdout, or the context is done.
// Interleaved notifications are dispatched to the notify callback.
func (c *Client) doStdioRPC(ctx context.Context, req mcp.Request) (*response, error) {
	reqId, ok := toInt64(req.ID)
	if !ok {
		return nil, fmt.Errorf("stdio transport: request has no numeric ID")
	}

	if err := c.stdio.write(req); err != nil {
		return nil, err
	}

	for {
		var line []byte
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case data, ok := <-c.stdio.lines:
			if !ok {
				err := c.stdio.readErr
				if err == nil {
					err = io.EOF
				}
				return nil, fmt.Errorf("stdio transport: server closed connection: %w", err)
			}
			line = data
		}

		// Try to decode as a response with our request ID
		var resp mcp.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue // skip malformed lines
		}
		if id, ok := toInt64(resp.ID); ok && id == reqId {
			if resp.Err != nil {
				return nil, resp.Err
			}
			return &response{Response: resp}, nil
		}

		// Otherwise treat as a notification (has method, no ID)
		var msg mcp.Request
		if err := json.Unmarshal(line, &msg); err == nil && msg.ID == nil {
			c.notify(msg.Method, msg.Payload)
		}
	}
}

// read delivers non-empty stdout lines to the lines channel until the
// server closes its stdout or the transport is closed. The terminating
// read error is recorded before the channel is closed.
func (t *stdioTransport) read(r *bufio.Reader) {
	defer close(t.lines)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 1 {
			select {
			case t.lines <- line:
			case <-t.done:
				return
			}
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

// write marshals a JSON-RPC message and writes it as a single line to the
// server's stdin.
func (t *stdioTransport) write(req mcp.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}
