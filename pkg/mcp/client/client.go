/*
Package client implements an MCP (Model Context Protocol) client which can
speak to a server over three transports: a local server script spawned as a
stdio subprocess, Streamable HTTP, or the legacy HTTP+SSE transport. The
transport is normally inferred from the server argument: URLs containing
"/sse" use the legacy transport, other URLs use Streamable HTTP, and
anything else is treated as a local script path.
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	// Packages
	client "github.com/mutablelogic/go-client"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	mcp "github.com/optimade-mcp/chat/pkg/mcp"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Transport selects how the client communicates with the MCP server.
type Transport string

// NotifyFunc is called for server notifications received on any transport,
// such as progress updates or log messages.
type NotifyFunc func(method string, params json.RawMessage)

// Client is an MCP client that exchanges JSON-RPC 2.0 messages with a
// single server. It is initialized lazily: the first call performs the
// MCP handshake.
type Client struct {
	*client.Client
	id          atomic.Int64
	mu          sync.Mutex
	initialized bool
	sessionId   string
	url         string // server endpoint URL (HTTP transports)
	server      mcp.ResponseInitialize
	clientInfo  mcp.ClientInfo
	tools       map[string]*mcp.Tool // cached tools by name
	notifyMu    sync.Mutex           // protects notifyFn
	notifyFn    NotifyFunc           // optional notification callback
	token       client.Token         // auth token for raw HTTP requests
	stdio       *stdioTransport      // non-nil when using the stdio transport
	sse         *sseTransport        // non-nil when using the legacy SSE transport
}

// response wraps a JSON-RPC response and captures the Mcp-Session-Id header.
type response struct {
	mcp.Response
	sessionId *string
}

// Ensure response implements client.Unmarshaler
var _ client.Unmarshaler = (*response)(nil)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	TransportAuto  Transport = "auto"
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
	TransportSSE   Transport = "sse"
)

const (
	// MCP Streamable HTTP requires both JSON and SSE in Accept header
	mcpAccept = "application/json, text/event-stream"
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new MCP client for the given server. The server is either a
// URL (HTTP transports) or a path to a local server script (stdio). When the
// transport is TransportAuto it is inferred with InferTransport.
func New(server string, transport Transport, info mcp.ClientInfo, opts ...client.ClientOpt) (*Client, error) {
	if transport == TransportAuto || transport == "" {
		transport = InferTransport(server)
	}

	c := new(Client)
	c.clientInfo = info

	switch transport {
	case TransportStdio:
		stdio, err := newStdioTransport(server)
		if err != nil {
			return nil, err
		}
		c.stdio = stdio
	case TransportHTTP, TransportSSE:
		c.url = server
		defaults := []client.ClientOpt{
			client.OptEndpoint(server),
			client.OptUserAgent(info.Name + "/" + info.Version),
		}
		httpClient, err := client.New(append(defaults, opts...)...)
		if err != nil {
			return nil, err
		}
		c.Client = httpClient
		if transport == TransportSSE {
			c.sse = &sseTransport{}
		}
	default:
		return nil, mcp.NewError(mcp.ErrorCodeInvalidParameters, "unsupported transport: "+string(transport))
	}

	return c, nil
}

// InferTransport guesses the transport from the server argument. URLs with
// "/sse" in the path use the legacy SSE transport, other URLs use Streamable
// HTTP, and anything else is treated as a local server script.
func InferTransport(server string) Transport {
	if strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://") {
		if strings.Contains(server, "/sse") {
			return TransportSSE
		}
		return TransportHTTP
	}
	return TransportStdio
}

// Close terminates the MCP session. For Streamable HTTP it sends a DELETE
// request with the session ID; for stdio it shuts down the subprocess; for
// SSE it closes the stream. It is a no-op if the client never initialized.
func (c *Client) Close() error {
	c.mu.Lock()

	if !c.initialized {
		c.mu.Unlock()
		if c.stdio != nil {
			return c.stdio.close()
		}
		return nil
	}

	// Stop the SSE reader goroutine
	if c.sse != nil && c.sse.cancel != nil {
		c.sse.cancel()
	}
	c.mu.Unlock()

	if c.sse != nil {
		c.sse.wg.Wait()
		if c.sse.body != nil {
			c.sse.body.Close()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var result error

	// Shut down the stdio subprocess
	if c.stdio != nil {
		result = c.stdio.close()
	}

	// Send DELETE with session ID to terminate the session (Streamable HTTP only)
	if c.stdio == nil && c.sse == nil && c.sessionId != "" {
		if err := c.DoWithContext(
			context.Background(),
			client.MethodDelete,
			nil,
			client.OptReqHeader("Mcp-Session-Id", c.sessionId),
		); err != nil {
			result = errors.Join(result, err)
		}
	}

	// Reset state
	c.initialized = false
	c.sessionId = ""
	c.server = mcp.ResponseInitialize{}
	c.tools = nil
	c.stdio = nil
	c.sse = nil

	return result
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// OnNotification sets a callback for server notifications (e.g. progress
// updates, log messages, list changes) received on any transport.
func (c *Client) OnNotification(fn NotifyFunc) {
	c.notifyMu.Lock()
	c.notifyFn = fn
	c.notifyMu.Unlock()
}

// SetToken stores the authentication token for use in raw HTTP requests
// (e.g. the SSE transport stream). This should match the token configured
// via client.OptReqToken on the underlying HTTP client.
func (c *Client) SetToken(token client.Token) {
	c.token = token
}

// ServerInfo returns the server information from the MCP handshake.
// Returns nil if the client has not yet been initialized.
func (c *Client) ServerInfo() *mcp.ResponseInitialize {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil
	}
	return &c.server
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// init performs the MCP initialize handshake if not already done. For the
// HTTP transport it tries Streamable HTTP first; if the server returns 404
// or 405, it falls back to the legacy SSE transport.
func (c *Client) init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Already initialized
	if c.initialized {
		return nil
	}

	// Build the initialize request
	params, err := json.Marshal(mcp.RequestInitialize{
		ProtocolVersion: mcp.ProtocolVersion,
		ClientInfo:      c.clientInfo,
	})
	if err != nil {
		return err
	}
	initReq := mcp.Request{
		Version: mcp.RPCVersion,
		Method:  mcp.MessageTypeInitialize,
		ID:      c.nextId(),
		Payload: params,
	}

	// Stdio transport
	if c.stdio != nil {
		return c.initStdio(ctx, initReq)
	}

	// Explicit SSE transport
	if c.sse != nil {
		return c.initSSE(ctx, initReq)
	}

	// Streamable HTTP
	payload, err := client.NewJSONRequestEx(http.MethodPost, initReq, mcpAccept)
	if err != nil {
		return err
	}

	// Send initialize and capture the session ID from response headers
	var resp response
	resp.sessionId = &c.sessionId
	c.notifyMu.Lock()
	fn := c.notifyFn
	c.notifyMu.Unlock()
	opts := []client.RequestOpt{
		client.OptTextStreamCallback(resp.eventCallback(fn)),
	}
	if err := c.DoWithContext(ctx, payload, &resp, opts...); err != nil {
		// If 404 or 405, fall back to legacy SSE transport
		if isHTTPStatus(err, http.StatusNotFound) || isHTTPStatus(err, http.StatusMethodNotAllowed) {
			c.sse = &sseTransport{}
			return c.initSSE(ctx, initReq)
		}
		return err
	}

	// Check for JSON-RPC error
	if resp.Err != nil {
		return resp.Err
	}

	// Decode the result into server info
	if err := decodeResult(resp.Result, &c.server); err != nil {
		return err
	}

	// Send initialized notification (no ID = notification)
	notifReq := mcp.Request{
		Version: mcp.RPCVersion,
		Method:  mcp.NotificationTypeInitialize,
	}
	notifPayload, err := client.NewJSONRequestEx(http.MethodPost, notifReq, mcpAccept)
	if err != nil {
		return err
	}

	// Include session ID header if we have one. Notifications return no
	// content, so pass nil for out.
	var notifOpts []client.RequestOpt
	if c.sessionId != "" {
		notifOpts = append(notifOpts, client.OptReqHeader("Mcp-Session-Id", c.sessionId))
	}
	if err := c.DoWithContext(ctx, notifPayload, nil, notifOpts...); err != nil {
		return err
	}

	c.initialized = true
	return nil
}

// isHTTPStatus checks if an error is an HTTP error with the given status code.
func isHTTPStatus(err error, code int) bool {
	var httpErr httpresponse.Err
	if errors.As(err, &httpErr) && int(httpErr) == code {
		return true
	}
	return false
}

// nextId returns the next JSON-RPC request ID.
func (c *Client) nextId() int64 {
	return c.id.Add(1)
}

// notify dispatches a notification to the callback, if one is set.
func (c *Client) notify(method string, params json.RawMessage) {
	c.notifyMu.Lock()
	fn := c.notifyFn
	c.notifyMu.Unlock()
	if fn != nil && method != "" {
		fn(method, params)
	}
}

// reqOpts returns request options including the session ID header.
func (c *Client) reqOpts(extra ...client.RequestOpt) []client.RequestOpt {
	opts := make([]client.RequestOpt, 0, len(extra)+1)
	if c.sessionId != "" {
		opts = append(opts, client.OptReqHeader("Mcp-Session-Id", c.sessionId))
	}
	return append(opts, extra...)
}

// doRPC sends a JSON-RPC request and returns the response, routed through
// whichever transport is active.
func (c *Client) doRPC(ctx context.Context, req mcp.Request) (*response, error) {
	// Stdio and SSE transports
	if c.stdio != nil {
		return c.doStdioRPC(ctx, req)
	}
	if c.sse != nil {
		return c.doSSERPC(ctx, req)
	}

	// Streamable HTTP: create payload and POST
	payload, err := client.NewJSONRequestEx(http.MethodPost, req, mcpAccept)
	if err != nil {
		return nil, err
	}

	var resp response
	c.notifyMu.Lock()
	fn := c.notifyFn
	c.notifyMu.Unlock()
	opts := c.reqOpts(
		client.OptNoTimeout(),
		client.OptTextStreamCallback(resp.eventCallback(fn)),
	)
	if err := c.DoWithContext(ctx, payload, &resp, opts...); err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &resp, nil
}

// decodeResult marshals a JSON-RPC result (any) back to JSON and decodes
// it into dest.
func decodeResult(result any, dest any) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// toInt64 converts a JSON-RPC ID (which may arrive as int64, float64 or
// json.Number) to an int64.
func toInt64(id any) (int64, bool) {
	switch v := id.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

///////////////////////////////////////////////////////////////////////////////
// UNMARSHALER

func (r *response) Unmarshal(header http.Header, body io.Reader) error {
	// Capture session ID from response header
	if id := header.Get("Mcp-Session-Id"); id != "" && r.sessionId != nil {
		*r.sessionId = id
	}

	// Check content type - if SSE, fall through to go-client's native handler
	if ct := header.Get("Content-Type"); ct != "" {
		if mimetype, _, err := mime.ParseMediaType(ct); err == nil && mimetype == client.ContentTypeTextStream {
			return httpresponse.ErrNotImplemented
		}
	}

	// Decode the JSON-RPC response
	return json.NewDecoder(body).Decode(&r.Response)
}

// eventCallback returns a TextStreamCallback that decodes SSE events
// containing JSON-RPC messages into this response. Notifications (messages
// without an ID) are dispatched to the notify callback if set.
func (r *response) eventCallback(notifyFn NotifyFunc) client.TextStreamCallback {
	return func(event client.TextStreamEvent) error {
		// MCP sends JSON-RPC responses as "message" events (or default unnamed events)
		if event.Event != "message" && event.Event != "" {
			return nil
		}

		// Peek at the message to check if it's a notification (no ID)
		var msg mcp.Request
		if err := event.Json(&msg); err != nil {
			return err
		}

		// Notifications have a method but no ID
		if msg.ID == nil && msg.Method != "" {
			if notifyFn != nil {
				notifyFn(msg.Method, msg.Payload)
			}
			return nil // keep streaming
		}

		// It's a response - decode into our response struct
		if err := event.Json(&r.Response); err != nil {
			return err
		}
		return io.EOF // got our response, stop streaming
	}
}
