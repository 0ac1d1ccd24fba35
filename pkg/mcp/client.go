// Package mcp is a client for tool servers speaking the Model Context
// Protocol over server-sent events.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const protocolVersion = "2024-11-05"

type Config struct {
	Name string
	URL  string
	// Timeout bounds connecting and the initialize handshake.
	Timeout time.Duration
	// SSEReadTimeout is how long the event stream may stay silent before
	// the connection is dropped.
	SSEReadTimeout time.Duration
	// SessionTimeout bounds every request made after the handshake.
	SessionTimeout time.Duration
	HTTPClient     *http.Client
}

// DeepWiki is the documentation server used by the critique stage.
func DeepWiki() Config {
	return Config{
		Name:           "DeepWiki",
		URL:            "https://mcp.deepwiki.com/sse",
		Timeout:        30 * time.Second,
		SSEReadTimeout: 600 * time.Second,
		SessionTimeout: 60 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// Client is one SSE session with a tool server. It implements
// agent.ToolServer.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	postURL  string
	pending  map[int]chan *rpcResponse
	nextID   int
	tools    []agent.ToolSchema
	endpoint chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ agent.ToolServer = (*Client)(nil)

// Connect opens the event stream, waits for the endpoint event and runs the
// initialize handshake.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		http:     cfg.HTTPClient,
		pending:  map[int]chan *rpcResponse{},
		nextID:   1,
		endpoint: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelConnect()

	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	type connectResult struct {
		resp *http.Response
		err  error
	}
	connected := make(chan connectResult, 1)
	go func() {
		resp, err := c.http.Do(req)
		connected <- connectResult{resp, err}
	}()

	var resp *http.Response
	select {
	case r := <-connected:
		if r.err != nil {
			cancel()
			return nil, errors.Wrapf(r.err, "failed to connect to %s", cfg.URL)
		}
		resp = r.resp
	case <-connectCtx.Done():
		cancel()
		r := <-connected
		if r.resp != nil {
			_ = r.resp.Body.Close()
		}
		return nil, errors.Wrapf(connectCtx.Err(), "failed to connect to %s", cfg.URL)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, errors.Errorf("%s returned status %d", cfg.URL, resp.StatusCode)
	}

	go c.readLoop(resp.Body)

	select {
	case <-c.endpoint:
	case <-c.done:
		_ = c.Close()
		return nil, errors.Errorf("connection to %s closed before endpoint event", cfg.URL)
	case <-connectCtx.Done():
		_ = c.Close()
		return nil, errors.Wrap(connectCtx.Err(), "timeout waiting for endpoint event")
	}

	if _, err := c.call(connectCtx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "agentic-research",
			"version": "1.0.0",
		},
	}); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "initialize failed")
	}
	if err := c.notify(connectCtx, "notifications/initialized"); err != nil {
		_ = c.Close()
		return nil, err
	}

	log.Debug().Str("server", cfg.Name).Str("url", cfg.URL).Msg("Connected to tool server")
	return c, nil
}

func (c *Client) Name() string {
	return c.cfg.Name
}

// Close ends the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.http.CloseIdleConnections()
		log.Debug().Str("server", c.cfg.Name).Msg("Closed tool server connection")
	})
	return nil
}

func (c *Client) readLoop(body io.ReadCloser) {
	defer close(c.done)
	defer func() {
		_ = body.Close()
	}()
	defer c.failPending()

	// silence watchdog
	var watchdog *time.Timer
	if c.cfg.SSEReadTimeout > 0 {
		watchdog = time.AfterFunc(c.cfg.SSEReadTimeout, func() {
			log.Warn().Str("server", c.cfg.Name).Msg("Event stream read timeout")
			c.cancel()
		})
		defer watchdog.Stop()
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	eventType := "message"
	var data bytes.Buffer

	for scanner.Scan() {
		if watchdog != nil {
			watchdog.Reset(c.cfg.SSEReadTimeout)
		}
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.handleEvent(eventType, strings.TrimSuffix(data.String(), "\n"))
			}
			eventType = "message"
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("server", c.cfg.Name).Msg("Event stream ended")
	}
}

// failPending unblocks callers waiting on a closed stream.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) handleEvent(eventType, data string) {
	switch eventType {
	case "endpoint":
		c.mu.Lock()
		first := c.postURL == ""
		c.postURL = c.resolve(data)
		c.mu.Unlock()
		if first {
			close(c.endpoint)
		}

	case "message":
		var resp rpcResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			log.Warn().Err(err).Str("server", c.cfg.Name).Msg("Could not decode tool server message")
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			log.Debug().Int("id", resp.ID).Msg("Ignoring unsolicited tool server message")
			return
		}
		select {
		case ch <- &resp:
		default:
			log.Warn().Int("id", resp.ID).Msg("Duplicate tool server response")
		}

	default:
		log.Trace().Str("event", eventType).Msg("Ignoring tool server event")
	}
}

func (c *Client) resolve(endpoint string) string {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}

func (c *Client) post(ctx context.Context, req rpcRequest) error {
	c.mu.Lock()
	postURL := c.postURL
	c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", req.Method)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("%s returned status %d: %s", req.Method, resp.StatusCode, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	return c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method})
}

// call posts a request and waits for its response on the event stream.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.Errorf("connection to %s closed", c.cfg.Name)
		}
		if resp.Error != nil {
			return nil, errors.Errorf("%s error %d: %s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-c.done:
		return nil, errors.Errorf("connection to %s closed", c.cfg.Name)
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s timed out", method)
	}
}

func (c *Client) sessionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.SessionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.SessionTimeout)
}

// ListTools returns the server's tools. The list is fetched once per
// session.
func (c *Client) ListTools(ctx context.Context) ([]agent.ToolSchema, error) {
	c.mu.Lock()
	cached := c.tools
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	ctx, cancel := c.sessionContext(ctx)
	defer cancel()
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tools")
	}
	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse tools response")
	}

	tools := make([]agent.ToolSchema, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, agent.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return tools, nil
}

// CallTool invokes name and returns the text content of the result. A
// result flagged as an error is returned as an error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	ctx, cancel := c.sessionContext(ctx)
	defer cancel()

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	raw, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.Wrapf(err, "failed to parse %s result", name)
	}
	var parts []string
	for _, content := range result.Content {
		if content.Type == "text" {
			parts = append(parts, content.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", errors.Errorf("%s failed: %s", name, text)
	}
	return text, nil
}
