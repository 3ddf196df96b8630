package companion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ProtocolVersion is the MCP protocol revision mnemo speaks.
const ProtocolVersion = "2024-11-05"

const maxMessageBytes = 4 << 20

// errConnectionClosed is returned for calls pending when the companion's stdout closes.
var errConnectionClosed = errors.New("companion connection closed")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcMessage struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("companion error %d: %s", e.Code, e.Message)
}

// ServerInfo identifies the companion, as reported by initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// Tool is one tool advertised by the companion.
type Tool struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

// rpcClient speaks newline-delimited JSON-RPC 2.0 over a companion's stdio.
type rpcClient struct {
	mu      sync.Mutex
	w       io.Writer
	nextID  int64
	pending map[int64]chan rpcMessage

	closed chan struct{}
	logger *slog.Logger
}

// newRPCClient starts a reader goroutine on r. The returned client's done
// channel closes once that goroutine has returned.
func newRPCClient(w io.Writer, r io.Reader, logger *slog.Logger) *rpcClient {
	c := &rpcClient{
		w:       w,
		nextID:  1,
		pending: make(map[int64]chan rpcMessage),
		closed:  make(chan struct{}),
		logger:  logger,
	}

	go c.readLoop(r)

	return c
}

func (c *rpcClient) done() <-chan struct{} {
	return c.closed
}

func (c *rpcClient) readLoop(r io.Reader) {
	defer close(c.closed)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Debug("ignoring non-JSON companion output", slog.Int("bytes", len(line)))
			continue
		}

		if msg.ID == nil {
			c.logger.Debug("companion notification", slog.String("rpc.method", msg.Method))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("response for unknown request", slog.Int64("rpc.id", *msg.ID))
			continue
		}

		ch <- msg
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		c.logger.Debug("companion stdout closed", slog.String("error", err.Error()))
	}
}

func (c *rpcClient) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", req.Method, err)
	}

	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s request: %w", req.Method, err)
	}

	return nil
}

// call sends method and decodes the result into out, which may be nil.
func (c *rpcClient) call(ctx context.Context, method string, params, out any) error {
	ch := make(chan rpcMessage, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.pending[id] = ch

	err := c.write(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}

		if out == nil || len(msg.Result) == 0 {
			return nil
		}

		if err := json.Unmarshal(msg.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}

		return nil
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-c.closed:
		forget()
		return errConnectionClosed
	}
}

// notify sends a notification, which has no response.
func (c *rpcClient) notify(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.write(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// initialize performs the MCP handshake and returns the companion's identity.
func (c *rpcClient) initialize(ctx context.Context, clientVersion string) (ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mnemo",
			"version": clientVersion,
		},
	}

	var result initializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return ServerInfo{}, err
	}

	if err := c.notify("notifications/initialized", nil); err != nil {
		return ServerInfo{}, err
	}

	return result.ServerInfo, nil
}

func (c *rpcClient) listTools(ctx context.Context) ([]Tool, error) {
	var result listToolsResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}

	return result.Tools, nil
}
