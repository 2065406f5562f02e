package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

const protocolVersion = "2024-11-05"

// ErrServerExited is returned for requests pending when the server's stdout
// closes.
var ErrServerExited = errors.New("mcp server exited")

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      *int                   `json:"id"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *JSONRPCError          `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Options describes how to launch one stdio MCP server.
type Options struct {
	Name    string
	Command string
	Args    []string
	// Env replaces the inherited environment when non-nil.
	Env    []string
	Logger logrus.FieldLogger
}

// Executor talks JSON-RPC to one MCP server over its stdin/stdout.
type Executor struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   logrus.FieldLogger

	writeMu sync.Mutex
	writer  *bufio.Writer

	mu        sync.Mutex
	requestID int
	pending   map[int]chan *JSONRPCResponse
	closed    bool
	done      chan struct{}
}

// Start launches the server and performs the initialize handshake.
func Start(ctx context.Context, opts Options) (*Executor, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("server %s has no command", opts.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logging.WithComponent(opts.Logger, "mcp").WithField("server", opts.Name)

	cmd := exec.Command(opts.Command, opts.Args...)
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	log.WithField("command", strings.Join(append([]string{opts.Command}, opts.Args...), " ")).Debug("Starting MCP server")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	e := &Executor{
		name:    opts.Name,
		cmd:     cmd,
		stdin:   stdin,
		log:     log,
		writer:  bufio.NewWriter(stdin),
		pending: make(map[int]chan *JSONRPCResponse),
		done:    make(chan struct{}),
	}

	go e.readStderr(stderr)
	go e.readResponses(stdout)

	if err := e.initialize(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}
	return e, nil
}

// Name returns the configured server name.
func (e *Executor) Name() string {
	return e.name
}

func (e *Executor) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		e.log.WithField("stream", "stderr").Debug(scanner.Text())
	}
}

// readResponses routes responses to their waiting requests. Lines that are
// not JSON-RPC responses (server logs, notifications) are skipped.
func (e *Executor) readResponses(r io.Reader) {
	defer e.failPending()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil || resp.ID == nil {
			e.log.WithField("line", line).Debug("Skipping non-response line")
			continue
		}

		e.mu.Lock()
		ch, ok := e.pending[*resp.ID]
		delete(e.pending, *resp.ID)
		e.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (e *Executor) failPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}
}

func (e *Executor) initialize(ctx context.Context) error {
	resp, err := e.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"roots": map[string]interface{}{"listChanged": true},
		},
		"clientInfo": map[string]interface{}{
			"name":    "vibe-mcp-worker",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %s", resp.Error.Message)
	}

	if err := e.notify("notifications/initialized"); err != nil {
		return err
	}
	e.log.Debug("MCP server initialized")
	return nil
}

// ListTools retrieves all available tools from the MCP server
func (e *Executor) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := e.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %s", resp.Error.Message)
	}

	toolsData, ok := resp.Result["tools"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid tools response format")
	}

	tools := make([]Tool, 0, len(toolsData))
	for _, t := range toolsData {
		toolMap, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		description, _ := toolMap["description"].(string)
		tool := Tool{Name: name, Description: description}
		if schema, ok := toolMap["inputSchema"].(map[string]interface{}); ok {
			tool.InputSchema = schema
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// CallTool executes a tool and returns the text of its first content item.
func (e *Executor) CallTool(ctx context.Context, toolName string, arguments map[string]interface{}) (string, error) {
	resp, err := e.call(ctx, "tools/call", map[string]interface{}{
		"name":      toolName,
		"arguments": arguments,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("tool error: %s", resp.Error.Message)
	}

	content, ok := resp.Result["content"].([]interface{})
	if !ok || len(content) == 0 {
		// Side-effect tools may answer with an empty result.
		if len(resp.Result) > 0 {
			if resultJSON, err := json.Marshal(resp.Result); err == nil && string(resultJSON) != "{}" {
				return string(resultJSON), nil
			}
		}
		return "Tool executed successfully", nil
	}

	first, ok := content[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid content format")
	}
	if text, ok := first["text"].(string); ok {
		return text, nil
	}
	if data, ok := first["data"].(string); ok {
		return data, nil
	}
	return "", fmt.Errorf("no text in content")
}

// call sends a request and waits for the matching response or ctx.
func (e *Executor) call(ctx context.Context, method string, params map[string]interface{}) (*JSONRPCResponse, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrServerExited
	}
	e.requestID++
	id := e.requestID
	ch := make(chan *JSONRPCResponse, 1)
	e.pending[id] = ch
	e.mu.Unlock()

	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := e.write(req); err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrServerExited
		}
		return resp, nil
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (e *Executor) notify(method string) error {
	return e.write(map[string]interface{}{"jsonrpc": "2.0", "method": method})
}

func (e *Executor) write(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := e.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// Done is closed once the server's stdout closes.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Close terminates the MCP server.
func (e *Executor) Close() error {
	e.stdin.Close()
	if e.cmd.Process == nil {
		return nil
	}
	err := e.cmd.Process.Kill()
	_ = e.cmd.Wait()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
