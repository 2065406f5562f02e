package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

const fakeServerEnv = "VIBE_MCP_FAKE_SERVER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeServerEnv); mode != "" {
		runFakeServer(mode)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runFakeServer answers MCP requests on stdin/stdout.
func runFakeServer(mode string) {
	fmt.Println("fake server booting")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var req map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		id, hasID := req["id"]
		if !hasID {
			continue
		}

		method, _ := req["method"].(string)
		var result interface{}
		switch method {
		case "initialize":
			result = map[string]interface{}{"protocolVersion": "2024-11-05"}
		case "tools/list":
			if mode == "exit-on-list" {
				os.Exit(1)
			}
			result = map[string]interface{}{"tools": []interface{}{
				map[string]interface{}{"name": "echo", "description": "Echo text", "inputSchema": map[string]interface{}{"type": "object"}},
				map[string]interface{}{"description": "nameless"},
			}}
		case "tools/call":
			params, _ := req["params"].(map[string]interface{})
			args, _ := params["arguments"].(map[string]interface{})
			result = map[string]interface{}{"content": []interface{}{
				map[string]interface{}{"type": "text", "text": fmt.Sprintf("echo: %v", args["text"])},
			}}
		default:
			out, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": id, "error": map[string]interface{}{"code": -32601, "message": "method not found"}})
			fmt.Println(string(out))
			continue
		}

		out, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
		fmt.Println(string(out))
	}
}

func startFake(t *testing.T, mode string) *Executor {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := Start(ctx, Options{
		Name:    "fake",
		Command: os.Args[0],
		Args:    []string{"-test.run=^$"},
		Env:     append(os.Environ(), fakeServerEnv+"="+mode),
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecutorListAndCall(t *testing.T) {
	e := startFake(t, "normal")
	ctx := context.Background()

	tools, err := e.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" || tools[0].InputSchema["type"] != "object" {
		t.Errorf("unexpected tools: %+v", tools)
	}

	out, err := e.CallTool(ctx, "echo", map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if out != "echo: hi" {
		t.Errorf("unexpected tool output: %q", out)
	}
}

func TestExecutorServerExit(t *testing.T) {
	e := startFake(t, "exit-on-list")

	_, err := e.ListTools(context.Background())
	if !errors.Is(err, ErrServerExited) {
		t.Fatalf("expected ErrServerExited, got %v", err)
	}

	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("expected Done to close after the server exited")
	}
}

func TestStartRequiresCommand(t *testing.T) {
	if _, err := Start(context.Background(), Options{Name: "empty"}); err == nil {
		t.Error("expected error without a command")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Start(ctx, Options{Name: "x", Command: os.Args[0]}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
