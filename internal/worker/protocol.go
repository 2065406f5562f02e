package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Message types on the child-to-host channel.
const (
	MessageReady        = "ready"
	MessageServerStatus = "mcp-server-status"
)

// Message is one line on the utility process's stdout.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage decodes a channel line. Lines that are not JSON objects with a
// type are reported as errors so the caller can log them as plain output.
func ParseMessage(line []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("message has no type")
	}
	return msg, nil
}

// Reporter writes messages from inside the utility process. It is safe for
// concurrent use.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewReporter returns a Reporter writing to w, normally os.Stdout.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Ready tells the host that startup finished.
func (r *Reporter) Ready() error {
	return r.send(Message{Type: MessageReady})
}

// ServerStatus publishes the MCP server status payload.
func (r *Reporter) ServerStatus(status interface{}) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal server status: %w", err)
	}
	return r.send(Message{Type: MessageServerStatus, Data: data})
}

func (r *Reporter) send(msg Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.w.Write(line)
	return err
}
