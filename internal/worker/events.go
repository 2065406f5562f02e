package worker

import (
	"encoding/json"
	"sort"
	"sync"
)

// EventKind is the closed set of notifications a Worker (and the service
// wrapping it) publishes.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"
	EventReady        EventKind = "ready"
	EventTerminated   EventKind = "terminated"
	EventServerStatus EventKind = "server-status"
)

// Event is one notification. Fields beyond Kind are set only where they apply:
// PID and RestartCount on connected/disconnected, ExitCode on disconnected,
// Err on error, Data on server-status.
type Event struct {
	Kind         EventKind       `json:"kind"`
	PID          int             `json:"pid,omitempty"`
	RestartCount int             `json:"restartCount"`
	ExitCode     int             `json:"exitCode,omitempty"`
	Err          error           `json:"-"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Handler receives events. Handlers run on the publishing goroutine and must
// not block for long.
type Handler func(Event)

// Emitter fans events out to subscribers. The zero value is ready to use.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// Subscribe registers h and returns a function that removes it.
func (e *Emitter) Subscribe(h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers ev to every current subscriber in subscription order.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	ids := make([]int, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, e.handlers[id])
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
