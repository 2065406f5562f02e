// Package mcpservice exposes the utility process to the rest of the
// application: it owns one worker, re-publishes its events and reports a
// combined status.
package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/logging"
	"github.com/vibebrowser/vibe-core/internal/worker"
)

// DefaultTerminateTimeout bounds how long Terminate waits for the worker.
const DefaultTerminateTimeout = 5 * time.Second

// ServiceState is the coarse state reported by Status.
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateError    ServiceState = "error"
)

// Status combines the service state, the worker snapshot and the last
// server status payload published by the utility process.
type Status struct {
	Service ServiceState            `json:"service"`
	Worker  worker.ConnectionStatus `json:"worker"`
	Servers json.RawMessage         `json:"servers"`
}

// Supervisor is the part of worker.Worker the service depends on.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop()
	ConnectionStatus() worker.ConnectionStatus
	Subscribe(h worker.Handler) func()
}

// Options configures a Service.
type Options struct {
	Worker           worker.Options
	TerminateTimeout time.Duration
	Logger           logrus.FieldLogger

	// NewSupervisor replaces worker.New, mainly for tests.
	NewSupervisor func(worker.Options) Supervisor
}

var placeholderServers = json.RawMessage(`{"servers":[],"message":"waiting for utility process status"}`)

// Service is the MCP façade. Construct it once in the composition root.
type Service struct {
	opts   Options
	log    logrus.FieldLogger
	events worker.Emitter

	mu          sync.Mutex
	sup         Supervisor
	unsubscribe func()
	starting    bool
	lastError   error
	servers     json.RawMessage
}

// New creates an uninitialized service.
func New(opts Options) *Service {
	if opts.TerminateTimeout <= 0 {
		opts.TerminateTimeout = DefaultTerminateTimeout
	}
	if opts.NewSupervisor == nil {
		opts.NewSupervisor = func(o worker.Options) Supervisor { return worker.New(o) }
	}
	if opts.Worker.Logger == nil {
		opts.Worker.Logger = opts.Logger
	}
	return &Service{
		opts: opts,
		log:  logging.WithComponent(opts.Logger, "mcp-service"),
	}
}

// Subscribe registers h for service events.
func (s *Service) Subscribe(h worker.Handler) func() {
	return s.events.Subscribe(h)
}

// Initialize starts the utility process and waits until it is connected. A
// call on an initialized service does nothing.
//
// If the process exits before it is ready the error is returned, but the
// worker stays attached while it restarts; Status and LastError follow it.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return nil
	}
	sup := s.opts.NewSupervisor(s.opts.Worker)
	s.sup = sup
	s.starting = true
	s.lastError = nil
	s.unsubscribe = sup.Subscribe(s.relay)
	s.mu.Unlock()

	s.log.Info("Initializing MCP service")
	err := sup.Start(ctx)

	restarting := errors.Is(err, worker.ErrExitedBeforeReady)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.lastError = err
		if s.sup == sup && !restarting {
			s.unsubscribe()
			s.sup = nil
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("Failed to initialize MCP service")
		if !restarting {
			sup.Stop()
		}
		return err
	}

	s.log.Info("MCP service ready")
	s.events.Emit(worker.Event{Kind: worker.EventReady})
	return nil
}

// relay re-publishes worker events and remembers the latest server status.
func (s *Service) relay(ev worker.Event) {
	switch ev.Kind {
	case worker.EventServerStatus:
		s.mu.Lock()
		s.servers = append(json.RawMessage(nil), ev.Data...)
		s.mu.Unlock()
	case worker.EventError:
		s.mu.Lock()
		s.lastError = ev.Err
		s.mu.Unlock()
	}
	s.events.Emit(ev)
}

// Terminate stops the worker, waiting at most TerminateTimeout, and always
// publishes terminated.
func (s *Service) Terminate(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	unsubscribe := s.unsubscribe
	s.sup = nil
	s.unsubscribe = nil
	s.servers = nil
	s.lastError = nil
	s.mu.Unlock()

	if sup != nil {
		if unsubscribe != nil {
			unsubscribe()
		}
		stopped := make(chan struct{})
		go func() {
			sup.Stop()
			close(stopped)
		}()

		timer := time.NewTimer(s.opts.TerminateTimeout)
		defer timer.Stop()
		select {
		case <-stopped:
		case <-timer.C:
			s.log.WithField("timeout", s.opts.TerminateTimeout).Warn("Worker did not stop in time, continuing shutdown")
		case <-ctx.Done():
			s.log.WithError(ctx.Err()).Warn("Terminate cancelled before worker stopped")
		}
	}

	s.log.Info("MCP service terminated")
	s.events.Emit(worker.Event{Kind: worker.EventTerminated})
}

// Status reports the service state.
func (s *Service) Status() Status {
	s.mu.Lock()
	sup := s.sup
	starting := s.starting
	lastError := s.lastError
	servers := s.servers
	s.mu.Unlock()

	status := Status{Service: StateStopped, Servers: placeholderServers}
	if servers != nil {
		status.Servers = servers
	}
	if sup == nil {
		status.Worker = worker.ConnectionStatus{State: worker.StateStopped}
		if lastError != nil {
			status.Service = StateError
		}
		return status
	}

	status.Worker = sup.ConnectionStatus()
	switch {
	case status.Worker.State == worker.StateFailed:
		status.Service = StateError
	case starting:
		status.Service = StateStarting
	case status.Worker.Connected:
		status.Service = StateRunning
	case status.Worker.IsRestarting, status.Worker.State == worker.StateDisconnected:
		status.Service = StateStarting
	}
	return status
}

// LastError returns the most recent startup or crash error, if any.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
