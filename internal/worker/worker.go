// Package worker supervises the MCP utility process: it forks the child,
// waits for its ready handshake, relays status messages and restarts it a
// bounded number of times when it crashes.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/logging"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultReadyTimeout = 10 * time.Second
	DefaultRestartDelay = 1 * time.Second
	DefaultRetryDelay   = 2 * time.Second
	DefaultMaxRestarts  = 3

	killWait = 3 * time.Second
)

var (
	ErrExecutableNotFound = errors.New("worker executable not found")
	ErrStartupTimeout     = errors.New("worker did not become ready in time")
	ErrExitedBeforeReady  = errors.New("worker exited before becoming ready")
	ErrRepeatedlyCrashed  = errors.New("worker crashed repeatedly")
	ErrAlreadyStarted     = errors.New("worker is already starting")
	ErrStopped            = errors.New("worker was stopped")
)

// State is the supervisor's lifecycle state.
type State string

const (
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateRestarting   State = "restarting"
	StateFailed       State = "failed"
)

// ConnectionStatus is a snapshot of the supervisor. Connected and
// IsRestarting are never both true.
type ConnectionStatus struct {
	State        State `json:"state"`
	Connected    bool  `json:"connected"`
	RestartCount int   `json:"restartCount"`
	IsRestarting bool  `json:"isRestarting"`
	PID          int   `json:"pid,omitempty"`
}

// Options configures a Worker.
type Options struct {
	// Path is the utility process executable, absolute or looked up in PATH.
	Path string
	Args []string
	// Env is added to the host environment. Empty values are skipped.
	Env          map[string]string
	ReadyTimeout time.Duration
	RestartDelay time.Duration
	RetryDelay   time.Duration
	MaxRestarts  int
	Logger       logrus.FieldLogger
}

type process struct {
	cmd   *exec.Cmd
	pid   int
	stdin io.WriteCloser

	ready     chan struct{}
	readyOnce sync.Once

	done     chan struct{}
	exitCode int
}

func (p *process) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Worker owns at most one utility process at a time.
type Worker struct {
	opts   Options
	log    logrus.FieldLogger
	events Emitter

	mu           sync.Mutex
	state        State
	connected    bool
	isRestarting bool
	restartCount int
	proc         *process
	stopCh       chan struct{}
}

// New creates a stopped Worker.
func New(opts Options) *Worker {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = DefaultMaxRestarts
	}
	return &Worker{
		opts:  opts,
		log:   logging.WithComponent(opts.Logger, "worker"),
		state: StateStopped,
	}
}

// Subscribe registers h for worker events.
func (w *Worker) Subscribe(h Handler) func() {
	return w.events.Subscribe(h)
}

// ConnectionStatus returns the current state snapshot.
func (w *Worker) ConnectionStatus() ConnectionStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := ConnectionStatus{
		State:        w.state,
		Connected:    w.connected,
		RestartCount: w.restartCount,
		IsRestarting: w.isRestarting,
	}
	if w.proc != nil {
		status.PID = w.proc.pid
	}
	return status
}

// Start forks the utility process and returns once it reported ready and the
// connected event was published. A child that exits before ready counts as a
// crash: Start returns the error while the bounded restart runs in the
// background. Other startup failures leave the worker stopped. RestartCount
// is never reset, so a worker that already failed gets no new restarts.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateConnected:
		w.mu.Unlock()
		return nil
	case StateStopped, StateFailed:
	default:
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.stopCh = make(chan struct{})
	w.isRestarting = false
	w.state = StateStarting
	stop := w.stopCh
	w.mu.Unlock()

	err := w.launch(ctx, stop)
	if err == nil {
		return nil
	}

	w.mu.Lock()
	if w.stopCh != stop || isClosed(stop) {
		w.mu.Unlock()
		return err
	}
	crashed := errors.Is(err, ErrExitedBeforeReady)
	restart := crashed && !w.isRestarting && w.restartCount < w.opts.MaxRestarts
	exhausted := crashed && w.restartCount >= w.opts.MaxRestarts
	switch {
	case restart:
		w.isRestarting = true
		w.state = StateRestarting
	case !exhausted:
		w.state = StateStopped
	}
	w.mu.Unlock()

	if restart {
		go w.restartLoop(stop)
	} else if exhausted {
		w.fail(stop, err)
	}
	return err
}

// Stop kills the utility process and cancels any pending restart. It is safe
// to call in any state and more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopCh != nil {
		select {
		case <-w.stopCh:
		default:
			close(w.stopCh)
		}
	}
	p := w.proc
	w.proc = nil
	w.connected = false
	w.isRestarting = false
	w.state = StateStopped
	w.mu.Unlock()

	if p != nil {
		w.log.WithField("pid", p.pid).Info("Stopping utility process")
		w.kill(p)
	}
}

func (w *Worker) resolvePath() (string, error) {
	if w.opts.Path == "" {
		return "", fmt.Errorf("%w: no path configured", ErrExecutableNotFound)
	}
	if info, err := os.Stat(w.opts.Path); err == nil && !info.IsDir() {
		return w.opts.Path, nil
	}
	if found, err := exec.LookPath(w.opts.Path); err == nil {
		return found, nil
	}
	return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, w.opts.Path)
}

// environ returns the host environment plus the non-empty passthrough
// variables, in a stable order.
func (w *Worker) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(w.opts.Env))
	for k := range w.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := w.opts.Env[k]; v != "" {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// launch forks one process and waits for its ready message.
func (w *Worker) launch(ctx context.Context, stop chan struct{}) error {
	path, err := w.resolvePath()
	if err != nil {
		return err
	}

	cmd := exec.Command(path, w.opts.Args...)
	cmd.Env = w.environ()
	configureProcess(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	w.log.WithField("path", path).Info("Starting utility process")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start utility process: %w", err)
	}

	p := &process{
		cmd:   cmd,
		pid:   cmd.Process.Pid,
		stdin: stdin,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		w.readMessages(p, stdout)
	}()
	go func() {
		defer pipes.Done()
		w.readDiagnostics(p, stderr)
	}()
	go func() {
		pipes.Wait()
		_ = cmd.Wait()
		p.exitCode = cmd.ProcessState.ExitCode()
		close(p.done)
		w.handleExit(p)
	}()

	w.mu.Lock()
	select {
	case <-stop:
		w.mu.Unlock()
		w.kill(p)
		return ErrStopped
	default:
	}
	w.proc = p
	w.state = StateStarting
	w.mu.Unlock()

	timer := time.NewTimer(w.opts.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-p.ready:
		w.mu.Lock()
		if w.proc != p {
			w.mu.Unlock()
			return ErrStopped
		}
		if p.exited() {
			w.mu.Unlock()
			return w.exitedBeforeReady(p, stop)
		}
		w.connected = true
		w.isRestarting = false
		w.state = StateConnected
		restarts := w.restartCount
		w.mu.Unlock()

		w.log.WithFields(logrus.Fields{"pid": p.pid, "restarts": restarts}).Info("Utility process connected")
		w.events.Emit(Event{Kind: EventConnected, PID: p.pid, RestartCount: restarts})
		return nil

	case <-p.done:
		return w.exitedBeforeReady(p, stop)

	case <-timer.C:
		w.log.WithField("timeout", w.opts.ReadyTimeout).Error("Utility process did not report ready")
		w.drop(p)
		w.kill(p)
		return ErrStartupTimeout

	case <-ctx.Done():
		w.drop(p)
		w.kill(p)
		return ctx.Err()

	case <-stop:
		w.drop(p)
		w.kill(p)
		return ErrStopped
	}
}

// exitedBeforeReady reports a child that exited during the handshake as a
// disconnect. The restart decision belongs to the caller.
func (w *Worker) exitedBeforeReady(p *process, stop chan struct{}) error {
	w.mu.Lock()
	if w.proc == p {
		w.proc = nil
	}
	if isClosed(stop) {
		w.mu.Unlock()
		return ErrStopped
	}
	w.state = StateDisconnected
	restarts := w.restartCount
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{"pid": p.pid, "code": p.exitCode, "restarts": restarts}).Warn("Utility process exited before ready")
	w.events.Emit(Event{Kind: EventDisconnected, PID: p.pid, ExitCode: p.exitCode, RestartCount: restarts})
	return fmt.Errorf("%w (exit code %d)", ErrExitedBeforeReady, p.exitCode)
}

func (w *Worker) drop(p *process) {
	w.mu.Lock()
	if w.proc == p {
		w.proc = nil
	}
	w.mu.Unlock()
}

// kill closes the child's stdin, kills it and waits briefly for the exit to
// be collected.
func (w *Worker) kill(p *process) {
	_ = p.stdin.Close()
	if err := killProcess(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		w.log.WithError(err).WithField("pid", p.pid).Warn("Failed to kill utility process")
	}
	select {
	case <-p.done:
	case <-time.After(killWait):
		w.log.WithField("pid", p.pid).Warn("Utility process did not exit after kill")
	}
}

// handleExit runs once per process after it exited. Exits before ready are
// reported by launch; exits of stale or stopped processes are ignored.
func (w *Worker) handleExit(p *process) {
	w.mu.Lock()
	if w.proc != p || !w.connected {
		w.mu.Unlock()
		return
	}
	w.proc = nil
	w.connected = false
	w.state = StateDisconnected
	restarts := w.restartCount
	restart := !w.isRestarting && restarts < w.opts.MaxRestarts
	if restart {
		w.isRestarting = true
		w.state = StateRestarting
	}
	stop := w.stopCh
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{"pid": p.pid, "code": p.exitCode, "restarts": restarts}).Warn("Utility process exited")
	w.events.Emit(Event{Kind: EventDisconnected, PID: p.pid, ExitCode: p.exitCode, RestartCount: restarts})

	if restart {
		go w.restartLoop(stop)
	} else if restarts >= w.opts.MaxRestarts {
		w.fail(stop, nil)
	}
}

func (w *Worker) restartLoop(stop chan struct{}) {
	delay := w.opts.RestartDelay
	for {
		w.mu.Lock()
		if isClosed(stop) {
			w.mu.Unlock()
			return
		}
		w.restartCount++
		attempt := w.restartCount
		w.mu.Unlock()

		w.log.WithFields(logrus.Fields{"attempt": attempt, "max": w.opts.MaxRestarts, "delay": delay}).Info("Restarting utility process")

		select {
		case <-stop:
			return
		case <-time.After(delay):
		}

		err := w.launch(context.Background(), stop)
		if err == nil {
			return
		}
		if errors.Is(err, ErrStopped) {
			return
		}
		w.log.WithError(err).WithField("attempt", attempt).Error("Restart attempt failed")

		w.mu.Lock()
		exhausted := w.restartCount >= w.opts.MaxRestarts
		if !exhausted && !isClosed(stop) {
			w.state = StateRestarting
		}
		w.mu.Unlock()
		if exhausted {
			w.fail(stop, err)
			return
		}
		delay = w.opts.RetryDelay
	}
}

// fail moves the worker into the terminal failed state.
func (w *Worker) fail(stop chan struct{}, cause error) {
	w.mu.Lock()
	if isClosed(stop) {
		w.mu.Unlock()
		return
	}
	w.state = StateFailed
	w.connected = false
	w.isRestarting = false
	restarts := w.restartCount
	w.mu.Unlock()

	err := fmt.Errorf("%w after %d restarts", ErrRepeatedlyCrashed, restarts)
	if cause != nil {
		err = fmt.Errorf("%w after %d restarts: %v", ErrRepeatedlyCrashed, restarts, cause)
	}
	w.log.WithError(err).Error("Giving up on utility process")
	w.events.Emit(Event{Kind: EventError, RestartCount: restarts, Err: err})
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// readMessages parses the child's stdout. Lines that are not messages are
// logged as child output.
func (w *Worker) readMessages(p *process, r io.Reader) {
	log := w.log.WithField("pid", p.pid)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, err := ParseMessage(line)
		if err != nil {
			log.WithField("stream", "stdout").Info(string(line))
			continue
		}

		switch msg.Type {
		case MessageReady:
			p.markReady()
		case MessageServerStatus:
			if w.current(p) {
				w.events.Emit(Event{Kind: EventServerStatus, PID: p.pid, Data: msg.Data})
			}
		default:
			log.WithField("type", msg.Type).Warn("Dropping unknown message from utility process")
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Debug("Utility process stdout closed")
	}
}

func (w *Worker) readDiagnostics(p *process, r io.Reader) {
	log := w.log.WithFields(logrus.Fields{"pid": p.pid, "stream": "stderr"})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			log.Info(string(line))
		}
	}
}

func (w *Worker) current(p *process) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.proc == p
}
