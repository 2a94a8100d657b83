// Package terminal lets the agent run and observe shell commands on the
// host, with bounded output buffering and an explicit
// create/output/wait/kill/release lifecycle.
package terminal

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthost/agenthost/internal/agent/process"
	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// DefaultOutputLimit caps a terminal's output buffer when the create call
// does not override it.
const DefaultOutputLimit = 1_000_000

// DefaultCacheSize bounds the released-terminal output cache.
const DefaultCacheSize = 50

// DefaultExitPollInterval is how often exit waiters re-check liveness.
const DefaultExitPollInterval = 100 * time.Millisecond

// Config holds terminal manager settings.
type Config struct {
	DefaultOutputLimit int
	CacheSize          int
	UsePty             bool
	ExitPollInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultOutputLimit <= 0 {
		c.DefaultOutputLimit = DefaultOutputLimit
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.ExitPollInterval <= 0 {
		c.ExitPollInterval = DefaultExitPollInterval
	}
	return c
}

// exitResult is how a terminal's process ended: an exit code, or the name
// of the terminating signal.
type exitResult struct {
	ExitCode *int
	Signal   *string
}

// term is the manager's record of one live terminal. All fields are guarded
// by the manager's lock; reader goroutines hand off into it before
// touching the buffer.
type term struct {
	id       string
	cmd      *exec.Cmd
	ptyFile  *os.File
	buf      outputBuffer
	exit     *exitResult
	waiters  []chan exitResult
	polling  bool
	released bool

	// done closes after the process is reaped and both pipes fully
	// drained.
	done chan struct{}
}

// Manager owns the terminal table. All mutations happen under one lock so
// concurrent create/output/kill/release calls from the router never race;
// pipe readers hand off into the lock before appending output.
type Manager struct {
	logger *logger.Logger
	cfg    Config

	mu        sync.Mutex
	terminals map[string]*term
	cache     *releaseCache
}

// NewManager creates a terminal manager.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		logger:    log.WithFields(zap.String("component", "terminal-manager")),
		cfg:       cfg,
		terminals: make(map[string]*term),
		cache:     newReleaseCache(cfg.CacheSize),
	}
}

// Create spawns a child process for the agent and starts buffering its
// output. The returned id is the handle for all later operations.
func (m *Manager) Create(ctx context.Context, p protocol.TerminalCreateParams) (protocol.TerminalCreateResult, error) {
	execPath, argv, err := buildCommand(p.Command, p.Args)
	if err != nil {
		return protocol.TerminalCreateResult{}, err
	}

	overrides := make(map[string]string, len(p.Env))
	for _, ev := range p.Env {
		overrides[ev.Name] = ev.Value
	}

	cmd := exec.Command(execPath, argv...)
	cmd.Dir = p.Cwd
	cmd.Env = process.MergeEnv(process.InteractiveEnv(), overrides)

	limit := m.cfg.DefaultOutputLimit
	if p.OutputByteLimit != nil && *p.OutputByteLimit > 0 {
		limit = *p.OutputByteLimit
	}

	t := &term{
		id:   "term_" + uuid.NewString(),
		cmd:  cmd,
		buf:  newOutputBuffer(limit),
		done: make(chan struct{}),
	}

	var readers errgroup.Group
	if m.cfg.UsePty {
		f, err := pty.Start(cmd)
		if err != nil {
			return protocol.TerminalCreateResult{}, err
		}
		t.ptyFile = f
		readers.Go(func() error {
			m.drainInto(t, f)
			return nil
		})
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return protocol.TerminalCreateResult{}, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return protocol.TerminalCreateResult{}, err
		}
		if err := cmd.Start(); err != nil {
			return protocol.TerminalCreateResult{}, err
		}
		readers.Go(func() error {
			m.drainInto(t, stdout)
			return nil
		})
		readers.Go(func() error {
			m.drainInto(t, stderr)
			return nil
		})
	}

	m.mu.Lock()
	m.terminals[t.id] = t
	m.mu.Unlock()

	m.logger.WithTerminalID(t.id).Info("terminal created",
		zap.String("command", p.Command),
		zap.Int("output_limit", limit),
		zap.Int("pid", cmd.Process.Pid))

	go m.reap(t, &readers)

	return protocol.TerminalCreateResult{TerminalID: t.id}, nil
}

// drainInto copies child output into the terminal's buffer. Appends happen
// under the manager lock; that is the hand-off from the OS read context
// into the exclusive region.
func (m *Manager) drainInto(t *term, r io.Reader) {
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.mu.Lock()
			t.buf.Append(buf[:n])
			m.mu.Unlock()
		}
		if err != nil {
			// A PTY read fails with EIO once the child exits; every
			// error here means end of output.
			return
		}
	}
}

// reap waits for the readers to drain, reaps the process, records the exit
// result and signals done.
func (m *Manager) reap(t *term, readers *errgroup.Group) {
	_ = readers.Wait()
	err := t.cmd.Wait()
	res := exitResultFrom(t.cmd, err)

	if t.ptyFile != nil {
		_ = t.ptyFile.Close()
	}

	m.mu.Lock()
	t.exit = &res
	m.mu.Unlock()

	close(t.done)
}

// exitResultFrom translates a reaped process state into an exit result.
func exitResultFrom(cmd *exec.Cmd, waitErr error) exitResult {
	state := cmd.ProcessState
	if state == nil {
		code := -1
		return exitResult{ExitCode: &code}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal().String()
		return exitResult{Signal: &sig}
	}
	code := state.ExitCode()
	_ = waitErr
	return exitResult{ExitCode: &code}
}

// Output returns the current buffer, the truncation flag, and the exit
// status once the process has exited. Reader goroutines append output as
// the OS delivers it, so no explicit drain is needed here; a closed handle
// never makes Output fail.
func (m *Manager) Output(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalOutputResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.terminals[p.TerminalID]
	if !ok {
		if m.cache.Contains(p.TerminalID) {
			return protocol.TerminalOutputResult{}, ErrAlreadyReleased
		}
		return protocol.TerminalOutputResult{}, ErrNotFound
	}
	if t.released {
		return protocol.TerminalOutputResult{}, ErrAlreadyReleased
	}

	res := protocol.TerminalOutputResult{
		Output:    t.buf.String(),
		Truncated: t.buf.Truncated(),
	}
	if t.exit != nil {
		res.ExitStatus = &protocol.TerminalExitStatus{
			ExitCode: t.exit.ExitCode,
			Signal:   t.exit.Signal,
		}
	}
	return res, nil
}

// CachedOutput serves a terminal's output for UI display: the live buffer
// while the terminal exists, the release cache afterwards. Cache entries
// may have been evicted.
func (m *Manager) CachedOutput(terminalID string) (protocol.TerminalOutputResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.terminals[terminalID]; ok && !t.released {
		res := protocol.TerminalOutputResult{
			Output:    t.buf.String(),
			Truncated: t.buf.Truncated(),
		}
		if t.exit != nil {
			res.ExitStatus = &protocol.TerminalExitStatus{
				ExitCode: t.exit.ExitCode,
				Signal:   t.exit.Signal,
			}
		}
		return res, nil
	}

	out, ok := m.cache.Get(terminalID)
	if !ok {
		return protocol.TerminalOutputResult{}, ErrNotFound
	}
	res := protocol.TerminalOutputResult{
		Output:    out.Output,
		Truncated: out.Truncated,
	}
	if out.ExitCode != nil || out.Signal != nil {
		res.ExitStatus = &protocol.TerminalExitStatus{ExitCode: out.ExitCode, Signal: out.Signal}
	}
	return res, nil
}

// WaitForExit blocks until the terminal's process exits. Registers a
// waiter and drives a poll loop that re-checks liveness on an interval;
// already-exited terminals return immediately.
func (m *Manager) WaitForExit(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalWaitExitResult, error) {
	m.mu.Lock()
	t, ok := m.terminals[p.TerminalID]
	if !ok {
		released := m.cache.Contains(p.TerminalID)
		m.mu.Unlock()
		if released {
			return protocol.TerminalWaitExitResult{}, ErrAlreadyReleased
		}
		return protocol.TerminalWaitExitResult{}, ErrNotFound
	}
	if t.released {
		m.mu.Unlock()
		return protocol.TerminalWaitExitResult{}, ErrAlreadyReleased
	}
	if t.exit != nil {
		res := waitResult(*t.exit)
		m.mu.Unlock()
		return res, nil
	}

	ch := make(chan exitResult, 1)
	t.waiters = append(t.waiters, ch)
	m.ensurePolling(t)
	m.mu.Unlock()

	select {
	case res := <-ch:
		return waitResult(res), nil
	case <-ctx.Done():
		return protocol.TerminalWaitExitResult{}, ctx.Err()
	}
}

func waitResult(res exitResult) protocol.TerminalWaitExitResult {
	return protocol.TerminalWaitExitResult{ExitCode: res.ExitCode, Signal: res.Signal}
}

// ensurePolling starts the exit poll loop for t if none is running.
// Callers hold the lock.
func (m *Manager) ensurePolling(t *term) {
	if t.polling {
		return
	}
	t.polling = true
	go func() {
		ticker := time.NewTicker(m.cfg.ExitPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			m.mu.Lock()
			if t.exit != nil {
				m.wakeWaitersLocked(t, *t.exit)
				t.polling = false
				m.mu.Unlock()
				return
			}
			if len(t.waiters) == 0 {
				// Everyone got woken by kill/release.
				t.polling = false
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
		}
	}()
}

// wakeWaitersLocked resolves all registered exit waiters. Callers hold the
// lock; waiter channels are buffered so sends never block.
func (m *Manager) wakeWaitersLocked(t *term, res exitResult) {
	for _, ch := range t.waiters {
		ch <- res
	}
	t.waiters = nil
}

// Kill requests termination and blocks until the OS confirms it, waking
// all exit waiters with the result.
func (m *Manager) Kill(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalKillResult, error) {
	m.mu.Lock()
	t, ok := m.terminals[p.TerminalID]
	if !ok {
		released := m.cache.Contains(p.TerminalID)
		m.mu.Unlock()
		if released {
			return protocol.TerminalKillResult{}, ErrAlreadyReleased
		}
		return protocol.TerminalKillResult{}, ErrNotFound
	}
	if t.released {
		m.mu.Unlock()
		return protocol.TerminalKillResult{}, ErrAlreadyReleased
	}
	alreadyExited := t.exit != nil
	m.mu.Unlock()

	if !alreadyExited && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}

	// Block until the reaper confirms termination.
	<-t.done

	m.mu.Lock()
	res := *t.exit
	m.wakeWaitersLocked(t, res)
	m.mu.Unlock()

	m.logger.WithTerminalID(t.id).Info("terminal killed")
	return protocol.TerminalKillResult{}, nil
}

// Release tears the terminal down: kills a still-running process, performs
// the final exhaustive drain (the reaper only signals done after both
// pipes hit EOF), wakes waiters, moves the final output into the release
// cache and removes the terminal from the live table.
func (m *Manager) Release(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalReleaseResult, error) {
	m.mu.Lock()
	t, ok := m.terminals[p.TerminalID]
	if !ok {
		released := m.cache.Contains(p.TerminalID)
		m.mu.Unlock()
		if released {
			return protocol.TerminalReleaseResult{}, ErrAlreadyReleased
		}
		return protocol.TerminalReleaseResult{}, ErrNotFound
	}
	if t.released {
		m.mu.Unlock()
		return protocol.TerminalReleaseResult{}, ErrAlreadyReleased
	}
	// Claim the release so concurrent calls fail rather than double-run.
	t.released = true
	stillRunning := t.exit == nil
	m.mu.Unlock()

	if stillRunning && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	<-t.done

	m.mu.Lock()
	res := *t.exit
	m.wakeWaitersLocked(t, res)
	m.cache.Put(t.id, releasedOutput{
		Output:    t.buf.String(),
		Truncated: t.buf.Truncated(),
		ExitCode:  res.ExitCode,
		Signal:    res.Signal,
	})
	delete(m.terminals, t.id)
	m.mu.Unlock()

	m.logger.WithTerminalID(t.id).Info("terminal released")
	return protocol.TerminalReleaseResult{}, nil
}

// Shutdown releases every live terminal. Used at session teardown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.terminals))
	for id := range m.terminals {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_, _ = m.Release(ctx, protocol.TerminalIDParams{TerminalID: id})
	}
}

// Count returns the number of live terminals.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.terminals)
}
