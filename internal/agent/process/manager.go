// Package process owns the agent subprocess: launch with interpreter
// resolution, stdio pipe wiring, streamed JSON framing, and termination.
package process

import (
	"encoding/json"
	"io"
	"os/exec"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthost/agenthost/internal/common/logger"
)

// MessageHandler receives each complete JSON value framed off the agent's
// stdout, in arrival order.
type MessageHandler func(raw json.RawMessage)

// ExitHandler receives the agent's exit code after all pipes are drained.
type ExitHandler func(exitCode int)

// Manager owns at most one external agent process and translates between
// its byte stream and discrete JSON values. A Manager can be relaunched
// after the previous process exits; each launch gets a fresh handle.
type Manager struct {
	logger    *logger.Logger
	window    int
	onMessage MessageHandler
	onExit    ExitHandler

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	framer *Framer
	exited chan struct{}

	// writeMu serializes stdin writes so envelopes are never interleaved.
	writeMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithScanWindow sets the framer's boundary-scan lookahead.
func WithScanWindow(window int) Option {
	return func(m *Manager) {
		if window > 0 {
			m.window = window
		}
	}
}

// WithMessageHandler sets the frame-received callback.
func WithMessageHandler(h MessageHandler) Option {
	return func(m *Manager) {
		m.onMessage = h
	}
}

// WithExitHandler sets the termination callback.
func WithExitHandler(h ExitHandler) Option {
	return func(m *Manager) {
		m.onExit = h
	}
}

// NewManager creates a process manager.
func NewManager(log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger: log.WithFields(zap.String("component", "process-manager")),
		window: DefaultScanWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Running reports whether a process is currently live.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}

// Launch starts the agent executable with the given arguments and working
// directory. It fails with ErrAlreadyRunning while a process is live.
//
// The target path has symlinks resolved; env-shebang scripts are invoked
// through their interpreter when one is found in the candidate directories.
// The child inherits the user's interactive shell environment with extraEnv
// applied, PWD and OLDPWD forced to cwd and the executable's own directory
// prepended to PATH.
func (m *Manager) Launch(path string, args []string, cwd string, extraEnv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return ErrAlreadyRunning
	}

	execPath, execArgs, err := resolveLaunch(path, args)
	if err != nil {
		return err
	}

	env := InteractiveEnv()
	overrides := map[string]string{
		"PWD":    cwd,
		"OLDPWD": cwd,
	}
	for k, v := range extraEnv {
		overrides[k] = v
	}
	execDir := filepath.Dir(execPath)
	if current := envValue(env, "PATH"); current != "" {
		overrides["PATH"] = execDir + string(filepath.ListSeparator) + current
	} else {
		overrides["PATH"] = execDir
	}

	cmd := exec.Command(execPath, execArgs...)
	cmd.Dir = cwd
	cmd.Env = MergeEnv(env, overrides)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	m.logger.Info("agent process launched",
		zap.String("path", execPath),
		zap.Strings("args", execArgs),
		zap.String("cwd", cwd),
		zap.Int("pid", cmd.Process.Pid))

	m.cmd = cmd
	m.stdin = stdin
	m.framer = NewFramer(m.window)
	m.exited = make(chan struct{})

	go m.supervise(cmd, stdout, stderr, m.exited)

	return nil
}

// WriteMessage serializes v as one newline-terminated JSON value and writes
// it atomically to the agent's stdin.
func (m *Manager) WriteMessage(v interface{}) error {
	m.mu.Lock()
	stdin := m.stdin
	m.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := stdin.Write(data); err != nil {
		return err
	}
	return nil
}

// Terminate kills the current process and blocks until the exit path has
// fully run (pipes drained, handles closed, exit callback fired). It is a
// no-op when nothing is running.
func (m *Manager) Terminate() {
	m.mu.Lock()
	cmd := m.cmd
	exited := m.exited
	m.mu.Unlock()

	if cmd == nil {
		return
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-exited
}

// supervise drains both pipes, waits for exit, flushes the framer remainder
// and fires the exit callback. Runs once per launched process.
func (m *Manager) supervise(cmd *exec.Cmd, stdout, stderr io.ReadCloser, exited chan struct{}) {
	var g errgroup.Group
	g.Go(func() error {
		m.readLoop(stdout)
		return nil
	})
	g.Go(func() error {
		// stderr is drained and discarded so the child never blocks on
		// a full pipe.
		_, _ = io.Copy(io.Discard, stderr)
		return nil
	})
	_ = g.Wait()

	err := cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()
	if err != nil {
		m.logger.Debug("agent process exited with error", zap.Error(err), zap.Int("exit_code", exitCode))
	}

	m.finalize(cmd, exitCode)
	close(exited)
}

// readLoop appends stdout bytes to the framer and delivers every complete
// value. Frames are cut under the lock; callbacks run outside it.
func (m *Manager) readLoop(stdout io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, frame := range m.ingest(buf[:n]) {
				m.deliver(frame)
			}
		}
		if err != nil {
			return
		}
	}
}

// ingest hands received bytes into the framer and cuts all complete frames.
func (m *Manager) ingest(p []byte) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.framer == nil {
		return nil
	}
	m.framer.Append(p)

	var frames []json.RawMessage
	for {
		frame, err := m.framer.Next()
		if err != nil {
			// One bad frame must not kill the session.
			m.logger.Warn("discarding unframeable agent output", zap.Error(err))
			continue
		}
		if frame == nil {
			return frames
		}
		frames = append(frames, frame)
	}
}

// finalize performs the one last synchronous drain of buffered data, closes
// handles, clears state and notifies the exit callback.
func (m *Manager) finalize(cmd *exec.Cmd, exitCode int) {
	m.mu.Lock()
	if m.cmd != cmd {
		m.mu.Unlock()
		return
	}
	var final json.RawMessage
	if m.framer != nil {
		rest, ok := m.framer.Flush()
		if ok {
			final = rest
		} else if len(rest) > 0 {
			m.logger.Warn("discarding malformed trailing agent output",
				zap.Int("bytes", len(rest)))
		}
	}
	if m.stdin != nil {
		_ = m.stdin.Close()
	}
	m.cmd = nil
	m.stdin = nil
	m.framer = nil
	m.mu.Unlock()

	if final != nil {
		m.deliver(final)
	}

	m.logger.Info("agent process terminated", zap.Int("exit_code", exitCode))
	if m.onExit != nil {
		m.onExit(exitCode)
	}
}

func (m *Manager) deliver(frame json.RawMessage) {
	if m.onMessage != nil {
		m.onMessage(frame)
	}
}
