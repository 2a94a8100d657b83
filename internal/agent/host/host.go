// Package host wires the protocol core together: it launches the agent,
// decodes its frames, routes requests to the capability delegates, folds
// notifications into session state, and drives host-initiated calls.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/agent/files"
	"github.com/agenthost/agenthost/internal/agent/permission"
	"github.com/agenthost/agenthost/internal/agent/process"
	"github.com/agenthost/agenthost/internal/agent/registry"
	"github.com/agenthost/agenthost/internal/agent/router"
	"github.com/agenthost/agenthost/internal/agent/session"
	"github.com/agenthost/agenthost/internal/agent/terminal"
	"github.com/agenthost/agenthost/internal/common/config"
	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/jsonrpc"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// ErrAgentGone fails outbound calls whose agent exited before answering.
var ErrAgentGone = errors.New("agent process exited")

// ErrNoSession is returned for prompts before a session exists.
var ErrNoSession = errors.New("no active agent session")

// callTimeout bounds host-initiated requests other than session/prompt,
// which runs as long as the agent's turn does.
const callTimeout = 30 * time.Second

// Host owns one agent session end to end.
type Host struct {
	logger      *logger.Logger
	baseLog     *logger.Logger
	cfg         *config.Config
	registry    *registry.Registry
	process     *process.Manager
	router      *router.Router
	terminals   *terminal.Manager
	permissions *permission.Handler

	// nextID numbers host-initiated requests.
	nextID int64

	mu             sync.Mutex
	reducer        *session.Reducer
	sessionID      string // host-side id
	agentSessionID string // agent-assigned id from session/new
	pendingCalls   map[interface{}]chan *jsonrpc.Response

	onState  session.ChangeHandler
	onExit   func(sessionID string, exitCode int)
	prompter permission.Prompter
}

// Option configures a Host.
type Option func(*Host)

// WithStateHandler observes every reduced state change.
func WithStateHandler(h session.ChangeHandler) Option {
	return func(a *Host) {
		a.onState = h
	}
}

// WithExitHandler observes agent process termination.
func WithExitHandler(h func(sessionID string, exitCode int)) Option {
	return func(a *Host) {
		a.onExit = h
	}
}

// WithPrompter routes permission prompts to a user-facing surface.
func WithPrompter(p permission.Prompter) Option {
	return func(a *Host) {
		a.prompter = p
	}
}

// New assembles a host from configuration.
func New(cfg *config.Config, reg *registry.Registry, log *logger.Logger, opts ...Option) *Host {
	h := &Host{
		logger:       log.WithFields(zap.String("component", "agent-host")),
		baseLog:      log,
		cfg:          cfg,
		registry:     reg,
		pendingCalls: make(map[interface{}]chan *jsonrpc.Response),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.terminals = terminal.NewManager(terminal.Config{
		DefaultOutputLimit: cfg.Terminal.DefaultOutputLimit,
		CacheSize:          cfg.Terminal.ReleaseCacheSize,
		UsePty:             cfg.Terminal.UsePty,
		ExitPollInterval:   cfg.Terminal.ExitPollIntervalDuration(),
	}, log)

	permOpts := []permission.Option{
		permission.WithTimeout(cfg.Permission.PermissionTimeout()),
	}
	if h.prompter != nil {
		permOpts = append(permOpts, permission.WithPrompter(h.prompter))
	}
	h.permissions = permission.NewHandler(log, permOpts...)

	h.router = router.New(&capabilities{
		files:       files.NewService(log),
		terminals:   h.terminals,
		permissions: h.permissions,
	}, log)

	h.process = process.NewManager(log,
		process.WithScanWindow(cfg.Agent.FrameScanWindow),
		process.WithMessageHandler(h.handleFrame),
		process.WithExitHandler(h.handleExit),
	)

	return h
}

// StartSession launches the named agent profile in workingDir, performs
// the initialize handshake and opens a session. Returns the host-side
// session id.
func (h *Host) StartSession(ctx context.Context, profileName, workingDir string) (string, error) {
	profile, ok := h.registry.Get(profileName)
	if !ok {
		return "", fmt.Errorf("unknown agent profile %q", profileName)
	}

	sessionID := "sess_" + uuid.NewString()
	reducer := session.NewReducer(sessionID, h.baseLog, session.WithChangeHandler(h.onState))

	h.mu.Lock()
	h.sessionID = sessionID
	h.agentSessionID = ""
	h.reducer = reducer
	h.mu.Unlock()

	if err := h.process.Launch(profile.Command, profile.Args, workingDir, profile.Env); err != nil {
		return "", fmt.Errorf("launching agent %q: %w", profileName, err)
	}

	var initRes protocol.InitializeResult
	err := h.call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientCapabilities: protocol.ClientCapabilities{
			FS:       protocol.FSCapabilities{ReadTextFile: true, WriteTextFile: true},
			Terminal: true,
		},
	}, &initRes)
	if err != nil {
		h.process.Terminate()
		return "", fmt.Errorf("initialize handshake: %w", err)
	}

	var newRes protocol.SessionNewResult
	err = h.call(ctx, protocol.MethodSessionNew, protocol.SessionNewParams{
		Cwd:        workingDir,
		McpServers: []any{},
	}, &newRes)
	if err != nil {
		h.process.Terminate()
		return "", fmt.Errorf("opening session: %w", err)
	}

	h.mu.Lock()
	h.agentSessionID = newRes.SessionID
	h.mu.Unlock()

	h.logger.Info("agent session started",
		zap.String("session_id", sessionID),
		zap.String("agent_session_id", newRes.SessionID),
		zap.String("profile", profileName),
		zap.String("cwd", workingDir))
	return sessionID, nil
}

// Prompt sends user text to the agent and blocks until its turn ends.
func (h *Host) Prompt(ctx context.Context, text string) (protocol.SessionPromptResult, error) {
	h.mu.Lock()
	agentSessionID := h.agentSessionID
	reducer := h.reducer
	h.mu.Unlock()
	if agentSessionID == "" || reducer == nil {
		return protocol.SessionPromptResult{}, ErrNoSession
	}

	reducer.AddUserMessage(text)

	var res protocol.SessionPromptResult
	err := h.call(ctx, protocol.MethodSessionPrompt, protocol.SessionPromptParams{
		SessionID: agentSessionID,
		Prompt:    []protocol.ContentBlock{protocol.TextBlock(text)},
	}, &res)
	return res, err
}

// Cancel asks the agent to abandon the current turn and denies any pending
// permission request.
func (h *Host) Cancel() error {
	h.mu.Lock()
	agentSessionID := h.agentSessionID
	h.mu.Unlock()
	if agentSessionID == "" {
		return ErrNoSession
	}

	h.permissions.CancelPending()

	note, err := jsonrpc.NewNotification(protocol.MethodSessionCancel,
		protocol.SessionCancelParams{SessionID: agentSessionID})
	if err != nil {
		return err
	}
	return h.process.WriteMessage(note)
}

// Stop tears the session down: terminates the agent and releases every
// live terminal.
func (h *Host) Stop(ctx context.Context) {
	h.process.Terminate()
	h.terminals.Shutdown(ctx)
}

// State returns the current reduced session state.
func (h *Host) State() (session.State, bool) {
	h.mu.Lock()
	reducer := h.reducer
	h.mu.Unlock()
	if reducer == nil {
		return session.State{}, false
	}
	return reducer.Snapshot(), true
}

// Permissions exposes the permission handler for UI response wiring.
func (h *Host) Permissions() *permission.Handler {
	return h.permissions
}

// Terminals exposes the terminal manager for UI cache lookups.
func (h *Host) Terminals() *terminal.Manager {
	return h.terminals
}

// Running reports whether the agent process is live.
func (h *Host) Running() bool {
	return h.process.Running()
}

// handleFrame classifies one framed JSON value from the agent and
// dispatches it. Requests run on their own goroutine so a suspended
// permission call never stalls notification processing.
func (h *Host) handleFrame(raw json.RawMessage) {
	env, err := jsonrpc.Decode(raw)
	if err != nil {
		h.logger.WithError(err).Warn("discarding non-envelope agent frame")
		return
	}

	switch env.Kind {
	case jsonrpc.EnvelopeRequest:
		go h.serveRequest(env.Request)
	case jsonrpc.EnvelopeNotification:
		h.handleNotification(env.Notification)
	case jsonrpc.EnvelopeResponse:
		h.resolveCall(env.Response)
	}
}

func (h *Host) serveRequest(req *jsonrpc.Request) {
	resp := h.router.RouteRequest(context.Background(), req)
	if err := h.process.WriteMessage(resp); err != nil {
		h.logger.Warn("failed to write response to agent",
			zap.String("method", req.Method), zap.Error(err))
	}
}

func (h *Host) handleNotification(note *jsonrpc.Notification) {
	if note.Method != protocol.NotificationSessionUpdate {
		h.logger.Debug("ignoring notification", zap.String("method", note.Method))
		return
	}
	var params protocol.SessionUpdateParams
	if err := json.Unmarshal(note.Params, &params); err != nil {
		h.logger.Warn("discarding malformed session update", zap.Error(err))
		return
	}

	h.mu.Lock()
	reducer := h.reducer
	h.mu.Unlock()
	if reducer == nil {
		return
	}
	reducer.Apply(params.Update)
}

// call performs one host → agent request and decodes the result into out.
func (h *Host) call(ctx context.Context, method string, params, out interface{}) error {
	id := atomic.AddInt64(&h.nextID, 1)
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *jsonrpc.Response, 1)
	h.mu.Lock()
	h.pendingCalls[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pendingCalls, id)
		h.mu.Unlock()
	}()

	if err := h.process.WriteMessage(req); err != nil {
		return err
	}

	if method != protocol.MethodSessionPrompt {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return ErrAgentGone
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("decoding %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveCall matches a response to its pending call.
func (h *Host) resolveCall(resp *jsonrpc.Response) {
	h.mu.Lock()
	ch, ok := h.pendingCalls[resp.ID]
	if ok {
		delete(h.pendingCalls, resp.ID)
	}
	h.mu.Unlock()
	if !ok {
		h.logger.Warn("response for unknown request id")
		return
	}
	ch <- resp
}

// handleExit runs after the agent process is gone and all pipes drained.
// Pending work that can only be answered by the dead process is failed.
func (h *Host) handleExit(exitCode int) {
	h.permissions.CancelPending()

	h.mu.Lock()
	sessionID := h.sessionID
	pending := h.pendingCalls
	h.pendingCalls = make(map[interface{}]chan *jsonrpc.Response)
	h.mu.Unlock()

	for _, ch := range pending {
		ch <- nil
	}

	h.logger.Info("agent exited",
		zap.String("session_id", sessionID),
		zap.Int("exit_code", exitCode))
	if h.onExit != nil {
		h.onExit(sessionID, exitCode)
	}
}
