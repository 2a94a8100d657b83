// Package permission suspends an agent's request_permission call until a
// human decides, with a deadline that converts silence into denial.
package permission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// DefaultTimeout is how long an unanswered request waits before it is
// denied.
const DefaultTimeout = 300 * time.Second

// Prompter is told when a decision is needed. Implementations forward the
// request to whatever surface the user is watching.
type Prompter interface {
	PromptPermission(requestID string, params protocol.RequestPermissionParams)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(requestID string, params protocol.RequestPermissionParams)

// PromptPermission calls f.
func (f PrompterFunc) PromptPermission(requestID string, params protocol.RequestPermissionParams) {
	f(requestID, params)
}

// pending is one in-flight request. The result channel is buffered so the
// resolving side never blocks; resolved latches so exactly one outcome
// wins no matter how many paths race to settle it.
type pending struct {
	id       string
	params   protocol.RequestPermissionParams
	result   chan protocol.RequestPermissionResult
	timer    *time.Timer
	resolved bool
}

// Handler holds at most one suspended permission request. A user response,
// the deadline, an explicit cancel, or a newer request can each settle it;
// whichever arrives first wins and the rest are ignored.
type Handler struct {
	logger   *logger.Logger
	timeout  time.Duration
	prompter Prompter

	mu      sync.Mutex
	current *pending
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout overrides the decision deadline.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithPrompter sets the surface notified when a decision is needed.
func WithPrompter(p Prompter) Option {
	return func(h *Handler) {
		h.prompter = p
	}
}

// NewHandler creates a permission handler.
func NewHandler(log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:  log.WithFields(zap.String("component", "permission-handler")),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RequestPermission suspends until the request is settled and returns the
// outcome. Only one request can be suspended at a time; a second arrival
// denies the one already waiting, since the user can only be looking at
// one dialog.
func (h *Handler) RequestPermission(ctx context.Context, params protocol.RequestPermissionParams) (protocol.RequestPermissionResult, error) {
	p := &pending{
		id:     "perm_" + uuid.NewString(),
		params: params,
		result: make(chan protocol.RequestPermissionResult, 1),
	}

	h.mu.Lock()
	if prev := h.current; prev != nil {
		h.logger.Warn("permission request superseded",
			zap.String("request_id", prev.id))
		h.settleLocked(prev, cancelledResult())
	}
	h.current = p
	p.timer = time.AfterFunc(h.timeout, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.settleLocked(p, cancelledResult()) {
			h.logger.Info("permission request timed out",
				zap.String("request_id", p.id))
		}
	})
	h.mu.Unlock()

	h.logger.Info("permission requested",
		zap.String("request_id", p.id),
		zap.Int("options", len(params.Options)))
	if h.prompter != nil {
		h.prompter.PromptPermission(p.id, params)
	}

	select {
	case res := <-p.result:
		return res, nil
	case <-ctx.Done():
		h.mu.Lock()
		h.settleLocked(p, cancelledResult())
		h.mu.Unlock()
		return cancelledResult(), nil
	}
}

// Respond settles the suspended request with the user's chosen option.
// Responses to requests that already settled, or to an id that is not the
// one waiting, are dropped.
func (h *Handler) Respond(requestID, optionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.current
	if p == nil || p.id != requestID {
		return false
	}
	ok := h.settleLocked(p, protocol.RequestPermissionResult{
		Outcome: protocol.PermissionOutcome{
			Outcome:  protocol.PermissionOutcomeSelected,
			OptionID: optionID,
		},
	})
	if ok {
		h.logger.Info("permission granted",
			zap.String("request_id", requestID),
			zap.String("option_id", optionID))
	}
	return ok
}

// Deny settles the suspended request as cancelled.
func (h *Handler) Deny(requestID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.current
	if p == nil || p.id != requestID {
		return false
	}
	ok := h.settleLocked(p, cancelledResult())
	if ok {
		h.logger.Info("permission denied", zap.String("request_id", requestID))
	}
	return ok
}

// CancelPending denies whatever request is waiting, if any. Called when the
// session is cancelled or the agent goes away mid-request.
func (h *Handler) CancelPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p := h.current; p != nil {
		h.settleLocked(p, cancelledResult())
	}
}

// Pending returns the id and params of the request currently waiting.
func (h *Handler) Pending() (string, protocol.RequestPermissionParams, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return "", protocol.RequestPermissionParams{}, false
	}
	return h.current.id, h.current.params, true
}

// settleLocked resolves p exactly once and detaches it from the handler.
// Returns false when p already settled. Callers hold the lock.
func (h *Handler) settleLocked(p *pending, res protocol.RequestPermissionResult) bool {
	if p.resolved {
		return false
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.result <- res
	if h.current == p {
		h.current = nil
	}
	return true
}

func cancelledResult() protocol.RequestPermissionResult {
	return protocol.RequestPermissionResult{
		Outcome: protocol.PermissionOutcome{Outcome: protocol.PermissionOutcomeCancelled},
	}
}
