package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// ChangeHandler observes the state after each applied update.
type ChangeHandler func(State)

// Reducer folds session/update notifications into session state. Updates
// are applied strictly in arrival order under one lock; the change
// callback runs outside it with a snapshot.
type Reducer struct {
	logger *logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	sessionID   string
	messages    []*MessageItem
	toolOrder   []string
	toolCalls   map[string]*ToolCall
	activeTasks map[string]struct{}
	thought     string
	plan        []protocol.PlanEntry
	commands    []protocol.AvailableCommand
	modeID      string
	options     []protocol.ConfigOption

	onChange ChangeHandler
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithChangeHandler sets the post-update observer.
func WithChangeHandler(h ChangeHandler) ReducerOption {
	return func(r *Reducer) {
		r.onChange = h
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReducer creates a reducer for one session.
func NewReducer(sessionID string, log *logger.Logger, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		logger:      log.WithSessionID(sessionID).WithFields(zap.String("component", "session-reducer")),
		now:         time.Now,
		sessionID:   sessionID,
		toolCalls:   make(map[string]*ToolCall),
		activeTasks: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply folds one update into the state.
func (r *Reducer) Apply(u protocol.SessionUpdate) {
	r.mu.Lock()
	switch u.SessionUpdate {
	case protocol.UpdateToolCall:
		r.applyToolCall(u)
	case protocol.UpdateToolCallUpdate:
		r.applyToolCallUpdate(u)
	case protocol.UpdateAgentMessageChunk:
		r.applyAgentMessageChunk(u)
	case protocol.UpdateAgentThoughtChunk:
		r.applyAgentThoughtChunk(u)
	case protocol.UpdatePlan:
		r.applyPlan(u)
	case protocol.UpdateAvailableCommands:
		r.commands = u.AvailableCommands
	case protocol.UpdateCurrentMode:
		r.modeID = u.CurrentModeID
	case protocol.UpdateConfigOption:
		r.options = u.ConfigOptions
	case protocol.UpdateUserMessageChunk:
		// The host already has the user's text from the outbound prompt.
	default:
		r.logger.Debug("ignoring unknown session update kind",
			zap.String("kind", string(u.SessionUpdate)))
	}
	snap := r.snapshotLocked()
	handler := r.onChange
	r.mu.Unlock()

	if handler != nil {
		handler(snap)
	}
}

// Snapshot returns a copy of the current state.
func (r *Reducer) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// AddUserMessage records outbound prompt text, since user_message_chunk
// notifications are not replayed into the state.
func (r *Reducer) AddUserMessage(text string) {
	r.mu.Lock()
	now := r.now()
	r.messages = append(r.messages, &MessageItem{
		ID:        "msg_" + uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Complete:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	snap := r.snapshotLocked()
	handler := r.onChange
	r.mu.Unlock()

	if handler != nil {
		handler(snap)
	}
}

// ActiveTaskCount reports how many task tool calls are currently running.
func (r *Reducer) ActiveTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeTasks)
}

func (r *Reducer) applyToolCall(u protocol.SessionUpdate) {
	if u.ToolCallID == "" {
		r.logger.Warn("tool_call without toolCallId dropped")
		return
	}
	// A tool call always ends the current text stream.
	r.completeAgentMessage()

	isTask := protocol.IsTaskMeta(u.Meta, u.Kind)
	status := protocol.ToolStatusPending
	if u.Status != nil && *u.Status != "" {
		status = *u.Status
	}

	// Parent attribution is attempted only when unambiguous. With several
	// tasks running at once the parent stays unset rather than guessed.
	parent := ""
	if !isTask && len(r.activeTasks) == 1 {
		for id := range r.activeTasks {
			parent = id
		}
	}
	if isTask && status == protocol.ToolStatusPending {
		r.activeTasks[u.ToolCallID] = struct{}{}
	}

	tc, exists := r.toolCalls[u.ToolCallID]
	if !exists {
		tc = &ToolCall{
			ID:               u.ToolCallID,
			Status:           status,
			ParentToolCallID: parent,
			IsTask:           isTask,
			Timestamp:        r.now(),
		}
		r.toolCalls[u.ToolCallID] = tc
		r.toolOrder = append(r.toolOrder, u.ToolCallID)
	} else if tc.ParentToolCallID == "" {
		tc.ParentToolCallID = parent
	}
	tc.IsTask = tc.IsTask || isTask
	r.mergeToolCall(tc, u)
	if tc.Title == "" {
		tc.Title = deriveTitle(u)
	}
}

func (r *Reducer) applyToolCallUpdate(u protocol.SessionUpdate) {
	if u.ToolCallID == "" {
		r.logger.Warn("tool_call_update without toolCallId dropped")
		return
	}
	tc, exists := r.toolCalls[u.ToolCallID]
	if !exists {
		// Updates for ids never announced still get an entry; agents skip
		// the creation notification for fast tool calls.
		tc = &ToolCall{
			ID:        u.ToolCallID,
			Status:    protocol.ToolStatusPending,
			Timestamp: r.now(),
		}
		r.toolCalls[u.ToolCallID] = tc
		r.toolOrder = append(r.toolOrder, u.ToolCallID)
	}
	r.mergeToolCall(tc, u)
	if tc.Title == "" {
		tc.Title = deriveTitle(u)
	}

	if tc.Status == protocol.ToolStatusCompleted || tc.Status == protocol.ToolStatusFailed {
		delete(r.activeTasks, tc.ID)
	}
}

// mergeToolCall folds an update's supplied fields into tc. Absent fields
// never clear existing values; the timestamp and any established parent or
// iteration id are always kept.
func (r *Reducer) mergeToolCall(tc *ToolCall, u protocol.SessionUpdate) {
	if u.Title != nil {
		if t := strings.TrimSpace(*u.Title); t != "" {
			tc.Title = t
		}
	}
	if u.Kind != nil && *u.Kind != "" {
		tc.Kind = *u.Kind
	}
	if u.Status != nil && *u.Status != "" {
		tc.Status = *u.Status
	}
	if u.IterationID != nil && *u.IterationID != "" && tc.IterationID == "" {
		tc.IterationID = *u.IterationID
	}
	if len(u.Locations) > 0 {
		tc.Locations = u.Locations
	}
	if len(u.RawInput) > 0 {
		tc.RawInput = u.RawInput
	}
	if len(u.RawOutput) > 0 {
		tc.RawOutput = u.RawOutput
	}

	incoming := u.ItemsContent
	if tm, ok := protocol.TerminalMetaFrom(u.Meta); ok {
		incoming = append(incoming, terminalContent(tm)...)
	}
	if len(incoming) > 0 {
		tc.Content = appendContent(tc.Content, incoming)
	}
}

// terminalContent renders agent-attached terminal execution info as text
// content blocks.
func terminalContent(tm protocol.TerminalMeta) []protocol.ToolCallContent {
	var out []protocol.ToolCallContent
	if tm.Output != "" {
		out = append(out, protocol.TextContent(tm.Output))
	}
	if tm.ExitCode != nil {
		out = append(out, protocol.TextContent(fmt.Sprintf("Exit code %d", *tm.ExitCode)))
	}
	return out
}

// appendContent appends incoming blocks onto existing content, coalescing
// adjacent text blocks into one and dropping an adjacent identical text
// block. The incoming slice is coalesced first so re-applying the same
// update leaves the content unchanged.
func appendContent(existing, incoming []protocol.ToolCallContent) []protocol.ToolCallContent {
	out := existing
	for _, block := range coalesce(incoming) {
		out = appendBlock(out, block)
	}
	return out
}

// coalesce folds a content list onto itself with the text-adjacency rules.
func coalesce(blocks []protocol.ToolCallContent) []protocol.ToolCallContent {
	var out []protocol.ToolCallContent
	for _, block := range blocks {
		out = appendBlock(out, block)
	}
	return out
}

func appendBlock(out []protocol.ToolCallContent, block protocol.ToolCallContent) []protocol.ToolCallContent {
	text, isText := textOf(block)
	if isText && len(out) > 0 {
		if prev, ok := textOf(out[len(out)-1]); ok {
			if prev == text {
				return out
			}
			out[len(out)-1] = protocol.TextContent(prev + text)
			return out
		}
	}
	return append(out, block)
}

func textOf(c protocol.ToolCallContent) (string, bool) {
	if c.Type == "content" && c.Content != nil && c.Content.Type == "text" {
		return c.Content.Text, true
	}
	return "", false
}

func (r *Reducer) applyAgentMessageChunk(u protocol.SessionUpdate) {
	// A message chunk means the thinking phase for this turn is over.
	r.thought = ""

	text, hasText := protocol.ExtractText(u.Content)
	blocks := protocol.DecodeBlocks(u.Content)
	if !hasText && len(blocks) == 0 {
		return
	}

	now := r.now()
	if last := r.lastMessage(); last != nil && last.Role == RoleAgent && !last.Complete {
		last.Text += text
		last.Blocks = append(last.Blocks, blocks...)
		last.UpdatedAt = now
		return
	}
	r.messages = append(r.messages, &MessageItem{
		ID:        "msg_" + uuid.NewString(),
		Role:      RoleAgent,
		Text:      text,
		Blocks:    blocks,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (r *Reducer) applyAgentThoughtChunk(u protocol.SessionUpdate) {
	if text, ok := protocol.ExtractText(u.Content); ok {
		r.thought += text
	}
}

func (r *Reducer) applyPlan(u protocol.SessionUpdate) {
	// Agents re-send identical plans; skip the churn.
	if planEqual(r.plan, u.Entries) {
		return
	}
	r.plan = u.Entries
}

func planEqual(a, b []protocol.PlanEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// completeAgentMessage marks a still-streaming agent message complete.
func (r *Reducer) completeAgentMessage() {
	if last := r.lastMessage(); last != nil && last.Role == RoleAgent && !last.Complete {
		last.Complete = true
		last.UpdatedAt = r.now()
	}
}

func (r *Reducer) lastMessage() *MessageItem {
	if len(r.messages) == 0 {
		return nil
	}
	return r.messages[len(r.messages)-1]
}

// deriveTitle picks a display title for a tool call that arrived without
// one: a recognizable input field first, then the capitalized kind.
func deriveTitle(u protocol.SessionUpdate) string {
	if len(u.RawInput) > 0 {
		var input map[string]any
		if err := json.Unmarshal(u.RawInput, &input); err == nil {
			for _, key := range []string{"path", "file", "query", "command", "title", "name", "description"} {
				if s, ok := input[key].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
			if args, ok := input["args"].([]any); ok {
				var parts []string
				for _, a := range args {
					if s, ok := a.(string); ok {
						parts = append(parts, s)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, " ")
				}
			}
		}
	}
	if u.Kind != nil && *u.Kind != "" {
		k := *u.Kind
		return strings.ToUpper(k[:1]) + k[1:]
	}
	return "Tool call"
}

func (r *Reducer) snapshotLocked() State {
	s := State{
		SessionID:         r.sessionID,
		CurrentThought:    r.thought,
		CurrentModeID:     r.modeID,
		Plan:              append([]protocol.PlanEntry(nil), r.plan...),
		AvailableCommands: append([]protocol.AvailableCommand(nil), r.commands...),
		ConfigOptions:     append([]protocol.ConfigOption(nil), r.options...),
	}
	s.Messages = make([]MessageItem, 0, len(r.messages))
	for _, m := range r.messages {
		cp := *m
		cp.Blocks = append([]protocol.ContentBlock(nil), m.Blocks...)
		s.Messages = append(s.Messages, cp)
	}
	s.ToolCalls = make([]ToolCall, 0, len(r.toolOrder))
	for _, id := range r.toolOrder {
		tc := r.toolCalls[id]
		cp := *tc
		cp.Content = append([]protocol.ToolCallContent(nil), tc.Content...)
		cp.Locations = append([]protocol.ToolCallLocation(nil), tc.Locations...)
		s.ToolCalls = append(s.ToolCalls, cp)
	}
	return s
}
