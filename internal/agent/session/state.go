// Package session folds the agent's session/update notification stream
// into ordered, renderable session state.
package session

import (
	"encoding/json"
	"time"

	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// MessageItem is one message in the conversation. While the agent streams,
// at most one agent message is incomplete; chunks append to it until
// something ends the stream.
type MessageItem struct {
	ID        string                  `json:"id"`
	Role      Role                    `json:"role"`
	Text      string                  `json:"text"`
	Blocks    []protocol.ContentBlock `json:"blocks,omitempty"`
	Complete  bool                    `json:"complete"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// ToolCall is the host's view of one tool invocation. Updates merge into
// the entry by id; the entry is never replaced wholesale.
type ToolCall struct {
	ID               string                      `json:"id"`
	Title            string                      `json:"title"`
	Kind             string                      `json:"kind,omitempty"`
	Status           string                      `json:"status"`
	Content          []protocol.ToolCallContent  `json:"content,omitempty"`
	Locations        []protocol.ToolCallLocation `json:"locations,omitempty"`
	RawInput         json.RawMessage             `json:"rawInput,omitempty"`
	RawOutput        json.RawMessage             `json:"rawOutput,omitempty"`
	ParentToolCallID string                      `json:"parentToolCallId,omitempty"`
	IterationID      string                      `json:"iterationId,omitempty"`
	IsTask           bool                        `json:"isTask,omitempty"`
	Timestamp        time.Time                   `json:"timestamp"`
}

// State is the full reducible session state. The reducer owns the only
// mutable copy; callers get snapshots.
type State struct {
	SessionID         string                      `json:"sessionId"`
	Messages          []MessageItem               `json:"messages"`
	ToolCalls         []ToolCall                  `json:"toolCalls"`
	CurrentThought    string                      `json:"currentThought,omitempty"`
	Plan              []protocol.PlanEntry        `json:"plan,omitempty"`
	AvailableCommands []protocol.AvailableCommand `json:"availableCommands,omitempty"`
	CurrentModeID     string                      `json:"currentModeId,omitempty"`
	ConfigOptions     []protocol.ConfigOption     `json:"configOptions,omitempty"`
}

// ToolCallByID finds a tool call in a snapshot.
func (s *State) ToolCallByID(id string) (ToolCall, bool) {
	for _, tc := range s.ToolCalls {
		if tc.ID == id {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (MessageItem, bool) {
	if len(s.Messages) == 0 {
		return MessageItem{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
