package protocol

import "encoding/json"

// UpdateKind is the session/update discriminator value.
type UpdateKind string

const (
	UpdateUserMessageChunk  UpdateKind = "user_message_chunk"
	UpdateAgentMessageChunk UpdateKind = "agent_message_chunk"
	UpdateAgentThoughtChunk UpdateKind = "agent_thought_chunk"
	UpdateToolCall          UpdateKind = "tool_call"
	UpdateToolCallUpdate    UpdateKind = "tool_call_update"
	UpdatePlan              UpdateKind = "plan"
	UpdateAvailableCommands UpdateKind = "available_commands_update"
	UpdateCurrentMode       UpdateKind = "current_mode_update"
	UpdateConfigOption      UpdateKind = "config_option_update"
)

// SessionUpdateParams is the params payload of a session/update notification.
type SessionUpdateParams struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// SessionUpdate is the tagged union carried by session/update. The
// discriminator is SessionUpdate; only the fields for that kind are set.
// Chunk content stays raw because agents disagree on its shape; see
// ExtractText for the decode heuristics.
type SessionUpdate struct {
	SessionUpdate UpdateKind `json:"sessionUpdate"`

	// Message/thought chunks.
	Content json.RawMessage `json:"content,omitempty"`

	// tool_call and tool_call_update.
	ToolCallID   string             `json:"toolCallId,omitempty"`
	Title        *string            `json:"title,omitempty"`
	Kind         *string            `json:"kind,omitempty"`
	Status       *string            `json:"status,omitempty"`
	Locations    []ToolCallLocation `json:"locations,omitempty"`
	RawInput     json.RawMessage    `json:"rawInput,omitempty"`
	RawOutput    json.RawMessage    `json:"rawOutput,omitempty"`
	IterationID  *string            `json:"iterationId,omitempty"`
	ItemsContent []ToolCallContent  `json:"-"`

	// plan.
	Entries []PlanEntry `json:"entries,omitempty"`

	// available_commands_update.
	AvailableCommands []AvailableCommand `json:"availableCommands,omitempty"`

	// current_mode_update.
	CurrentModeID string `json:"currentModeId,omitempty"`

	// config_option_update.
	ConfigOptions []ConfigOption `json:"configOptions,omitempty"`

	// Agent-specific metadata (task/sub-agent tagging, terminal info).
	Meta map[string]any `json:"_meta,omitempty"`
}

// sessionUpdateWire exists because "content" means a chunk's content block
// for message updates but a ToolCallContent list for tool-call updates.
type sessionUpdateWire SessionUpdate

// UnmarshalJSON splits the overloaded "content" field by update kind.
func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	var w sessionUpdateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*u = SessionUpdate(w)
	if u.SessionUpdate == UpdateToolCall || u.SessionUpdate == UpdateToolCallUpdate {
		if len(u.Content) > 0 {
			var items []ToolCallContent
			// Unparseable tool-call content degrades to an empty list.
			if err := json.Unmarshal(u.Content, &items); err == nil {
				u.ItemsContent = items
			}
			u.Content = nil
		}
	}
	return nil
}

// ToolCallLocation points at a file location a tool call touches.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line *int   `json:"line,omitempty"`
}

// ToolCallContent is one entry of a tool call's content list. Known types
// are "content" (wrapping a ContentBlock) and "diff"; anything else is kept
// raw.
type ToolCallContent struct {
	Type    string        `json:"type"`
	Content *ContentBlock `json:"content,omitempty"`

	// diff fields
	Path    string `json:"path,omitempty"`
	OldText string `json:"oldText,omitempty"`
	NewText string `json:"newText,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type toolCallContentWire ToolCallContent

// UnmarshalJSON preserves the original bytes of unknown content types.
func (t *ToolCallContent) UnmarshalJSON(data []byte) error {
	var w toolCallContentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = ToolCallContent(w)
	switch t.Type {
	case "content", "diff":
	default:
		t.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON re-emits preserved raw bytes for unknown content types.
func (t ToolCallContent) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	return json.Marshal(toolCallContentWire(t))
}

// TextContent wraps a text block as tool-call content.
func TextContent(text string) ToolCallContent {
	b := TextBlock(text)
	return ToolCallContent{Type: "content", Content: &b}
}

// PlanEntry is one step of an agent's published plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// AvailableCommand describes one slash-command the agent offers.
type AvailableCommand struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ConfigOption is one agent-exposed configuration toggle.
type ConfigOption struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value,omitempty"`
}

// Tool call status values. The taxonomy is owned by the protocol.
const (
	ToolStatusPending    = "pending"
	ToolStatusInProgress = "in_progress"
	ToolStatusCompleted  = "completed"
	ToolStatusFailed     = "failed"
)

// TerminalMeta is the agent-specific terminal execution info some agents
// attach to tool_call_update under _meta.
type TerminalMeta struct {
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// TerminalMetaFrom extracts terminal execution info from an update's _meta,
// if present.
func TerminalMetaFrom(meta map[string]any) (TerminalMeta, bool) {
	if meta == nil {
		return TerminalMeta{}, false
	}
	raw, ok := meta["terminalInfo"]
	if !ok {
		return TerminalMeta{}, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return TerminalMeta{}, false
	}
	var tm TerminalMeta
	if err := json.Unmarshal(b, &tm); err != nil {
		return TerminalMeta{}, false
	}
	return tm, tm.Output != "" || tm.ExitCode != nil
}

// IsTaskMeta reports whether an update's metadata tags the tool call as a
// task (sub-agent) invocation. Agents tag this differently; the known
// spellings are a toolName of "Task" or an explicit subagent marker.
func IsTaskMeta(meta map[string]any, kind *string) bool {
	if kind != nil && *kind == "task" {
		return true
	}
	if meta == nil {
		return false
	}
	if name, ok := meta["toolName"].(string); ok && name == "Task" {
		return true
	}
	if v, ok := meta["subagent"].(bool); ok && v {
		return true
	}
	return false
}
