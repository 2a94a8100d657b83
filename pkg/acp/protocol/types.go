package protocol

import "encoding/json"

// ReadTextFileParams for fs/read_text_file.
type ReadTextFileParams struct {
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`  // 1-based first line to return
	Limit     *int   `json:"limit,omitempty"` // max number of lines
}

// ReadTextFileResult for fs/read_text_file.
type ReadTextFileResult struct {
	Content string `json:"content"`
}

// WriteTextFileParams for fs/write_text_file.
type WriteTextFileParams struct {
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// WriteTextFileResult for fs/write_text_file.
type WriteTextFileResult struct{}

// TerminalCreateParams for terminal/create.
type TerminalCreateParams struct {
	SessionID       string         `json:"sessionId,omitempty"`
	Command         string         `json:"command"`
	Args            []string       `json:"args,omitempty"`
	Cwd             string         `json:"cwd,omitempty"`
	Env             []EnvVariable  `json:"env,omitempty"`
	OutputByteLimit *int           `json:"outputByteLimit,omitempty"`
	Meta            map[string]any `json:"_meta,omitempty"`
}

// EnvVariable is one caller-supplied environment override.
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TerminalCreateResult for terminal/create.
type TerminalCreateResult struct {
	TerminalID string `json:"terminalId"`
}

// TerminalIDParams identifies a terminal for output/wait/kill/release.
type TerminalIDParams struct {
	SessionID  string `json:"sessionId,omitempty"`
	TerminalID string `json:"terminalId"`
}

// TerminalExitStatus reports how a terminal's process ended. Present only
// once the process has exited.
type TerminalExitStatus struct {
	ExitCode *int    `json:"exitCode,omitempty"`
	Signal   *string `json:"signal,omitempty"`
}

// TerminalOutputResult for terminal/output.
type TerminalOutputResult struct {
	Output     string              `json:"output"`
	Truncated  bool                `json:"truncated"`
	ExitStatus *TerminalExitStatus `json:"exitStatus,omitempty"`
}

// TerminalWaitExitResult for terminal/wait_for_exit.
type TerminalWaitExitResult struct {
	ExitCode *int    `json:"exitCode,omitempty"`
	Signal   *string `json:"signal,omitempty"`
}

// TerminalKillResult for terminal/kill.
type TerminalKillResult struct{}

// TerminalReleaseResult for terminal/release.
type TerminalReleaseResult struct{}

// RequestPermissionParams for request_permission.
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId,omitempty"`
	ToolCall  *ToolCallRef       `json:"toolCall,omitempty"`
	Message   string             `json:"message,omitempty"`
	Options   []PermissionOption `json:"options"`
}

// ToolCallRef names the tool call a permission request concerns.
type ToolCallRef struct {
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title,omitempty"`
}

// PermissionOption is one named choice offered to the user.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"` // allow_once, allow_always, reject_once, reject_always
}

// RequestPermissionResult for request_permission.
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// PermissionOutcome carries the user's decision.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // "selected" or "cancelled"
	OptionID string `json:"optionId,omitempty"`
}

// PermissionOutcomeSelected and friends are the wire values of
// PermissionOutcome.Outcome.
const (
	PermissionOutcomeSelected  = "selected"
	PermissionOutcomeCancelled = "cancelled"
)

// ContentBlock is one unit of streamed content. Type discriminates; Text is
// set for type "text". Anything the host does not model is preserved in Raw
// so nothing is silently dropped.
type ContentBlock struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

// contentBlockWire mirrors ContentBlock for (un)marshaling without the Raw
// recursion.
type contentBlockWire struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UnmarshalJSON keeps the original bytes of non-text blocks.
func (c *ContentBlock) UnmarshalJSON(data []byte) error {
	var w contentBlockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Type = w.Type
	c.Text = w.Text
	if w.Type != "text" {
		c.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON re-emits preserved raw bytes for non-text blocks.
func (c ContentBlock) MarshalJSON() ([]byte, error) {
	if c.Type != "text" && len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(contentBlockWire{Type: c.Type, Text: c.Text})
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}
