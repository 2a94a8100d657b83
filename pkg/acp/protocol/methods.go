// Package protocol defines the ACP (Agent Client Protocol) method surface
// spoken between a host application and an agent subprocess: typed
// parameters and results for every agent-initiated request the host serves,
// plus the session/update notification union.
package protocol

// Methods the host serves (agent → host requests).
const (
	MethodReadTextFile      = "fs/read_text_file"
	MethodWriteTextFile     = "fs/write_text_file"
	MethodTerminalCreate    = "terminal/create"
	MethodTerminalOutput    = "terminal/output"
	MethodTerminalWaitExit  = "terminal/wait_for_exit"
	MethodTerminalKill      = "terminal/kill"
	MethodTerminalRelease   = "terminal/release"
	MethodRequestPermission = "request_permission"

	// Some agents emit the permission request under the session-scoped
	// name; both are accepted.
	MethodRequestPermissionAlias = "session/request_permission"
)

// Notifications the host consumes (agent → host).
const (
	NotificationSessionUpdate = "session/update"
)

// Methods the host sends (host → agent requests/notifications).
const (
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"
	MethodSessionCancel = "session/cancel"
)
