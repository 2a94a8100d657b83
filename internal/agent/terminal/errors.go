package terminal

// Error is a terminal failure with a stable JSON-RPC error code, so each
// failure kind reaches the agent distinctly rather than as a generic
// internal error.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string { return e.msg }

// RPCErrorCode returns the JSON-RPC error code for this failure.
func (e *Error) RPCErrorCode() int { return e.code }

var (
	// ErrNotFound means the terminal id is unknown (never created, or
	// released and since evicted from the cache).
	ErrNotFound = &Error{code: -32001, msg: "terminal not found"}

	// ErrAlreadyReleased means the id refers to a released terminal.
	ErrAlreadyReleased = &Error{code: -32002, msg: "terminal already released"}

	// ErrExecutableNotFound means the command could not be resolved to a
	// runnable executable.
	ErrExecutableNotFound = &Error{code: -32003, msg: "executable not found"}

	// ErrCommandParse means the command string could not be tokenized
	// (unbalanced quotes).
	ErrCommandParse = &Error{code: -32004, msg: "command parse failed"}
)
