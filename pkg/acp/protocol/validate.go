package protocol

import "errors"

// Validate reports whether required fields are present.
func (p ReadTextFileParams) Validate() error {
	if p.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// Validate reports whether required fields are present.
func (p WriteTextFileParams) Validate() error {
	if p.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// Validate reports whether required fields are present.
func (p TerminalCreateParams) Validate() error {
	if p.Command == "" {
		return errors.New("command is required")
	}
	return nil
}

// Validate reports whether required fields are present.
func (p TerminalIDParams) Validate() error {
	if p.TerminalID == "" {
		return errors.New("terminalId is required")
	}
	return nil
}

// Validate reports whether required fields are present.
func (p RequestPermissionParams) Validate() error {
	if len(p.Options) == 0 && p.Message == "" && p.ToolCall == nil {
		return errors.New("permission request carries no options, message or tool call")
	}
	return nil
}
