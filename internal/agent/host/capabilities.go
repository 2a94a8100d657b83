package host

import (
	"context"

	"github.com/agenthost/agenthost/internal/agent/files"
	"github.com/agenthost/agenthost/internal/agent/permission"
	"github.com/agenthost/agenthost/internal/agent/terminal"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// capabilities implements the router's capability delegate by fanning out
// to the file, terminal and permission collaborators.
type capabilities struct {
	files       *files.Service
	terminals   *terminal.Manager
	permissions *permission.Handler
}

func (c *capabilities) ReadTextFile(ctx context.Context, p protocol.ReadTextFileParams) (protocol.ReadTextFileResult, error) {
	return c.files.ReadTextFile(ctx, p)
}

func (c *capabilities) WriteTextFile(ctx context.Context, p protocol.WriteTextFileParams) (protocol.WriteTextFileResult, error) {
	return c.files.WriteTextFile(ctx, p)
}

func (c *capabilities) CreateTerminal(ctx context.Context, p protocol.TerminalCreateParams) (protocol.TerminalCreateResult, error) {
	return c.terminals.Create(ctx, p)
}

func (c *capabilities) TerminalOutput(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalOutputResult, error) {
	return c.terminals.Output(ctx, p)
}

func (c *capabilities) WaitForTerminalExit(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalWaitExitResult, error) {
	return c.terminals.WaitForExit(ctx, p)
}

func (c *capabilities) KillTerminal(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalKillResult, error) {
	return c.terminals.Kill(ctx, p)
}

func (c *capabilities) ReleaseTerminal(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalReleaseResult, error) {
	return c.terminals.Release(ctx, p)
}

func (c *capabilities) RequestPermission(ctx context.Context, p protocol.RequestPermissionParams) (protocol.RequestPermissionResult, error) {
	return c.permissions.RequestPermission(ctx, p)
}
