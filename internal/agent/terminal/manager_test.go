package terminal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(Config{ExitPollInterval: 10 * time.Millisecond}, logger.NewNop())
}

func TestTerminalLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "echo",
		Args:    []string{"hello"},
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.TerminalID)

	waited, err := m.WaitForExit(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	require.NotNil(t, waited.ExitCode)
	assert.Equal(t, 0, *waited.ExitCode)
	assert.Nil(t, waited.Signal)

	out, err := m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Output)
	assert.False(t, out.Truncated)
	require.NotNil(t, out.ExitStatus)
	assert.Equal(t, 0, *out.ExitStatus.ExitCode)

	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Count())

	// The live table rejects the released id, the cache still serves it.
	_, err = m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	assert.ErrorIs(t, err, ErrAlreadyReleased)

	cached, err := m.CachedOutput(created.TerminalID)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", cached.Output)
	require.NotNil(t, cached.ExitStatus)
	assert.Equal(t, 0, *cached.ExitStatus.ExitCode)
}

func TestTerminalOutputWhileRunning(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo started; sleep 30"},
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)

	// Output appears before exit, with no exit status yet.
	require.Eventually(t, func() bool {
		out, err := m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
		return err == nil && strings.Contains(out.Output, "started") && out.ExitStatus == nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err = m.Kill(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)

	out, err := m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	require.NotNil(t, out.ExitStatus)
	assert.NotNil(t, out.ExitStatus.Signal)

	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
}

func TestCachedOutputServesLiveTerminal(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo live; sleep 30"},
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)

	// A live terminal serves its current buffer, not a cache miss.
	require.Eventually(t, func() bool {
		out, err := m.CachedOutput(created.TerminalID)
		return err == nil && strings.Contains(out.Output, "live") && out.ExitStatus == nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)

	// After release the same call falls through to the cache.
	out, err := m.CachedOutput(created.TerminalID)
	require.NoError(t, err)
	assert.Contains(t, out.Output, "live")
	require.NotNil(t, out.ExitStatus)
}

func TestTerminalKillWakesWaiters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "sleep",
		Args:    []string{"30"},
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)

	done := make(chan protocol.TerminalWaitExitResult, 1)
	go func() {
		res, err := m.WaitForExit(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
		if err == nil {
			done <- res
		}
	}()

	// Give the waiter time to register before killing.
	time.Sleep(50 * time.Millisecond)
	_, err = m.Kill(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)

	select {
	case res := <-done:
		assert.NotNil(t, res.Signal)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken by kill")
	}
}

func TestTerminalOutputLimit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	limit := 16
	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command:         "/bin/sh",
		Args:            []string{"-c", "printf '0123456789abcdefghijklmnop'"},
		Cwd:             t.TempDir(),
		OutputByteLimit: &limit,
	})
	require.NoError(t, err)

	_, err = m.WaitForExit(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)

	out, err := m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.LessOrEqual(t, len(out.Output), limit)
	assert.True(t, strings.HasSuffix("0123456789abcdefghijklmnop", out.Output))

	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
}

func TestTerminalUnknownID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	params := protocol.TerminalIDParams{TerminalID: "term_missing"}

	_, err := m.Output(ctx, params)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.WaitForExit(ctx, params)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Kill(ctx, params)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Release(ctx, params)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTerminalDoubleRelease(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "true",
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)

	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	_, err = m.Release(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestTerminalEnvOverrides(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, protocol.TerminalCreateParams{
		Command: "/bin/sh",
		Args:    []string{"-c", "printf '%s' \"$MARKER\""},
		Cwd:     t.TempDir(),
		Env:     []protocol.EnvVariable{{Name: "MARKER", Value: "from-agent"}},
	})
	require.NoError(t, err)

	_, err = m.WaitForExit(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)

	out, err := m.Output(ctx, protocol.TerminalIDParams{TerminalID: created.TerminalID})
	require.NoError(t, err)
	assert.Equal(t, "from-agent", out.Output)
}

func TestTerminalShutdownReleasesAll(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, protocol.TerminalCreateParams{
			Command: "sleep",
			Args:    []string{"30"},
			Cwd:     t.TempDir(),
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Count())

	m.Shutdown(ctx)
	assert.Equal(t, 0, m.Count())
}
