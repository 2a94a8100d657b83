package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthost/agenthost/internal/agent/session"
	"github.com/agenthost/agenthost/internal/common/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "agenthost.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.CreateSession(ctx, SessionRecord{
		ID:         "sess_1",
		AgentName:  "claude-code",
		WorkingDir: "/work",
		Title:      "First session",
	})
	require.NoError(t, err)

	rec, err := store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "claude-code", rec.AgentName)
	assert.Equal(t, "/work", rec.WorkingDir)
	assert.Equal(t, "First session", rec.Title)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), "sess_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"sess_a", "sess_b"} {
		require.NoError(t, store.CreateSession(ctx, SessionRecord{
			ID: id, AgentName: "gemini", WorkingDir: "/w",
		}))
	}
	// Touching a snapshot bumps updated_at, moving the session to the front.
	require.NoError(t, store.SaveSnapshot(ctx, session.State{SessionID: "sess_a"}))

	recs, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "sess_a", recs[0].ID)
}

func TestUpdateSessionTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, SessionRecord{
		ID: "sess_1", AgentName: "gemini", WorkingDir: "/w",
	}))
	require.NoError(t, store.UpdateSessionTitle(ctx, "sess_1", "Renamed"))

	rec, err := store.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", rec.Title)

	assert.ErrorIs(t, store.UpdateSessionTitle(ctx, "sess_nope", "x"), ErrSessionNotFound)
}

func TestDeleteSessionCascadesSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, SessionRecord{
		ID: "sess_1", AgentName: "gemini", WorkingDir: "/w",
	}))
	require.NoError(t, store.SaveSnapshot(ctx, session.State{SessionID: "sess_1"}))

	require.NoError(t, store.DeleteSession(ctx, "sess_1"))

	_, err := store.GetSession(ctx, "sess_1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.LoadSnapshot(ctx, "sess_1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, store.DeleteSession(ctx, "sess_1"), ErrSessionNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, SessionRecord{
		ID: "sess_1", AgentName: "claude-code", WorkingDir: "/w",
	}))

	state := session.State{
		SessionID: "sess_1",
		Messages: []session.MessageItem{
			{ID: "msg_1", Role: session.RoleUser, Text: "hello", Complete: true},
			{ID: "msg_2", Role: session.RoleAgent, Text: "hi there", Complete: true},
		},
		CurrentModeID: "code",
	}
	require.NoError(t, store.SaveSnapshot(ctx, state))

	loaded, err := store.LoadSnapshot(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, state.SessionID, loaded.SessionID)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hello", loaded.Messages[0].Text)
	assert.Equal(t, session.RoleAgent, loaded.Messages[1].Role)
	assert.Equal(t, "code", loaded.CurrentModeID)

	// A second save replaces the snapshot.
	state.Messages = append(state.Messages, session.MessageItem{
		ID: "msg_3", Role: session.RoleUser, Text: "more",
	})
	require.NoError(t, store.SaveSnapshot(ctx, state))

	loaded, err = store.LoadSnapshot(ctx, "sess_1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 3)
}

func TestLoadSnapshotMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadSnapshot(context.Background(), "sess_none")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
