package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

func intPtr(i int) *int { return &i }

func TestReadTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

	s := NewService(logger.NewNop())
	res, err := s.ReadTextFile(context.Background(), protocol.ReadTextFileParams{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree", res.Content)
}

func TestReadTextFileWindowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("l1\nl2\nl3\nl4\nl5"), 0o644))
	s := NewService(logger.NewNop())

	cases := []struct {
		line, limit *int
		want        string
	}{
		{intPtr(2), nil, "l2\nl3\nl4\nl5"},
		{intPtr(2), intPtr(2), "l2\nl3"},
		{nil, intPtr(3), "l1\nl2\nl3"},
		{intPtr(99), nil, ""},
		{intPtr(5), intPtr(10), "l5"},
	}
	for _, tc := range cases {
		res, err := s.ReadTextFile(context.Background(), protocol.ReadTextFileParams{
			Path: path, Line: tc.line, Limit: tc.limit,
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Content)
	}
}

func TestReadTextFileRelativePath(t *testing.T) {
	s := NewService(logger.NewNop())
	_, err := s.ReadTextFile(context.Background(), protocol.ReadTextFileParams{Path: "relative/a.txt"})
	assert.ErrorIs(t, err, ErrRelativePath)
}

func TestReadTextFileMissing(t *testing.T) {
	s := NewService(logger.NewNop())
	_, err := s.ReadTextFile(context.Background(), protocol.ReadTextFileParams{
		Path: filepath.Join(t.TempDir(), "missing.txt"),
	})
	assert.Error(t, err)
}

func TestWriteTextFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.txt")

	s := NewService(logger.NewNop())
	_, err := s.WriteTextFile(context.Background(), protocol.WriteTextFileParams{
		Path: path, Content: "written",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))
}

func TestWriteTextFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	s := NewService(logger.NewNop())
	_, err := s.WriteTextFile(context.Background(), protocol.WriteTextFileParams{
		Path: path, Content: "new",
	})
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(data))
}

func TestWriteTextFileRelativePath(t *testing.T) {
	s := NewService(logger.NewNop())
	_, err := s.WriteTextFile(context.Background(), protocol.WriteTextFileParams{
		Path: "relative/out.txt", Content: "x",
	})
	assert.ErrorIs(t, err, ErrRelativePath)
}
