package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsOnly(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	p, ok := r.Get("claude-code")
	require.True(t, ok)
	assert.Equal(t, "claude-code-acp", p.Command)

	p, ok = r.Get("gemini")
	require.True(t, ok)
	assert.Contains(t, p.Args, "--experimental-acp")
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "agents.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.Names())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - name: claude-code
    command: /opt/agents/claude-acp
    args: ["--verbose"]
  - name: custom
    description: In-house agent
    command: /opt/agents/custom
    env:
      API_URL: http://localhost:9000
`), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	// A file entry replaces the default of the same name.
	p, ok := r.Get("claude-code")
	require.True(t, ok)
	assert.Equal(t, "/opt/agents/claude-acp", p.Command)
	assert.Equal(t, []string{"--verbose"}, p.Args)

	p, ok = r.Get("custom")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9000", p.Env["API_URL"])

	// Untouched defaults survive.
	_, ok = r.Get("gemini")
	assert.True(t, ok)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsIncompleteProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - name: broken
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	names := r.Names()
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
