package process

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/agenthost/agenthost/internal/common/logger"
)

func collectFrames(t *testing.T) (*Manager, chan json.RawMessage, chan int) {
	t.Helper()
	frames := make(chan json.RawMessage, 16)
	exits := make(chan int, 1)
	m := NewManager(logger.NewNop(),
		WithMessageHandler(func(raw json.RawMessage) { frames <- raw }),
		WithExitHandler(func(code int) { exits <- code }),
	)
	return m, frames, exits
}

func TestManagerLaunchAndFrames(t *testing.T) {
	m, frames, exits := collectFrames(t)

	err := m.Launch("/bin/sh", []string{"-c", `printf '{"a":1}\n{"b":2}\n'`}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	for _, want := range []string{`{"a":1}`, `{"b":2}`} {
		select {
		case frame := <-frames:
			if string(frame) != want {
				t.Errorf("frame = %s, want %s", frame, want)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for frame %s", want)
		}
	}

	select {
	case code := <-exits:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for exit")
	}
	if m.Running() {
		t.Error("manager still running after exit")
	}
}

func TestManagerFlushesUnterminatedFinalFrame(t *testing.T) {
	m, frames, exits := collectFrames(t)

	// No trailing newline and no boundary-closing brace until exit.
	err := m.Launch("/bin/sh", []string{"-c", `printf '"trailing"'`}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	<-exits
	select {
	case frame := <-frames:
		if string(frame) != `"trailing"` {
			t.Errorf("frame = %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("final frame was not flushed")
	}
}

func TestManagerDoubleLaunch(t *testing.T) {
	m, _, exits := collectFrames(t)

	if err := m.Launch("/bin/sh", []string{"-c", "sleep 5"}, t.TempDir(), nil); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := m.Launch("/bin/sh", []string{"-c", "true"}, t.TempDir(), nil); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	m.Terminate()
	select {
	case <-exits:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for exit after Terminate")
	}
}

func TestManagerWriteMessageNotRunning(t *testing.T) {
	m := NewManager(logger.NewNop())
	if err := m.WriteMessage(map[string]string{"x": "y"}); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestManagerWriteMessageRoundTrip(t *testing.T) {
	m, frames, exits := collectFrames(t)

	// cat echoes stdin back, so a written envelope comes back framed.
	if err := m.Launch("/bin/cat", nil, t.TempDir(), nil); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := m.WriteMessage(map[string]int{"id": 7}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case frame := <-frames:
		var decoded map[string]int
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if decoded["id"] != 7 {
			t.Errorf("decoded = %v", decoded)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	m.Terminate()
	<-exits
}

func TestManagerLaunchExtraEnv(t *testing.T) {
	m, frames, exits := collectFrames(t)

	err := m.Launch("/bin/sh", []string{"-c", `printf '"%s"' "$AGENT_MARKER"`},
		t.TempDir(), map[string]string{"AGENT_MARKER": "from-profile"})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	<-exits
	select {
	case frame := <-frames:
		if string(frame) != `"from-profile"` {
			t.Errorf("frame = %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestManagerTerminateIdempotent(t *testing.T) {
	m := NewManager(logger.NewNop())
	// No process running; Terminate must be a no-op.
	m.Terminate()
}
