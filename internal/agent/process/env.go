package process

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	loginEnvOnce sync.Once
	loginEnv     []string
)

// InteractiveEnv returns the user's full interactive-shell environment.
// When the host is launched from a GUI context the inherited environment
// misses everything the user's shell config exports (PATH entries for
// version managers in particular), so the login shell is asked once for its
// environment and the result is cached. Falls back to the plain process
// environment on any failure.
func InteractiveEnv() []string {
	loginEnvOnce.Do(func() {
		loginEnv = os.Environ()

		shell := os.Getenv("SHELL")
		if shell == "" {
			return
		}

		cmd := exec.Command(shell, "-l", "-i", "-c", "env")
		out, err := runWithTimeout(cmd, 5*time.Second)
		if err != nil {
			return
		}

		var merged []string
		seen := make(map[string]bool)
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.Contains(line, "=") {
				continue
			}
			key := line[:strings.Index(line, "=")]
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, line)
		}
		// Keep inherited vars the shell did not report.
		for _, line := range os.Environ() {
			key := line[:strings.Index(line, "=")]
			if !seen[key] {
				merged = append(merged, line)
			}
		}
		if len(merged) > 0 {
			loginEnv = merged
		}
	})

	out := make([]string, len(loginEnv))
	copy(out, loginEnv)
	return out
}

// runWithTimeout runs cmd and returns its stdout, killing it if it exceeds
// the deadline. Interactive shells with misbehaving rc files must not hang
// agent launch.
func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) ([]byte, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := cmd.Output()
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(timeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		r := <-done
		if r.err == nil {
			return r.out, nil
		}
		return nil, r.err
	}
}

// MergeEnv overlays overrides onto base, replacing duplicates by key.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, line := range base {
		idx := strings.Index(line, "=")
		if idx > 0 {
			if _, ok := overrides[line[:idx]]; ok {
				continue
			}
		}
		out = append(out, line)
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// envValue finds a key in an environment list.
func envValue(env []string, key string) string {
	prefix := key + "="
	for _, line := range env {
		if strings.HasPrefix(line, prefix) {
			return line[len(prefix):]
		}
	}
	return ""
}
