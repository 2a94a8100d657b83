package process

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// interpreterDirs is the fixed, ordered list of directories searched for a
// script's interpreter when the kernel cannot be relied on to honor the
// shebang (foreign scripts, filesystems mounted noexec).
var interpreterDirs = []string{
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/usr/bin",
	"/bin",
}

// resolveLaunch resolves path to the real executable and decides the actual
// argv. When the target is a script with an env shebang
// ("#!/usr/bin/env <interp>") and the interpreter is found in the candidate
// directories, the invocation becomes "interpreter path args...".
func resolveLaunch(path string, args []string) (execPath string, execArgs []string, err error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// A dangling symlink or relative launch path; let exec surface
		// the real failure.
		resolved = path
	}

	interp := shebangInterpreter(resolved)
	if interp == "" {
		return resolved, args, nil
	}

	interpPath := findInterpreter(interp)
	if interpPath == "" {
		return resolved, args, nil
	}

	return interpPath, append([]string{resolved}, args...), nil
}

// shebangInterpreter returns the interpreter name from an env-style shebang
// line, or "" when the file is not such a script.
func shebangInterpreter(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 256)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, "#!") {
		return ""
	}
	fields := strings.Fields(line[2:])
	if len(fields) < 2 {
		return ""
	}
	if filepath.Base(fields[0]) != "env" {
		return ""
	}
	// "#!/usr/bin/env -S interp" is used by some scripts.
	interp := fields[1]
	if interp == "-S" && len(fields) > 2 {
		interp = fields[2]
	}
	return interp
}

// findInterpreter looks for the named interpreter in the candidate
// directories, in order.
func findInterpreter(name string) string {
	for _, dir := range interpreterDirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
