package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// shellMetachars force the command through "sh -c" so pipes, redirections
// and substitutions behave as the agent expects.
var shellMetachars = []string{"|", "&", ";", ">", "<", "$(", "`"}

// systemBinDirs is the fixed list of directories tried for bare command
// names before falling back to a PATH lookup.
var systemBinDirs = []string{
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// buildCommand turns the agent's command string and args into an argv.
//
// Policy, in order: shell metacharacters route through "sh -c"; a spaced or
// quoted command with no explicit args is tokenized; otherwise the command
// is a bare executable name resolved against the system directories and
// PATH.
func buildCommand(command string, args []string) (execPath string, argv []string, err error) {
	if containsShellMetachar(command) {
		full := command
		if len(args) > 0 {
			full = command + " " + strings.Join(args, " ")
		}
		return "/bin/sh", []string{"-c", full}, nil
	}

	if len(args) == 0 && (strings.ContainsAny(command, " \t") || strings.ContainsAny(command, `"'`)) {
		tokens, err := tokenize(command)
		if err != nil {
			return "", nil, err
		}
		if len(tokens) == 0 {
			return "", nil, fmt.Errorf("%w: empty command", ErrCommandParse)
		}
		path, err := resolveExecutable(tokens[0])
		if err != nil {
			return "", nil, err
		}
		return path, tokens[1:], nil
	}

	path, err := resolveExecutable(command)
	if err != nil {
		return "", nil, err
	}
	return path, args, nil
}

func containsShellMetachar(command string) bool {
	for _, meta := range shellMetachars {
		if strings.Contains(command, meta) {
			return true
		}
	}
	return false
}

// tokenize splits a command line on whitespace with single/double quote
// grouping and backslash escaping. No glob expansion, no variable
// substitution. Unbalanced quotes are a parse failure.
func tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune // 0 when outside quotes

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\\' && i+1 < len(runes):
			// Backslash escapes the next character, inside or outside
			// quotes.
			i++
			cur.WriteRune(runes[i])
			inToken = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unbalanced quote", ErrCommandParse)
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// resolveExecutable finds the executable for a bare name or path.
func resolveExecutable(name string) (string, error) {
	if filepath.IsAbs(name) {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
	}

	for _, dir := range systemBinDirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
}
