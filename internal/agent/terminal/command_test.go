package terminal

import (
	"errors"
	"testing"
)

func TestBuildCommandShellMetachars(t *testing.T) {
	cases := []string{
		"ls | grep foo",
		"echo hi > /tmp/out",
		"cat < /tmp/in",
		"true && false",
		"sleep 1; echo done",
		"echo $(date)",
		"echo `date`",
	}
	for _, command := range cases {
		execPath, argv, err := buildCommand(command, nil)
		if err != nil {
			t.Fatalf("%q: buildCommand failed: %v", command, err)
		}
		if execPath != "/bin/sh" {
			t.Errorf("%q: execPath = %q, want /bin/sh", command, execPath)
		}
		if len(argv) != 2 || argv[0] != "-c" || argv[1] != command {
			t.Errorf("%q: argv = %v", command, argv)
		}
	}
}

func TestBuildCommandShellMetacharsWithArgs(t *testing.T) {
	execPath, argv, err := buildCommand("grep foo |", []string{"wc", "-l"})
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if execPath != "/bin/sh" {
		t.Errorf("execPath = %q", execPath)
	}
	if argv[1] != "grep foo | wc -l" {
		t.Errorf("argv[1] = %q", argv[1])
	}
}

func TestBuildCommandSpacedNoArgs(t *testing.T) {
	execPath, argv, err := buildCommand("echo hello world", nil)
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if execPath == "" || len(argv) != 2 {
		t.Fatalf("execPath = %q argv = %v", execPath, argv)
	}
	if argv[0] != "hello" || argv[1] != "world" {
		t.Errorf("argv = %v", argv)
	}
}

func TestBuildCommandBareWithArgs(t *testing.T) {
	execPath, argv, err := buildCommand("echo", []string{"one", "two"})
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if execPath == "" {
		t.Error("empty execPath")
	}
	if len(argv) != 2 || argv[0] != "one" {
		t.Errorf("argv = %v", argv)
	}
}

func TestBuildCommandExecutableNotFound(t *testing.T) {
	_, _, err := buildCommand("definitely-not-a-real-binary-name", nil)
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("expected ErrExecutableNotFound, got %v", err)
	}
}

func TestBuildCommandAbsolutePathMissing(t *testing.T) {
	_, _, err := buildCommand("/nonexistent/path/to/tool", nil)
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("expected ErrExecutableNotFound, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{`echo hello`, []string{"echo", "hello"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`echo "nested 'quotes'"`, []string{"echo", "nested 'quotes'"}},
		{`echo escaped\ space`, []string{"echo", "escaped space"}},
		{`echo "escaped \" quote"`, []string{"echo", `escaped " quote`}},
		{`cmd   multiple    spaces`, []string{"cmd", "multiple", "spaces"}},
		{`cmd ""`, []string{"cmd", ""}},
	}
	for _, tc := range cases {
		tokens, err := tokenize(tc.input)
		if err != nil {
			t.Fatalf("%q: tokenize failed: %v", tc.input, err)
		}
		if len(tokens) != len(tc.want) {
			t.Fatalf("%q: tokens = %#v, want %#v", tc.input, tokens, tc.want)
		}
		for i := range tc.want {
			if tokens[i] != tc.want[i] {
				t.Errorf("%q: token %d = %q, want %q", tc.input, i, tokens[i], tc.want[i])
			}
		}
	}
}

func TestTokenizeUnbalancedQuote(t *testing.T) {
	for _, input := range []string{`echo "unclosed`, `echo 'unclosed`} {
		_, err := tokenize(input)
		if !errors.Is(err, ErrCommandParse) {
			t.Errorf("%q: expected ErrCommandParse, got %v", input, err)
		}
	}
}
