package main

import (
	"bytes"
	"strings"
	"testing"
)

func testEnv(t *testing.T) map[string]string {
	t.Helper()

	home := t.TempDir()
	runtimeDir := t.TempDir()

	return map[string]string{
		"HOME":            home,
		"XDG_RUNTIME_DIR": runtimeDir,
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var stdout bytes.Buffer

	code := Run(nil, &stdout, &bytes.Buffer{}, []string{"nixbox"}, testEnv(t), nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("expected usage text, got %q", stdout.String())
	}
}

func TestRunVersionFlag(t *testing.T) {
	var stdout bytes.Buffer

	code := Run(nil, &stdout, &bytes.Buffer{}, []string{"nixbox", "--version"}, testEnv(t), nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !strings.Contains(stdout.String(), "nixbox") {
		t.Errorf("expected version text, got %q", stdout.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer

	code := Run(nil, &bytes.Buffer{}, &stderr, []string{"nixbox", "bogus"}, testEnv(t), nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("expected unknown-command error, got %q", stderr.String())
	}
}

func TestRunStatusWhenNotRunning(t *testing.T) {
	var stdout bytes.Buffer

	code := Run(nil, &stdout, &bytes.Buffer{}, []string{"nixbox", "status"}, testEnv(t), nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	if !strings.Contains(stdout.String(), "not running") {
		t.Errorf("expected not-running message, got %q", stdout.String())
	}
}

func TestRunInstallPrintsStub(t *testing.T) {
	var stdout bytes.Buffer

	code := Run(nil, &stdout, &bytes.Buffer{}, []string{"nixbox", "install"}, testEnv(t), nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !strings.Contains(stdout.String(), "install") {
		t.Errorf("expected install stub text, got %q", stdout.String())
	}
}

func TestRunRequiresCommandArgument(t *testing.T) {
	var stderr bytes.Buffer

	code := Run(nil, &bytes.Buffer{}, &stderr, []string{"nixbox", "run"}, testEnv(t), nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	if !strings.Contains(stderr.String(), "requires a command") {
		t.Errorf("expected missing-command error, got %q", stderr.String())
	}
}
