package service

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pinkwah/nixbox/internal/nixcfg"
)

// deadPID is a pid reserved for "process does not exist" in test fixtures:
// real pids never reach this range on a 32-bit-capped pid_max system, and
// even where pid_max is raised a freshly booted test sandbox is most
// unlikely to have recycled up to it.
const deadPID = 1 << 30

func writeRecordFixture(t *testing.T, runtimeDir, root string, pid int) {
	t.Helper()

	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(runtimeDir, pidfileName), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(root, filepath.Join(runtimeDir, chrootName)); err != nil {
		t.Fatal(err)
	}

	environ := "HOME=/home/alice\x00SHELL=/bin/bash\x00MALFORMED\x00"

	if err := os.WriteFile(filepath.Join(runtimeDir, environName), []byte(environ), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFromExistingReadsPublishedRecord(t *testing.T) {
	runtimeDir := t.TempDir()
	root := t.TempDir()

	writeRecordFixture(t, runtimeDir, root, os.Getpid())

	rec, err := FromExisting(runtimeDir)
	if err != nil {
		t.Fatalf("FromExisting: %v", err)
	}

	if rec.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", rec.PID, os.Getpid())
	}

	if rec.Root != root {
		t.Errorf("Root = %q, want %q", rec.Root, root)
	}

	want := []EnvVar{{Name: "HOME", Value: "/home/alice"}, {Name: "SHELL", Value: "/bin/bash"}}
	if diff := cmp.Diff(want, rec.Env); diff != "" {
		t.Errorf("Env mismatch (-want +got):\n%s", diff)
	}
}

func TestFromExistingMissingPidfile(t *testing.T) {
	runtimeDir := t.TempDir()

	if _, err := FromExisting(runtimeDir); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestFromExistingRejectsDeadPID(t *testing.T) {
	runtimeDir := t.TempDir()
	root := t.TempDir()

	writeRecordFixture(t, runtimeDir, root, deadPID)

	if _, err := FromExisting(runtimeDir); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestSliceRendersEnvVars(t *testing.T) {
	got := Slice([]EnvVar{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}})
	want := []string{"A=1", "B=2"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Slice mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureRunningFastPathSkipsLaunch(t *testing.T) {
	runtimeDir := t.TempDir()
	root := t.TempDir()

	writeRecordFixture(t, runtimeDir, root, os.Getpid())

	cfg := &nixcfg.Config{RuntimeDir: runtimeDir}

	// selfPath deliberately points at a binary that does not exist: if
	// EnsureRunning takes the fast path, it never gets invoked.
	rec, err := EnsureRunning(filepath.Join(t.TempDir(), "does-not-exist"), cfg)
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}

	if rec.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", rec.PID, os.Getpid())
	}
}
