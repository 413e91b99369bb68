//go:build linux

package nsentry

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
)

// reexecEnv marks that this process was spawned specifically to call
// EnterInitial as close to process start as possible, mirroring how
// cmd/nixbox's "__init__" subcommand generation invokes it: unshare(2) with
// CLONE_NEWUSER requires a single-threaded caller, which only a freshly
// exec'd process reliably is.
const reexecEnv = "NIXBOX_NSENTRY_TEST_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(reexecEnv) != "1" {
		os.Exit(m.Run())
		return
	}

	if err := EnterInitial(); err != nil {
		// Unprivileged user namespaces may be unavailable in this
		// environment (disabled via sysctl, restrictive seccomp, or the
		// process was not actually single-threaded at the call site);
		// report via a distinguishable exit code rather than crashing.
		os.Stderr.WriteString("EnterInitial failed: " + err.Error() + "\n")
		os.Exit(2)
	}

	uidMap, err := os.ReadFile("/proc/self/uid_map")
	if err != nil {
		os.Stderr.WriteString("reading uid_map: " + err.Error() + "\n")
		os.Exit(1)
	}

	os.Stdout.WriteString(strconv.Itoa(os.Getuid()) + "\n")
	os.Stdout.WriteString(strings.TrimSpace(string(uidMap)) + "\n")
	os.Exit(0)
}

func TestEnterInitialEstablishesIdentityMapping(t *testing.T) {
	wantUID := os.Getuid()

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnv+"=1")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if ok := exitCodeIs(err, &exitErr); ok && exitErr.ExitCode() == 2 {
			t.Skip("unprivileged user namespaces unavailable in this environment")
		}

		t.Fatalf("reexec failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected child output: %q", out)
	}

	if lines[0] != strconv.Itoa(wantUID) {
		t.Errorf("getuid() inside namespace: got %s, want %d", lines[0], wantUID)
	}

	wantMap := strconv.Itoa(wantUID) + "     " + strconv.Itoa(wantUID) + "          1"
	if !strings.Contains(strings.Join(strings.Fields(lines[1]), " "), strings.Join(strings.Fields(wantMap), " ")) {
		t.Errorf("uid_map: got %q, want fields %d %d 1", lines[1], wantUID, wantUID)
	}
}

func exitCodeIs(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}

	return ok
}
