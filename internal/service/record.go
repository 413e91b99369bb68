// Package service implements the long-lived sandbox anchor process: a
// double-forked init that builds the sandbox once, publishes its identity
// under the runtime directory, and blocks so that later invocations can
// re-enter its namespaces instead of building a fresh sandbox each time.
package service

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrUnavailable is returned when no service is currently running (no
// pidfile, or its files are incomplete).
var ErrUnavailable = errors.New("service: no running service found")

const (
	pidfileName  = "server.pid"
	chrootName   = "chroot"
	environName  = "environ"
	readyAttempt = 10
)

// Record identifies a running service: its anchor PID, the chroot root its
// namespaces were built against, and the environment its login shell
// captured.
type Record struct {
	PID  int
	Root string
	Env  []EnvVar
}

// EnvVar is a single name/value pair, order-preserving (unlike a map) to
// match the environ file's own ordering.
type EnvVar struct {
	Name  string
	Value string
}

// FromExisting reads a service record from runtimeDir, the same directory
// Init publishes into. A pidfile naming a process that is no longer alive
// is treated the same as no record at all (ErrUnavailable), so a stale
// record left behind by a crashed or reaped anchor never gets handed back
// to a caller: EnsureRunning relaunches whenever FromExisting fails for any
// reason, staleness included.
func FromExisting(runtimeDir string) (*Record, error) {
	pid, err := readPID(filepath.Join(runtimeDir, pidfileName))
	if err != nil {
		return nil, err
	}

	if !processAlive(pid) {
		return nil, fmt.Errorf("%w: pid %d no longer running", ErrUnavailable, pid)
	}

	root, err := os.Readlink(filepath.Join(runtimeDir, chrootName))
	if err != nil {
		return nil, fmt.Errorf("%w: reading chroot link: %v", ErrUnavailable, err)
	}

	env, err := readEnviron(filepath.Join(runtimeDir, environName))
	if err != nil {
		return nil, err
	}

	return &Record{PID: pid, Root: root, Env: env}, nil
}

// processAlive reports whether pid currently names a live process, using
// signal 0 (unix.Kill's documented no-op probe form): delivery is skipped
// but the existence/permission checks still run, so ESRCH distinguishes a
// dead pid from one this process merely lacks permission to signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)

	return err == nil || err == unix.EPERM
}

func readPID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading pidfile: %v", ErrUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("%w: empty pidfile", ErrUnavailable)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, fmt.Errorf("%w: malformed pidfile: %v", ErrUnavailable, err)
	}

	return pid, nil
}

// readEnviron parses a NUL-separated sequence of "NAME=VALUE" entries, the
// format `env -0` produces and the format the login script (see init.go)
// writes to the environ file.
func readEnviron(path string) ([]EnvVar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading environ: %v", ErrUnavailable, err)
	}

	var env []EnvVar

	for _, entry := range strings.Split(string(data), "\x00") {
		if entry == "" {
			continue
		}

		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}

		env = append(env, EnvVar{Name: name, Value: value})
	}

	return env, nil
}

// Slice renders env back into "NAME=VALUE" form, suitable for an
// exec.Cmd.Env or syscall.Exec envp argument.
func Slice(env []EnvVar) []string {
	out := make([]string, len(env))
	for i, v := range env {
		out[i] = v.Name + "=" + v.Value
	}

	return out
}
