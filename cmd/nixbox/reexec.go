package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/nixcfg"
	"github.com/pinkwah/nixbox/internal/nsentry"
	"github.com/pinkwah/nixbox/internal/service"
)

// latchFD is the file descriptor carrying the readiness latch across the
// self re-exec chain: Go always places the first entry of exec.Cmd.
// ExtraFiles at fd 3, and both __fork1__ and __init__ are always launched
// with exactly one extra file, the latch.
const latchFD = 3

// runFork1 is generation 1 of the double fork ("__fork1__"): it exists
// only to start generation 2 detached and exit, orphaning it so it is
// reparented to the nearest subreaper instead of staying a child of the
// process EnsureRunning launched.
func runFork1(env map[string]string, _ []string) int {
	selfPath, err := selfExecutable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __fork1__:", err)

		return 1
	}

	if err := service.Fork1(selfPath, latchFD); err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __fork1__:", err)

		return 1
	}

	return 0
}

// runInit is generation 2 of the double fork ("__init__"): the long-lived
// namespace anchor. It does not return on success.
func runInit(env map[string]string, _ []string) int {
	cfg, err := nixcfg.Load(env, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __init__:", err)

		return 1
	}

	var debug *debuglog.Logger
	if env["NIXBOX_DEBUG"] != "" {
		debug = debuglog.New(os.Stderr)
	}

	if err := service.Init(cfg, debug, latchFD); err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __init__:", err)

		return 1
	}

	return 0
}

// runNsenter re-enters an existing service's namespaces and execs the
// requested command in place. Invoked as: __nsenter__ <pid> <root> -- <cmd
// [args...]>. Its own process environment (set by the caller via
// exec.Cmd.Env before starting it) is already the assembled sandbox launch
// environment, so it is passed straight through to the final exec.
func runNsenter(_ map[string]string, args []string) int {
	if len(args) < 3 || args[2] != "--" {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__: usage: __nsenter__ <pid> <root> -- <cmd> [args...]")

		return 1
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__: invalid pid:", err)

		return 1
	}

	root := args[1]
	command := args[3:]

	if len(command) == 0 {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__: missing command")

		return 1
	}

	if err := nsentry.EnterExisting(pid, root); err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__:", err)

		return 1
	}

	resolved, err := exec.LookPath(command[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__:", err)

		return 1
	}

	if err := unix.Exec(resolved, command, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "nixbox: __nsenter__: exec:", err)

		return 1
	}

	return 0
}
