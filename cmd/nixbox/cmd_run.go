package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/launchenv"
	"github.com/pinkwah/nixbox/internal/nixcfg"
	"github.com/pinkwah/nixbox/internal/service"
	"github.com/pinkwah/nixbox/internal/supervisor"
)

// cleanupTimeout bounds how long a SIGTERM'd child is given to exit before
// this process escalates to SIGKILL, mirroring the teacher's two-stage
// shutdown window.
const cleanupTimeout = 10 * time.Second

func cmdRun(selfPath string, cfg *nixcfg.Config, debug *debuglog.Logger, stdin io.Reader, stdout, stderr io.Writer, hostEnv map[string]string, args []string, sigCh <-chan os.Signal) int {
	if len(args) == 0 {
		fprintError(stderr, fmt.Errorf("run requires a command"))

		return 1
	}

	return launch(selfPath, cfg, debug, stdin, stdout, stderr, hostEnv, args, sigCh)
}

func cmdEnter(selfPath string, cfg *nixcfg.Config, debug *debuglog.Logger, stdin io.Reader, stdout, stderr io.Writer, hostEnv map[string]string, sigCh <-chan os.Signal) int {
	shell := cfg.ResolveShell(hostEnv)

	return launch(selfPath, cfg, debug, stdin, stdout, stderr, hostEnv, []string{shell, "--login"}, sigCh)
}

// launch ensures the service is running, re-enters its namespaces in a
// freshly exec'd child (internal/nsentry requires a single-threaded
// caller, which this long-running Go process is not), and supervises that
// child to completion, forwarding signals both ways.
func launch(selfPath string, cfg *nixcfg.Config, debug *debuglog.Logger, stdin io.Reader, stdout, stderr io.Writer, hostEnv map[string]string, command []string, sigCh <-chan os.Signal) int {
	debug.Section("service")

	rec, err := service.EnsureRunning(selfPath, cfg)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	debug.Logf("entering namespaces of pid %d, root %s", rec.PID, rec.Root)

	nsenterArgs := append([]string{"__nsenter__", strconv.Itoa(rec.PID), rec.Root, "--"}, command...)

	cmd := exec.Command(selfPath, nsenterArgs...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = launchenv.Slice(buildLaunchEnv(cfg, selfPath, hostEnv, nil))

	if err := cmd.Start(); err != nil {
		fprintError(stderr, fmt.Errorf("starting sandboxed command: %w", err))

		return 1
	}

	done := make(chan int, 1)

	go func() {
		done <- supervisor.Supervise(cmd.Process.Pid, nil, debug.Warnf)
	}()

	if sigCh == nil {
		return <-done
	}

	select {
	case code := <-done:
		return code
	case <-sigCh:
		_ = unix.Kill(cmd.Process.Pid, unix.SIGTERM)
	}

	select {
	case code := <-done:
		return code
	case <-time.After(cleanupTimeout):
		_ = unix.Kill(cmd.Process.Pid, unix.SIGKILL)

		return <-done
	case <-sigCh:
		_ = unix.Kill(cmd.Process.Pid, unix.SIGKILL)

		return <-done
	}
}

