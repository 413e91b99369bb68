//go:build linux

package service

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pinkwah/nixbox/internal/latch"
	"github.com/pinkwah/nixbox/internal/nixcfg"
)

// retryAttempts/retryInterval bound the FromExisting retry EnsureRunning
// performs after the latch wakes it, covering the brief window between
// Init execing into the login shell and that shell finishing its two
// recording commands (see loginScript). The reference implementation polls
// blindly on this same schedule for its whole readiness wait; here it is
// only a tail-race guard since the latch already removed the bulk of the
// wait.
const (
	retryAttempts = readyAttempt
	retryInterval = 100 * time.Millisecond
)

// EnsureRunning returns the running service's record, launching one first
// if none is running yet. selfPath is the nixbox executable's own path
// (os.Args[0] resolved to an absolute path), reinvoked with the hidden
// "__fork1__" subcommand to become generation 1 of the double fork.
func EnsureRunning(selfPath string, cfg *nixcfg.Config) (*Record, error) {
	if rec, err := FromExisting(cfg.RuntimeDir); err == nil {
		return rec, nil
	}

	l, err := latch.New()
	if err != nil {
		return nil, fmt.Errorf("service: creating readiness latch: %w", err)
	}
	defer l.Close()

	cmd := exec.Command(selfPath, "__fork1__")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(l.FD()), "latch")}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("service: launching generation 1: %w", err)
	}

	// Generation 1 double-forks and exits almost immediately; it is not the
	// anchor process, so it is not waited on beyond reaping its own exit.
	go func() { _ = cmd.Wait() }()

	var ping readyPing
	if err := l.Wait(&ping); err != nil {
		return nil, fmt.Errorf("service: waiting for readiness: %w", err)
	}

	var lastErr error

	for i := 0; i < retryAttempts; i++ {
		rec, err := FromExisting(cfg.RuntimeDir)
		if err == nil {
			return rec, nil
		}

		lastErr = err
		time.Sleep(retryInterval)
	}

	return nil, fmt.Errorf("service: service did not publish its record in time: %w", lastErr)
}

// Fork1 is the generation-1 entrypoint ("__fork1__"): it exists only to
// double-fork away from the process EnsureRunning launched, so that
// generation 2 (Init) is reparented to the nearest subreaper and outlives
// its own parent, matching get_or_init_service's fork/fork/exit shape in
// the reference implementation.
func Fork1(selfPath string, readyFD int) error {
	cmd := exec.Command(selfPath, "__init__")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(readyFD), "latch")}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("service: launching generation 2: %w", err)
	}

	// Intentionally not waited on: generation 1 exits now, orphaning
	// generation 2 so the init subreaper adopts it instead of this process.
	return nil
}
