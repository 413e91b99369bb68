//go:build linux

package service

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/latch"
	"github.com/pinkwah/nixbox/internal/nixcfg"
	"github.com/pinkwah/nixbox/internal/nsentry"
	"github.com/pinkwah/nixbox/internal/sandbox"
)

// loginScript is run by the anchor shell once it has exec'd into the
// sandbox. It records its own PID and captured environment into the files
// EnsureRunning/FromExisting later read, then blocks forever: this process,
// not the Go process that exec'd it, is the namespace anchor later
// invocations re-enter via setns.
const loginScript = "echo $$ > $1\n/usr/bin/env -0 > $2\nwhile :; do sleep 3600; done\n"

const hostname = "nixbox"

// readyPing is the small payload sent over the latch once the sandbox has
// been built and chrooted into, immediately before execing into the login
// shell. It deliberately does not carry the full Record: by the time the
// shell has exec'd, pidfileName/environName may not exist yet (the shell
// writes them itself, as its first two commands), so EnsureRunning still
// falls back to a bounded FromExisting retry after the latch wakes it.
type readyPing struct {
	PID int `json:"pid"`
}

// Init is the generation-2 entrypoint: it owns the namespaces the whole
// service lives in. It never returns on success, since its last act is to
// exec into the anchor shell, replacing its own process image while
// keeping its PID.
//
// readyFD, when non-negative, is an inherited latch file descriptor (see
// internal/latch) that Init signals on just before the final exec, waking
// EnsureRunning's caller without it having to poll from the very start.
func Init(cfg *nixcfg.Config, debug *debuglog.Logger, readyFD int) error {
	if err := nsentry.EnterInitial(); err != nil {
		return fmt.Errorf("service: entering initial namespaces: %w", err)
	}

	if err := os.MkdirAll(cfg.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("service: creating runtime dir: %w", err)
	}

	chrootLink := filepath.Join(cfg.RuntimeDir, chrootName)
	if err := forceSymlink(cfg.ChrootDir, chrootLink); err != nil {
		return fmt.Errorf("service: linking chroot: %w", err)
	}

	if err := sandbox.Build(sandbox.Config{
		ChrootDir: cfg.ChrootDir,
		NixHome:   cfg.NixHome,
		Home:      cfg.Home,
		Debug:     debug,
	}); err != nil {
		return fmt.Errorf("service: building sandbox: %w", err)
	}

	if err := nsentry.Chroot(cfg.ChrootDir); err != nil {
		return fmt.Errorf("service: entering chroot: %w", err)
	}

	if err := unix.Sethostname([]byte(hostname)); err != nil {
		return fmt.Errorf("service: sethostname: %w", err)
	}

	if readyFD >= 0 {
		if err := signalReady(readyFD); err != nil {
			debug.Warnf("sending readiness ping: %v", err)
		}
	}

	shell := filepath.Join("/run/current-system", "sw", "bin", "bash")
	pidfile := filepath.Join(cfg.RuntimeDir, pidfileName)
	environFile := filepath.Join(cfg.RuntimeDir, environName)

	argv := []string{shell, "--login", "-c", loginScript, "--", pidfile, environFile}

	return unix.Exec(shell, argv, os.Environ())
}

func signalReady(fd int) error {
	l, err := latch.FromFD(fd)
	if err != nil {
		return err
	}
	defer l.Close()

	return l.Send(readyPing{PID: os.Getpid()})
}

// forceSymlink creates target -> source, replacing any existing file,
// directory, or symlink at target first. Service.init in the reference
// implementation does the same (a stale chroot symlink from a prior,
// now-dead service must not block re-initialisation).
func forceSymlink(source, target string) error {
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("removing stale %s: %w", target, err)
	}

	return os.Symlink(source, target)
}
