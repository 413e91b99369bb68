//go:build linux

// Package supervisor implements the waitpid loop that translates a
// supervised child's stopped/signalled/exited states into the supervisor's
// own behaviour and final exit code.
package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// Supervise waits on pid with WUNTRACED in a loop:
//
//   - child stopped with SIGSTOP: propagate (SIGSTOP to self, SIGCONT to
//     child), continue.
//   - child killed by another signal S: send S to our own pid, stop.
//   - child exited normally with code C: remember C, stop.
//   - any other status: log via warnf, stop with defaultFailExit.
//
// On loop exit, cleanup is invoked (regardless of how the loop ended) before
// Supervise returns the remembered exit code.
func Supervise(pid int, cleanup func(), warnf func(format string, args ...any)) int {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	const defaultFailExit = 1

	exitCode := defaultFailExit

	for {
		var status unix.WaitStatus

		_, err := unix.Wait4(pid, &status, unix.WUNTRACED, nil)
		if err != nil {
			warnf("supervisor: waitpid: %v", err)

			break
		}

		switch {
		case status.Stopped():
			if status.StopSignal() == unix.SIGSTOP {
				_ = unix.Kill(os.Getpid(), unix.SIGSTOP)
				_ = unix.Kill(pid, unix.SIGCONT)

				continue
			}

			warnf("supervisor: unexpected stop signal %v", status.StopSignal())

		case status.Signaled():
			sig := status.Signal()
			if err := unix.Kill(os.Getpid(), sig); err != nil {
				warnf("supervisor: forwarding signal %v to self: %v", sig, err)
			}

		case status.Exited():
			exitCode = status.ExitStatus()

		default:
			warnf("supervisor: unexpected wait status %v", status)
		}

		break
	}

	if cleanup != nil {
		cleanup()
	}

	return exitCode
}
