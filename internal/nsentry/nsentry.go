//go:build linux

// Package nsentry creates and re-enters the user/mount/UTS namespaces the
// sandbox lives in. Both entry modes must run in a just-exec'd,
// single-threaded process: unshare(CLONE_NEWUSER) and setns(fd,
// CLONE_NEWUSER) are each disallowed from a multithreaded caller, which a
// long-running Go process generally is.
package nsentry

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// UnshareError, SetnsError, ChrootError wrap the underlying OS error (the
// errno returned by golang.org/x/sys/unix, or the error from opening a
// namespace file) with the syscall name and any path involved, per the error-kind taxonomy: each is distinguishable with
// errors.As for callers that want to react differently to, say, a chroot
// failure than a setns failure.
type UnshareError struct{ Err error }

func (e *UnshareError) Error() string { return fmt.Sprintf("nsentry: unshare: %v", e.Err) }
func (e *UnshareError) Unwrap() error { return e.Err }

type SetnsError struct {
	NS  string
	Err error
}

func (e *SetnsError) Error() string { return fmt.Sprintf("nsentry: setns(%s): %v", e.NS, e.Err) }
func (e *SetnsError) Unwrap() error { return e.Err }

type ChrootError struct {
	Path string
	Err  error
}

func (e *ChrootError) Error() string {
	return fmt.Sprintf("nsentry: chroot(%s): %v", e.Path, e.Err)
}
func (e *ChrootError) Unwrap() error { return e.Err }

// EnterInitial establishes a fresh user+mount+UTS namespace with an
// unprivileged single-identity UID/GID mapping. It must be called before
// any other thread exists in the process (i.e. as close to process start as
// possible), and the caller must not spawn goroutines that might be
// scheduled onto a different OS thread before this returns.
func EnterInitial() error {
	runtime.LockOSThread()

	uid, gid := os.Getuid(), os.Getgid()

	if err := unix.Unshare(unix.CLONE_NEWUSER | unix.CLONE_NEWNS | unix.CLONE_NEWUTS); err != nil {
		return &UnshareError{Err: err}
	}

	// setgroups must be denied before gid_map can be written without
	// CAP_SETGID in the parent user namespace.
	if err := os.WriteFile("/proc/self/setgroups", []byte("deny"), 0o644); err != nil {
		return fmt.Errorf("nsentry: write /proc/self/setgroups: %w", err)
	}

	if err := os.WriteFile("/proc/self/uid_map", []byte(fmt.Sprintf("%d %d 1", uid, uid)), 0o644); err != nil {
		return fmt.Errorf("nsentry: write /proc/self/uid_map: %w", err)
	}

	if err := os.WriteFile("/proc/self/gid_map", []byte(fmt.Sprintf("%d %d 1", gid, gid)), 0o644); err != nil {
		return fmt.Errorf("nsentry: write /proc/self/gid_map: %w", err)
	}

	return nil
}

// Chroot performs chroot(dir) + chdir("/"), then best-effort restores the
// working directory the caller had before the call (non-fatal if it is no
// longer resolvable from inside the new root).
func Chroot(dir string) error {
	cwd, cwdErr := os.Getwd()

	if err := unix.Chroot(dir); err != nil {
		return &ChrootError{Path: dir, Err: err}
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("nsentry: chdir /: %w", err)
	}

	if cwdErr == nil && cwd != "" {
		_ = os.Chdir(cwd)
	}

	return nil
}

// EnterExisting joins the user, mount, and UTS namespaces of the process
// identified by pid, in that order (user first, since joining mnt/uts
// requires permission granted by having already joined the owning user
// namespace), then chroots into root.
func EnterExisting(pid int, root string) error {
	runtime.LockOSThread()

	for _, ns := range []string{"user", "mnt", "uts"} {
		if err := joinNamespace(pid, ns); err != nil {
			return err
		}
	}

	return Chroot(root)
}

func joinNamespace(pid int, ns string) error {
	path := filepath.Join("/proc", fmt.Sprint(pid), "ns", ns)

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return &SetnsError{NS: ns, Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer unix.Close(fd)

	if err := unix.Setns(fd, 0); err != nil {
		return &SetnsError{NS: ns, Err: err}
	}

	return nil
}
