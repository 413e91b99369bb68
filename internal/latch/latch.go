//go:build linux

// Package latch implements the cross-process "ready" signal used when one
// process forks, starts an asynchronous server in the child, and the parent
// must wait until the child is ready before continuing.
//
// The reference implementation backs this with a process-shared, robust
// pthread mutex and condition variable. Go has no pthread bindings without
// cgo, so this is re-expressed over the same underlying kernel primitive
// those pthread types are themselves built on: a futex word, waited on and
// woken via the raw futex(2) syscall through golang.org/x/sys/unix (already
// used elsewhere in this module for mount/namespace syscalls). A futex word
// is inherently "robust" in the sense required here — there is no lock to
// abandon, only a word to wait on and wake, so no side can die holding a
// lock the other needs. Wait has no timeout: if the sending process exits
// without calling Send, a waiter stays blocked.
//
// The backing memory is an anonymous memfd (unix.MemfdCreate, the same
// primitive the teacher repo uses for its own shared-memory needs) rather
// than a plain MAP_ANONYMOUS mapping: nixbox's double-fork is realised as
// two sequential self re-execs (see internal/service), and only a memfd's
// file descriptor — not a bare anonymous mapping — survives being passed to
// a freshly exec'd child via its inherited file descriptors.
package latch

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	stateUnset uint32 = 0
	stateSet   uint32 = 1

	headerSize = 8 // [0:4] futex word, [4:8] payload length
	maxPayload = 4096

	// futex(2) operations. golang.org/x/sys/unix exposes the syscall number
	// (SYS_FUTEX) but not these op codes, so they are named here directly
	// from linux/futex.h.
	futexWaitOp = 0
	futexWakeOp = 1
)

// Latch is a one-shot, process-shared signal carrying a JSON-encoded
// payload. The zero value is not usable; construct with New or FromFD.
type Latch struct {
	fd  int
	mem []byte
}

// New creates a latch backed by a fresh memfd, sized once and never
// resized. The returned latch owns fd; call Close when done with it, or
// hand the fd to a child process (see FD) and let the child call FromFD.
func New() (*Latch, error) {
	fd, err := unix.MemfdCreate("nixbox-latch", 0)
	if err != nil {
		return nil, fmt.Errorf("latch: memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, headerSize+maxPayload); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("latch: ftruncate: %w", err)
	}

	return mapFD(fd)
}

// FD returns the file descriptor backing the latch, for passing to a child
// process via exec.Cmd.ExtraFiles. The descriptor remains valid (and usable
// by this process) until Close.
func (l *Latch) FD() int {
	return l.fd
}

// FromFD attaches to a latch backed by a memfd inherited from a parent
// process — conventionally the next entry in exec.Cmd.ExtraFiles, which
// Go always makes available starting at fd 3.
func FromFD(fd int) (*Latch, error) {
	return mapFD(fd)
}

func mapFD(fd int) (*Latch, error) {
	mem, err := unix.Mmap(fd, 0, headerSize+maxPayload,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("latch: mmap: %w", err)
	}

	return &Latch{fd: fd, mem: mem}, nil
}

// Close unmaps the latch's backing memory and closes its file descriptor.
func (l *Latch) Close() error {
	if err := unix.Munmap(l.mem); err != nil {
		return fmt.Errorf("latch: munmap: %w", err)
	}

	return unix.Close(l.fd)
}

func (l *Latch) word() *uint32 {
	return (*uint32)(unsafe.Pointer(&l.mem[0]))
}

// Send sets the payload and wakes every waiter. Send must be called at most
// once per latch; a second call is a programming error (the payload must
// transition from unset to set exactly once).
func (l *Latch) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("latch: marshal payload: %w", err)
	}

	if len(data) > maxPayload {
		return fmt.Errorf("latch: payload of %d bytes exceeds %d byte limit", len(data), maxPayload)
	}

	copy(l.mem[headerSize:], data)
	binary.LittleEndian.PutUint32(l.mem[4:8], uint32(len(data)))

	atomic.StoreUint32(l.word(), stateSet)

	return futexWake(l.word())
}

// Wait blocks until Send has been called, then decodes the payload into out
// (which must be a pointer, as for json.Unmarshal). Spurious wakeups are
// retried transparently.
func (l *Latch) Wait(out any) error {
	for atomic.LoadUint32(l.word()) == stateUnset {
		if err := futexWait(l.word(), stateUnset); err != nil {
			return err
		}
	}

	n := binary.LittleEndian.Uint32(l.mem[4:8])
	if n > maxPayload {
		return fmt.Errorf("latch: corrupt payload length %d", n)
	}

	if err := json.Unmarshal(l.mem[headerSize:headerSize+n], out); err != nil {
		return fmt.Errorf("latch: unmarshal payload: %w", err)
	}

	return nil
}

func futexWait(addr *uint32, expected uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(expected),
		0, 0, 0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	default:
		return fmt.Errorf("latch: futex wait: %w", errno)
	}
}

func futexWake(addr *uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(1<<30), // wake all waiters
		0, 0, 0,
	)

	if errno != 0 {
		return fmt.Errorf("latch: futex wake: %w", errno)
	}

	return nil
}
