//go:build linux

// Package statusview renders the "is the service running, and what's in it"
// report for the status subcommand: the set of live processes sharing the
// service's mount namespace, with their command lines.
package statusview

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Process is one row of the status report: a pid sharing the service's
// mount namespace, and its command line as read from /proc/<pid>/cmdline.
type Process struct {
	PID     int
	Cmdline string
}

// Collect finds every process under /proc whose mount namespace matches
// pid's, by comparing /proc/<p>/ns/mnt symlink targets — the same
// comparison the reference status command performs, since Linux gives no
// other portable way to enumerate a namespace's members. Processes that
// exit mid-scan, or that this user cannot read, are silently skipped: that
// matches a process racing to exit, not an error worth surfacing.
func Collect(pid int) ([]Process, error) {
	anchor, err := os.Readlink(mntNsPath(pid))
	if err != nil {
		return nil, fmt.Errorf("statusview: reading namespace of pid %d: %w", pid, err)
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("statusview: reading /proc: %w", err)
	}

	var procs []Process

	for _, entry := range entries {
		p, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		ns, err := os.Readlink(mntNsPath(p))
		if err != nil || ns != anchor {
			continue
		}

		cmdline, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil {
			continue
		}

		procs = append(procs, Process{
			PID:     p,
			Cmdline: strings.TrimRight(strings.ReplaceAll(string(cmdline), "\x00", " "), " "),
		})
	}

	return procs, nil
}

func mntNsPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid), "ns", "mnt")
}

// Print renders the status report to w: a "not running" line when pid is 0
// or its namespace cannot be read, else a PID header followed by a
// tab-separated PID/COMMAND table, matching the reference CLI's plain
// println-based table with no box-drawing or column alignment beyond a
// double tab between the columns. The returned bool reports whether the service was found
// running, for callers that derive an exit code from it.
func Print(w io.Writer, pid int) (bool, error) {
	if pid == 0 {
		fmt.Fprintln(w, "nixbox not running")
		return false, nil
	}

	procs, err := Collect(pid)
	if err != nil {
		fmt.Fprintln(w, "nixbox not running")
		return false, nil
	}

	fmt.Fprintf(w, "nixbox running (PID: %d)\n", pid)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PID\t\tCOMMAND")

	for _, p := range procs {
		fmt.Fprintf(w, "%d\t\t%s\n", p.PID, p.Cmdline)
	}

	return true, nil
}
