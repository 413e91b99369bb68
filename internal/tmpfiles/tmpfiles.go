// Package tmpfiles parses the subset of systemd-tmpfiles.d directive syntax
// the sandbox builder honours: symlink-creation ("L+") lines only.
package tmpfiles

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Directive is a single "L+ <target> - - - - <source>" line.
type Directive struct {
	// Target is the path relative to the chroot root, without its leading
	// slash (e.g. "etc/resolv.conf").
	Target string
	// Source is the symlink target text, verbatim.
	Source string
}

// Parse reads tmpfiles.d directives from r, returning only recognised "L+"
// entries. A line is recognised iff it has exactly seven whitespace-separated
// fields of the form "L+ <target> - - - - <source>". Any other line —
// comments, blank lines, other directive types, malformed field counts — is
// ignored. A target lacking a leading '/' is skipped silently.
func Parse(r io.Reader) ([]Directive, error) {
	var directives []Directive

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 7 {
			continue
		}

		if fields[0] != "L+" {
			continue
		}

		target := fields[1]
		if !strings.HasPrefix(target, "/") {
			continue
		}

		if fields[2] != "-" || fields[3] != "-" || fields[4] != "-" || fields[5] != "-" {
			continue
		}

		directives = append(directives, Directive{
			Target: strings.TrimPrefix(target, "/"),
			Source: fields[6],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tmpfiles: scan: %w", err)
	}

	return directives, nil
}
