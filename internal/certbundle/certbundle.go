// Package certbundle selects and copies the host's SSL trust bundle into the
// guest chroot's well-known certificate paths.
package certbundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RelativePaths are the three candidate/target locations, relative to
// "/etc" on the host and "etc" under the chroot, checked and populated in
// this order.
var RelativePaths = []string{
	"ssl/certs/ca-certificates.crt",
	"ssl/certs/ca-bundle.crt",
	"pki/tls/certs/ca-bundle.crt",
}

// Warnf is the shape of the sandbox builder's debug/warning sink; nil is
// permitted and treated as "discard".
type Warnf func(format string, args ...any)

// Install copies the first resolvable SSL bundle found under hostEtcDir (the
// host's "/etc", made an explicit parameter for testability) into all three
// guest target paths under chrootDir. If zero bundles are found, it warns
// and returns nil without creating anything. If two or more distinct
// bundles are found, it warns and the first in RelativePaths order wins.
func Install(chrootDir, hostEtcDir string, warnf Warnf) error {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	seen := make(map[string]struct{})

	var source string

	for _, rel := range RelativePaths {
		candidate := filepath.Join(hostEtcDir, rel)

		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}

		canon, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			continue
		}

		if _, dup := seen[canon]; dup {
			continue
		}

		seen[canon] = struct{}{}

		if source == "" {
			source = canon
		}
	}

	if len(seen) == 0 {
		warnf("no SSL certificate bundles found on host system")

		return nil
	}

	if len(seen) >= 2 {
		warnf("found %d SSL certificate bundle candidates, picking the first", len(seen))
	}

	for _, rel := range RelativePaths {
		target := filepath.Join(chrootDir, "etc", rel)

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("certbundle: mkdir %s: %w", filepath.Dir(target), err)
		}

		if err := copyFile(source, target); err != nil {
			return fmt.Errorf("certbundle: copy %s -> %s: %w", source, target, err)
		}
	}

	return nil
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
