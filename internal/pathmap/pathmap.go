// Package pathmap translates guest-visible paths under a store prefix
// (conventionally "/nix") to the host paths that back them, tunnelling the
// substitution through every symlink dereference along the way.
package pathmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a query path has no host correspondent.
var ErrNotFound = errors.New("pathmap: not found")

// Mapping is a single (guest_prefix, host_prefix) pair. A guest-absolute path
// beginning with GuestPrefix resolves to a host path by substring
// substitution; any other guest-absolute path is taken literally.
type Mapping struct {
	GuestPrefix string
	HostPrefix  string
}

// Resolve returns the canonical host path that p would denote if the mapping
// were applied at every symlink dereference along the way.
func (m Mapping) Resolve(p string) (string, error) {
	abs, err := absPath(p)
	if err != nil {
		return "", fmt.Errorf("pathmap: %w", err)
	}

	return m.resolve(abs)
}

func (m Mapping) resolve(p string) (string, error) {
	info, err := os.Lstat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("pathmap: lstat %s: %w", p, err)
		}

		return m.resolveMissing(p)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		canon, err := filepath.EvalSymlinks(p)
		if err != nil {
			return "", fmt.Errorf("pathmap: %s: %w", p, err)
		}

		return canon, nil
	}

	target, err := os.Readlink(p)
	if err != nil {
		return "", fmt.Errorf("pathmap: readlink %s: %w", p, err)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p), target)
	}

	target = m.substitute(target)

	return m.resolve(target)
}

// resolveMissing handles a path p that does not exist on the host as-is. It
// walks ancestors specifically looking for a symlink to tunnel through: an
// existing, non-symlink ancestor found before any symlink means p is
// genuinely absent, and the walk reports ErrNotFound rather than fabricating
// a path from components that were never there. Only once a symlink
// ancestor is found (and resolved, substituting the mapping along the way)
// is the remainder rebased onto it and re-checked for existence.
func (m Mapping) resolveMissing(p string) (string, error) {
	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("pathmap: %s: %w", p, ErrNotFound)
	}

	info, err := os.Lstat(parent)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("pathmap: lstat %s: %w", parent, err)
		}

		resolvedParent, err := m.resolveMissing(parent)
		if err != nil {
			return "", err
		}

		return m.resolve(filepath.Join(resolvedParent, filepath.Base(p)))
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return "", fmt.Errorf("pathmap: %s: %w", p, ErrNotFound)
	}

	resolvedParent, err := m.resolve(parent)
	if err != nil {
		return "", err
	}

	return m.resolve(filepath.Join(resolvedParent, filepath.Base(p)))
}

// substitute rebases target onto HostPrefix if it begins with GuestPrefix;
// otherwise target is returned unchanged.
func (m Mapping) substitute(target string) string {
	if m.GuestPrefix == "" {
		return target
	}

	if target == m.GuestPrefix {
		return m.HostPrefix
	}

	if strings.HasPrefix(target, m.GuestPrefix+"/") {
		return m.HostPrefix + strings.TrimPrefix(target, m.GuestPrefix)
	}

	return target
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	return filepath.Clean(filepath.Join(cwd, p)), nil
}
