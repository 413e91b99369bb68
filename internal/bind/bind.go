//go:build linux

// Package bind reflects host paths into a target directory by recursive
// bind-mount, creating placeholder files/directories as needed and honouring
// the mirror-merge policy that lets a guest-store directory and a host
// directory of the same name coexist.
package bind

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Bind reflects source into targetDir/basename(source).
//
// Policy by source kind:
//   - directory, target absent: create target, bind-mount source over it.
//   - directory, target exists and is a directory: do not overmount; recurse
//     into source's entries and bind each into target (mirror-merge). This is
//     what lets host /etc and guest-store /etc coexist.
//   - file: create an empty placeholder file, bind-mount source over it.
//   - symlink: replicate the link (not dereferenced).
func Bind(source, targetDir string) error {
	target := filepath.Join(targetDir, filepath.Base(source))

	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("bind: stat %s: %w", source, err)
	}

	switch {
	case info.IsDir():
		return bindDir(source, target)
	case info.Mode().IsRegular():
		return bindFile(source, target)
	case info.Mode()&os.ModeSymlink != 0:
		return bindSymlink(source, target)
	default:
		return fmt.Errorf("bind: %s: unsupported file type %v", source, info.Mode())
	}
}

func bindDir(source, target string) error {
	_, err := os.Stat(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(target, 0o755); mkErr != nil && !errors.Is(mkErr, os.ErrExist) {
			return fmt.Errorf("bind: mkdir %s: %w", target, mkErr)
		}

		return bindMount(source, target)
	case err != nil:
		return fmt.Errorf("bind: stat %s: %w", target, err)
	default:
		// target exists: mirror-merge rather than overmount.
		entries, readErr := os.ReadDir(source)
		if readErr != nil {
			return fmt.Errorf("bind: readdir %s: %w", source, readErr)
		}

		for _, entry := range entries {
			if err := Bind(filepath.Join(source, entry.Name()), target); err != nil {
				return err
			}
		}

		return nil
	}
}

func bindFile(source, target string) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bind: create placeholder %s: %w", target, err)
	}
	_ = f.Close()

	return bindMount(source, target)
}

// bindSymlink replicates the link itself into target, rather than its
// dereferenced contents: the link text read from source is recreated
// verbatim at target.
func bindSymlink(source, target string) error {
	linkText, err := os.Readlink(source)
	if err != nil {
		return fmt.Errorf("bind: readlink %s: %w", source, err)
	}

	if err := os.Symlink(linkText, target); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("bind: symlink %s -> %s: %w", target, linkText, err)
	}

	return nil
}

// Overmount bind-mounts source directly onto target, an existing directory,
// without the mirror-merge behaviour Bind applies when a directory target
// already exists. Use this for whole-tree mounts (the store, a home
// directory, a /run/host view of the real root) where shadowing whatever
// the empty mountpoint directory contained is exactly the intent.
func Overmount(source, target string) error {
	return bindMount(source, target)
}

func bindMount(source, target string) error {
	if err := unix.Mount(source, target, "none", unix.MS_BIND|unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("bind: mount %s on %s: %w", source, target, err)
	}

	return nil
}
