//go:build linux

// Package sandbox composes the guest root: mounting the store, mirroring
// /etc, /usr/share, certificates, and tmpfiles.d symlinks, and binding the
// common set of host directories every invocation needs.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pinkwah/nixbox/internal/bind"
	"github.com/pinkwah/nixbox/internal/certbundle"
	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/pathmap"
	"github.com/pinkwah/nixbox/internal/tmpfiles"
)

// guestSystemProfile is the guest-visible path to the NixOS-style system
// profile, if one has been built into the store.
const guestSystemProfile = "/nix/var/nix/profiles/system"

// Config carries everything the builder needs. All paths are host paths
// except where a field's doc comment says otherwise.
type Config struct {
	// ChrootDir is the host path that will become the sandbox's root;
	// Build creates it (recreating it if stale) and leaves it read-only.
	ChrootDir string

	// NixHome is the host path that backs the guest's /nix.
	NixHome string

	// Home is the user's real home directory; it is bound inside the
	// chroot at the same path (stripping the leading slash).
	Home string

	// Debug receives a trace of every mount/symlink/warning Build
	// performs; nil is a valid, silent logger.
	Debug *debuglog.Logger
}

// mapping returns the (guest_prefix, host_prefix) pair symlink targets
// encountered while resolving are tunnelled through.
func (c Config) mapping() pathmap.Mapping {
	return pathmap.Mapping{GuestPrefix: "/nix", HostPrefix: c.NixHome}
}

// resolveGuestPath rebases a guest-absolute path under /nix onto NixHome and
// resolves every symlink along the way, substituting NixHome for /nix again
// each time a dereferenced link names a guest-absolute target.
func (c Config) resolveGuestPath(guestPath string) (string, error) {
	rebased := c.NixHome + strings.TrimPrefix(guestPath, "/nix")

	return c.mapping().Resolve(rebased)
}

func (c Config) debug() *debuglog.Logger {
	if c.Debug == nil {
		return debuglog.New(nil)
	}

	return c.Debug
}

// Build composes the sandbox filesystem described by cfg. On success, the
// caller may chroot into cfg.ChrootDir: every guarantee in §4.3 of the
// specification holds from that point on. Ordering is strict: the OpenGL
// driver tunnel first (so later binds may shadow it), then the guest /etc
// mirror, certificates, /usr/share, system-profile symlinks, the common
// bind set last (because it introduces recursive binds that must not be
// traversed by the mirror-merge logic used earlier), and finally tmpfiles
// realisation.
func Build(cfg Config) error {
	debug := cfg.debug()

	if err := prepareChrootDir(cfg.ChrootDir); err != nil {
		return err
	}

	debug.Section("Sandbox Builder")

	bindOpenGLTunnel(cfg)

	if err := bindGuestEtc(cfg); err != nil {
		return err
	}

	if err := certbundle.Install(cfg.ChrootDir, "/etc", debuglog.Warn); err != nil {
		return fmt.Errorf("sandbox: installing SSL bundles: %w", err)
	}

	if err := bindUsrShare(cfg); err != nil {
		return err
	}

	if err := systemProfileSymlinks(cfg); err != nil {
		return err
	}

	if err := bindCommonSet(cfg); err != nil {
		return err
	}

	if err := realizeTmpfiles(cfg); err != nil {
		return err
	}

	if err := os.Chmod(cfg.ChrootDir, 0o555); err != nil {
		return fmt.Errorf("sandbox: making %s read-only: %w", cfg.ChrootDir, err)
	}

	return nil
}

// prepareChrootDir removes any stale chroot directory left over from a
// previous build (restoring write permission first, since Build leaves it
// read-only on success) and recreates it empty.
func prepareChrootDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		if err := os.Chmod(dir, 0o755); err != nil {
			return fmt.Errorf("sandbox: making stale %s writable: %w", dir, err)
		}

		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("sandbox: removing stale %s: %w", dir, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("sandbox: stat %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", dir, err)
	}

	return nil
}

// bindOpenGLTunnel mounts the resolved opengl-driver lib directory so
// OpenGL/CUDA-enabled packages behave as they would on NixOS. Absence is
// not an error: it is an optional input, warned about and skipped.
func bindOpenGLTunnel(cfg Config) {
	debug := cfg.debug()

	hostDir, err := cfg.resolveGuestPath("/nix/var/nix/opengl-driver")
	if err != nil {
		debuglog.Warn("opengl-driver tunnel: %v (skipping)", err)

		return
	}

	libDir := filepath.Join(hostDir, "lib")

	info, err := os.Stat(libDir)
	if err != nil || !info.IsDir() {
		return
	}

	target := filepath.Join(cfg.ChrootDir, "run", "opengl-driver", "lib")
	if err := os.MkdirAll(target, 0o755); err != nil {
		debug.Warnf("opengl-driver tunnel: mkdir %s: %v (skipping)", target, err)

		return
	}

	if err := bind.Overmount(libDir, target); err != nil {
		debug.Warnf("opengl-driver tunnel: %v (skipping)", err)

		return
	}

	debug.Mount(libDir, target)
}

// bindGuestEtc mirrors the host files needed for name resolution, user
// lookup, and font discovery into the guest's /etc, preserving the
// mirror-merge policy that lets host-only entries (resolv.conf in
// particular) coexist with later guest-store entries layered on top.
func bindGuestEtc(cfg Config) error {
	debug := cfg.debug()

	etcDir := filepath.Join(cfg.ChrootDir, "etc")
	if err := os.MkdirAll(etcDir, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", etcDir, err)
	}

	for _, name := range []string{"resolv.conf", "passwd", "group", "group-", "fonts"} {
		source := filepath.Join("/etc", name)

		if _, err := os.Lstat(source); os.IsNotExist(err) {
			debug.Bulletf("%s not present on host, skipping", source)

			continue
		}

		if err := bind.Bind(source, etcDir); err != nil {
			return fmt.Errorf("sandbox: binding %s: %w", source, err)
		}

		debug.Mount(source, filepath.Join(etcDir, name))
	}

	return nil
}

// bindUsrShare binds host fonts, fontconfig, and icon directories so
// graphical applications inside the sandbox render consistently with the
// host.
func bindUsrShare(cfg Config) error {
	debug := cfg.debug()

	target := filepath.Join(cfg.ChrootDir, "usr", "share")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", target, err)
	}

	for _, name := range []string{"fonts", "fontconfig", "icons"} {
		source := filepath.Join("/usr/share", name)

		if _, err := os.Lstat(source); os.IsNotExist(err) {
			debug.Bulletf("%s not present on host, skipping", source)

			continue
		}

		if err := bind.Bind(source, target); err != nil {
			return fmt.Errorf("sandbox: binding %s: %w", source, err)
		}

		debug.Mount(source, filepath.Join(target, name))
	}

	return nil
}

// systemProfileSymlinks materialises /run/current-system, /bin/sh,
// /usr/bin/env, and a mirror of the system profile's etc/ directory, if a
// system profile is present in the store. Its absence is not an error:
// nixbox can still run with a bare store and no built NixOS configuration.
func systemProfileSymlinks(cfg Config) error {
	debug := cfg.debug()

	sysrootHost, err := cfg.resolveGuestPath(guestSystemProfile)
	if err != nil {
		debuglog.Warn("no system profile at %s: %v (skipping profile symlinks)", guestSystemProfile, err)

		return nil
	}

	if err := createSymlink(guestSystemProfile, filepath.Join(cfg.ChrootDir, "run", "current-system")); err != nil {
		return err
	}

	if err := createSymlink(guestSystemProfile+"/sw/bin/sh", filepath.Join(cfg.ChrootDir, "bin", "sh")); err != nil {
		return err
	}

	if err := createSymlink(guestSystemProfile+"/sw/bin/env", filepath.Join(cfg.ChrootDir, "usr", "bin", "env")); err != nil {
		return err
	}

	sysrootEtc := filepath.Join(sysrootHost, "etc")

	entries, err := os.ReadDir(sysrootEtc)
	if err != nil {
		debug.Warnf("reading system profile etc/ at %s: %v (skipping mirror)", sysrootEtc, err)

		return nil
	}

	for _, entry := range entries {
		target := filepath.Join(cfg.ChrootDir, "etc", entry.Name())

		if _, err := os.Lstat(target); err == nil {
			continue // a same-named entry already exists; leave it
		}

		guestEntryPath := "/run/current-system/etc/" + entry.Name()

		if err := createSymlink(guestEntryPath, target); err != nil {
			return err
		}
	}

	return nil
}

// bindCommonSet binds the store, the user's home, a recursive mirror of the
// host root at /run/host, and the flat set of host directories every
// invocation needs. This runs last among the non-tmpfiles steps because its
// recursive binds must not be traversed by the mirror-merge logic used for
// /etc and /usr/share above.
func bindCommonSet(cfg Config) error {
	debug := cfg.debug()

	nixMount := filepath.Join(cfg.ChrootDir, "nix")
	if err := os.MkdirAll(nixMount, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", nixMount, err)
	}

	if err := bind.Overmount(cfg.NixHome, nixMount); err != nil {
		return fmt.Errorf("sandbox: binding store: %w", err)
	}

	debug.Mount(cfg.NixHome, nixMount)

	homeMount := filepath.Join(cfg.ChrootDir, strings.TrimPrefix(cfg.Home, "/"))
	if err := os.MkdirAll(homeMount, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", homeMount, err)
	}

	if err := bind.Overmount(cfg.Home, homeMount); err != nil {
		return fmt.Errorf("sandbox: binding home: %w", err)
	}

	debug.Mount(cfg.Home, homeMount)

	runHost := filepath.Join(cfg.ChrootDir, "run", "host")
	if err := os.MkdirAll(runHost, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", runHost, err)
	}

	if err := bind.Overmount("/", runHost); err != nil {
		return fmt.Errorf("sandbox: binding /run/host: %w", err)
	}

	debug.Mount("/", runHost)

	for _, name := range []string{"dev", "proc", "var", "run", "opt", "srv", "sys", "tmp"} {
		source := filepath.Join("/", name)

		if _, err := os.Lstat(source); os.IsNotExist(err) {
			continue
		}

		if err := bind.Bind(source, cfg.ChrootDir); err != nil {
			return fmt.Errorf("sandbox: binding %s: %w", source, err)
		}

		debug.Mount(source, filepath.Join(cfg.ChrootDir, name))
	}

	return nil
}

// realizeTmpfiles reads every tmpfiles.d fragment under the system
// profile's lib/ and etc/ directories and materialises each "L+" directive
// as a symlink rooted at the chroot. Missing fragment directories are not
// an error: they are an optional input.
func realizeTmpfiles(cfg Config) error {
	debug := cfg.debug()

	sysrootHost, err := cfg.resolveGuestPath(guestSystemProfile)
	if err != nil {
		debuglog.Warn("no system profile at %s: %v (skipping tmpfiles)", guestSystemProfile, err)

		return nil
	}

	for _, rel := range []string{"lib/tmpfiles.d", "etc/tmpfiles.d"} {
		dir := filepath.Join(sysrootHost, rel)

		entries, err := os.ReadDir(dir)
		if err != nil {
			debug.Bulletf("no tmpfiles fragments at %s, skipping", dir)

			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			path := filepath.Join(dir, entry.Name())

			f, err := os.Open(path)
			if err != nil {
				debug.Warnf("reading tmpfiles fragment %s: %v (skipping)", path, err)

				continue
			}

			directives, err := tmpfiles.Parse(f)
			_ = f.Close()

			if err != nil {
				debug.Warnf("parsing tmpfiles fragment %s: %v (skipping)", path, err)

				continue
			}

			for _, d := range directives {
				target := filepath.Join(cfg.ChrootDir, d.Target)

				if _, err := os.Lstat(target); err == nil {
					continue
				}

				if err := createSymlink(d.Source, target); err != nil {
					return err
				}

				debug.Mount(d.Source, target)
			}
		}
	}

	return nil
}

func createSymlink(source, target string) error {
	parent := filepath.Dir(target)

	// The parent may already exist as a symlink manufactured by an earlier
	// step (e.g. an etc/ mirror entry pointing through run/current-system);
	// MkdirAll would fail trying to recreate it as a directory, so only
	// attempt creation when nothing is there yet.
	if _, err := os.Lstat(parent); os.IsNotExist(err) {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("sandbox: creating %s: %w", parent, err)
		}
	}

	if err := os.Symlink(source, target); err != nil && !os.IsExist(err) {
		return fmt.Errorf("sandbox: symlink %s -> %s: %w", target, source, err)
	}

	return nil
}
