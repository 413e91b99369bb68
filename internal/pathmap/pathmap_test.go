package pathmap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveNormalPath(t *testing.T) {
	dir := t.TempDir()

	target := filepath.Join(dir, "foo")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := Mapping{GuestPrefix: "/nix", HostPrefix: dir}

	got, err := m.Resolve(target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got != target {
		t.Fatalf("got %q, want %q", got, target)
	}
}

func TestResolveSimpleSymlink(t *testing.T) {
	dir := t.TempDir()

	realDir := filepath.Join(dir, "store", "XYZ-system")
	if err := os.MkdirAll(realDir, 0o755); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(dir, "var", "nix", "profiles", "system")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(realDir, link); err != nil {
		t.Fatal(err)
	}

	m := Mapping{GuestPrefix: "/nix", HostPrefix: dir}

	got, err := m.Resolve(link)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got != realDir {
		t.Fatalf("got %q, want %q", got, realDir)
	}
}

func TestResolveThroughSubdirectories(t *testing.T) {
	dir := t.TempDir()

	realDir := filepath.Join(dir, "store", "XYZ-system")
	binDir := filepath.Join(realDir, "sw", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}

	shPath := filepath.Join(binDir, "sh")
	if err := os.WriteFile(shPath, []byte("#!/bin/sh"), 0o755); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(dir, "var", "nix", "profiles", "system")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(realDir, link); err != nil {
		t.Fatal(err)
	}

	// Guest query: <guest>/var/nix/profiles/system/sw/bin/sh
	query := filepath.Join(link, "sw", "bin", "sh")

	m := Mapping{GuestPrefix: "/nix", HostPrefix: dir}

	got, err := m.Resolve(query)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got != shPath {
		t.Fatalf("got %q, want %q", got, shPath)
	}
}

func TestResolveErrorsWhenNotFound(t *testing.T) {
	dir := t.TempDir()

	m := Mapping{GuestPrefix: "/nix", HostPrefix: dir}

	_, err := m.Resolve(filepath.Join(dir, "does", "not", "exist"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}
}

func TestResolveTunnelsGuestPrefixInAbsoluteTarget(t *testing.T) {
	dir := t.TempDir()

	storeEntry := filepath.Join(dir, "store", "abc-pkg")
	if err := os.MkdirAll(storeEntry, 0o755); err != nil {
		t.Fatal(err)
	}

	// A symlink whose target is guest-absolute ("/nix/store/abc-pkg") must be
	// tunnelled through HostPrefix rather than taken literally.
	link := filepath.Join(dir, "current")
	if err := os.Symlink("/nix/store/abc-pkg", link); err != nil {
		t.Fatal(err)
	}

	m := Mapping{GuestPrefix: "/nix", HostPrefix: dir}

	got, err := m.Resolve(link)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got != storeEntry {
		t.Fatalf("got %q, want %q", got, storeEntry)
	}
}
