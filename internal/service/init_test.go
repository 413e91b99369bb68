//go:build linux

package service

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForceSymlinkReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "chroot")
	source := filepath.Join(dir, "actual-root")

	if err := os.WriteFile(target, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(source, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := forceSymlink(source, target); err != nil {
		t.Fatalf("forceSymlink: %v", err)
	}

	link, err := os.Readlink(target)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}

	if link != source {
		t.Errorf("link = %q, want %q", link, source)
	}
}

func TestForceSymlinkReplacesExistingSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "chroot")
	oldSource := filepath.Join(dir, "old-root")
	newSource := filepath.Join(dir, "new-root")

	if err := os.Symlink(oldSource, target); err != nil {
		t.Fatal(err)
	}

	if err := forceSymlink(newSource, target); err != nil {
		t.Fatalf("forceSymlink: %v", err)
	}

	link, err := os.Readlink(target)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}

	if link != newSource {
		t.Errorf("link = %q, want %q", link, newSource)
	}
}
