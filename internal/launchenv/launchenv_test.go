package launchenv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAssembleForwardsOnlyAllowlistedHostVars(t *testing.T) {
	env := Assemble(Input{
		HostEnv: map[string]string{
			"DISPLAY": ":0",
			"FOO":     "bar",
		},
	})

	want := map[string]string{
		"DISPLAY": ":0",
		"PATH":    "/usr/local/bin:/usr/bin:/bin",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleUsesDerivedShellNotHostShell(t *testing.T) {
	env := Assemble(Input{
		HostEnv: map[string]string{"SHELL": "/bin/bash"},
		Derived: map[string]string{"SHELL": "/run/current-system/sw/bin/bash"},
	})

	want := map[string]string{
		"SHELL": "/run/current-system/sw/bin/bash",
		"PATH":  "/usr/local/bin:/usr/bin:/bin",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleOverridesWinOverEverything(t *testing.T) {
	env := Assemble(Input{
		HostEnv:   map[string]string{"TERM": "xterm"},
		Derived:   map[string]string{"SHELL": "/bin/sh"},
		Overrides: map[string]string{"TERM": "screen", "SHELL": "/bin/zsh"},
	})

	want := map[string]string{
		"TERM":  "screen",
		"SHELL": "/bin/zsh",
		"PATH":  "/usr/local/bin:/usr/bin:/bin",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestComputePathWithNixProfile(t *testing.T) {
	env := Assemble(Input{NixProfilePresent: true, NixProfileBinDir: "/home/u/.nix-profile/bin"})

	want := "/home/u/.nix-profile/bin:/usr/bin:/bin"
	if env["PATH"] != want {
		t.Errorf("PATH: got %q, want %q", env["PATH"], want)
	}
}

func TestComputePathWithoutNixProfile(t *testing.T) {
	env := Assemble(Input{})

	want := "/usr/local/bin:/usr/bin:/bin"
	if env["PATH"] != want {
		t.Errorf("PATH: got %q, want %q", env["PATH"], want)
	}
}

func TestSliceIsSortedKeyValue(t *testing.T) {
	got := Slice(map[string]string{"B": "2", "A": "1"})

	want := []string{"A=1", "B=2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Slice mismatch (-want +got):\n%s", diff)
	}
}
