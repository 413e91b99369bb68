package main

import (
	"path/filepath"

	"github.com/pinkwah/nixbox/internal/launchenv"
	"github.com/pinkwah/nixbox/internal/nixcfg"
)

// buildLaunchEnv assembles the environment a command run inside the
// sandbox sees, layering the forwarded host allowlist under
// configuration-derived variables and finally any per-invocation
// overrides, per internal/launchenv's ordering contract.
func buildLaunchEnv(cfg *nixcfg.Config, selfPath string, hostEnv, overrides map[string]string) map[string]string {
	derived := map[string]string{
		"SHELL":             cfg.ResolveShell(hostEnv),
		"NIX_CONF_DIR":      filepath.Join(cfg.NixHome, "etc", "nix"),
		"NIXBOX_ROOT":       cfg.ChrootDir,
		"NIXBOX_EXECUTABLE": selfPath,
		"NIXOS_CONFIG":      filepath.Join(cfg.DataDir, "nixos-configuration.nix"),
	}

	if cfg.NixProfile != "" {
		derived["NIXBOX_BINDIR"] = filepath.Join(cfg.NixProfile, "bin")
	} else if cfg.CurrentSystem != "" {
		derived["NIXBOX_BINDIR"] = "/run/current-system/sw/bin"
	}

	for _, name := range []string{"XDG_DATA_HOME", "XDG_STATE_HOME", "XDG_CONFIG_HOME"} {
		if v, ok := hostEnv[name]; ok {
			derived[name] = v
		}
	}

	return launchenv.Assemble(launchenv.Input{
		HostEnv:           hostEnv,
		Derived:           derived,
		NixProfilePresent: cfg.NixProfile != "",
		NixProfileBinDir:  derived["NIXBOX_BINDIR"],
		Overrides:         overrides,
	})
}
