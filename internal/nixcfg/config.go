// Package nixcfg assembles the immutable configuration record the rest of
// nixbox is built from: required XDG/data locations derived from the
// environment, layered under an optional on-disk JSON-with-comments
// override file.
package nixcfg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrConfigMissing is returned when a required location cannot be
// determined from the environment.
var ErrConfigMissing = errors.New("nixcfg: required configuration value missing")

// FileOverrides is the shape of the optional on-disk config file
// ($XDG_CONFIG_HOME/nixbox/config.jsonc). Every field is optional; an
// absent field leaves the environment-derived value untouched. This is
// deliberately a small, additive surface — it does not attempt to replicate
// a full TOML/RON configuration grammar.
type FileOverrides struct {
	DataDir    string   `json:"data_dir,omitempty"`
	RuntimeDir string   `json:"runtime_dir,omitempty"`
	Shell      string   `json:"shell,omitempty"`
	Forward    []string `json:"forward,omitempty"`
}

// Config is the immutable record described in the data model: locations,
// optional host paths, the user's shell, and (elsewhere) the computed
// environment map.
type Config struct {
	DataDir    string // persistent store root
	RuntimeDir string // ephemeral per-user directory
	NixHome    string // host path backing the guest /nix
	Home       string // guest-visible home
	ChrootDir  string // assembled root

	NixProfile    string // optional host path, "" if absent
	CurrentSystem string // optional host path ("/nix/var/nix/profiles/system"), "" if absent

	Shell string // user shell name, e.g. "bash"

	// Forward is the forwarded-variable allowlist read from configuration;
	// it defaults to the same names as launchenv.Forwarded unless
	// overridden on disk. Launch-environment assembly does not read it:
	// internal/launchenv always applies its own Forwarded list.
	Forward []string

	// LoadedFrom records which on-disk override file was applied, if any,
	// purely for --debug output; empty when no file was found.
	LoadedFrom string
}

// Load builds a Config from env (as from os.Environ, keyed by variable
// name) and an optional explicit override file path. When overridePath is
// empty, $XDG_CONFIG_HOME/nixbox/config.jsonc (or
// $HOME/.config/nixbox/config.jsonc if XDG_CONFIG_HOME is unset) is
// consulted if present; its absence is not an error.
func Load(env map[string]string, overridePath string) (*Config, error) {
	home, ok := env["HOME"]
	if !ok || home == "" {
		return nil, fmt.Errorf("%w: HOME", ErrConfigMissing)
	}

	runtimeDir, ok := env["XDG_RUNTIME_DIR"]
	if !ok || runtimeDir == "" {
		return nil, fmt.Errorf("%w: XDG_RUNTIME_DIR", ErrConfigMissing)
	}

	dataHome := xdgDir(env, "XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	configHome := xdgDir(env, "XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	cfg := &Config{
		DataDir:    filepath.Join(dataHome, "nixbox"),
		RuntimeDir: filepath.Join(runtimeDir, "nixbox"),
		Home:       home,
		Shell:      "bash",
		Forward:    defaultForward(),
	}

	cfg.NixHome = filepath.Join(cfg.DataDir, "nix")
	cfg.ChrootDir = filepath.Join(cfg.RuntimeDir, "root")

	if systemProfile := filepath.Join(cfg.NixHome, "var", "nix", "profiles", "system"); pathExists(systemProfile) {
		cfg.CurrentSystem = systemProfile
	}

	if nixProfile := filepath.Join(home, ".nix-profile"); pathExists(nixProfile) {
		cfg.NixProfile = nixProfile
	}

	path := overridePath
	if path == "" {
		path = filepath.Join(configHome, "nixbox", "config.jsonc")
	}

	if pathExists(path) {
		overrides, err := parseFileOverrides(path)
		if err != nil {
			return nil, err
		}

		applyOverrides(cfg, overrides)
		cfg.LoadedFrom = path
	} else if overridePath != "" {
		return nil, fmt.Errorf("nixcfg: config file %s: %w", overridePath, os.ErrNotExist)
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, o FileOverrides) {
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		cfg.NixHome = filepath.Join(cfg.DataDir, "nix")
	}

	if o.RuntimeDir != "" {
		cfg.RuntimeDir = o.RuntimeDir
		cfg.ChrootDir = filepath.Join(cfg.RuntimeDir, "root")
	}

	if o.Shell != "" {
		cfg.Shell = o.Shell
	}

	if len(o.Forward) > 0 {
		cfg.Forward = o.Forward
	}
}

func parseFileOverrides(path string) (FileOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileOverrides{}, fmt.Errorf("nixcfg: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return FileOverrides{}, fmt.Errorf("nixcfg: parsing %s: %w", path, err)
	}

	var overrides FileOverrides

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&overrides); err != nil {
		return FileOverrides{}, fmt.Errorf("nixcfg: parsing %s: %w", path, err)
	}

	return overrides, nil
}

func xdgDir(env map[string]string, name, fallback string) string {
	if v, ok := env[name]; ok && v != "" {
		return v
	}

	return fallback
}

func pathExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func defaultForward() []string {
	return []string{
		"DBUS_SESSION_BUS_ADDRESS",
		"DESKTOP_SESSION",
		"DISPLAY",
		"GDMSESSION",
		"GDM_LANG",
		"GIO_LAUNCHED_DESKTOP_FILE_PID",
		"GNOME_SETUP_DISPLAY",
		"HOME",
		"INVOCATION_ID",
		"JOURNAL_STREAM",
		"LANG",
		"MANAGERPID",
		"SESSION_MANAGER",
		"SHLVL",
		"SSH_AUTH_SOCK",
		"SYSTEMD_EXEC_PID",
		"TERM",
		"USER",
		"VTE_VERSION",
		"WAYLAND_DISPLAY",
		"XAUTHORITY",
		"XDG_CURRENT_DESKTOP",
		"XDG_RUNTIME_DIR",
		"XDG_SESSION_DESKTOP",
		"XDG_SESSION_TYPE",
		"XMODIFIERS",
	}
}

// ResolveShell resolves the login shell to an absolute host (guest) path,
// following NIXBOX_SHELL's resolution chain: an absolute override wins
// outright; a relative override is looked up under the nix profile's bin
// directory; absent any override, the system profile's bash is used. The
// Shell field is not consulted.
func (c *Config) ResolveShell(env map[string]string) string {
	if override, ok := env["NIXBOX_SHELL"]; ok && override != "" {
		if filepath.IsAbs(override) {
			return override
		}

		if c.NixProfile != "" {
			return filepath.Join(c.NixProfile, "bin", override)
		}
	}

	return "/run/current-system/sw/bin/bash"
}
