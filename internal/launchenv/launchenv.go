// Package launchenv computes the execve environment for a process launched
// inside the sandbox: a cleared environment populated, in order, from a
// forwarded host allowlist, configuration-derived variables, a computed
// PATH, and finally per-invocation overrides.
package launchenv

import "sort"

// Forwarded is the exact set of host variables copied into the sandbox when
// present. Variables absent on the host are simply omitted.
var Forwarded = []string{
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

// ConfigVars are the configuration-derived variable names injected at layer
// two, in the order Assemble writes them. PATH is computed separately (see
// Assemble) rather than taken from Derived, even though it is conceptually
// part of this layer.
var ConfigVars = []string{
	"SHELL",
	"NIX_CONF_DIR",
	"NIXBOX_BINDIR",
	"NIXBOX_ROOT",
	"NIXOS_CONFIG",
	"XDG_DATA_HOME",
	"XDG_STATE_HOME",
	"XDG_CONFIG_HOME",
	"NIXBOX_EXECUTABLE",
}

// Input carries everything Assemble needs to compute the final environment.
type Input struct {
	// HostEnv is the full host environment (variable name -> value) the
	// forwarded allowlist is read from.
	HostEnv map[string]string

	// Derived supplies the value for each name in ConfigVars that the
	// configuration layer wants to set. Names absent from Derived are left
	// unset at this layer (a later layer may still set them).
	Derived map[string]string

	// NixProfilePresent selects the PATH form: a profile-relative PATH when
	// true, a plain host-equivalent PATH otherwise.
	NixProfilePresent bool
	// NixProfileBinDir is prepended to PATH when NixProfilePresent is true.
	NixProfileBinDir string

	// Overrides are explicit per-invocation values from the caller (e.g.
	// CLI flags); they win over every other layer.
	Overrides map[string]string
}

// Assemble computes the launch environment per the ordering contract: the
// environment is conceptually cleared, then populated by forwarded host
// variables, then configuration-derived variables (including PATH), then
// caller overrides, each layer overwriting the previous for keys it sets.
func Assemble(in Input) map[string]string {
	env := make(map[string]string)

	for _, name := range Forwarded {
		if v, ok := in.HostEnv[name]; ok {
			env[name] = v
		}
	}

	for _, name := range ConfigVars {
		if v, ok := in.Derived[name]; ok {
			env[name] = v
		}
	}

	env["PATH"] = computePath(in.NixProfilePresent, in.NixProfileBinDir)

	for name, value := range in.Overrides {
		env[name] = value
	}

	return env
}

func computePath(nixProfilePresent bool, nixProfileBinDir string) string {
	if nixProfilePresent && nixProfileBinDir != "" {
		return nixProfileBinDir + ":/usr/bin:/bin"
	}

	return "/usr/local/bin:/usr/bin:/bin"
}

// Slice renders env as a sorted "KEY=VALUE" slice suitable for exec.Cmd.Env.
func Slice(env map[string]string) []string {
	out := make([]string, 0, len(env))

	for k, v := range env {
		out = append(out, k+"="+v)
	}

	sort.Strings(out)

	return out
}
