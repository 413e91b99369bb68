package main

import "io"

// cmdInstall is a thin stub: the reference installer's fork/kill/re-fork
// bootstrap control flow is out of scope for the core (see DESIGN.md),
// so this only points the user at it instead of reimplementing it.
func cmdInstall(stdout io.Writer) int {
	const msg = `nixbox install is not implemented by this build.

Bootstrapping a Nix store under $XDG_DATA_HOME/nixbox/nix is a one-time,
network-heavy operation handled by the project's install script, not by
this binary. See the project documentation for the current installer.`

	_, _ = io.WriteString(stdout, msg+"\n")

	return 0
}
