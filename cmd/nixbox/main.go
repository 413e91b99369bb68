// Command nixbox runs programs inside a materialised Nix-style sandbox root
// on a non-NixOS Linux host.
package main

import (
	"os"
	"os/signal"
	"syscall"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, environMap(os.Environ()), sigCh))
}

func environMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]

				break
			}
		}
	}

	return env
}
