package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/nixcfg"
)

const executableName = "nixbox"

// hiddenCommands are generation markers for the self re-exec chain (see
// internal/service and SPEC_FULL.md's "Double fork in Go" note); they are
// dispatched before flag parsing and never appear in --help.
var hiddenCommands = map[string]func(env map[string]string, args []string) int{
	"__fork1__":   runFork1,
	"__init__":    runInit,
	"__nsenter__": runNsenter,
}

// Run is the entry point isolated from global state (stdin/stdout/stderr,
// os.Args, os.Environ) so it can be driven directly from tests. Returns the
// process exit code.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) > 1 {
		if handler, ok := hiddenCommands[args[1]]; ok {
			return handler(env, args[2:])
		}
	}

	flags := flag.NewFlagSet(executableName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagVersion := flags.BoolP("version", "v", false, "Show version and exit")
	flagDebug := flags.Bool("debug", false, "Print sandbox startup details to stderr")
	flagConfig := flags.StringP("config", "c", "", "Use specified config `file`")

	if len(args) < 2 {
		printUsage(stdout)

		return 0
	}

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if *flagVersion {
		fmt.Fprintf(stdout, "nixbox %s\n", version)

		return 0
	}

	if *flagHelp {
		printUsage(stdout)

		return 0
	}

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stdout)

		return 0
	}

	var debug *debuglog.Logger
	if *flagDebug {
		debug = debuglog.New(stderr)
	}

	cfg, err := nixcfg.Load(env, *flagConfig)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	debug.Section("configuration")
	debug.Logf("data_dir=%s runtime_dir=%s nix_home=%s chroot_dir=%s", cfg.DataDir, cfg.RuntimeDir, cfg.NixHome, cfg.ChrootDir)

	selfPath, err := selfExecutable()
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	sub, subArgs := rest[0], rest[1:]

	switch sub {
	case "run":
		return cmdRun(selfPath, cfg, debug, stdin, stdout, stderr, env, subArgs, sigCh)
	case "enter":
		return cmdEnter(selfPath, cfg, debug, stdin, stdout, stderr, env, sigCh)
	case "init":
		return cmdInit(selfPath, cfg, debug, stdout, stderr)
	case "status":
		return cmdStatus(cfg, stdout)
	case "install":
		return cmdInstall(stdout)
	default:
		fprintError(stderr, fmt.Errorf("unknown command %q", sub))
		printUsage(stderr)

		return 1
	}
}

func selfExecutable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving own executable path: %w", err)
	}

	return filepath.EvalSymlinks(path)
}

const usageHelp = `nixbox - a materialised Nix sandbox root for non-NixOS hosts

Usage: nixbox [flags] <command> [args]

Commands:
  run <cmd> [args...]   Run a command inside the sandbox
  enter                 Enter an interactive login shell inside the sandbox
  status                Show whether the service is running and what's in it
  init                  Ensure the service is running, without running a command
  install               Print installation instructions

Flags:
  -h, --help             Show help
  -v, --version          Show version and exit
  -c, --config <file>    Use specified config file
      --debug            Print sandbox startup details to stderr`

func printUsage(w io.Writer) {
	fmt.Fprintln(w, usageHelp)
}

func fprintError(w io.Writer, err error) {
	fmt.Fprintln(w, "nixbox: error:", err)
}
