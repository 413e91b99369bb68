package main

import (
	"fmt"
	"io"

	"github.com/pinkwah/nixbox/internal/debuglog"
	"github.com/pinkwah/nixbox/internal/nixcfg"
	"github.com/pinkwah/nixbox/internal/service"
)

func cmdInit(selfPath string, cfg *nixcfg.Config, debug *debuglog.Logger, stdout, stderr io.Writer) int {
	debug.Section("service")

	rec, err := service.EnsureRunning(selfPath, cfg)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	debug.Logf("service anchor pid %d, root %s", rec.PID, rec.Root)
	fmt.Fprintf(stdout, "nixbox service running (PID: %d)\n", rec.PID)

	return 0
}
