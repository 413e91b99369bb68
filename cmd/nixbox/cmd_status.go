package main

import (
	"io"

	"github.com/pinkwah/nixbox/internal/nixcfg"
	"github.com/pinkwah/nixbox/internal/service"
	"github.com/pinkwah/nixbox/internal/statusview"
)

func cmdStatus(cfg *nixcfg.Config, stdout io.Writer) int {
	rec, err := service.FromExisting(cfg.RuntimeDir)

	pid := 0
	if err == nil {
		pid = rec.PID
	}

	running, statusErr := statusview.Print(stdout, pid)
	if statusErr != nil {
		fprintError(stdout, statusErr)

		return 1
	}

	if !running {
		return 1
	}

	return 0
}
