package main

import (
	"os"

	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	defer telemetry.Sync()

	if err := newRootCmd(cfg, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
