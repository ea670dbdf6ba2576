package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"ingestd/internal/app"
	"ingestd/pkg/config"
	"ingestd/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	envCfg, envUsed := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err != nil {
		log.Fatalf("failed to resolve config: %v", err)
	}

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	if buildDate != "unknown" {
		verStr += " @ " + buildDate
	}

	a, err := app.New(eff, verStr)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DataDir)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if flags.Once {
		if err := a.RunOnce(ctx); err != nil {
			shutdown.Abort("single pass failed", err, eff.DataDir)
		}
		return
	}

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, eff.DataDir)
	}
}
