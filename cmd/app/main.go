package main

import (
	"flag"
	"fmt"
	"os"

	"TriggerDesk/internal/di"
	"TriggerDesk/pkg/config"
	"TriggerDesk/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	boot, err := logger.New(&logger.Config{Level: "info", Format: "json", Output: "stderr"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	boot = boot.With("bootstrap")

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", logger.String("path", *configPath), logger.Error(err))
		os.Exit(1)
	}
	boot.Info("config loaded",
		logger.String("env", cfg.Environment),
		logger.Strings("symbols", cfg.Market.Symbols),
		logger.String("tick_source", cfg.Market.TickSource),
	)
	if *checkOnly {
		return
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", logger.Error(err))
		os.Exit(1)
	}

	// Blocks until SIGINT/SIGTERM.
	err = app.Run()
	cleanup()
	if err != nil {
		boot.Error("app stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
