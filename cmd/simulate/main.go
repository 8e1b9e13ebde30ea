package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mathspractice/adaptive/internal/infrastructure/config"
	"github.com/mathspractice/adaptive/internal/simulation"
)

func main() {
	var (
		sessions   = flag.Int("sessions", 25, "sessions per profile")
		workers    = flag.Int("workers", 4, "concurrent sessions")
		engineFile = flag.String("engine", "", "optional TOML engine tuning file")
		verbose    = flag.Bool("v", false, "log engine decisions")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engineCfg, err := config.LoadEngine(*engineFile, true)
	if err != nil {
		logger.Error("invalid adaptive configuration", "error", err)
		os.Exit(1)
	}

	runner := simulation.NewRunner(engineCfg, *workers, logger)
	for _, rep := range runner.Run(simulation.DefaultProfiles(), *sessions) {
		fmt.Println(rep)
	}
}
