// ==============================
// File: cmd/bot/main.go
// ==============================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/bot"
	"github.com/solpulse/memebot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.Development = *debug
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting memebot")

	runner := bot.NewRunner(log)
	if err := runner.Initialize(*configPath); err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	if err := runner.Run(context.Background()); err != nil {
		log.Fatal("runtime error", zap.Error(err))
	}
}
