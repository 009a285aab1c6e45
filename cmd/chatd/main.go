package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/chat_poc/internal/config"
	"github.com/adred-codev/chat_poc/internal/monitoring"
	"github.com/adred-codev/chat_poc/internal/server"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	// Basic logger for startup, before the structured one exists.
	startup := log.New(os.Stdout, "[chatd] ", log.LstdFlags)

	cfg, err := config.Load(nil)
	if err != nil {
		startup.Fatalf("Failed to load configuration: %v", err)
	}

	if *debug {
		cfg.LogLevel = "debug"
	}

	monitoring.SetSafeMode(cfg.SafeMode)
	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	cfg.LogConfig(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal().
			Str("error", monitoring.SensitiveErr(err)).
			Msg("Failed to create server")
	}

	if err := srv.Start(); err != nil {
		logger.Fatal().
			Str("error", monitoring.SensitiveErr(err)).
			Msg("Failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if err := srv.Shutdown(); err != nil {
		logger.Error().
			Str("error", monitoring.SensitiveErr(err)).
			Msg("Error during shutdown")
	}
}
