package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"flag"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/app"
	"github.com/conectasei/conectasei/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("ConectaSEI version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> files -> env)
	// 2. Initialize logger
	// 3. Print banner
	// 4. Wire the application

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("conectasei.toml"); err == nil {
			configFiles = append(configFiles, "conectasei.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")

	defer func() {
		if r := recover(); r != nil {
			crashPath := common.WriteCrashFile(r, string(debug.Stack()))
			logger.Fatal().
				Str("crash_file", crashPath).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Fatal error")
		}
	}()

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("database", config.Storage.Badger.Path).
		Int("worker_limit", config.Extractor.WorkerLimit).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	logger.Info().Msg("ConectaSEI ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}
