// Deckd drives an Elgato Stream Deck as a page-based control surface.
//
// Usage:
//
//	deckd [--config PATH] [--json] [--log-level LEVEL]
//	deckd --check --config PATH
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/deckd/internal/app"
	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/device/streamdeck"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	jsonLogs   bool
	checkOnly  bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "deckd",
	Short: "Stream Deck daemon",
	Long: `deckd renders pages of buttons onto an Elgato Stream Deck and runs the
configured action when a key is pressed. Buttons may reflect Home Assistant
entity state. The configuration file is watched and reloaded on change.`,
	Example: `  # Run with the default configuration
  deckd

  # Validate a configuration file and exit
  deckd --check -c ./config.yaml

  # Run under systemd with JSON logs for journald
  deckd -c /etc/deckd/config.yaml --json`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/deckd/config.yaml", "Path to configuration file")
	rootCmd.Flags().BoolVar(&jsonLogs, "json", false, "Log as JSON (for journald)")
	rootCmd.Flags().BoolVar(&checkOnly, "check", false, "Validate the configuration and exit")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if checkOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d pages, %d total buttons\n", len(cfg.Pages), cfg.ButtonCount())
		return nil
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	setupLogging(level, jsonLogs || cfg.Log.JSON, cfg.Log.Colors)

	log.Info().Str("config", configPath).Str("version", version).Msg("Starting deckd")

	transport, err := streamdeck.NewTransport()
	if err != nil {
		return fmt.Errorf("failed to initialize HID transport: %w", err)
	}

	application, err := app.New(cfg, configPath, transport)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	return nil
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
