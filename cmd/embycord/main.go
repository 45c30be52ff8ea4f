package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const appName = "embycord"

// CLI flags
var (
	dbPath    string
	verbosity int

	// Timeout flags (advanced)
	httpTimeout   time.Duration
	websocketPing time.Duration
	ipcDial       time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "embycord - Emby and Jellyfin rich presence",
		Long: `embycord shows what you are playing on Emby or Jellyfin as Discord rich presence.
Run without a subcommand to start the tray daemon.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.SetGlobalTimeouts(&config.TimeoutConfig{
				HTTPClient:    httpTimeout,
				WebSocketPing: websocketPing,
				IPCDial:       ipcDial,
			})
		},
		RunE: runDaemon,
	}

	defaults := config.DefaultTimeoutConfig()
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set EMBYCORD_DB_PATH env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", defaults.HTTPClient, "Timeout for HTTP requests to media servers")
	rootCmd.PersistentFlags().DurationVar(&websocketPing, "websocket-ping", defaults.WebSocketPing, "Interval between media server WebSocket keepalives")
	rootCmd.PersistentFlags().DurationVar(&ipcDial, "ipc-timeout", defaults.IPCDial, "Timeout for connecting to the Discord client")

	rootCmd.AddCommand(
		newRunCmd(),
		newServersCmd(),
		newLibrariesCmd(),
		newDiscoverCmd(),
		newAutostartCmd(),
		newSettingsCmd(),
		newResetCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s %s (commit: %s, built: %s)\n", appName, version, commit, date)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveDBPath applies the flag, then EMBYCORD_DB_PATH, then the per-user
// config directory.
func resolveDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if env := os.Getenv("EMBYCORD_DB_PATH"); env != "" {
		return env, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, appName, appName+".db"), nil
}

// openDB opens the configuration store and sets up logging from it
func openDB() (*database.DB, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Console only until the persisted preferences are readable
	setupConsoleLogging(verbosity)

	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader(db)
	debugEnabled := loader.Bool(config.KeyDebugLogging, false)
	logging.Apply(logging.LevelFor(verbosity, debugEnabled), loader, logging.FilePathForDB(path))

	return db, nil
}

func setupConsoleLogging(verbosity int) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	logging.SetLevel(logging.LevelFor(verbosity, false))
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
