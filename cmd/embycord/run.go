package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/autostart"
	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/discord"
	"github.com/saltyorg/embycord/internal/presence"
	"github.com/saltyorg/embycord/internal/tray"
	"github.com/saltyorg/embycord/internal/update"
	"github.com/saltyorg/embycord/internal/watcher"
)

const (
	repoOwner = "saltyorg"
	repoName  = "embycord"
)

var (
	noTray  bool
	iconURL string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the presence daemon and tray icon",
		RunE:  runDaemon,
	}
	cmd.Flags().BoolVar(&noTray, "no-tray", false, "Run without a tray icon (headless)")
	cmd.Flags().StringVar(&iconURL, "icon-url", "", "Image URL registered as this device's icon on the media server")
	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	defer func() {
		if err := db.Optimize(); err != nil {
			log.Debug().Err(err).Msg("Database optimize skipped")
		}
	}()

	log.Info().
		Str("version", version).
		Str("database", db.Path()).
		Msg("Starting embycord")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ipc := discord.NewClient()
	ipc.OnStateChange(func(s discord.State) {
		log.Debug().Str("state", s.String()).Msg("Discord connection state changed")
	})

	sync := presence.NewSynchronizer(db, ipc, presence.NewClientFactory(version, iconURL))
	defer sync.Shutdown()

	if err := sync.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start presence")
	}

	// Pick up edits made with the CLI while the daemon runs
	settingsWatcher, err := watcher.New(db.Path(), sync.Reload)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize settings watcher")
	} else {
		defer settingsWatcher.Stop()
		if err := settingsWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start settings watcher")
		}
	}

	var trayIcon *tray.Tray
	if !noTray {
		var launcher tray.Autostart
		if m, err := autostart.New(appName, "run"); err != nil {
			log.Warn().Err(err).Msg("Launch at login unavailable")
		} else {
			launcher = m
		}
		trayIcon = tray.New(tray.NewActions(db, sync, launcher, verbosity), sync)
	}

	loader := config.NewLoader(db)
	if loader.Bool(config.KeyCheckUpdates, true) && version != "dev" {
		checker := update.NewChecker(repoOwner, repoName, version)
		scheduler := update.NewScheduler(checker, update.DefaultSchedule, func(res update.Result) {
			if trayIcon != nil {
				trayIcon.SetUpdate(res)
			}
		})
		if err := scheduler.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start update checker")
		} else {
			defer scheduler.Stop()
		}
	}

	if trayIcon == nil {
		<-ctx.Done()
		log.Info().Msg("embycord stopped")
		return nil
	}

	trayIcon.Run(ctx, cancel)

	log.Info().Msg("embycord stopped")
	return nil
}
