package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/autostart"
)

func newAutostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Launch embycord when you log in",
	}

	run := func(action func(*autostart.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			setupConsoleLogging(verbosity)
			m, err := autostart.New(appName, "run")
			if err != nil {
				return err
			}
			if err := action(m); err != nil {
				return err
			}
			on, err := m.Enabled()
			if err != nil {
				return err
			}
			fmt.Printf("Launch at login: %s\n", onOff(on))
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable launch at login",
			RunE:  run((*autostart.Manager).Enable),
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable launch at login",
			RunE:  run((*autostart.Manager).Disable),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether launch at login is enabled",
			RunE:  run(func(*autostart.Manager) error { return nil }),
		},
	)
	return cmd
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
