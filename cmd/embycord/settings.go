package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/config"
)

// hiddenSettings are never printed or edited from the CLI
var hiddenSettings = []string{config.KeySecret}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one or all preferences",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()

				all, err := db.GetAllSettings()
				if err != nil {
					return err
				}

				if len(args) == 1 {
					value, ok := all[args[0]]
					if !ok || slices.Contains(hiddenSettings, args[0]) {
						return fmt.Errorf("unknown setting %q", args[0])
					}
					fmt.Println(value)
					return nil
				}

				keys := make([]string, 0, len(all))
				for k := range all {
					if !slices.Contains(hiddenSettings, k) {
						keys = append(keys, k)
					}
				}
				slices.Sort(keys)

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\n", k, all[k])
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a preference",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, value := args[0], args[1]
				if slices.Contains(hiddenSettings, key) || key == config.KeyDeviceUUID {
					return fmt.Errorf("setting %q is read-only", key)
				}

				db, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()

				if err := db.SetSetting(key, value); err != nil {
					return err
				}
				fmt.Printf("%s = %s\n", key, value)
				return nil
			},
		},
	)
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all servers and restore default preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Print("This removes every configured server. Continue? [y/N] ")
				answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Println("Aborted")
					return nil
				}
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Reset(); err != nil {
				return err
			}
			fmt.Println("Configuration reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
