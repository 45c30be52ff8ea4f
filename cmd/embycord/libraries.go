package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/mediabrowser"
)

var libraryServerID int64

func newLibrariesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "libraries",
		Aliases: []string{"library", "libs"},
		Short:   "Choose which libraries are shown as presence",
	}
	cmd.PersistentFlags().Int64Var(&libraryServerID, "server", 0, "Server id (defaults to the selected server)")
	cmd.AddCommand(newLibrariesListCmd(), newLibrariesSetCmd("ignore", true), newLibrariesSetCmd("watch", false))
	return cmd
}

func targetServer(db *database.DB) (*database.MediaServer, error) {
	if libraryServerID != 0 {
		return db.GetServer(libraryServerID)
	}
	server, err := db.GetSelectedServer()
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, fmt.Errorf("no media server selected")
	}
	return server, nil
}

func fetchViews(ctx context.Context, db *database.DB, server *database.MediaServer) ([]mediabrowser.View, error) {
	client := newAPIClient(db, server)
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	defer client.Logout(context.WithoutCancel(ctx))

	return client.GetUserViews(ctx)
}

func newLibrariesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List libraries and whether they are ignored",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			server, err := targetServer(db)
			if err != nil {
				return err
			}
			views, err := fetchViews(cmd.Context(), db, server)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSHOWN")
			for _, v := range views {
				shown := "yes"
				if server.IsIgnored(v.ID) {
					shown = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.CollectionType, shown)
			}
			return w.Flush()
		},
	}
}

func newLibrariesSetCmd(use string, ignore bool) *cobra.Command {
	short := "Show presence for a library again"
	if ignore {
		short = "Stop showing presence for a library"
	}

	return &cobra.Command{
		Use:   use + " <library-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			server, err := targetServer(db)
			if err != nil {
				return err
			}

			viewID := args[0]
			if server.IsIgnored(viewID) == ignore {
				fmt.Printf("Library %s already %sd\n", viewID, use)
				return nil
			}
			if _, err := db.ToggleIgnoredView(server.ID, viewID); err != nil {
				return err
			}
			fmt.Printf("Library %s %sd on %s\n", viewID, use, server.DisplayName())
			return nil
		},
	}
}
