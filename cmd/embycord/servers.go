package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/logging"
	"github.com/saltyorg/embycord/internal/mediabrowser"
)

func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "servers",
		Aliases: []string{"server"},
		Short:   "Manage media servers",
	}
	cmd.AddCommand(newServersAddCmd(), newServersListCmd(), newServersSelectCmd(), newServersRemoveCmd())
	return cmd
}

func newServersAddCmd() *cobra.Command {
	var (
		serverType string
		name       string
		address    string
		port       int
		protocol   string
		username   string
		password   string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a media server after verifying the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := database.ParseServerType(serverType)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("EMBYCORD_PASSWORD")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			server := &database.MediaServer{
				Type:     st,
				Name:     name,
				Address:  address,
				Port:     port,
				Protocol: protocol,
				Username: username,
				Password: password,
			}

			if !skipVerify {
				serverID, err := verifyServer(cmd.Context(), db, server)
				if err != nil {
					return err
				}
				server.ServerID = serverID
			}

			if err := db.CreateServer(server); err != nil {
				return err
			}

			log.Debug().Fields(logging.Redact(map[string]any{
				"address":  server.Address,
				"port":     server.Port,
				"username": server.Username,
				"password": server.Password,
			}, logging.SensitiveKeys...)).Msg("Media server stored")

			fmt.Printf("Added %s server %q (id %d)\n", server.Type, server.DisplayName(), server.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverType, "type", "t", "emby", "Server type: emby or jellyfin")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Host name or IP address")
	cmd.Flags().IntVarP(&port, "port", "p", 8096, "Port")
	cmd.Flags().StringVar(&protocol, "protocol", "http", "http or https")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set EMBYCORD_PASSWORD env var)")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Store without logging in first")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

// verifyServer logs in once with the new credentials and returns the
// server's reported id.
func verifyServer(ctx context.Context, db *database.DB, server *database.MediaServer) (string, error) {
	client := newAPIClient(db, server)
	if err := client.Login(ctx); err != nil {
		if mediabrowser.IsAuthError(err) {
			return "", fmt.Errorf("login to %s failed, check the address and credentials: %w", server.DisplayName(), err)
		}
		return "", err
	}
	defer client.Logout(context.WithoutCancel(ctx))

	return client.ServerID(), nil
}

func newAPIClient(db *database.DB, server *database.MediaServer) *mediabrowser.Client {
	settings := config.LoadSettings(config.NewLoader(db))
	hostname, _ := os.Hostname()
	device := mediabrowser.DeviceIdentity{
		Name:    hostname,
		ID:      settings.DeviceUUID,
		Version: version,
	}
	return mediabrowser.New(server.Type, mediabrowser.CredentialsFor(server), device)
}

func newServersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured media servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			servers, err := db.ListServers()
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No media servers configured. Add one with: embycord servers add")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSELECTED\tTYPE\tNAME\tADDRESS\tUSER\tIGNORED")
			for _, s := range servers {
				selected := ""
				if s.Selected {
					selected = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s://%s:%d\t%s\t%d\n",
					s.ID, selected, s.Type, s.DisplayName(), s.Protocol, s.Address, s.Port, s.Username, len(s.IgnoredViews))
			}
			return w.Flush()
		},
	}
}

func newServersSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a server the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SelectServer(id); err != nil {
				return err
			}
			fmt.Printf("Selected server %d\n", id)
			return nil
		},
	}
}

func newServersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a media server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteServer(id); err != nil {
				return err
			}
			fmt.Printf("Removed server %d\n", id)
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid server id %q", s)
	}
	return id, nil
}
