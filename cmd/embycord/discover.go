package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/saltyorg/embycord/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find Emby and Jellyfin servers on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupConsoleLogging(verbosity)

			servers, err := discovery.Find(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No servers found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tADDRESS\tPORT\tPROTOCOL\tID")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Type, s.Name, s.Address, s.Port, s.Protocol, s.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultTimeout, "How long to wait for answers")
	return cmd
}
