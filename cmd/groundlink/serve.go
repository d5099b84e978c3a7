package main

import (
	"context"
	"fmt"

	"github.com/opd-ai/groundlink"
	"github.com/spf13/cobra"
)

var serveRoot string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory over MAVLink FTP until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("root") {
			cfg.FTP.Root = serveRoot
		}
		if cfg.FTP.Root == "" {
			return fmt.Errorf("no root directory: pass --root or set ftp.root")
		}

		return withSystem(cmd, func(ctx context.Context, sys *groundlink.System) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s serving %s as %s on %v\n",
				okStyle.Render("●"), cfg.FTP.Root, sys.Transport().LocalAddr(), cfg.Endpoints)
			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("stopped"))
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "directory to serve")
}
