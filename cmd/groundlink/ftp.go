package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/opd-ai/groundlink"
	"github.com/opd-ai/groundlink/ftp"
	"github.com/spf13/cobra"
)

var (
	burstDownload bool
	ftpWait       time.Duration
	ftpComponent  uint8
)

var ftpCmd = &cobra.Command{
	Use:   "ftp",
	Short: "Transfer files with MAVLink FTP",
}

// ftpRun wraps a single FTP operation with the System and the deadline.
func ftpRun(cmd *cobra.Command, fn func(ctx context.Context, client *ftp.Client) error) error {
	return withSystem(cmd, func(ctx context.Context, sys *groundlink.System) error {
		ctx, cancel := context.WithTimeout(ctx, ftpWait)
		defer cancel()
		if cmd.Flags().Changed("component") {
			sys.Files().SetTargetComponent(ftpComponent)
		}
		return fn(ctx, sys.Files())
	})
}

// report prints the outcome of an operation and turns failures into errors.
func report(w io.Writer, what string, result ftp.ClientResult) error {
	fmt.Fprintln(w, renderOutcome(what, result == ftp.Success, result))
	return result.Err()
}

// progressPrinter redraws a progress bar whenever another percent is done.
func progressPrinter(w io.Writer, name string) func(ftp.Progress) {
	last := -1
	return func(p ftp.Progress) {
		pct := int(p.Fraction() * 100)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\r%s %s", name, progressBar(p.Fraction(), 30))
	}
}

var ftpGetCmd = &cobra.Command{
	Use:   "get <remote-file> [local-dir]",
	Short: "Download a file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		localDir := "."
		if len(args) == 2 {
			localDir = args[1]
		}
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			out := cmd.ErrOrStderr()
			result := c.Download(ctx, args[0], localDir, burstDownload, progressPrinter(out, path.Base(args[0])))
			fmt.Fprintln(out)
			return report(cmd.OutOrStdout(), "get "+args[0], result)
		})
	},
}

var ftpPutCmd = &cobra.Command{
	Use:   "put <local-file> <remote-dir>",
	Short: "Upload a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			out := cmd.ErrOrStderr()
			result := c.Upload(ctx, args[0], args[1], progressPrinter(out, path.Base(args[0])))
			fmt.Fprintln(out)
			return report(cmd.OutOrStdout(), "put "+args[0], result)
		})
	},
}

var ftpLsCmd = &cobra.Command{
	Use:   "ls [remote-dir]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "/"
		if len(args) == 1 {
			dir = args[0]
		}
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			dirs, files, result := c.ListDirectory(ctx, dir)
			if result != ftp.Success {
				return report(cmd.OutOrStdout(), "ls "+dir, result)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderListing(dirs, files))
			return nil
		})
	},
}

var ftpMkdirCmd = &cobra.Command{
	Use:   "mkdir <remote-dir>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			return report(cmd.OutOrStdout(), "mkdir "+args[0], c.CreateDirectory(ctx, args[0]))
		})
	},
}

var ftpRmdirCmd = &cobra.Command{
	Use:   "rmdir <remote-dir>",
	Short: "Remove an empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			return report(cmd.OutOrStdout(), "rmdir "+args[0], c.RemoveDirectory(ctx, args[0]))
		})
	},
}

var ftpRmCmd = &cobra.Command{
	Use:   "rm <remote-file>",
	Short: "Remove a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			return report(cmd.OutOrStdout(), "rm "+args[0], c.RemoveFile(ctx, args[0]))
		})
	},
}

var ftpMvCmd = &cobra.Command{
	Use:   "mv <from> <to>",
	Short: "Rename a file or directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			return report(cmd.OutOrStdout(), "mv "+args[0]+" "+args[1], c.Rename(ctx, args[0], args[1]))
		})
	},
}

var ftpCmpCmd = &cobra.Command{
	Use:   "cmp <local-file> <remote-file>",
	Short: "Compare a local and a remote file by CRC32",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			identical, result := c.AreFilesIdentical(ctx, args[0], args[1])
			if result != ftp.Success {
				return report(cmd.OutOrStdout(), "cmp", result)
			}
			if identical {
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("identical"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("different"))
			return fmt.Errorf("%s and %s differ", args[0], args[1])
		})
	},
}

var ftpResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Close every session on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ftpRun(cmd, func(ctx context.Context, c *ftp.Client) error {
			return report(cmd.OutOrStdout(), "reset", c.Reset(ctx))
		})
	},
}

func init() {
	ftpCmd.PersistentFlags().DurationVar(&ftpWait, "wait", 10*time.Minute, "give up after this long")
	ftpCmd.PersistentFlags().Uint8Var(&ftpComponent, "component", 0, "FTP server component id (default the target component)")
	ftpGetCmd.Flags().BoolVar(&burstDownload, "burst", true, "use burst mode")

	ftpCmd.AddCommand(ftpGetCmd, ftpPutCmd, ftpLsCmd, ftpMkdirCmd, ftpRmdirCmd, ftpRmCmd, ftpMvCmd, ftpCmpCmd, ftpResetCmd)
}
