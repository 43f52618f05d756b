/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/archive"
	"github.com/ssargent/pinglog/pkg/store"
)

func newArchiveCmd() *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Keep decoded logs in the local archive",
		Long: `Import sensor logs into the pebble archive, list and delete them, and export
them back to sensor logs.

Examples:
  pinglog archive import ./logs/dive.bin --name "dive 1"
  pinglog archive list
  pinglog archive export 2Dk3yxqGXW1Y6Q9hZz2H6lHHXoF --output ./dive1.bin`,
	}

	archiveCmd.PersistentFlags().String("archive-dir", "", "Archive directory (default from configuration)")
	archiveCmd.AddCommand(
		newArchiveImportCmd(),
		newArchiveExportCmd(),
		newArchiveListCmd(),
		newArchiveDeleteCmd(),
	)
	return archiveCmd
}

// withArchive opens the archive for the duration of fn
func withArchive(cmd *cobra.Command, fn func(rt *runtime, a *archive.Archive) error) error {
	rt, err := runtimeFrom(cmd)
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("archive-dir")
	if dir == "" {
		dir = rt.cfg.Archive.Dir
	}

	a, err := getContainer().GetArchiveOpener()(archive.Config{Dir: dir, Logger: &rt.logger})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(rt, a)
}

func newArchiveImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a sensor log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name = filepath.Base(args[0])
			}

			return withArchive(cmd, func(rt *runtime, a *archive.Archive) error {
				reader, err := store.NewLogReader(rt.readerConfig(args[0]))
				if err != nil {
					return err
				}

				src, err := a.ImportLog(cmd.Context(), name, reader)
				var recErr *store.RecoveryError
				if err != nil && !errors.As(err, &recErr) {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %s as %s\n", name, src.ID)
				printStats(out, src.Stats)
				if !src.Complete {
					fmt.Fprintf(out, "Import is incomplete: %v\n", err)
				}
				return nil
			})
		},
	}

	importCmd.Flags().String("name", "", "Source name (default the file name)")
	return importCmd
}

func newArchiveExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export an archived source to a sensor log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source id %q: %w", args[0], err)
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = id.String() + ".bin"
			}

			return withArchive(cmd, func(rt *runtime, a *archive.Archive) error {
				n, err := a.Export(cmd.Context(), id, rt.writerConfig(output))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, output)
				return nil
			})
		},
	}

	exportCmd.Flags().StringP("output", "o", "", "Output log (default <id>.bin)")
	return exportCmd
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, func(rt *runtime, a *archive.Archive) error {
				sources, err := a.Sources()
				if err != nil {
					return err
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources archived.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tDEVICE\tRECORDS\tLOST BYTES\tCOMPLETE\tIMPORTED")
				for _, s := range sources {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
						s.ID, s.Name, s.Header.Sensor.Type, s.Records, s.Stats.LostBytes, s.Complete,
						s.ImportedAt.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
}

func newArchiveDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source id %q: %w", args[0], err)
			}
			return withArchive(cmd, func(rt *runtime, a *archive.Archive) error {
				if err := a.Delete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				return nil
			})
		},
	}
}
