/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/ping"
	"github.com/ssargent/pinglog/pkg/store"
)

func newReprocessCmd() *cobra.Command {
	reprocessCmd := &cobra.Command{
		Use:   "reprocess <file>",
		Short: "Write a repaired or sliced copy of a sensor log",
		Long: `Decode a sensor log and write the selected part of it to a new log that
carries the same header.

By default payloads are parsed as ping protocol messages and only complete
profile and device data messages are written, one per record. Use --raw to
copy record payloads unchanged. --start, --stop and --step select by position
after parsing.

Examples:
  pinglog reprocess ./logs/dive.bin
  pinglog reprocess ./logs/dive.bin --start 100 --stop 500 --step 2 --output ./slice.bin
  pinglog reprocess ./logs/damaged.bin --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd)
			if err != nil {
				return err
			}
			input := args[0]
			start, _ := cmd.Flags().GetInt("start")
			stop, _ := cmd.Flags().GetInt("stop")
			step, _ := cmd.Flags().GetInt("step")
			output, _ := cmd.Flags().GetString("output")
			raw, _ := cmd.Flags().GetBool("raw")

			if output == "" {
				output = defaultOutputPath(input, rt.cfg.Writer.OutputSuffix)
			}
			if sameFile(input, output) {
				return errors.New("output must differ from the input log")
			}
			sel := store.Selection{Start: start, Stop: stop, Step: step}
			if err := sel.Validate(); err != nil {
				return err
			}

			// A recovery failure still leaves the records before it in output
			n, stats, err := reprocess(rt, input, output, sel, raw)
			var recErr *store.RecoveryError
			if err != nil && !errors.As(err, &recErr) {
				return err
			}

			rt.logger.Info().
				Str("input", input).
				Str("output", output).
				Int64("records", n).
				Int64("lost_bytes", stats.LostBytes).
				Msg("log reprocessed")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, output)
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}

	reprocessCmd.Flags().Int("start", 0, "Index of the first selected message")
	reprocessCmd.Flags().Int("stop", -1, "Index after the last selected message (-1 = end)")
	reprocessCmd.Flags().Int("step", 1, "Select every n-th message")
	reprocessCmd.Flags().StringP("output", "o", "", "Output log (default <file>_processed.bin)")
	reprocessCmd.Flags().Bool("raw", false, "Copy record payloads without parsing messages")
	return reprocessCmd
}

// reprocess copies the selected records of input to output and returns the
// number written with the statistics of the read pass
func reprocess(rt *runtime, input, output string, sel store.Selection, raw bool) (int64, store.PassStats, error) {
	reader, err := store.NewLogReader(rt.readerConfig(input))
	if err != nil {
		return 0, store.PassStats{}, err
	}
	it, err := reader.Iterator()
	if err != nil {
		return 0, store.PassStats{}, err
	}

	var source store.RecordIterator = it
	if !raw {
		source = ping.NewMessageIterator(it)
	}
	selected, err := store.Select(source, sel)
	if err != nil {
		it.Close()
		return 0, store.PassStats{}, err
	}

	w, err := store.NewLogWriterFromReference(rt.writerConfig(output), input)
	if err != nil {
		it.Close()
		return 0, store.PassStats{}, err
	}

	n, err := w.WriteAll(selected)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return n, it.Stats(), err
}

// defaultOutputPath replaces the extension of input with suffix + ".bin"
func defaultOutputPath(input, suffix string) string {
	if suffix == "" {
		suffix = "_processed"
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + suffix + ".bin"
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
