/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/ping"
	"github.com/ssargent/pinglog/pkg/store"
)

const (
	decodePrompt = "Continue and decode received messages? [Y/n]: "
	previewBytes = 16
)

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode the records of a sensor log",
		Long: `Print the header of a sensor log, then every record in it.

With --messages the record payloads are run through the ping protocol parser
and the profile and device data messages are printed instead.

Examples:
  pinglog decode ./logs/dive.bin
  pinglog decode ./logs/dive.bin --yes --messages`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd)
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")
			messages, _ := cmd.Flags().GetBool("messages")
			out := cmd.OutOrStdout()

			reader, err := store.NewLogReader(rt.readerConfig(args[0]))
			if err != nil {
				return err
			}
			it, err := reader.Iterator()
			if err != nil {
				return err
			}
			defer it.Close()

			printHeader(out, it.Header())
			if !yes && !confirm(cmd.InOrStdin(), out, decodePrompt) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			if messages {
				decodeMessages(out, ping.NewMessageIterator(it))
			} else {
				decodeRecords(out, it)
			}

			printStats(out, it.Stats())
			return it.Err()
		},
	}

	decodeCmd.Flags().BoolP("yes", "y", false, "Decode without asking for confirmation")
	decodeCmd.Flags().BoolP("messages", "m", false, "Parse payloads as ping protocol messages")
	return decodeCmd
}

// confirm asks a yes/no question; an empty answer means yes
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

func decodeRecords(out io.Writer, it store.RecordIterator) {
	for i := 0; it.Next(); i++ {
		record := it.Record()
		fmt.Fprintf(out, "%6d  %s  %5d bytes  %s\n", i, record.Clock(), len(record.Payload), preview(record.Payload))
	}
}

func decodeMessages(out io.Writer, it *ping.MessageIterator) {
	for i := 0; it.Next(); i++ {
		msg := it.Message()
		line := fmt.Sprintf("%6d  %s  %s", i, codec.NormalizeTimestamp(it.Timestamp()), msg)
		if settings, err := ping.Settings(msg); err == nil {
			line += fmt.Sprintf("  angle %.1f deg, range %.2f m",
				settings.AngleDegrees(), settings.Range(ping.DefaultSpeedOfSound))
		}
		fmt.Fprintln(out, line)
	}
	parser := it.Parser()
	fmt.Fprintf(out, "Parser: %d messages parsed, %d errors\n", parser.Parsed, parser.Errors)
}

func printStats(out io.Writer, stats store.PassStats) {
	fmt.Fprintf(out, "%d records, %d recoveries, %d bytes lost (%.2f%% of %d), %d truncated bytes\n",
		stats.Records, stats.Recoveries, stats.LostBytes, stats.LostFraction()*100, stats.FileSize, stats.TruncatedBytes)
}

func preview(payload []byte) string {
	if len(payload) <= previewBytes {
		return hex.EncodeToString(payload)
	}
	return hex.EncodeToString(payload[:previewBytes]) + "..."
}
