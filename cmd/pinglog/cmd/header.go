/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

func newHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "header <file>",
		Short: "Print the header of a sensor log",
		Long: `Print the header of a sensor log and whether it is a recognized PingViewer log.

Example:
  pinglog header ./logs/20210101-120000.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd)
			if err != nil {
				return err
			}
			reader, err := store.NewLogReader(rt.readerConfig(args[0]))
			if err != nil {
				return err
			}
			header, err := reader.Header()
			if err != nil {
				return err
			}
			printHeader(cmd.OutOrStdout(), header)
			return nil
		},
	}
}

func printHeader(out io.Writer, h *codec.Header) {
	fmt.Fprintf(out, "Header:\n")
	fmt.Fprintf(out, "  id:            %s\n", h.ID)
	fmt.Fprintf(out, "  version:       %d\n", h.Version)
	fmt.Fprintf(out, "  build hash:    %s\n", h.BuildInfo.Hash)
	fmt.Fprintf(out, "  build date:    %s\n", h.BuildInfo.Date)
	fmt.Fprintf(out, "  build tag:     %s\n", h.BuildInfo.Tag)
	fmt.Fprintf(out, "  os:            %s %s\n", h.BuildInfo.OSName, h.BuildInfo.OSVersion)
	fmt.Fprintf(out, "  sensor family: %s\n", h.Sensor.Family)
	fmt.Fprintf(out, "  device type:   %s\n", h.Sensor.Type)
	if err := h.Validate(); err != nil {
		fmt.Fprintf(out, "  valid:         no (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "  valid:         yes\n")
}
