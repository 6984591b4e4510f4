package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"titan/internal/board"
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List the known board profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := stdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCORE\tCPU\tTICK\tSCHED\tTHREADS\tSTACK\tPRIO\tPEER")
		for _, b := range board.All() {
			peer := b.Peer
			if peer == "" {
				peer = "-"
			}
			mode := ""
			if b.StrictPriority {
				mode = " strict"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dHz\t%dHz\t%d\t%s\t%d..%d%s\t%s\n",
				b.Name, b.Core, hz(b.CPUFreq), b.TickFreq, b.SchedFreq, b.MaxThreads,
				b.MinStack, b.MinPriority, b.MaxPriority, mode, peer)
		}
		return tw.Flush()
	},
}

func hz(f uint32) string {
	switch {
	case f >= 1000000 && f%1000000 == 0:
		return fmt.Sprintf("%dMHz", f/1000000)
	case f >= 1000 && f%1000 == 0:
		return fmt.Sprintf("%dkHz", f/1000)
	}
	return fmt.Sprintf("%dHz", f)
}
