// Command titanctl runs kernel scenarios on the simulator and talks to
// boards over their trace UART.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	noColor bool

	rootCmd = &cobra.Command{
		Use:           "titanctl",
		Short:         "Drive the titan kernel simulator and board trace streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(boardsCmd, runCmd, consoleCmd, monitorCmd, versionCmd)
}

// stdout returns the writer for command output and whether it takes ANSI
// colors.
func stdout() (io.Writer, bool) {
	color := !noColor && term.IsTerminal(int(os.Stdout.Fd()))
	return colorable.NewColorableStdout(), color
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "titanctl:", err)
		os.Exit(1)
	}
}
