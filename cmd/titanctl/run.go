package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"titan/internal/board"
	"titan/internal/scenario"
	"titan/internal/trace"
)

var (
	runOpts = struct {
		ticks  uint64
		board  string
		trace  bool
		checks bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run <scenario.lua>...",
		Short: "Run Lua scenarios on the simulator and evaluate their checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, color := stdout()
			failed := 0
			for _, path := range args {
				if err := runScenario(out, color, path); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", paint(color, ansiRed, "FAIL"), filepath.Base(path), err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", paint(color, ansiGreen, "PASS"), filepath.Base(path))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}
)

func init() {
	f := runCmd.Flags()
	f.Uint64VarP(&runOpts.ticks, "ticks", "n", 0, "Override the scenario's tick budget")
	f.StringVarP(&runOpts.board, "board", "b", "", "Override the scenario's board profile")
	f.BoolVarP(&runOpts.trace, "trace", "t", false, "Print every scheduler event")
	f.BoolVar(&runOpts.checks, "checks", false, "Enable the kernel's scheduler self-checks")
}

func runScenario(out io.Writer, color bool, path string) error {
	sc, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	defer sc.Close()

	if runOpts.ticks > 0 {
		sc.Ticks = runOpts.ticks
	}
	if runOpts.board != "" {
		if sc.Board, err = board.Find(runOpts.board); err != nil {
			return err
		}
	}
	if !runOpts.trace {
		r, err := sc.Run(scenario.Options{Checks: runOpts.checks})
		if _, werr := r.WriteTo(out); werr != nil {
			return werr
		}
		return err
	}

	// With tracing on, drive the session by hand so the events can be
	// printed as they are produced.
	s, err := scenario.NewSession(sc.Board, scenario.Options{Trace: true, Checks: runOpts.checks || sc.Checks}, sc.Threads...)
	if err != nil {
		return err
	}
	defer s.Close()
	p := s.Printer(trace.NewPrinter(out, color))
	for done := uint64(0); done < sc.Ticks; {
		step := min(sc.Ticks-done, 100)
		s.Run(step)
		done += step
		for _, ev := range s.Events() {
			if err := p.Print(ev); err != nil {
				return err
			}
		}
	}
	r := s.Report()
	if _, err := r.WriteTo(out); err != nil {
		return err
	}
	return sc.Check(&r)
}

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

func paint(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}
