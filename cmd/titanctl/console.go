package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/shlex"
	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"titan/internal/board"
	"titan/internal/scenario"
	"titan/internal/trace"
)

var (
	consoleBoard string

	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Drive a simulated kernel interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := board.Find(consoleBoard)
			if err != nil {
				return err
			}
			s, err := scenario.NewSession(b, scenario.Options{Trace: true, Interactive: true})
			if err != nil {
				return err
			}
			defer s.Close()

			out, color := stdout()
			c := newConsole(s, out, color)
			fmt.Fprintf(out, "titan console on %s, type help for commands\n", b.Name)

			read, closeInput, err := lineReader()
			if err != nil {
				return err
			}
			defer closeInput()
			for {
				fmt.Fprint(out, "titan> ")
				line, err := read()
				if err != nil {
					if errors.Is(err, io.EOF) {
						fmt.Fprintln(out)
						return nil
					}
					return err
				}
				if err := c.exec(line); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					fmt.Fprintln(out, "error:", err)
				}
			}
		},
	}
)

func init() {
	consoleCmd.Flags().StringVarP(&consoleBoard, "board", "b", "sim-fast", "Board profile to simulate")
}

// lineReader reads from the controlling terminal when there is one and
// from stdin otherwise, so the console can also be scripted.
func lineReader() (func() (string, error), func(), error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		sc := bufio.NewScanner(os.Stdin)
		read := func() (string, error) {
			if sc.Scan() {
				return sc.Text(), nil
			}
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return read, func() {}, nil
	}
	t, err := tty.Open()
	if err != nil {
		return nil, nil, err
	}
	return t.ReadString, func() { t.Close() }, nil
}

var (
	errQuit  = errors.New("quit")
	errUsage = errors.New("usage")
)

type console struct {
	s       *scenario.Session
	out     io.Writer
	printer *trace.Printer
	tracing bool
}

func newConsole(s *scenario.Session, out io.Writer, color bool) *console {
	return &console{s: s, out: out, printer: trace.NewPrinter(out, color)}
}

const consoleHelp = `commands:
  run [ticks]                    advance the simulation (default 100 ticks)
  threads                        show the thread table
  report                         show run time shares and fairness
  trace on|off                   print scheduler events while running
  spawn <name> <prio> [work] [period]
                                 create and start a thread
  start|stop|suspend|resume|destroy <name>
  prio <name> <priority>         change a thread's base priority
  quit`

func (c *console) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "run", "r":
		n := uint64(100)
		if len(args) > 0 {
			if n, err = strconv.ParseUint(args[0], 10, 64); err != nil {
				return err
			}
		}
		c.s.Run(n)
		c.flush()
		fmt.Fprintf(c.out, "tick %d\n", c.s.Ticks())
		if code, halted := c.s.Halted(); halted {
			fmt.Fprintf(c.out, "core halted: bkpt 0x%02X\n", code)
		}
		return nil
	case "threads", "ps":
		return c.threads()
	case "report":
		r := c.s.Report()
		_, err := r.WriteTo(c.out)
		return err
	case "trace":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("%w: trace on|off", errUsage)
		}
		c.tracing = args[0] == "on"
		c.s.Events()
		return nil
	case "spawn":
		return c.spawn(args)
	case "prio":
		if len(args) != 2 {
			return fmt.Errorf("%w: prio <name> <priority>", errUsage)
		}
		p, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return err
		}
		err = c.s.SetPriority(args[0], int32(p))
		c.flush()
		return err
	}

	ops := map[string]func(string) error{
		"start":   c.s.Start,
		"stop":    c.s.Stop,
		"suspend": c.s.Suspend,
		"resume":  c.s.Resume,
		"destroy": c.s.Destroy,
	}
	op, ok := ops[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: %s <name>", errUsage, cmd)
	}
	err = op(args[0])
	c.flush()
	return err
}

func (c *console) spawn(args []string) error {
	if len(args) < 2 || len(args) > 4 {
		return fmt.Errorf("%w: spawn <name> <prio> [work] [period]", errUsage)
	}
	prio, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return err
	}
	spec := scenario.ThreadSpec{Name: args[0], Priority: int32(prio)}
	if len(args) > 2 {
		if spec.Work, err = scenario.ParseWorkload(args[2]); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		p, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			return err
		}
		spec.Period = uint32(p)
	}
	th, err := c.s.Spawn(spec)
	c.flush()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is %v\n", spec.Name, th)
	return nil
}

func (c *console) threads() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tPRIO\tAGE\tCRIT\tWORK\tSTACK\tITERS")
	for _, v := range c.s.Threads() {
		work := string(v.Work)
		if work == "" {
			work = "-"
		}
		stack := board.FormatSize(v.StackSize)
		if !v.StackOK {
			stack += "!"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%d\n",
			v.Thread.ID(), v.Name, v.State, v.Priority, v.Age, v.Critical, work, stack, v.Iterations)
	}
	return tw.Flush()
}

// flush prints or discards the events recorded since the last command.
func (c *console) flush() {
	evs := c.s.Events()
	if !c.tracing {
		return
	}
	c.s.Printer(c.printer)
	for _, ev := range evs {
		c.printer.Print(ev)
	}
}
