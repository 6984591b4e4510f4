package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"titan/internal/board"
	"titan/internal/trace"
)

var (
	monitorOpts = struct {
		port  string
		file  string
		board string
		baud  int
		list  bool
	}{}

	errPortBusy = errors.New("port is used by another titanctl")

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Decode the trace stream of a board's UART or a capture file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, color := stdout()
			if monitorOpts.list {
				return listPorts(out)
			}

			var r io.Reader
			switch {
			case monitorOpts.file != "":
				f, err := os.Open(monitorOpts.file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			case monitorOpts.port != "":
				port, unlock, err := openPort(monitorOpts.port)
				if err != nil {
					return err
				}
				defer unlock()
				defer port.Close()
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt)
				defer signal.Stop(sig)
				go func() {
					<-sig
					port.Close()
				}()
				r = port
			default:
				return errors.New("one of --port or --file is required")
			}

			dec := trace.NewDecoder(r)
			p := trace.NewPrinter(out, color)
			var n int
			for {
				ev, err := dec.Next()
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
						break
					}
					var perr *serial.PortError
					if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
						break
					}
					return err
				}
				if err := p.Print(ev); err != nil {
					return err
				}
				n++
			}
			fmt.Fprintf(os.Stderr, "%d events, %d bytes skipped\n", n, dec.Skipped())
			return nil
		},
	}
)

func init() {
	f := monitorCmd.Flags()
	f.StringVarP(&monitorOpts.port, "port", "p", "", "Serial port the board's trace UART is attached to")
	f.StringVarP(&monitorOpts.file, "file", "f", "", "Capture file written by the host build's -serial flag")
	f.StringVarP(&monitorOpts.board, "board", "b", "stm32h745-cm7", "Board profile supplying the default baud rate")
	f.IntVar(&monitorOpts.baud, "baud", 0, "Override the baud rate")
	f.BoolVarP(&monitorOpts.list, "list", "l", false, "List serial ports and exit")
}

// openPort opens a serial port and takes an advisory lock on it so two
// monitors do not split one byte stream between them.
func openPort(name string) (serial.Port, func(), error) {
	baud := monitorOpts.baud
	if baud == 0 {
		b, err := board.Find(monitorOpts.board)
		if err != nil {
			return nil, nil, err
		}
		baud = int(b.SerialBaud)
	}

	lock := flock.New(filepath.Join(os.TempDir(), "titanctl-"+lockName(name)+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", name, errPortBusy)
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return port, func() { lock.Unlock() }, nil
}

func lockName(port string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(port)
}

func listPorts(out io.Writer) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(out, p)
	}
	return nil
}
