package trace

import (
	"fmt"
	"io"
	"strconv"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
	ansiGray   = "\x1b[90m"
)

func kindColor(k Kind) string {
	switch k {
	case KindSwitch:
		return ansiCyan
	case KindWake, KindResume, KindStart:
		return ansiGreen
	case KindSleep, KindSuspend, KindStop, KindExit:
		return ansiYellow
	case KindCreate, KindDestroy, KindPriority:
		return ansiBlue
	case KindFault:
		return ansiRed
	case KindAge:
		return ansiGray
	}
	return ansiGray
}

// Printer renders events as one text line each.
type Printer struct {
	w     io.Writer
	color bool
	names map[int32]string
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color, names: make(map[int32]string)}
}

// Name labels a thread id in later output.
func (p *Printer) Name(id int32, name string) { p.names[id] = name }

func (p *Printer) thread(id int32) string {
	if n, ok := p.names[id]; ok {
		return n
	}
	return "#" + strconv.Itoa(int(id))
}

// Format returns the line for ev without a trailing newline.
func (p *Printer) Format(ev Event) string {
	var detail string
	switch ev.Kind {
	case KindSwitch:
		detail = p.thread(ev.Arg) + " -> " + p.thread(ev.Thread)
	case KindCreate, KindPriority:
		detail = p.thread(ev.Thread) + " prio=" + strconv.Itoa(int(ev.Arg))
	case KindSleep:
		detail = p.thread(ev.Thread) + " ticks=" + strconv.Itoa(int(ev.Arg))
	case KindStart:
		detail = p.thread(ev.Thread) + " arg=" + strconv.Itoa(int(ev.Arg))
	case KindFault:
		detail = p.thread(ev.Thread) + " code=" + strconv.Itoa(int(ev.Arg))
	case KindAge:
		detail = p.thread(ev.Thread) + " age=" + strconv.Itoa(int(ev.Arg))
	default:
		detail = p.thread(ev.Thread)
	}
	kind := fmt.Sprintf("%-8s", ev.Kind)
	if p.color {
		kind = kindColor(ev.Kind) + kind + ansiReset
	}
	return fmt.Sprintf("%8d %s %s", ev.Tick, kind, detail)
}

func (p *Printer) Print(ev Event) error {
	_, err := io.WriteString(p.w, p.Format(ev)+"\n")
	return err
}
