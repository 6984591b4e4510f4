package scenario

import (
	"fmt"
	"io"

	"titan/internal/board"
	"titan/internal/trace"
	"titan/kernel"
)

// ThreadReport is what one thread got out of a run.
type ThreadReport struct {
	Name       string
	ID         int32
	Priority   int32
	Work       Workload
	State      kernel.State
	Stack      int
	RunTicks   uint64
	Switches   uint64
	Iterations uint64
	// MaxAge is the longest the thread waited while ready, in aging periods.
	MaxAge uint32
	// Share is RunTicks over the session's ticks.
	Share float64
}

// Report summarises a session.
type Report struct {
	Board   string
	Ticks   uint64
	Threads []ThreadReport
	// Fairness of the worker threads' shares.
	Mean, CV, Jain float64
	Faults         []kernel.Fault
	Halted         bool
	HaltCode       uint8
}

// Thread finds a thread by name.
func (r *Report) Thread(name string) (ThreadReport, bool) {
	for _, t := range r.Threads {
		if t.Name == name {
			return t, true
		}
	}
	return ThreadReport{}, false
}

// Report credits ticks up to now and summarises every thread the session
// registered, including ones that have since been destroyed.
func (s *Session) Report() Report {
	ticks := s.k.Ticks()
	usage := s.rec.usage
	usage.Close(uint32(ticks))

	live := make(map[int32]kernel.ThreadInfo)
	for _, ti := range s.k.Snapshot(nil) {
		live[ti.Thread.ID()] = ti
	}

	r := Report{Board: s.board.Name, Ticks: ticks, Faults: s.faults}
	r.HaltCode, r.Halted = s.core.Halted()

	var shares []float64
	for _, name := range s.order {
		th := s.threads[name]
		id := th.ID()
		t := ThreadReport{
			Name:     name,
			ID:       id,
			RunTicks: usage.Ticks(id),
			Switches: usage.Switches(id),
			MaxAge:   usage.MaxAge(id),
		}
		if ti, ok := live[id]; ok {
			t.State, t.Priority, t.Stack = ti.State, ti.Priority, ti.StackSize
		}
		if ticks > 0 {
			t.Share = float64(t.RunTicks) / float64(ticks)
		}
		if w := s.workers[id]; w != nil {
			t.Work, t.Iterations = w.spec.Work, w.iters
			shares = append(shares, t.Share)
		}
		r.Threads = append(r.Threads, t)
	}
	r.Mean, r.CV, r.Jain = trace.Fairness(shares)
	return r
}

// WriteTo prints the report as a table.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var n int64
	write := func(format string, args ...any) error {
		m, err := fmt.Fprintf(w, format, args...)
		n += int64(m)
		return err
	}

	if err := write("board %s, %d ticks\n", r.Board, r.Ticks); err != nil {
		return n, err
	}
	if err := write("%-4s %-10s %-9s %5s %-8s %8s %8s %9s %6s %10s %7s\n",
		"id", "name", "state", "prio", "work", "stack", "ticks", "switches", "maxage", "iters", "share"); err != nil {
		return n, err
	}
	for _, t := range r.Threads {
		stack := "-"
		if t.Stack > 0 {
			stack = board.FormatSize(t.Stack)
		}
		work := string(t.Work)
		if work == "" {
			work = "-"
		}
		if err := write("%-4d %-10s %-9s %5d %-8s %8s %8d %9d %6d %10d %6.1f%%\n",
			t.ID, t.Name, t.State, t.Priority, work, stack, t.RunTicks, t.Switches, t.MaxAge, t.Iterations, 100*t.Share); err != nil {
			return n, err
		}
	}
	if err := write("fairness mean=%.3f cv=%.3f jain=%.3f\n", r.Mean, r.CV, r.Jain); err != nil {
		return n, err
	}
	for _, f := range r.Faults {
		if err := write("fault: %v\n", f); err != nil {
			return n, err
		}
	}
	if r.Halted {
		if err := write("halted: bkpt 0x%02X\n", r.HaltCode); err != nil {
			return n, err
		}
	}
	return n, nil
}
