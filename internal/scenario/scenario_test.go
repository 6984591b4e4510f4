package scenario

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"titan/internal/board"
	"titan/internal/trace"
	"titan/kernel"
)

func simBoard(t *testing.T) board.Board {
	t.Helper()
	b, err := board.Find("sim-fast")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	return b
}

func load(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := Load("test.lua", []byte(src))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(sc.Close)
	return sc
}

func TestLoadCollectsDeclarations(t *testing.T) {
	sc := load(t, `
board "sim-strict"
ticks(250)
checks()
thread { name = "a", priority = 10, stack = "1KB", work = "sleep", period = 4 }
thread { name = "b", priority = 12, stack = 512, start = 20 }
function check(r) return true end
`)
	if sc.Board.Name != "sim-strict" {
		t.Fatalf("Board = %q, want sim-strict", sc.Board.Name)
	}
	if sc.Ticks != 250 || !sc.Checks {
		t.Fatalf("Ticks, Checks = %d, %v, want 250, true", sc.Ticks, sc.Checks)
	}
	want := []ThreadSpec{
		{Name: "a", Priority: 10, Stack: 1024, Work: WorkSleep, Period: 4},
		{Name: "b", Priority: 12, Stack: 512, Work: WorkSpin, Start: 20},
	}
	if len(sc.Threads) != len(want) {
		t.Fatalf("Threads = %+v, want %+v", sc.Threads, want)
	}
	for i := range want {
		if sc.Threads[i] != want[i] {
			t.Fatalf("Threads[%d] = %+v, want %+v", i, sc.Threads[i], want[i])
		}
	}
	if sc.check == nil {
		t.Fatalf("check function not captured")
	}
}

func TestLoadRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"board", `board "pdp-11"`, "unknown board"},
		{"workload", `thread { name = "x", priority = 5, work = "dance" }`, "unknown workload"},
		{"name", `thread { priority = 5 }`, "needs a name"},
		{"ticks", `ticks(0)`, "positive"},
		{"syntax", `thread {`, "test.lua"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("test.lua", []byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEqualSpinnersShareEvenly(t *testing.T) {
	sc := load(t, `
ticks(1000)
checks()
thread { name = "a", priority = 10 }
thread { name = "b", priority = 10 }
function check(r)
  if r.fairness.jain < 0.95 then return false, "uneven" end
  return r.threads.a.iterations > 0 and r.threads.b.iterations > 0, "idle worker"
end
`)
	r, err := sc.Run(Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.Ticks != 1000 {
		t.Fatalf("Ticks = %d, want 1000", r.Ticks)
	}
	a, _ := r.Thread("a")
	b, _ := r.Thread("b")
	if a.RunTicks+b.RunTicks < 990 {
		t.Fatalf("workers ran %d+%d ticks, want nearly all of 1000", a.RunTicks, b.RunTicks)
	}
	if len(r.Faults) != 0 || r.Halted {
		t.Fatalf("faults = %v, halted = %v", r.Faults, r.Halted)
	}
}

func TestFailingCheckReportsMessage(t *testing.T) {
	sc := load(t, `
ticks(50)
thread { name = "a", priority = 10, work = "sleep", period = 10 }
function check(r) return r.threads.a.share > 0.9, "a mostly sleeps" end
`)
	_, err := sc.Run(Options{})
	if !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("Run() error = %v, want %v", err, ErrCheckFailed)
	}
	if !strings.Contains(err.Error(), "a mostly sleeps") {
		t.Fatalf("Run() error = %v, want message", err)
	}
}

func TestCheckErrorPropagates(t *testing.T) {
	sc := load(t, `
ticks(10)
function check(r) error("boom") end
`)
	if _, err := sc.Run(Options{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Run() error = %v, want boom", err)
	}
}

func TestDelayedStart(t *testing.T) {
	sc := load(t, `
ticks(200)
thread { name = "base", priority = 10 }
thread { name = "late", priority = 20, start = 100 }
`)
	s, err := NewSession(sc.Board, Options{Trace: true, Checks: true}, sc.Threads...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()
	s.Run(sc.Ticks)

	late := s.threads["late"].ID()
	var started, firstRun uint32
	found := false
	for _, ev := range s.Events() {
		if ev.Thread != late {
			continue
		}
		switch {
		case ev.Kind == trace.KindStart:
			started = ev.Tick
		case ev.Kind == trace.KindSwitch && !found:
			firstRun, found = ev.Tick, true
		}
	}
	if started != 100 {
		t.Fatalf("late started at tick %d, want 100", started)
	}
	if !found || firstRun != 100 {
		t.Fatalf("late first ran at tick %d (found=%v), want 100", firstRun, found)
	}

	r := s.Report()
	l, _ := r.Thread(NameLauncher)
	if l.State != kernel.StateStopped {
		t.Fatalf("launcher state = %v, want %v", l.State, kernel.StateStopped)
	}
}

func TestSessionCommands(t *testing.T) {
	s, err := NewSession(simBoard(t), Options{Interactive: true, Checks: true},
		ThreadSpec{Name: "worker", Priority: 10})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()
	s.Run(20)

	if _, err := s.Spawn(ThreadSpec{Name: "sleeper", Priority: 30, Work: WorkSleep, Period: 5}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if _, err := s.Spawn(ThreadSpec{Name: "worker", Priority: 10}); !errors.Is(err, ErrDuplicateThread) {
		t.Fatalf("Spawn(duplicate) error = %v, want %v", err, ErrDuplicateThread)
	}
	if _, err := s.Spawn(ThreadSpec{Name: "bad", Priority: 999}); !errors.Is(err, ErrRejected) {
		t.Fatalf("Spawn(bad priority) error = %v, want %v", err, ErrRejected)
	}
	s.Run(20)

	if err := s.Suspend("worker"); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if got := state(t, s, "worker"); got != kernel.StateSuspended {
		t.Fatalf("worker state = %v, want %v", got, kernel.StateSuspended)
	}
	if err := s.Resume("idle"); !errors.Is(err, ErrRejected) {
		t.Fatalf("Resume(idle) error = %v, want %v", err, ErrRejected)
	}
	if err := s.Resume("worker"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := s.SetPriority("worker", 40); err != nil {
		t.Fatalf("SetPriority() error = %v", err)
	}
	if err := s.Stop("nobody"); !errors.Is(err, ErrUnknownThread) {
		t.Fatalf("Stop(nobody) error = %v, want %v", err, ErrUnknownThread)
	}
	if err := s.Destroy("sleeper"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	s.Run(20)

	views := s.Threads()
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
	}
	if got, want := strings.Join(names, ","), "idle,worker,agent"; got != want {
		t.Fatalf("Threads() = %s, want %s", got, want)
	}
	if views[1].Priority != 40 || views[1].Iterations == 0 {
		t.Fatalf("worker view = %+v, want priority 40 and progress", views[1])
	}

	r := s.Report()
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), "sleeper") || !strings.Contains(buf.String(), "NULL") {
		t.Fatalf("report missing destroyed thread:\n%s", buf.String())
	}
}

func TestSessionWithoutAgent(t *testing.T) {
	s, err := NewSession(simBoard(t), Options{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()
	if err := s.Suspend("idle"); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("Suspend() error = %v, want %v", err, ErrNotInteractive)
	}
}

func TestNewSessionRejectsDuplicates(t *testing.T) {
	_, err := NewSession(simBoard(t), Options{}, ThreadSpec{Name: "agent", Priority: 3})
	if !errors.Is(err, ErrDuplicateThread) {
		t.Fatalf("NewSession() error = %v, want %v", err, ErrDuplicateThread)
	}
}

func state(t *testing.T, s *Session, name string) kernel.State {
	t.Helper()
	for _, v := range s.Threads() {
		if v.Name == name {
			return v.State
		}
	}
	t.Fatalf("thread %q not found", name)
	return kernel.StateNull
}

func TestScripts(t *testing.T) {
	files, err := filepath.Glob("testdata/*.lua")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatalf("no scripts in testdata")
	}
	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			sc, err := LoadFile(file)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			defer sc.Close()
			if _, err := sc.Run(Options{}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		})
	}
}
