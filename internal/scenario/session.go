// Package scenario runs scripted workloads against a kernel on the simulator.
package scenario

import (
	"errors"
	"fmt"

	"titan/hal"
	"titan/hal/sim"
	"titan/internal/board"
	"titan/internal/mailbox"
	"titan/internal/trace"
	"titan/kernel"
)

var (
	ErrDuplicateThread = errors.New("duplicate thread name")
	ErrUnknownThread   = errors.New("unknown thread")
	ErrRejected        = errors.New("kernel rejected the request")
	ErrNotInteractive  = errors.New("session has no command agent")
	ErrHalted          = errors.New("core halted")
	ErrNoReply         = errors.New("command agent did not answer")
	ErrBusy            = errors.New("command queue full")
)

// Names reserved for the session's own threads.
const (
	NameIdle     = "idle"
	NameLauncher = "launcher"
	NameAgent    = "agent"
)

// replyTicks bounds how long a command may wait for the agent.
const replyTicks = 64

// Options configures a Session.
type Options struct {
	Logger hal.Logger
	// Trace keeps every scheduler event for Events.
	Trace bool
	// Interactive starts a command agent so threads can be managed while
	// the session runs.
	Interactive bool
	// Checks enables the kernel's invariant checks.
	Checks bool
	// Sim configures the simulated machine.
	Sim sim.Options
}

// Op is a command executed by the agent thread.
type Op uint8

const (
	OpSpawn Op = iota + 1
	OpStart
	OpStop
	OpSuspend
	OpResume
	OpPriority
	OpDestroy
)

type command struct {
	seq      uint32
	op       Op
	spec     ThreadSpec
	thread   kernel.Thread
	priority int32
}

type reply struct {
	seq    uint32
	ok     bool
	thread kernel.Thread
}

// recorder is the session's trace sink. It runs in handler context.
type recorder struct {
	keep   bool
	events []trace.Event
	usage  *trace.Usage
}

func (r *recorder) Record(ev trace.Event) {
	r.usage.Add(ev)
	if r.keep {
		r.events = append(r.events, ev)
	}
}

type delayed struct {
	spec   ThreadSpec
	thread kernel.Thread
}

// Session is one kernel booted on a simulated core. Host-side methods must
// not be called concurrently; they only touch kernel state while the core is
// paused between runs.
type Session struct {
	board board.Board
	cfg   kernel.Config
	m     *sim.Machine
	core  *sim.Core
	k     *kernel.Kernel
	rec   *recorder

	threads map[string]kernel.Thread
	names   map[int32]string
	workers map[int32]*worker
	order   []string
	delayed []delayed

	cmds    mailbox.Mailbox[command]
	replies mailbox.Mailbox[reply]
	seq     uint32
	agent   kernel.Thread

	faults   []kernel.Fault
	setupErr error
	closed   bool
}

// NewSession boots a kernel for b and starts the initial threads. The core is
// paused before its first tick.
func NewSession(b board.Board, opts Options, specs ...ThreadSpec) (*Session, error) {
	cfg, err := b.KernelConfig()
	if err != nil {
		return nil, err
	}
	id, err := b.CoreID()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{NameIdle: true, NameLauncher: true, NameAgent: true}
	for i := range specs {
		specs[i] = specs[i].withDefaults(cfg)
		if seen[specs[i].Name] {
			return nil, fmt.Errorf("scenario: thread %q: %w", specs[i].Name, ErrDuplicateThread)
		}
		seen[specs[i].Name] = true
	}

	s := &Session{
		board:   b,
		cfg:     cfg,
		m:       sim.New(opts.Sim),
		rec:     &recorder{keep: opts.Trace, usage: trace.NewUsage()},
		threads: make(map[string]kernel.Thread),
		names:   make(map[int32]string),
		workers: make(map[int32]*worker),
	}
	s.core = s.m.Core(id)

	kopts := []kernel.Option{
		kernel.WithTrace(s.rec),
		kernel.WithFaultHandler(func(f kernel.Fault) { s.faults = append(s.faults, f) }),
	}
	if opts.Logger != nil {
		kopts = append(kopts, kernel.WithLogger(opts.Logger))
	}
	if opts.Checks {
		kopts = append(kopts, kernel.WithInvariantChecks())
	}
	s.k, err = kernel.New(cfg, hal.SimCore(s.core), kopts...)
	if err != nil {
		s.m.Shutdown()
		return nil, err
	}

	var initErr error
	err = s.core.Boot(func() {
		if err := s.k.Init(); err != nil {
			initErr = err
			return
		}
		s.k.EnterCritical()
		s.setup(specs, opts.Interactive)
		s.k.ExitCritical()
		s.k.Run()
	})
	if err != nil {
		s.m.Shutdown()
		return nil, err
	}
	s.core.RunTicks(0)

	if err := errors.Join(initErr, s.setupErr); err != nil {
		s.m.Shutdown()
		return nil, err
	}
	return s, nil
}

// setup runs on the boot context inside a critical section.
func (s *Session) setup(specs []ThreadSpec, interactive bool) {
	s.name(s.k.Idle(), NameIdle)
	for _, spec := range specs {
		th, err := s.spawn(spec)
		if err != nil {
			s.setupErr = errors.Join(s.setupErr, err)
			continue
		}
		if spec.Start == 0 {
			s.k.Start(th, 0)
			continue
		}
		s.delayed = append(s.delayed, delayed{spec: spec, thread: th})
	}
	if len(s.delayed) > 0 {
		s.helper(NameLauncher, s.launcher)
	}
	if interactive {
		s.agent = s.helper(NameAgent, s.serve)
	}
}

func (s *Session) helper(name string, fn kernel.EntryFunc) kernel.Thread {
	th := s.k.Create(fn, s.cfg.MaxPriority-1, make([]byte, 4*s.cfg.MinStack))
	if !th.Valid() || !s.k.Start(th, 0) {
		s.setupErr = errors.Join(s.setupErr, fmt.Errorf("scenario: %s: %w", name, ErrRejected))
		return kernel.Thread{}
	}
	s.name(th, name)
	return th
}

func (s *Session) name(th kernel.Thread, name string) {
	s.threads[name] = th
	s.names[th.ID()] = name
	s.order = append(s.order, name)
}

// spawn creates a worker thread. It runs in thread context.
func (s *Session) spawn(spec ThreadSpec) (kernel.Thread, error) {
	w := newWorker(s.k, s.core, spec)
	th := s.k.Create(w.entry, spec.Priority, make([]byte, spec.Stack))
	if !th.Valid() {
		return th, fmt.Errorf("scenario: create %q priority %d stack %s: %w",
			spec.Name, spec.Priority, board.FormatSize(spec.Stack), ErrRejected)
	}
	s.workers[th.ID()] = w
	s.name(th, spec.Name)
	return th, nil
}

// launcher starts delayed threads on their tick, then returns.
func (s *Session) launcher(uintptr) {
	for _, d := range s.delayed {
		if now := s.k.Ticks(); d.spec.Start > now {
			s.k.Sleep(uint32(d.spec.Start - now))
		}
		s.k.Start(d.thread, 0)
	}
}

// serve is the agent thread: it executes queued commands once per tick.
func (s *Session) serve(uintptr) {
	for {
		for {
			c, ok := s.cmds.TryRecv()
			if !ok {
				break
			}
			s.replies.TrySend(s.exec(c))
		}
		s.k.Sleep(1)
	}
}

func (s *Session) exec(c command) reply {
	r := reply{seq: c.seq, thread: c.thread}
	switch c.op {
	case OpSpawn:
		th, err := s.spawn(c.spec)
		if err == nil && c.spec.Start == 0 {
			s.k.Start(th, 0)
		}
		r.ok, r.thread = err == nil, th
	case OpStart:
		r.ok = s.k.Start(c.thread, 0)
	case OpStop:
		r.ok = s.k.Stop(c.thread)
	case OpSuspend:
		r.ok = s.k.Suspend(c.thread)
	case OpResume:
		r.ok = s.k.Resume(c.thread)
	case OpPriority:
		r.ok = s.k.SetPriority(c.thread, c.priority)
	case OpDestroy:
		r.ok = s.k.Destroy(c.thread)
	}
	return r
}

func (s *Session) do(c command) (kernel.Thread, error) {
	if !s.agent.Valid() {
		return kernel.Thread{}, ErrNotInteractive
	}
	s.seq++
	c.seq = s.seq
	if !s.cmds.TrySend(c) {
		return kernel.Thread{}, ErrBusy
	}
	for i := 0; i < replyTicks; i++ {
		s.core.RunTicks(1)
		for {
			r, ok := s.replies.TryRecv()
			if !ok {
				break
			}
			if r.seq != c.seq {
				continue
			}
			if !r.ok {
				return r.thread, ErrRejected
			}
			return r.thread, nil
		}
		if _, halted := s.core.Halted(); halted {
			return kernel.Thread{}, ErrHalted
		}
	}
	return kernel.Thread{}, ErrNoReply
}

func (s *Session) lookup(name string) (kernel.Thread, error) {
	th, ok := s.threads[name]
	if !ok {
		return th, fmt.Errorf("scenario: %q: %w", name, ErrUnknownThread)
	}
	return th, nil
}

func (s *Session) apply(op Op, name string, priority int32) error {
	th, err := s.lookup(name)
	if err != nil {
		return err
	}
	if _, err := s.do(command{op: op, thread: th, priority: priority}); err != nil {
		return fmt.Errorf("scenario: %s: %w", name, err)
	}
	return nil
}

// Spawn creates and, unless spec.Start is set, starts a new worker thread.
func (s *Session) Spawn(spec ThreadSpec) (kernel.Thread, error) {
	spec = spec.withDefaults(s.cfg)
	if _, exists := s.threads[spec.Name]; exists {
		return kernel.Thread{}, fmt.Errorf("scenario: thread %q: %w", spec.Name, ErrDuplicateThread)
	}
	th, err := s.do(command{op: OpSpawn, spec: spec})
	if err != nil {
		return th, fmt.Errorf("scenario: spawn %q: %w", spec.Name, err)
	}
	return th, nil
}

func (s *Session) Start(name string) error   { return s.apply(OpStart, name, 0) }
func (s *Session) Stop(name string) error    { return s.apply(OpStop, name, 0) }
func (s *Session) Suspend(name string) error { return s.apply(OpSuspend, name, 0) }
func (s *Session) Resume(name string) error  { return s.apply(OpResume, name, 0) }
func (s *Session) Destroy(name string) error { return s.apply(OpDestroy, name, 0) }

func (s *Session) SetPriority(name string, priority int32) error {
	return s.apply(OpPriority, name, priority)
}

// Run lets the core execute n more ticks.
func (s *Session) Run(n uint64) {
	s.core.RunTicks(n)
}

// Ticks returns the kernel's tick count.
func (s *Session) Ticks() uint64 { return s.k.Ticks() }

// Board returns the profile the session was booted with.
func (s *Session) Board() board.Board { return s.board }

// Halted reports whether the core stopped on a breakpoint.
func (s *Session) Halted() (uint8, bool) { return s.core.Halted() }

// Faults returns every fault the kernel reported.
func (s *Session) Faults() []kernel.Fault { return s.faults }

// Name returns the name a thread was registered under.
func (s *Session) Name(id int32) string { return s.names[id] }

// ThreadView is a snapshot of one thread plus its scenario bookkeeping.
type ThreadView struct {
	Name string
	kernel.ThreadInfo
	Work       Workload
	Iterations uint64
}

// Threads returns a snapshot of every live thread in registration order.
func (s *Session) Threads() []ThreadView {
	infos := s.k.Snapshot(nil)
	byID := make(map[int32]kernel.ThreadInfo, len(infos))
	for _, ti := range infos {
		byID[ti.Thread.ID()] = ti
	}
	views := make([]ThreadView, 0, len(infos))
	for _, name := range s.order {
		th := s.threads[name]
		ti, ok := byID[th.ID()]
		if !ok {
			continue
		}
		v := ThreadView{Name: name, ThreadInfo: ti}
		if w := s.workers[th.ID()]; w != nil {
			v.Work, v.Iterations = w.spec.Work, w.iters
		}
		views = append(views, v)
	}
	return views
}

// Events drains the recorded trace. It is empty unless Options.Trace is set.
func (s *Session) Events() []trace.Event {
	evs := s.rec.events
	s.rec.events = nil
	return evs
}

// Printer returns a trace printer that knows the session's thread names.
func (s *Session) Printer(p *trace.Printer) *trace.Printer {
	for id, name := range s.names {
		p.Name(id, name)
	}
	return p
}

// Close stops the simulated machine.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.m.Shutdown()
}
