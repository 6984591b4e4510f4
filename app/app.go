// Package app wires the kernel to a board: demo threads on every core, the
// exclusive bridge between them, trace output and the fault screen.
package app

import (
	"errors"
	"fmt"
	"sync/atomic"

	"titan/hal"
	"titan/internal/board"
	"titan/internal/trace"
	"titan/kernel"
	"titan/kernel/exclusive"
)

// Config selects what the demo does.
type Config struct {
	// Board names the profile of the first core. Its peer profile, if any,
	// boots on the second core.
	Board string
	// WireTrace streams binary trace frames to the serial port.
	WireTrace bool
	// TextTrace logs one line per scheduler event.
	TextTrace bool
	// Scope draws the thread table on the display.
	Scope bool
	// BlinkTicks is the LED half period.
	BlinkTicks uint32
	// MonitorTicks is how often the monitor drains the trace.
	MonitorTicks uint32
	// RemoteTicks is how often the second core calls into the first.
	RemoteTicks uint32
}

// DefaultConfig runs the demo on the STM32H745.
func DefaultConfig() Config {
	return Config{
		Board:        "stm32h745-cm7",
		WireTrace:    true,
		Scope:        true,
		BlinkTicks:   500,
		MonitorTicks: 20,
		RemoteTicks:  1000,
	}
}

// Thread priorities of the demo.
const (
	prioCounter = 100
	prioRemote  = 150
	prioBlinker = 200
	prioMonitor = 250
)

// System is the running demo.
type System struct {
	h      hal.HAL
	cfg    Config
	bridge exclusive.Bridge
	nodes  []*node

	readCounter exclusive.Func
	remoteCalls atomic.Uint32
	lastRemote  atomic.Int32

	fault atomic.Pointer[kernel.Fault]
}

// node is one core with its kernel.
type node struct {
	b     board.Board
	core  hal.Core
	k     *kernel.Kernel
	ring  trace.Ring
	names map[int32]string

	counts [2]atomic.Uint64
	blinks atomic.Uint32
	infos  []kernel.ThreadInfo
	shown  atomic.Pointer[[]kernel.ThreadInfo]
}

func (n *node) name(th kernel.Thread, name string) {
	if th.Valid() {
		n.names[th.ID()] = name
	}
}

// Start boots the demo on every core of h it has a profile for.
func Start(h hal.HAL, cfg Config) (*System, error) {
	s, err := newSystem(h, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.boot(); err != nil {
		return nil, err
	}
	return s, nil
}

// New is Start for host runners: the returned step function reports the
// first kernel fault.
func New(h hal.HAL, cfg Config) (func() error, error) {
	s, err := Start(h, cfg)
	if err != nil {
		return nil, err
	}
	return s.Step, nil
}

// Run boots the demo with the default configuration and never returns.
func Run(h hal.HAL) {
	if _, err := New(h, DefaultConfig()); err != nil {
		h.Logger().WriteLineString("titan: " + err.Error())
	}
	select {}
}

func newSystem(h hal.HAL, cfg Config) (*System, error) {
	def := DefaultConfig()
	if cfg.Board == "" {
		cfg.Board = def.Board
	}
	if cfg.BlinkTicks == 0 {
		cfg.BlinkTicks = def.BlinkTicks
	}
	if cfg.MonitorTicks == 0 {
		cfg.MonitorTicks = def.MonitorTicks
	}
	if cfg.RemoteTicks == 0 {
		cfg.RemoteTicks = def.RemoteTicks
	}

	first, err := board.Find(cfg.Board)
	if err != nil {
		return nil, err
	}
	profiles := []board.Board{first}
	if peer, ok := first.PeerBoard(); ok {
		profiles = append(profiles, peer)
	}

	s := &System{h: h, cfg: cfg}
	s.readCounter = s.bridge.Declare(hal.CoreCM7, s.counterValue)

	for _, c := range h.Cores() {
		for _, b := range profiles {
			if id, err := b.CoreID(); err != nil || id != c.ID() {
				continue
			}
			n, err := s.newNode(b, c)
			if err != nil {
				return nil, err
			}
			s.nodes = append(s.nodes, n)
		}
	}
	if len(s.nodes) == 0 {
		return nil, fmt.Errorf("app: board %s: %w", first.Name, hal.ErrNoSuchCore)
	}
	return s, nil
}

func (s *System) newNode(b board.Board, c hal.Core) (*node, error) {
	cfg, err := b.KernelConfig()
	if err != nil {
		return nil, err
	}
	n := &node{b: b, core: c, names: make(map[int32]string)}
	opts := []kernel.Option{
		kernel.WithLogger(s.h.Logger()),
		kernel.WithFaultHandler(s.faultScreen(n)),
	}
	if c.ID() == hal.CoreCM7 {
		opts = append(opts, kernel.WithTrace(&n.ring))
	}
	n.k, err = kernel.New(cfg, c, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", b.Name, err)
	}
	return n, nil
}

// boot starts the secondary cores first; on hardware booting the local
// core does not return.
func (s *System) boot() error {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := s.nodes[i]
		if err := s.h.Boot(n.core.ID(), func() { s.start(n) }); err != nil {
			return err
		}
	}
	return nil
}

// start is the reset path of one core.
func (s *System) start(n *node) {
	s.bridge.Bind(n.core)
	if err := n.k.Init(); err != nil {
		s.h.Logger().WriteLineString("app: " + err.Error())
		return
	}
	n.name(n.k.Idle(), "idle")

	n.k.EnterCritical()
	switch n.core.ID() {
	case hal.CoreCM7:
		s.spawn(n, "count-a", prioCounter, n.counter(0))
		s.spawn(n, "count-b", prioCounter, n.counter(1))
		s.spawn(n, "blink", prioBlinker, s.blinker(n))
		s.spawn(n, "monitor", prioMonitor, s.monitor(n))
	default:
		s.spawn(n, "count", prioCounter, n.counter(0))
		s.spawn(n, "remote", prioRemote, s.remote(n))
	}
	n.k.ExitCritical()

	s.h.Logger().WriteLineString("app: " + n.b.Name + " up")
	n.k.Run()
}

func (s *System) spawn(n *node, name string, prio int32, fn kernel.EntryFunc) {
	stack := make([]byte, 2*n.k.Config().MinStack)
	th := n.k.Create(fn, prio, stack)
	if !th.Valid() || !n.k.Start(th, 0) {
		s.h.Logger().WriteLineString("app: cannot start " + name)
		return
	}
	n.name(th, name)
}

// Step is polled by host runners. It returns the first fault.
func (s *System) Step() error {
	if f := s.fault.Load(); f != nil {
		return f
	}
	return nil
}

// Counters returns the first core's counter values.
func (s *System) Counters() (a, b uint64) {
	n := s.nodes[0]
	return n.counts[0].Load(), n.counts[1].Load()
}

// RemoteCalls reports how many exclusive calls the second core completed
// and the last value they returned.
func (s *System) RemoteCalls() (uint32, int32) {
	return s.remoteCalls.Load(), s.lastRemote.Load()
}

// Threads returns the last thread table the monitor published for core id.
func (s *System) Threads(id hal.CoreID) []kernel.ThreadInfo {
	for _, n := range s.nodes {
		if n.core.ID() != id {
			continue
		}
		if p := n.shown.Load(); p != nil {
			return *p
		}
	}
	return nil
}

var errNoNode = errors.New("app: no such core")

func (s *System) node(id hal.CoreID) (*node, error) {
	for _, n := range s.nodes {
		if n.core.ID() == id {
			return n, nil
		}
	}
	return nil, errNoNode
}
