// Package sim is a deterministic model of a dual-core ARMv7-M part.
//
// Each core owns its system registers, PRIMASK, IPSR and SysTick counter.
// Code runs on goroutines; exactly one goroutine executes per core at any
// time and control moves between them only through Switch. Exceptions are
// taken at instruction boundaries: Step, WaitForInterrupt, and any write
// that unmasks or pends an exception from thread mode.
//
// Time is virtual. SysTick expires every RVR+1 cycles of Step, and
// WaitForInterrupt fast-forwards to the next expiry.
package sim

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"titan/hal/armv7m"
)

var ErrBooted = errors.New("sim: core already booted")

// Code addresses used in initial frames.
const (
	entryAddr  uint32 = 0x08000100
	returnAddr uint32 = 0x08000201
	resumeAddr uint32 = 0x08000300

	firstCookie uint32 = 0x5A000001
)

// Options configures a Machine.
type Options struct {
	// Pace is the wall-clock length of one SysTick period.
	// Zero runs as fast as possible.
	Pace time.Duration
}

// Machine is a pair of cores sharing memory.
type Machine struct {
	cores [armv7m.NumCores]*Core
}

// New returns a machine with both cores held in reset.
func New(opts Options) *Machine {
	m := &Machine{}
	for i := range m.cores {
		m.cores[i] = newCore(m, armv7m.CoreID(i), opts)
	}
	return m
}

// Core returns the core with the given id.
func (m *Machine) Core(id armv7m.CoreID) *Core {
	if int(id) >= len(m.cores) {
		return nil
	}
	return m.cores[id]
}

// Shutdown stops both cores. Every goroutine owned by the machine exits.
func (m *Machine) Shutdown() {
	for _, c := range m.cores {
		c.stop()
	}
}

// context is one goroutine's execution state.
type context struct {
	cookie uint32
	wake   chan struct{}
	ctx    *armv7m.Context
	sp     uint32
	hasSP  bool
}

type launch struct {
	r0 uint32
	lr uint32
}

// Core is one simulated processor.
type Core struct {
	id   armv7m.CoreID
	m    *Machine
	pace time.Duration

	mu   sync.Mutex
	cond *sync.Cond

	primask bool
	ipsr    armv7m.Exception

	cpuid armv7m.Reg
	icsr  armv7m.Reg
	shpr3 armv7m.Reg
	csr   armv7m.Reg
	rvr   armv7m.Reg
	cvr   armv7m.Reg
	iser  [8]armv7m.Reg
	ispr  [8]armv7m.Reg
	ipr   [60]armv7m.Reg

	handlers [16 + 240]func()

	cycles uint64
	ticks  uint64

	entry   func(uintptr)
	ret     func()
	running *context
	parked  map[uint32]*context
	cookie  uint32

	booted   bool
	done     bool
	halted   bool
	haltCode uint8
	paused   bool
	idle     bool
	shutdown bool
	down     atomic.Bool
	budget   uint64
	quit     chan struct{}
}

func newCore(m *Machine, id armv7m.CoreID, opts Options) *Core {
	c := &Core{
		id:     id,
		m:      m,
		pace:   opts.Pace,
		parked: make(map[uint32]*context),
		cookie: firstCookie,
		quit:   make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	c.cpuid.SetField(armv7m.CPUIDPartNo, uint32(id.PartNo()))
	return c
}

func (c *Core) ID() armv7m.CoreID { return c.id }

// Boot starts the reset path of the core on a new goroutine. The boot code
// runs in thread mode and halts at its first instruction boundary until
// RunTicks or RunFree grants it time.
func (c *Core) Boot(fn func()) error {
	c.mu.Lock()
	if c.booted {
		c.mu.Unlock()
		return ErrBooted
	}
	c.booted = true
	c.running = c.newContextLocked()
	c.mu.Unlock()

	go func() {
		defer c.finish()
		fn()
	}()
	return nil
}

func (c *Core) finish() {
	c.mu.Lock()
	c.done = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// RunTicks lets the core execute until n more SysTick periods have expired,
// then holds it at the next thread-mode instruction boundary. It returns early
// when the core hits a breakpoint, its boot function returns, or it waits for
// an interrupt with no timer running.
func (c *Core) RunTicks(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.booted {
		return
	}
	c.budget = c.ticks + n
	c.cond.Broadcast()
	for !c.stoppedLocked() {
		c.cond.Wait()
	}
}

// RunFree removes the tick budget so the core runs until Shutdown.
func (c *Core) RunFree() {
	c.mu.Lock()
	c.budget = math.MaxUint64
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Wait blocks until the boot function returns or the core halts.
func (c *Core) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.done && !c.halted && !c.shutdown {
		c.cond.Wait()
	}
}

// Ticks returns the number of SysTick expiries so far.
func (c *Core) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Halted reports whether the core stopped on a breakpoint and its immediate.
func (c *Core) Halted() (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haltCode, c.halted
}

func (c *Core) stoppedLocked() bool {
	switch {
	case c.shutdown, c.done, c.halted:
		return true
	case c.paused && c.ticks >= c.budget:
		return true
	case c.idle && !c.tickingLocked():
		return true
	}
	return false
}

func (c *Core) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true
	c.down.Store(true)
	close(c.quit)
	c.cond.Broadcast()
}

func (c *Core) newContextLocked() *context {
	t := &context{cookie: c.cookie, wake: make(chan struct{}, 1)}
	c.cookie++
	return t
}
