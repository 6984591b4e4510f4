// Package kernel is a preemptive, priority-scheduled thread kernel for one
// ARMv7-M core.
//
// Threads live in a fixed table allocated by New. SysTick ages ready threads
// and counts down sleepers; PendSV picks the thread with the highest
// effective priority and switches to it. The boot context becomes the idle
// thread when it calls Run.
package kernel

import (
	"strconv"
	"sync/atomic"
	"unsafe"

	"titan/hal"
	"titan/hal/armv7m"
	"titan/internal/trace"
)

type phase uint8

const (
	phaseReset phase = iota
	phaseRunning
	phaseStopped
)

type tcb struct {
	ctx      hal.Context
	entry    EntryFunc
	id       int32
	slot     uint16
	priority int32
	state    State
	// age counts aging ticks while ready and remaining ticks while sleeping.
	age       uint32
	critDepth int32
	critState uintptr
}

func (c *tcb) handle() Thread {
	if c == nil || c.state == StateNull {
		return Thread{}
	}
	return Thread{id: c.id, slot: c.slot}
}

func (c *tcb) effective() int64 { return int64(c.priority) + int64(c.age) }

// Kernel is one scheduler instance bound to one core.
type Kernel struct {
	cfg      Config
	core     hal.Core
	cpu      hal.CPU
	scb      hal.SCB
	systick  hal.SysTick
	switcher hal.Switcher

	log      hal.Logger
	sink     trace.Sink
	tickHook func()
	onFault  func(Fault)
	checks   bool
	faulted  atomic.Bool

	tcbs       []tcb
	idleStack  []byte
	active     *tcb
	idle       *tcb
	nextID     int32
	schedTick  uint32
	aging      uint32
	ticks      uint64
	restart    bool
	restartArg uintptr
	phase      phase
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l hal.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithTrace records scheduler events into s.
func WithTrace(s trace.Sink) Option {
	return func(k *Kernel) { k.sink = s }
}

// WithTickHook calls fn from the SysTick handler after every tick.
func WithTickHook(fn func()) Option {
	return func(k *Kernel) { k.tickHook = fn }
}

// WithFaultHandler replaces the default fault report. fn runs at most once,
// possibly in handler context, before the core halts.
func WithFaultHandler(fn func(Fault)) Option {
	return func(k *Kernel) { k.onFault = fn }
}

// WithInvariantChecks verifies the scheduler state after every selection and
// faults on a violation.
func WithInvariantChecks() Option {
	return func(k *Kernel) { k.checks = true }
}

// New validates cfg and allocates a kernel for core. The kernel does not
// touch the hardware until Init.
func New(cfg Config, core hal.Core, opts ...Option) (*Kernel, error) {
	if core == nil {
		return nil, ErrNilCore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{
		cfg:       cfg,
		core:      core,
		cpu:       core.CPU(),
		scb:       core.SCB(),
		systick:   core.SysTick(),
		switcher:  core.Switcher(),
		tcbs:      make([]tcb, cfg.MaxThreads+1),
		idleStack: make([]byte, cfg.IdleStackSize),
		aging:     cfg.agingPeriod(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Config returns the configuration the kernel was built with.
func (k *Kernel) Config() Config { return k.cfg }

// Core returns the core the kernel runs on.
func (k *Kernel) Core() hal.Core { return k.core }

// Init installs the kernel on its core: the idle thread takes over the
// calling context, PendSV and SysTick get the lowest exception priority and
// the tick starts.
func (k *Kernel) Init() error {
	state := k.cpu.DisableInterrupts()
	if k.phase == phaseRunning {
		k.cpu.RestoreInterrupts(state)
		return ErrRunning
	}

	for i := range k.tcbs {
		k.tcbs[i] = tcb{slot: uint16(i + 1)}
	}
	idle := &k.tcbs[0]
	idle.ctx = hal.Context{Stack: k.idleStack}
	idle.entry = k.idleLoop
	idle.id = k.allocID()
	idle.priority = k.cfg.MinPriority - 1
	idle.state = StateRunning
	writeGuard(idle.ctx.Stack)
	k.idle, k.active = idle, idle
	k.schedTick, k.ticks, k.restart = 0, 0, false

	k.switcher.SetThreadHooks(k.launch, k.threadReturn)
	vectors := k.core.Vectors()
	vectors.Install(armv7m.ExcPendSV, k.onPendSV)
	vectors.Install(armv7m.ExcSysTick, k.onSysTick)
	k.scb.SetHandlerPriority(armv7m.ExcPendSV, armv7m.LowestPriority)
	k.scb.SetHandlerPriority(armv7m.ExcSysTick, armv7m.LowestPriority)
	k.systick.SetReload(k.cfg.reload())
	k.systick.Configure(true, true)
	k.phase = phaseRunning
	k.cpu.RestoreInterrupts(state)

	if k.log != nil {
		k.log.WriteLineString("kernel: init " + k.core.ID().String() +
			" tick=" + strconv.FormatUint(uint64(k.cfg.TickFreq), 10) + "Hz" +
			" aging=" + strconv.FormatUint(uint64(k.aging), 10) +
			" threads=" + strconv.Itoa(k.cfg.MaxThreads) +
			" strict=" + strconv.FormatBool(k.cfg.StrictPriority))
	}
	return nil
}

// Deinit stops the tick. Afterwards only Current, Yield, Exit and the
// critical section calls still work, and Run returns the next time the idle
// thread is scheduled.
func (k *Kernel) Deinit() {
	state := k.cpu.DisableInterrupts()
	if k.phase != phaseRunning {
		k.cpu.RestoreInterrupts(state)
		return
	}
	k.systick.Configure(false, false)
	k.phase = phaseStopped
	k.cpu.RestoreInterrupts(state)

	if k.log != nil {
		k.log.WriteLineString("kernel: deinit " + k.core.ID().String())
	}
}

// Run turns the calling boot context into the idle thread. It returns only
// after Deinit.
func (k *Kernel) Run() {
	k.idleLoop(0)
}

// Idle returns the idle thread's handle.
func (k *Kernel) Idle() Thread {
	return k.idle.handle()
}

// Ticks returns the number of SysTick interrupts handled since Init.
func (k *Kernel) Ticks() uint64 { return k.ticks }

func (k *Kernel) idleLoop(uintptr) {
	for k.phase == phaseRunning {
		k.cpu.WaitForInterrupt()
	}
}

// launch is the entry trampoline of every fresh initial frame.
func (k *Kernel) launch(arg uintptr) {
	k.active.entry(arg)
}

// threadReturn is where a thread lands when its entry function returns.
func (k *Kernel) threadReturn() {
	if !k.Exit() {
		k.fault(Fault{Kind: FaultBadExit, Thread: k.active.handle()})
	}
	for {
		k.cpu.WaitForInterrupt()
	}
}

func (k *Kernel) allocID() int32 {
	k.nextID++
	if k.nextID <= 0 {
		k.nextID = 1
	}
	return k.nextID
}

func (k *Kernel) inHandler() bool { return k.cpu.IPSR() != 0 }

// threadContext reports whether the caller may use the self-targeting API.
// It stays true after Deinit so running threads can still exit.
func (k *Kernel) threadContext() bool {
	return k.phase != phaseReset && !k.inHandler()
}

// lookup resolves a handle to its slot, nil if stale, called from a handler
// or the kernel is not running.
func (k *Kernel) lookup(t Thread) *tcb {
	if k.phase != phaseRunning || k.inHandler() || t.slot == 0 || int(t.slot) > len(k.tcbs) {
		return nil
	}
	c := &k.tcbs[t.slot-1]
	if c.state == StateNull || c.id != t.id {
		return nil
	}
	return c
}

func (k *Kernel) emit(kind trace.Kind, thread, arg int32) {
	if k.sink == nil {
		return
	}
	k.sink.Record(trace.Event{Tick: uint32(k.ticks), Kind: kind, Thread: thread, Arg: arg})
}

func wordAligned(b []byte) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))&3 == 0
}
