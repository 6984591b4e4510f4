// Package exclusive runs functions on a chosen core of a dual-core part.
//
// Each direction has one request slot in shared memory. The caller masks its
// interrupts, posts the function and argument, raises the peer's doorbell
// with SEV and spins until the peer's doorbell handler clears the slot. Calls
// made on the home core run inline.
//
// An exclusive function runs in handler context on its home core. It must
// not call another exclusive function, and two cores calling into each other
// at the same time deadlock.
package exclusive

import (
	"sync/atomic"

	"titan/hal"
	"titan/hal/armv7m"
)

// Func is a function that executes on one core. p is the core it runs on.
type Func func(p hal.Core, arg uintptr) int32

// BreakpointNested is the BKPT immediate hit when an exclusive function
// calls another one.
const BreakpointNested = 0xE1

type request struct {
	fn      atomic.Pointer[Func]
	arg     atomic.Uintptr
	ret     atomic.Int32
	serving atomic.Bool
}

// Bridge is the shared-memory block both cores use. The zero value is ready.
type Bridge struct {
	slots [armv7m.NumCores]request
}

// Bind installs the doorbell handler on c and enables its SEV line at the
// highest priority. Every core that is a home for exclusive functions must
// be bound before the first call.
func (b *Bridge) Bind(c hal.Core) {
	irq := c.ID().SEVIRQ()
	c.Vectors().Install(irq.Exception(), func() { b.serve(c) })
	nvic := c.NVIC()
	nvic.SetIRQPriority(irq, armv7m.HighestPriority)
	nvic.EnableIRQ(irq)
}

func (b *Bridge) serve(c hal.Core) {
	slot := &b.slots[c.ID()]
	fn := slot.fn.Load()
	if fn == nil {
		return
	}
	cpu := c.CPU()
	cpu.DataMemoryBarrier()

	slot.serving.Store(true)
	slot.ret.Store((*fn)(c, slot.arg.Load()))
	slot.serving.Store(false)

	cpu.DataMemoryBarrier()
	slot.fn.Store(nil)
}

// Declare wraps body so that it always executes on home.
func (b *Bridge) Declare(home hal.CoreID, body Func) Func {
	fn := &body
	return func(caller hal.Core, arg uintptr) int32 {
		if running(caller) == home {
			return body(caller, arg)
		}
		return b.call(caller, home, fn, arg)
	}
}

func (b *Bridge) call(caller hal.Core, home hal.CoreID, fn *Func, arg uintptr) int32 {
	cpu := caller.CPU()
	if b.slots[caller.ID()].serving.Load() {
		cpu.Breakpoint(BreakpointNested)
	}

	state := cpu.DisableInterrupts()
	slot := &b.slots[home]
	slot.arg.Store(arg)
	cpu.DataMemoryBarrier()
	slot.fn.Store(fn)
	cpu.DataSyncBarrier()
	cpu.SendEvent()

	for slot.fn.Load() != nil {
		cpu.DataMemoryBarrier()
	}
	ret := slot.ret.Load()
	cpu.RestoreInterrupts(state)
	return ret
}

// running identifies the executing core from its CPUID part number.
func running(c hal.Core) hal.CoreID {
	if id, ok := armv7m.CoreByPartNo(c.SCB().PartNo()); ok {
		return id
	}
	return c.ID()
}
