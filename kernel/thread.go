package kernel

import (
	"titan/hal"
	"titan/internal/trace"
)

// Create claims a free slot for fn. The thread starts STOPPED. priority must
// lie strictly between the configured bounds and stack must be word aligned
// and at least MinStack bytes; the caller keeps ownership of stack.
// It returns the null handle on failure.
func (k *Kernel) Create(fn EntryFunc, priority int32, stack []byte) Thread {
	if fn == nil || priority <= k.cfg.MinPriority || priority >= k.cfg.MaxPriority ||
		len(stack) < k.cfg.MinStack || !wordAligned(stack) {
		return Thread{}
	}

	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	if k.phase != phaseRunning {
		return Thread{}
	}
	for i := 1; i < len(k.tcbs); i++ {
		c := &k.tcbs[i]
		if c.state != StateNull {
			continue
		}
		*c = tcb{
			ctx:      hal.Context{Stack: stack},
			entry:    fn,
			id:       k.allocID(),
			slot:     uint16(i + 1),
			priority: priority,
			state:    StateStopped,
		}
		k.emit(trace.KindCreate, c.id, priority)
		return c.handle()
	}
	return Thread{}
}

// Destroy releases t's slot. The running thread may destroy itself; a thread
// inside a critical section cannot be destroyed.
func (k *Kernel) Destroy(t Thread) bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c == k.idle || c.state == StateCritical {
		return false
	}
	k.emit(trace.KindDestroy, c.id, 0)
	c.state = StateNull
	c.entry = nil
	if c == k.active {
		k.scb.SetPendSV()
	}
	return true
}

// Start builds a fresh initial frame on t's stack and makes it READY. A
// thread that is already running restarts from its entry function.
func (k *Kernel) Start(t Thread, arg uintptr) bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c == k.idle || c.state == StateCritical {
		return false
	}
	if c == k.active {
		// The frame is rebuilt by PendSV once the thread is off its stack.
		k.restart, k.restartArg = true, arg
	} else {
		initFrame(c, k.switcher, arg)
	}
	c.state = StateReady
	c.age = 0
	c.critDepth = 0
	k.emit(trace.KindStart, c.id, int32(arg))
	k.scb.SetPendSV()
	return true
}

// Stop moves t to STOPPED. It can be restarted with Start.
func (k *Kernel) Stop(t Thread) bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c == k.idle || c.state == StateCritical {
		return false
	}
	c.state = StateStopped
	k.emit(trace.KindStop, c.id, 0)
	if c == k.active {
		k.scb.SetPendSV()
	}
	return true
}

// Suspend parks a ready, running or sleeping thread until Resume. A pending
// sleep is abandoned.
func (k *Kernel) Suspend(t Thread) bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c == k.idle {
		return false
	}
	switch c.state {
	case StateReady, StateRunning, StateSleeping, StateSuspended:
	default:
		return false
	}
	c.state = StateSuspended
	k.emit(trace.KindSuspend, c.id, 0)
	if c == k.active {
		k.scb.SetPendSV()
	}
	return true
}

// Resume makes a suspended thread READY.
func (k *Kernel) Resume(t Thread) bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c.state != StateSuspended {
		return false
	}
	c.state = StateReady
	c.age = 0
	k.emit(trace.KindResume, c.id, 0)
	k.scb.SetPendSV()
	return true
}

// SetPriority changes t's base priority. Unlike Create, the bounds are
// inclusive.
func (k *Kernel) SetPriority(t Thread, priority int32) bool {
	if priority < k.cfg.MinPriority || priority > k.cfg.MaxPriority {
		return false
	}

	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil || c == k.idle {
		return false
	}
	c.priority = priority
	k.emit(trace.KindPriority, c.id, priority)
	k.scb.SetPendSV()
	return true
}

// Priority returns t's base priority, or -1 for a stale handle. The idle
// thread reports MinPriority-1, which is also -1 under DefaultConfig; use
// State to tell a stale handle (StateNull) from idle.
func (k *Kernel) Priority(t Thread) int32 {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil {
		return -1
	}
	return c.priority
}

// State returns t's state. It reports StateNull for stale handles and when
// called from a handler.
func (k *Kernel) State(t Thread) State {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.lookup(t)
	if c == nil {
		return StateNull
	}
	return c.state
}

// Current returns the calling thread, or the null handle from a handler.
func (k *Kernel) Current() Thread {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	if !k.threadContext() {
		return Thread{}
	}
	return k.active.handle()
}

// Equal reports whether two handles name the same thread.
func Equal(a, b Thread) bool { return a.Equal(b) }

// Yield gives up the rest of the calling thread's turn: its aging credit is
// cleared and the scheduler runs.
func (k *Kernel) Yield() bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	if !k.threadContext() || k.active.state == StateCritical {
		return false
	}
	k.active.age = 0
	k.scb.SetPendSV()
	return true
}

// Sleep blocks the calling thread for ticks SysTick periods. Sleep(0) yields.
func (k *Kernel) Sleep(ticks uint32) bool {
	if ticks == 0 {
		return k.Yield()
	}

	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.active
	if k.phase != phaseRunning || !k.threadContext() || c == k.idle || c.state == StateCritical {
		return false
	}
	c.state = StateSleeping
	c.age = ticks
	k.emit(trace.KindSleep, c.id, int32(ticks))
	k.scb.SetPendSV()
	return true
}

// Exit stops the calling thread. It does not return on success.
func (k *Kernel) Exit() bool {
	state := k.cpu.DisableInterrupts()
	defer k.cpu.RestoreInterrupts(state)

	c := k.active
	if !k.threadContext() || c == k.idle || c.state == StateCritical {
		return false
	}
	c.state = StateStopped
	k.emit(trace.KindExit, c.id, 0)
	k.scb.SetPendSV()
	return true
}

// EnterCritical masks interrupts and pins the calling thread to the core.
// Calls nest; interrupts come back with the outermost ExitCritical.
func (k *Kernel) EnterCritical() bool {
	state := k.cpu.DisableInterrupts()
	if !k.threadContext() {
		k.cpu.RestoreInterrupts(state)
		return false
	}
	c := k.active
	if c.critDepth == 0 {
		c.critState = state
		c.state = StateCritical
	}
	c.critDepth++
	return true
}

// ExitCritical undoes one EnterCritical.
func (k *Kernel) ExitCritical() bool {
	state := k.cpu.DisableInterrupts()
	c := k.active
	if !k.threadContext() || c.critDepth == 0 {
		k.cpu.RestoreInterrupts(state)
		return false
	}
	c.critDepth--
	k.scb.SetPendSV()
	if c.critDepth > 0 {
		return true
	}
	c.state = StateRunning
	k.cpu.RestoreInterrupts(c.critState)
	return true
}
