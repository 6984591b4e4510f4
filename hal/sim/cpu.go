package sim

import (
	"runtime"

	"titan/hal/armv7m"
)

func (c *Core) DisableInterrupts() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.primask
	c.primask = true
	if prev {
		return 1
	}
	return 0
}

func (c *Core) RestoreInterrupts(state uintptr) {
	c.mu.Lock()
	c.primask = state != 0
	masked := c.primask
	c.mu.Unlock()
	if !masked {
		c.service()
	}
}

func (c *Core) EnableInterrupts() {
	c.RestoreInterrupts(0)
}

// PRIMASK reports whether interrupts are masked.
func (c *Core) PRIMASK() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primask
}

func (c *Core) IPSR() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.ipsr)
}

// WaitForInterrupt sleeps until an enabled exception is pending. With SysTick
// running it jumps straight to the next expiry.
func (c *Core) WaitForInterrupt() {
	c.checkpoint()

	c.mu.Lock()
	fired := 0
	if !c.wakeLocked() {
		if c.tickingLocked() {
			fired = c.advanceLocked(c.periodLocked() - c.cycles)
		} else {
			c.idle = true
			c.cond.Broadcast()
			for !c.shutdown && !c.wakeLocked() {
				c.cond.Wait()
			}
			c.idle = false
		}
	}
	sd := c.shutdown
	c.mu.Unlock()
	if sd {
		runtime.Goexit()
	}

	c.sleepFor(fired)
	c.service()
}

// SendEvent raises the doorbell line on the peer core.
func (c *Core) SendEvent() {
	peer := c.m.Core(c.id.Peer())
	peer.raise(peer.id.SEVIRQ())
}

// DataMemoryBarrier yields so spinning cores make progress. A core spinning
// after Shutdown exits here.
func (c *Core) DataMemoryBarrier() {
	if c.down.Load() {
		runtime.Goexit()
	}
	runtime.Gosched()
}

// Spin is Step for code written against the CPU interface.
func (c *Core) Spin(n uint32) { c.Step(n) }

func (c *Core) DataSyncBarrier() {}

func (c *Core) InstructionSyncBarrier() {}

// Breakpoint halts the core in debug state until Shutdown.
func (c *Core) Breakpoint(imm uint8) {
	c.mu.Lock()
	c.halted = true
	c.haltCode = imm
	c.cond.Broadcast()
	for !c.shutdown {
		c.cond.Wait()
	}
	c.mu.Unlock()
	runtime.Goexit()
}

// Install binds a handler to an exception number.
func (c *Core) Install(exc armv7m.Exception, handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(exc) < len(c.handlers) {
		c.handlers[exc] = handler
	}
}
