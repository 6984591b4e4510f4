package sim

import (
	"runtime"
	"time"

	"titan/hal/armv7m"
)

const threadPriority = 0x100

func (c *Core) priorityLocked(e armv7m.Exception) int {
	switch e {
	case armv7m.ExcThread:
		return threadPriority
	case armv7m.ExcReset:
		return -3
	case armv7m.ExcNMI:
		return -2
	case armv7m.ExcHardFault:
		return -1
	case armv7m.ExcPendSV:
		return int(c.shpr3.Field(armv7m.SHPR3PRI14))
	case armv7m.ExcSysTick:
		return int(c.shpr3.Field(armv7m.SHPR3PRI15))
	}
	if irq := e.IRQ(); irq >= 0 {
		idx, f := irq.PriorityField()
		return int(c.ipr[idx].Field(f))
	}
	return 0
}

func (c *Core) irqPendingLocked(irq armv7m.IRQ) bool {
	idx, f := irq.EnableBit()
	return c.ispr[idx].Field(f) != 0 && c.iser[idx].Field(f) != 0
}

// nextLocked picks the pending exception that would preempt the current
// execution priority, lowest priority value first, then lowest number.
func (c *Core) nextLocked() (armv7m.Exception, bool) {
	if c.primask || c.shutdown {
		return 0, false
	}
	best := armv7m.ExcThread
	bestPri := c.priorityLocked(c.ipsr)
	consider := func(e armv7m.Exception) {
		if p := c.priorityLocked(e); p < bestPri {
			best, bestPri = e, p
		}
	}
	if c.icsr.Field(armv7m.ICSRPendSVSet) != 0 {
		consider(armv7m.ExcPendSV)
	}
	if c.icsr.Field(armv7m.ICSRPendSTSet) != 0 {
		consider(armv7m.ExcSysTick)
	}
	for i := range c.ispr {
		pend := c.ispr[i].Load() & c.iser[i].Load()
		for bit := 0; pend != 0; bit++ {
			if pend&1 != 0 {
				consider(armv7m.IRQ(i*32 + bit).Exception())
			}
			pend >>= 1
		}
	}
	return best, best != armv7m.ExcThread
}

// wakeLocked reports whether any enabled exception is pending, ignoring
// PRIMASK as WFI does.
func (c *Core) wakeLocked() bool {
	if c.icsr.Field(armv7m.ICSRPendSVSet) != 0 || c.icsr.Field(armv7m.ICSRPendSTSet) != 0 {
		return true
	}
	for i := range c.ispr {
		if c.ispr[i].Load()&c.iser[i].Load() != 0 {
			return true
		}
	}
	return false
}

func (c *Core) clearPendingLocked(e armv7m.Exception) {
	switch e {
	case armv7m.ExcPendSV:
		c.icsr.SetField(armv7m.ICSRPendSVSet, 0)
	case armv7m.ExcSysTick:
		c.icsr.SetField(armv7m.ICSRPendSTSet, 0)
	default:
		if irq := e.IRQ(); irq >= 0 {
			idx, f := irq.EnableBit()
			c.ispr[idx].SetField(f, 0)
		}
	}
}

// service takes pending exceptions until none can preempt.
func (c *Core) service() {
	for {
		c.mu.Lock()
		exc, ok := c.nextLocked()
		if !ok {
			c.mu.Unlock()
			return
		}
		c.clearPendingLocked(exc)
		prev := c.ipsr
		c.ipsr = exc
		c.icsr.SetField(armv7m.ICSRVectActive, uint32(exc))
		h := c.handlers[exc]
		c.mu.Unlock()

		if h != nil {
			h()
		}

		c.mu.Lock()
		c.ipsr = prev
		c.icsr.SetField(armv7m.ICSRVectActive, uint32(prev))
		c.mu.Unlock()
	}
}

func (c *Core) tickingLocked() bool {
	return c.csr.Field(armv7m.SysTickEnable) != 0 && c.rvr.Field(armv7m.SysTickReload) != 0
}

func (c *Core) periodLocked() uint64 {
	return uint64(c.rvr.Field(armv7m.SysTickReload)) + 1
}

// advanceLocked runs the SysTick counter for n cycles and returns how many
// times it expired.
func (c *Core) advanceLocked(n uint64) int {
	if !c.tickingLocked() {
		return 0
	}
	period := c.periodLocked()
	c.cycles += n
	fired := 0
	for c.cycles >= period {
		c.cycles -= period
		c.ticks++
		fired++
		c.csr.SetField(armv7m.SysTickCountFlag, 1)
		if c.csr.Field(armv7m.SysTickTickInt) != 0 {
			c.icsr.SetField(armv7m.ICSRPendSTSet, 1)
		}
	}
	c.cvr.SetField(armv7m.SysTickCurrent, uint32(period-1-c.cycles))
	return fired
}

func (c *Core) sleepFor(fired int) {
	if c.pace > 0 && fired > 0 {
		time.Sleep(c.pace * time.Duration(fired))
	}
}

// checkpoint holds the running goroutine while the tick budget is spent.
func (c *Core) checkpoint() {
	c.mu.Lock()
	for !c.shutdown && c.ticks >= c.budget {
		c.paused = true
		c.cond.Broadcast()
		c.cond.Wait()
	}
	c.paused = false
	sd := c.shutdown
	c.mu.Unlock()
	if sd {
		runtime.Goexit()
	}
}

// Step executes n cycles of thread code.
func (c *Core) Step(n uint32) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		runtime.Goexit()
	}
	fired := c.advanceLocked(uint64(n))
	c.mu.Unlock()

	c.sleepFor(fired)
	c.service()
	c.checkpoint()
}

// raise pends an external interrupt line.
func (c *Core) raise(irq armv7m.IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, f := irq.EnableBit()
	c.ispr[idx].SetField(f, 1)
	c.cond.Broadcast()
}
