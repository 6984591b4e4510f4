package sim

import "titan/hal/armv7m"

// System control block.

func (c *Core) PartNo() uint16 {
	return uint16(c.cpuid.Field(armv7m.CPUIDPartNo))
}

// SetPendSV pends PendSV. From thread mode with interrupts enabled it is
// taken before the call returns.
func (c *Core) SetPendSV() {
	c.mu.Lock()
	c.icsr.SetField(armv7m.ICSRPendSVSet, 1)
	now := !c.primask && c.ipsr == armv7m.ExcThread
	c.mu.Unlock()
	if now {
		c.service()
	}
}

func (c *Core) PendSVPending() bool {
	return c.icsr.Field(armv7m.ICSRPendSVSet) != 0
}

func (c *Core) SetHandlerPriority(exc armv7m.Exception, prio uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch exc {
	case armv7m.ExcPendSV:
		c.shpr3.SetField(armv7m.SHPR3PRI14, uint32(prio))
	case armv7m.ExcSysTick:
		c.shpr3.SetField(armv7m.SHPR3PRI15, uint32(prio))
	}
}

func (c *Core) HandlerPriority(exc armv7m.Exception) uint8 {
	switch exc {
	case armv7m.ExcPendSV:
		return uint8(c.shpr3.Field(armv7m.SHPR3PRI14))
	case armv7m.ExcSysTick:
		return uint8(c.shpr3.Field(armv7m.SHPR3PRI15))
	}
	return 0
}

// SysTick.

func (c *Core) SetReload(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rvr.SetField(armv7m.SysTickReload, v)
	c.cvr.Store(0)
	c.cycles = 0
}

func (c *Core) Reload() uint32 {
	return c.rvr.Field(armv7m.SysTickReload)
}

func (c *Core) Configure(enable, tickInt bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enable && c.csr.Field(armv7m.SysTickEnable) == 0 {
		c.cycles = 0
	}
	c.csr.SetField(armv7m.SysTickClkSource, 1)
	c.csr.SetField(armv7m.SysTickTickInt, bit(tickInt))
	c.csr.SetField(armv7m.SysTickEnable, bit(enable))
	c.cond.Broadcast()
}

func (c *Core) Enabled() bool {
	return c.csr.Field(armv7m.SysTickEnable) != 0
}

// NVIC.

func (c *Core) EnableIRQ(irq armv7m.IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, f := irq.EnableBit()
	c.iser[idx].SetField(f, 1)
	c.cond.Broadcast()
}

func (c *Core) DisableIRQ(irq armv7m.IRQ) {
	idx, f := irq.EnableBit()
	c.iser[idx].SetField(f, 0)
}

func (c *Core) IRQEnabled(irq armv7m.IRQ) bool {
	idx, f := irq.EnableBit()
	return c.iser[idx].Field(f) != 0
}

func (c *Core) SetIRQPriority(irq armv7m.IRQ, prio uint8) {
	idx, f := irq.PriorityField()
	c.ipr[idx].SetField(f, uint32(prio))
}

func (c *Core) IRQPriority(irq armv7m.IRQ) uint8 {
	idx, f := irq.PriorityField()
	return uint8(c.ipr[idx].Field(f))
}

func bit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
