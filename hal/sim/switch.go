package sim

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"titan/hal/armv7m"
)

func (c *Core) EntryPoint() uint32  { return entryAddr }
func (c *Core) ReturnPoint() uint32 { return returnAddr }

func (c *Core) SetThreadHooks(entry func(arg uintptr), ret func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = entry
	c.ret = ret
}

// Switch stacks the running context into from, unstacks to and returns from
// the exception into it with interrupts enabled. A nil from discards the
// running context. It must be called from a handler.
func (c *Core) Switch(from, to *armv7m.Context) {
	c.mu.Lock()
	self := c.running
	if from != nil {
		c.saveLocked(self, from)
	}
	next, l, fresh := c.loadLocked(to)
	c.running = next
	c.ipsr = armv7m.ExcThread
	c.icsr.SetField(armv7m.ICSRVectActive, 0)
	c.primask = false
	entry, ret := c.entry, c.ret
	c.mu.Unlock()

	if fresh {
		go c.run(l, entry, ret)
	} else {
		next.wake <- struct{}{}
	}

	if from == nil {
		<-c.quit
		runtime.Goexit()
	}
	select {
	case <-self.wake:
	case <-c.quit:
		runtime.Goexit()
	}
}

func (c *Core) saveLocked(self *context, from *armv7m.Context) {
	sp := self.sp
	if !self.hasSP || self.ctx != from {
		sp = from.Top()
	}
	if sp < armv7m.InitialFrameBytes {
		panic(fmt.Sprintf("sim: %s stack overflow saving context (sp=%d)", c.id, sp))
	}

	sp -= armv7m.HardwareFrameBytes
	hw := from.Stack[sp:]
	for i := 0; i < armv7m.HardwareFrameWords; i++ {
		binary.LittleEndian.PutUint32(hw[i*4:], 0)
	}
	binary.LittleEndian.PutUint32(hw[armv7m.FramePC*4:], resumeAddr)
	binary.LittleEndian.PutUint32(hw[armv7m.FrameXPSR*4:], armv7m.XPSRThumb)

	sp -= armv7m.SoftwareFrameBytes
	sw := from.Stack[sp:]
	binary.LittleEndian.PutUint32(sw[0:], self.cookie)
	for i := 1; i < armv7m.SoftwareFrameExcReturn; i++ {
		binary.LittleEndian.PutUint32(sw[i*4:], 0)
	}
	binary.LittleEndian.PutUint32(sw[armv7m.SoftwareFrameExcReturn*4:], armv7m.ExcReturnThreadPSP)

	from.SP = sp
	self.ctx = from
	c.parked[self.cookie] = self
}

func (c *Core) loadLocked(to *armv7m.Context) (*context, launch, bool) {
	word := func(off uint32) uint32 {
		return binary.LittleEndian.Uint32(to.Stack[off:])
	}

	excReturn := word(to.SP + armv7m.SoftwareFrameExcReturn*4)
	hw := to.SP + armv7m.SoftwareFrameBytes
	if excReturn&armv7m.ExcReturnNoFP == 0 {
		hw += armv7m.FPFrameBytes
	}

	if t, ok := c.parked[word(to.SP)]; ok && t.ctx == to {
		delete(c.parked, t.cookie)
		t.sp = hw + armv7m.HardwareFrameBytes
		t.hasSP = true
		return t, launch{}, false
	}

	pc := word(hw + armv7m.FramePC*4)
	xpsr := word(hw + armv7m.FrameXPSR*4)
	if xpsr&armv7m.XPSRThumb == 0 || pc != entryAddr {
		panic(fmt.Sprintf("sim: %s usage fault: bad frame pc=%#x xpsr=%#x", c.id, pc, xpsr))
	}

	// Any goroutine still parked on this stack belongs to a discarded
	// context; it stays blocked until Shutdown.
	for k, t := range c.parked {
		if t.ctx == to {
			delete(c.parked, k)
		}
	}

	t := c.newContextLocked()
	t.ctx = to
	t.sp = hw + armv7m.HardwareFrameBytes
	t.hasSP = true
	return t, launch{
		r0: word(hw + armv7m.FrameR0*4),
		lr: word(hw + armv7m.FrameLR*4),
	}, true
}

func (c *Core) run(l launch, entry func(uintptr), ret func()) {
	c.service()
	if entry != nil {
		entry(uintptr(l.r0))
	}
	if l.lr == returnAddr && ret != nil {
		ret()
	}
	// Nothing valid to return to.
	c.Breakpoint(0xFE)
}
