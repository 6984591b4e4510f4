package kernel

import "titan/internal/trace"

// onSysTick is the SysTick handler.
func (k *Kernel) onSysTick() {
	k.ticks++
	k.schedTick++
	if k.schedTick >= k.aging {
		k.schedTick = 0
	}

	dirty := false
	for i := range k.tcbs {
		c := &k.tcbs[i]
		if c.state == StateNull || c.state == StateStopped {
			continue
		}
		if c != k.idle && !guardIntact(c.ctx.Stack) {
			c.state = StateStopped
			k.fault(Fault{Kind: FaultStackOverflow, Thread: c.handle()})
			dirty = true
			continue
		}
		switch {
		case c.state == StateSleeping:
			if c.age > 0 {
				c.age--
			}
			if c.age == 0 {
				c.state = StateReady
				k.emit(trace.KindWake, c.id, 0)
				dirty = true
			}
		case c.state == StateReady && k.schedTick == 0 && c != k.idle:
			c.age++
			k.emit(trace.KindAge, c.id, int32(c.age))
			dirty = true
		}
	}

	if k.tickHook != nil {
		k.tickHook()
	}
	if dirty {
		k.scb.SetPendSV()
	}
}

// onPendSV is the PendSV handler: select the next thread and switch to it.
func (k *Kernel) onPendSV() {
	state := k.cpu.DisableInterrupts()
	from := k.active
	restart := k.restart
	k.restart = false

	if !k.selectNext() && !restart {
		k.checkInvariants()
		k.cpu.RestoreInterrupts(state)
		return
	}
	k.checkInvariants()

	to := k.active
	k.emit(trace.KindSwitch, to.id, from.id)
	save := &from.ctx
	if restart || from.state == StateNull {
		save = nil
	}
	if restart && from.state != StateNull {
		initFrame(from, k.switcher, k.restartArg)
	}
	k.switcher.Switch(save, &to.ctx)
}

// selectNext makes the best eligible thread active. It reports false when
// the active thread keeps the core.
func (k *Kernel) selectNext() bool {
	best := k.idle
	for i := range k.tcbs {
		c := &k.tcbs[i]
		if c.state != StateReady && c.state != StateRunning {
			continue
		}
		if best.state != StateReady && best.state != StateRunning || k.better(c, best) {
			best = c
		}
	}

	if best == k.active {
		best.state = StateRunning
		return false
	}
	if prev := k.active; prev.state == StateRunning || prev.state == StateReady {
		prev.state = StateReady
		prev.age = 0
	}
	// Age counts ticks waited since the last dispatch.
	best.age = 0
	best.state = StateRunning
	k.active = best
	return true
}

// better reports whether c should run instead of b. Ties go to the running
// thread; slot order breaks the rest because the scan only replaces on a
// strict win.
func (k *Kernel) better(c, b *tcb) bool {
	if k.cfg.StrictPriority && c.priority != b.priority {
		return c.priority > b.priority
	}
	if ce, be := c.effective(), b.effective(); ce != be {
		return ce > be
	}
	return c.state == StateRunning && b.state != StateRunning
}
