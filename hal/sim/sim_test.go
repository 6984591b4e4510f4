package sim

import (
	"encoding/binary"
	"sync/atomic"
	"testing"

	"titan/hal/armv7m"
)

func startTicking(c *Core, reload uint32) {
	c.SetReload(reload)
	c.SetHandlerPriority(armv7m.ExcSysTick, armv7m.LowestPriority)
	c.SetHandlerPriority(armv7m.ExcPendSV, armv7m.LowestPriority)
	c.Configure(true, true)
}

func TestCPUIDPartNumbers(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()

	if got := m.Core(armv7m.CoreCM7).PartNo(); got != armv7m.PartNoCortexM7 {
		t.Fatalf("cm7 PartNo() = %#x, want %#x", got, armv7m.PartNoCortexM7)
	}
	if got := m.Core(armv7m.CoreCM4).PartNo(); got != armv7m.PartNoCortexM4 {
		t.Fatalf("cm4 PartNo() = %#x, want %#x", got, armv7m.PartNoCortexM4)
	}
}

func TestRunTicksCountsSysTick(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()
	c := m.Core(armv7m.CoreCM7)

	var handled atomic.Uint64
	c.Install(armv7m.ExcSysTick, func() { handled.Add(1) })
	err := c.Boot(func() {
		startTicking(c, 99)
		for {
			c.Step(10)
		}
	})
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}

	c.RunTicks(25)
	if got := c.Ticks(); got != 25 {
		t.Fatalf("Ticks() = %d, want 25", got)
	}
	if got := handled.Load(); got != 25 {
		t.Fatalf("SysTick handled = %d, want 25", got)
	}

	c.RunTicks(5)
	if got := handled.Load(); got != 30 {
		t.Fatalf("SysTick handled = %d, want 30", got)
	}
}

func TestBootTwice(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()
	c := m.Core(armv7m.CoreCM7)

	if err := c.Boot(func() {}); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if err := c.Boot(func() {}); err != ErrBooted {
		t.Fatalf("second Boot() error = %v, want %v", err, ErrBooted)
	}
	c.Wait()
}

func TestMaskedExceptionDeferredUntilRestore(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()
	c := m.Core(armv7m.CoreCM7)

	var order []string
	c.Install(armv7m.ExcPendSV, func() {
		if c.IPSR() != uint32(armv7m.ExcPendSV) {
			order = append(order, "bad ipsr")
		}
		order = append(order, "pendsv")
	})
	if err := c.Boot(func() {
		c.SetHandlerPriority(armv7m.ExcPendSV, armv7m.LowestPriority)
		state := c.DisableInterrupts()
		c.SetPendSV()
		order = append(order, "masked")
		c.RestoreInterrupts(state)
		order = append(order, "restored")
	}); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	c.Wait()

	want := []string{"masked", "pendsv", "restored"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSwitchLaunchesFreshFrame(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()
	c := m.Core(armv7m.CoreCM7)

	idle := &armv7m.Context{Stack: make([]byte, 256)}
	thread := &armv7m.Context{Stack: make([]byte, 256)}
	writeFrame(thread, c.EntryPoint(), c.ReturnPoint(), 42)

	var gotArg atomic.Uintptr
	var returned atomic.Bool
	c.SetThreadHooks(func(arg uintptr) {
		gotArg.Store(arg)
	}, func() {
		returned.Store(true)
		c.Breakpoint(1)
	})
	c.Install(armv7m.ExcPendSV, func() { c.Switch(idle, thread) })

	if err := c.Boot(func() {
		c.SetHandlerPriority(armv7m.ExcPendSV, armv7m.LowestPriority)
		c.SetPendSV()
		for {
			c.WaitForInterrupt()
		}
	}); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	c.Wait()

	if got := gotArg.Load(); got != 42 {
		t.Fatalf("entry arg = %d, want 42", got)
	}
	if !returned.Load() {
		t.Fatalf("return hook not called")
	}
	if code, ok := c.Halted(); !ok || code != 1 {
		t.Fatalf("Halted() = (%d, %v), want (1, true)", code, ok)
	}
	if got := binary.LittleEndian.Uint32(idle.Stack[idle.SP:]); got < firstCookie {
		t.Fatalf("saved r4 = %#x, want a context cookie", got)
	}
}

func TestSendEventRaisesPeerIRQ(t *testing.T) {
	m := New(Options{})
	defer m.Shutdown()
	cm7 := m.Core(armv7m.CoreCM7)
	cm4 := m.Core(armv7m.CoreCM4)

	var served atomic.Uint32
	irq := cm4.ID().SEVIRQ()
	cm4.Install(irq.Exception(), func() { served.Store(uint32(cm4.PartNo())) })
	if err := cm4.Boot(func() {
		cm4.SetIRQPriority(irq, armv7m.HighestPriority)
		cm4.EnableIRQ(irq)
		for {
			cm4.WaitForInterrupt()
		}
	}); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	cm4.RunFree()

	if err := cm7.Boot(func() {
		cm7.SendEvent()
		for served.Load() == 0 {
			cm7.DataMemoryBarrier()
		}
	}); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	cm7.RunFree()
	cm7.Wait()

	if got := served.Load(); got != uint32(armv7m.PartNoCortexM4) {
		t.Fatalf("served PartNo = %#x, want %#x", got, armv7m.PartNoCortexM4)
	}
}

func writeFrame(ctx *armv7m.Context, pc, lr, r0 uint32) {
	sp := ctx.Top() - armv7m.InitialFrameBytes
	put := func(off, v uint32) { binary.LittleEndian.PutUint32(ctx.Stack[off:], v) }
	put(sp+armv7m.SoftwareFrameExcReturn*4, armv7m.ExcReturnThreadPSP)
	hw := sp + armv7m.SoftwareFrameBytes
	put(hw+armv7m.FrameR0*4, r0)
	put(hw+armv7m.FrameLR*4, lr)
	put(hw+armv7m.FramePC*4, pc)
	put(hw+armv7m.FrameXPSR*4, armv7m.XPSRThumb)
	ctx.SP = sp
}
