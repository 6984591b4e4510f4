//go:build tinygo && baremetal

package hal

// The context switch lives in tinygo_switch_cortexm.S.
import "C"

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"titan/hal/armv7m"
)

//go:extern titan_thread_entry
var threadEntry [0]byte

//go:extern titan_thread_return
var threadReturn [0]byte

// handlerStack is the main stack once threads move to the process stack.
var handlerStack [2048]byte

var local mcuCore

func reg(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// mcuCore drives the core the image is running on through its
// memory-mapped system registers.
type mcuCore struct {
	id       CoreID
	pendSV   func()
	sysTick  func()
	sev      func()
	entry    func(uintptr)
	ret      func()
	from, to *Context
	adopted  bool
}

func localCore() *mcuCore {
	c := &local
	if id, ok := armv7m.CoreByPartNo(c.PartNo()); ok {
		c.id = id
	}
	return c
}

func (c *mcuCore) ID() CoreID         { return c.id }
func (c *mcuCore) CPU() CPU           { return c }
func (c *mcuCore) SCB() SCB           { return c }
func (c *mcuCore) SysTick() SysTick   { return c }
func (c *mcuCore) NVIC() NVIC         { return c }
func (c *mcuCore) Vectors() Vectors   { return c }
func (c *mcuCore) Switcher() Switcher { return c }

func (c *mcuCore) DisableInterrupts() uintptr     { return arm.DisableInterrupts() }
func (c *mcuCore) RestoreInterrupts(state uintptr) { arm.EnableInterrupts(state) }
func (c *mcuCore) EnableInterrupts()               { arm.Asm("cpsie i") }

func (c *mcuCore) IPSR() uint32 {
	return uint32(arm.AsmFull("mrs {}, IPSR", nil))
}

func (c *mcuCore) WaitForInterrupt()       { arm.Asm("wfi") }
func (c *mcuCore) SendEvent()              { arm.Asm("sev") }
func (c *mcuCore) DataMemoryBarrier()      { arm.Asm("dmb") }
func (c *mcuCore) DataSyncBarrier()        { arm.Asm("dsb") }
func (c *mcuCore) InstructionSyncBarrier() { arm.Asm("isb") }

func (c *mcuCore) Spin(n uint32) {
	for i := n / 4; i > 0; i-- {
		arm.Asm("nop")
	}
}

// Breakpoint halts with one of the kernel's known immediates.
func (c *mcuCore) Breakpoint(imm uint8) {
	switch imm {
	case 0xAB:
		arm.Asm("bkpt #0xAB")
	case 0xE1:
		arm.Asm("bkpt #0xE1")
	default:
		arm.Asm("bkpt #0")
	}
	for {
		arm.Asm("wfi")
	}
}

func (c *mcuCore) PartNo() uint16 {
	return uint16(armv7m.CPUIDPartNo.Get(reg(armv7m.SCBCPUID).Get()))
}

func (c *mcuCore) SetPendSV() {
	reg(armv7m.SCBICSR).Set(armv7m.ICSRPendSVSet.Mask())
}

func (c *mcuCore) PendSVPending() bool {
	return reg(armv7m.SCBICSR).HasBits(armv7m.ICSRPendSVSet.Mask())
}

func shprField(exc armv7m.Exception) (armv7m.Field, bool) {
	switch exc {
	case armv7m.ExcPendSV:
		return armv7m.SHPR3PRI14, true
	case armv7m.ExcSysTick:
		return armv7m.SHPR3PRI15, true
	}
	return armv7m.Field{}, false
}

func (c *mcuCore) SetHandlerPriority(exc armv7m.Exception, prio uint8) {
	if f, ok := shprField(exc); ok {
		reg(armv7m.SCBSHPR3).ReplaceBits(uint32(prio), 0xFF, f.Pos)
	}
}

func (c *mcuCore) HandlerPriority(exc armv7m.Exception) uint8 {
	if f, ok := shprField(exc); ok {
		return uint8(f.Get(reg(armv7m.SCBSHPR3).Get()))
	}
	return 0
}

func (c *mcuCore) SetReload(v uint32) { reg(armv7m.SysTickRV).Set(v & armv7m.MaxReload) }
func (c *mcuCore) Reload() uint32     { return reg(armv7m.SysTickRV).Get() & armv7m.MaxReload }

func (c *mcuCore) Configure(enable, tickInt bool) {
	csr := reg(armv7m.SysTickCS)
	v := armv7m.SysTickClkSource.Put(0, 1)
	if enable {
		v = armv7m.SysTickEnable.Put(v, 1)
		reg(armv7m.SysTickCV).Set(0)
	}
	if tickInt {
		v = armv7m.SysTickTickInt.Put(v, 1)
	}
	csr.Set(v)
}

func (c *mcuCore) Enabled() bool {
	return reg(armv7m.SysTickCS).HasBits(armv7m.SysTickEnable.Mask())
}

func (c *mcuCore) EnableIRQ(irq armv7m.IRQ) {
	idx, f := irq.EnableBit()
	reg(armv7m.NVICISER + uintptr(idx)*4).Set(f.Mask())
}

func (c *mcuCore) DisableIRQ(irq armv7m.IRQ) {
	idx, f := irq.EnableBit()
	reg(armv7m.NVICICER + uintptr(idx)*4).Set(f.Mask())
}

func (c *mcuCore) IRQEnabled(irq armv7m.IRQ) bool {
	idx, f := irq.EnableBit()
	return reg(armv7m.NVICISER + uintptr(idx)*4).HasBits(f.Mask())
}

func (c *mcuCore) SetIRQPriority(irq armv7m.IRQ, prio uint8) {
	idx, f := irq.PriorityField()
	reg(armv7m.NVICIPR+uintptr(idx)*4).ReplaceBits(uint32(prio), 0xFF, f.Pos)
}

func (c *mcuCore) IRQPriority(irq armv7m.IRQ) uint8 {
	idx, f := irq.PriorityField()
	return uint8(f.Get(reg(armv7m.NVICIPR + uintptr(idx)*4).Get()))
}

// Install binds the exceptions the kernel and the exclusive bridge use. The
// doorbell lines are registered with the runtime at compile time.
func (c *mcuCore) Install(exc armv7m.Exception, handler func()) {
	switch exc {
	case armv7m.ExcPendSV:
		c.pendSV = handler
	case armv7m.ExcSysTick:
		c.sysTick = handler
	case armv7m.IRQCM7SEV.Exception():
		c.sev = handler
		interrupt.New(int(armv7m.IRQCM7SEV), func(interrupt.Interrupt) { local.doorbell() }).Enable()
	case armv7m.IRQCM4SEV.Exception():
		c.sev = handler
		interrupt.New(int(armv7m.IRQCM4SEV), func(interrupt.Interrupt) { local.doorbell() }).Enable()
	}
}

func (c *mcuCore) doorbell() {
	if c.sev != nil {
		c.sev()
	}
}

func (c *mcuCore) EntryPoint() uint32 {
	return uint32(uintptr(unsafe.Pointer(&threadEntry))) | 1
}

func (c *mcuCore) ReturnPoint() uint32 {
	return uint32(uintptr(unsafe.Pointer(&threadReturn))) | 1
}

// SetThreadHooks also moves the calling boot context onto the process stack
// so PendSV can save it like any other thread.
func (c *mcuCore) SetThreadHooks(entry func(arg uintptr), ret func()) {
	c.entry, c.ret = entry, ret
	if c.adopted {
		return
	}
	c.adopted = true
	top := (uintptr(unsafe.Pointer(&handlerStack[0])) + uintptr(len(handlerStack))) &^ 7
	arm.AsmFull(`
		mrs r0, msp
		msr psp, r0
		mrs r0, control
		orr r0, r0, #2
		msr control, r0
		isb
		msr msp, {top}
	`, map[string]interface{}{"top": top})
}

// Switch records the decision; the PendSV trampoline performs it once the
// handler returns.
func (c *mcuCore) Switch(from, to *Context) {
	c.from, c.to = from, to
}

func stackBase(ctx *Context) uint32 {
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(ctx.Stack))))
}

//export titan_pendsv
func pendSVTrampoline(sp uint32) uint32 {
	c := &local
	c.from, c.to = nil, nil
	if c.pendSV != nil {
		c.pendSV()
	}
	if c.to == nil {
		return sp
	}
	if c.from != nil {
		// Offsets wrap for the boot context, which does not live on its
		// nominal stack; base+SP still yields the saved address.
		c.from.SP = sp - stackBase(c.from)
	}
	return stackBase(c.to) + c.to.SP
}

//export SysTick_Handler
func sysTickHandler() {
	if h := local.sysTick; h != nil {
		h()
	}
}

//export titan_launch
func threadLaunch(arg uintptr) {
	local.entry(arg)
}

//export titan_exit
func threadExit() {
	local.ret()
}
