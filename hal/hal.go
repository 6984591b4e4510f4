package hal

import (
	"errors"
	"io"

	"titan/hal/armv7m"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

// Serial is a byte stream to the debug host.
type Serial interface {
	io.ReadWriter
}

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrNoSuchCore     = errors.New("no such core")
	ErrAlreadyBooted  = errors.New("core already booted")
)

// CoreID identifies one processor of the part.
type CoreID = armv7m.CoreID

const (
	CoreCM7 = armv7m.CoreCM7
	CoreCM4 = armv7m.CoreCM4
)

// Context is the saved process stack of a switched-out thread.
type Context = armv7m.Context

// CPU exposes the processor intrinsics the kernel relies on.
type CPU interface {
	// DisableInterrupts sets PRIMASK and returns its previous value.
	DisableInterrupts() uintptr
	// RestoreInterrupts writes back a value returned by DisableInterrupts.
	RestoreInterrupts(state uintptr)
	EnableInterrupts()
	// IPSR returns the active exception number, zero in thread mode.
	IPSR() uint32
	WaitForInterrupt()
	SendEvent()
	DataMemoryBarrier()
	DataSyncBarrier()
	InstructionSyncBarrier()
	Breakpoint(imm uint8)
	// Spin burns roughly n core cycles.
	Spin(n uint32)
}

// SCB is the part of the system control block the kernel touches.
type SCB interface {
	PartNo() uint16
	SetPendSV()
	PendSVPending() bool
	SetHandlerPriority(exc armv7m.Exception, prio uint8)
	HandlerPriority(exc armv7m.Exception) uint8
}

// SysTick is the core-local periodic timer.
type SysTick interface {
	SetReload(v uint32)
	Reload() uint32
	// Configure enables the counter and its interrupt.
	Configure(enable, tickInt bool)
	Enabled() bool
}

// NVIC controls external interrupt lines.
type NVIC interface {
	EnableIRQ(irq armv7m.IRQ)
	DisableIRQ(irq armv7m.IRQ)
	IRQEnabled(irq armv7m.IRQ) bool
	SetIRQPriority(irq armv7m.IRQ, prio uint8)
	IRQPriority(irq armv7m.IRQ) uint8
}

// Vectors binds exception handlers.
type Vectors interface {
	Install(exc armv7m.Exception, handler func())
}

// Switcher saves and restores thread contexts from PendSV.
//
// A fresh context carries an initial frame whose PC is EntryPoint and whose
// LR is ReturnPoint. Dispatching it calls the entry hook with R0; returning
// from the entry hook calls the return hook.
type Switcher interface {
	EntryPoint() uint32
	ReturnPoint() uint32
	SetThreadHooks(entry func(arg uintptr), ret func())
	// Switch saves the running context into from (skipped when nil), loads to
	// and performs the exception return into it.
	Switch(from, to *Context)
}

// Core is one processor with its private peripherals.
type Core interface {
	ID() CoreID
	CPU() CPU
	SCB() SCB
	SysTick() SysTick
	NVIC() NVIC
	Vectors() Vectors
	Switcher() Switcher
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// HAL provides the only contact point between the kernel and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() Display
	Serial() Serial
	// Cores lists the processors this image can drive.
	Cores() []Core
	// Boot runs the reset path of a core. On hardware it only accepts the
	// local core and never returns.
	Boot(id CoreID, boot func()) error
}
