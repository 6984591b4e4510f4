// Package armv7m describes the ARMv7-M system registers, exception numbers and
// stack frame layout used by the kernel.
//
// Every register is a 32-bit word addressed through its bit fields; the same
// definitions drive both the memory-mapped firmware port and the simulator.
package armv7m

import "sync/atomic"

// Field is a bit field inside a 32-bit register.
type Field struct {
	Pos   uint8
	Width uint8
}

// Mask returns the field mask in register position.
func (f Field) Mask() uint32 {
	return uint32((uint64(1)<<f.Width)-1) << f.Pos
}

// Get extracts the field from v.
func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask()) >> f.Pos
}

// Put returns v with the field replaced by x.
func (f Field) Put(v, x uint32) uint32 {
	return (v &^ f.Mask()) | ((x << f.Pos) & f.Mask())
}

// Reg is a 32-bit register held in ordinary memory.
type Reg struct {
	v atomic.Uint32
}

func (r *Reg) Load() uint32   { return r.v.Load() }
func (r *Reg) Store(v uint32) { r.v.Store(v) }

// Field reads a single field.
func (r *Reg) Field(f Field) uint32 {
	return f.Get(r.v.Load())
}

// SetField performs a read-modify-write of a single field.
func (r *Reg) SetField(f Field, x uint32) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, f.Put(old, x)) {
			return
		}
	}
}

// System control block.
const (
	SCBBase   uintptr = 0xE000ED00
	SCBCPUID  uintptr = SCBBase + 0x00
	SCBICSR   uintptr = SCBBase + 0x04
	SCBSHPR3  uintptr = SCBBase + 0x20
	SysTickCS uintptr = 0xE000E010
	SysTickRV uintptr = 0xE000E014
	SysTickCV uintptr = 0xE000E018
	NVICISER  uintptr = 0xE000E100
	NVICICER  uintptr = 0xE000E180
	NVICISPR  uintptr = 0xE000E200
	NVICICPR  uintptr = 0xE000E280
	NVICIPR   uintptr = 0xE000E400
)

var (
	CPUIDPartNo    = Field{Pos: 4, Width: 12}
	ICSRPendSVSet  = Field{Pos: 28, Width: 1}
	ICSRPendSVClr  = Field{Pos: 27, Width: 1}
	ICSRPendSTSet  = Field{Pos: 26, Width: 1}
	ICSRPendSTClr  = Field{Pos: 25, Width: 1}
	ICSRVectActive = Field{Pos: 0, Width: 9}
	SHPR3PRI14     = Field{Pos: 16, Width: 8}
	SHPR3PRI15     = Field{Pos: 24, Width: 8}

	SysTickEnable    = Field{Pos: 0, Width: 1}
	SysTickTickInt   = Field{Pos: 1, Width: 1}
	SysTickClkSource = Field{Pos: 2, Width: 1}
	SysTickCountFlag = Field{Pos: 16, Width: 1}
	SysTickReload    = Field{Pos: 0, Width: 24}
	SysTickCurrent   = Field{Pos: 0, Width: 24}
)

// MaxReload is the largest value RVR can hold.
const MaxReload = 1<<24 - 1

// Cortex-M part numbers as reported by CPUID.PARTNO.
const (
	PartNoCortexM4 uint16 = 0xC24
	PartNoCortexM7 uint16 = 0xC27
)

// Exception is an ARMv7-M exception number as it appears in IPSR.
type Exception uint16

const (
	ExcThread    Exception = 0
	ExcReset     Exception = 1
	ExcNMI       Exception = 2
	ExcHardFault Exception = 3
	ExcSVCall    Exception = 11
	ExcPendSV    Exception = 14
	ExcSysTick   Exception = 15
	ExcIRQ0      Exception = 16
)

// IRQ returns the external interrupt number of e, or -1 for system exceptions.
func (e Exception) IRQ() IRQ {
	if e < ExcIRQ0 {
		return -1
	}
	return IRQ(e - ExcIRQ0)
}

func (e Exception) String() string {
	switch e {
	case ExcThread:
		return "thread"
	case ExcReset:
		return "Reset"
	case ExcNMI:
		return "NMI"
	case ExcHardFault:
		return "HardFault"
	case ExcSVCall:
		return "SVCall"
	case ExcPendSV:
		return "PendSV"
	case ExcSysTick:
		return "SysTick"
	}
	if e >= ExcIRQ0 {
		return "IRQ" + itoa(int(e-ExcIRQ0))
	}
	return "exc" + itoa(int(e))
}

// IRQ is an external interrupt line number.
type IRQ int16

// Exception returns the exception number of the interrupt line.
func (n IRQ) Exception() Exception { return ExcIRQ0 + Exception(n) }

// EnableBit locates the line inside the ISER/ICER/ISPR/ICPR register banks.
func (n IRQ) EnableBit() (index int, f Field) {
	return int(n) / 32, Field{Pos: uint8(n % 32), Width: 1}
}

// PriorityField locates the line inside the IPR register bank.
func (n IRQ) PriorityField() (index int, f Field) {
	return int(n) / 4, Field{Pos: uint8(n%4) * 8, Width: 8}
}

// Inter-core doorbells on STM32H745. SEV executed on one core raises the
// line on the other.
const (
	IRQCM7SEV IRQ = 64
	IRQCM4SEV IRQ = 65
)

// Exception priorities. Lower numbers preempt higher ones.
const (
	HighestPriority uint8 = 0x00
	LowestPriority  uint8 = 0xFF
)

// Exception stack frames.
const (
	// XPSRThumb is the initial program status: only the Thumb bit set.
	XPSRThumb uint32 = 0x01000000
	// ExcReturnThreadPSP returns to thread mode on the process stack
	// without a floating-point frame.
	ExcReturnThreadPSP uint32 = 0xFFFFFFFD
	// ExcReturnNoFP is clear when the frame includes s16-s31.
	ExcReturnNoFP uint32 = 1 << 4

	// SoftwareFrameWords is r4-r11 plus the saved EXC_RETURN.
	SoftwareFrameWords = 9
	// FPFrameWords is s16-s31, present when ExcReturnNoFP is clear.
	FPFrameWords = 16
	// HardwareFrameWords is r0-r3, r12, lr, pc, xPSR.
	HardwareFrameWords = 8

	SoftwareFrameBytes = SoftwareFrameWords * 4
	FPFrameBytes       = FPFrameWords * 4
	HardwareFrameBytes = HardwareFrameWords * 4
	InitialFrameBytes  = SoftwareFrameBytes + HardwareFrameBytes
)

// Word offsets inside the hardware frame.
const (
	FrameR0   = 0
	FrameR1   = 1
	FrameR2   = 2
	FrameR3   = 3
	FrameR12  = 4
	FrameLR   = 5
	FramePC   = 6
	FrameXPSR = 7
)

// SoftwareFrameExcReturn is the word offset of EXC_RETURN in the software frame.
const SoftwareFrameExcReturn = 8

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 && i > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
