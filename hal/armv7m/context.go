package armv7m

import "unsafe"

// CoreID identifies one processor of a dual-core part.
type CoreID uint8

const (
	CoreCM7 CoreID = iota
	CoreCM4
	NumCores
)

// Peer returns the other core.
func (c CoreID) Peer() CoreID { return c ^ 1 }

func (c CoreID) String() string {
	switch c {
	case CoreCM7:
		return "cm7"
	case CoreCM4:
		return "cm4"
	}
	return "core?"
}

// PartNo returns the CPUID part number reported by the core.
func (c CoreID) PartNo() uint16 {
	if c == CoreCM4 {
		return PartNoCortexM4
	}
	return PartNoCortexM7
}

// CoreByPartNo maps a CPUID part number back to the core that reports it.
func CoreByPartNo(p uint16) (CoreID, bool) {
	switch p {
	case PartNoCortexM7:
		return CoreCM7, true
	case PartNoCortexM4:
		return CoreCM4, true
	}
	return 0, false
}

// Context is the saved process stack of a thread that is not executing.
//
// SP is a byte offset into Stack. While the thread is switched out, the words
// at Stack[SP:] hold the software frame followed by the hardware frame.
type Context struct {
	Stack []byte
	SP    uint32
}

// Top returns the offset of the highest 8-byte aligned address in Stack,
// which is the initial stack pointer.
func (c *Context) Top() uint32 {
	if len(c.Stack) == 0 {
		return 0
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(c.Stack)))
	end := (base + uintptr(len(c.Stack))) &^ 7
	return uint32(end - base)
}

// SEVIRQ returns the interrupt line raised on c when its peer executes SEV.
func (c CoreID) SEVIRQ() IRQ {
	if c == CoreCM4 {
		return IRQCM7SEV
	}
	return IRQCM4SEV
}
