package kernel

import (
	"encoding/binary"

	"titan/hal"
	"titan/hal/armv7m"
)

// StackGuard marks the lowest word of every thread stack.
const StackGuard uint32 = 0xDEADBEEF

func writeGuard(stack []byte) {
	binary.LittleEndian.PutUint32(stack, StackGuard)
}

func guardIntact(stack []byte) bool {
	return len(stack) >= 4 && binary.LittleEndian.Uint32(stack) == StackGuard
}

// initFrame zeroes the stack and lays out the frame PendSV unstacks on first
// dispatch: r4-r11 and EXC_RETURN, then r0=arg, r1-r3, r12, lr, pc, xPSR.
func initFrame(c *tcb, sw hal.Switcher, arg uintptr) {
	stack := c.ctx.Stack
	clear(stack)
	writeGuard(stack)

	sp := c.ctx.Top() - armv7m.InitialFrameBytes
	put := func(off, v uint32) {
		binary.LittleEndian.PutUint32(stack[off:], v)
	}
	put(sp+armv7m.SoftwareFrameExcReturn*4, armv7m.ExcReturnThreadPSP)

	hw := sp + armv7m.SoftwareFrameBytes
	put(hw+armv7m.FrameR0*4, uint32(arg))
	put(hw+armv7m.FrameLR*4, sw.ReturnPoint())
	put(hw+armv7m.FramePC*4, sw.EntryPoint())
	put(hw+armv7m.FrameXPSR*4, armv7m.XPSRThumb)
	c.ctx.SP = sp
}
