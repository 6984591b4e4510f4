package armv7m

import (
	"testing"
	"unsafe"
)

func TestFieldPutGet(t *testing.T) {
	f := Field{Pos: 4, Width: 12}
	v := f.Put(0xFFFF000F, 0xC27)
	if got := f.Get(v); got != 0xC27 {
		t.Fatalf("Get() = %#x, want %#x", got, 0xC27)
	}
	if v&0xF != 0xF || v>>16 != 0xFFFF {
		t.Fatalf("Put() clobbered neighbours: %#x", v)
	}
}

func TestFieldFullWidth(t *testing.T) {
	f := Field{Pos: 0, Width: 32}
	if got := f.Mask(); got != 0xFFFFFFFF {
		t.Fatalf("Mask() = %#x, want 0xffffffff", got)
	}
}

func TestRegSetField(t *testing.T) {
	var r Reg
	r.SetField(SHPR3PRI14, uint32(LowestPriority))
	r.SetField(SHPR3PRI15, uint32(LowestPriority))
	if got := r.Load(); got != 0xFFFF0000 {
		t.Fatalf("SHPR3 = %#x, want %#x", got, 0xFFFF0000)
	}
}

func TestSEVLinesLayout(t *testing.T) {
	idx, f := IRQCM4SEV.EnableBit()
	if idx != 2 || f.Pos != 1 {
		t.Fatalf("EnableBit(65) = (%d, %d), want (2, 1)", idx, f.Pos)
	}
	idx, f = IRQCM7SEV.PriorityField()
	if idx != 16 || f.Pos != 0 {
		t.Fatalf("PriorityField(64) = (%d, %d), want (16, 0)", idx, f.Pos)
	}
	if got := IRQCM7SEV.Exception(); got != 80 {
		t.Fatalf("Exception() = %d, want 80", got)
	}
	if got := Exception(81).IRQ(); got != IRQCM4SEV {
		t.Fatalf("IRQ() = %d, want %d", got, IRQCM4SEV)
	}
}

func TestInitialFrameSize(t *testing.T) {
	if InitialFrameBytes != 68 {
		t.Fatalf("InitialFrameBytes = %d, want 68", InitialFrameBytes)
	}
}

func TestExceptionString(t *testing.T) {
	tests := []struct {
		e    Exception
		want string
	}{
		{ExcPendSV, "PendSV"},
		{ExcSysTick, "SysTick"},
		{Exception(81), "IRQ65"},
		{ExcThread, "thread"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Fatalf("%d.String() = %q, want %q", tt.e, got, tt.want)
		}
	}
}

func TestContextTopAlignsAddress(t *testing.T) {
	words := make([]uint64, 40)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), 320)

	for _, off := range []int{0, 4} {
		ctx := Context{Stack: buf[off : off+256]}
		top := ctx.Top()
		addr := uintptr(unsafe.Pointer(&ctx.Stack[0])) + uintptr(top)
		if addr&7 != 0 {
			t.Fatalf("offset %d: Top() = %d leaves sp at %#x", off, top, addr)
		}
		if want := uint32(256 - off); top != want {
			t.Fatalf("offset %d: Top() = %d, want %d", off, top, want)
		}
	}
}
