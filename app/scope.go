package app

import (
	"image/color"
	"strconv"

	"titan/hal"
	"titan/kernel"
)

type rgb struct{ r, g, b uint8 }

var stateColors = map[kernel.State]rgb{
	kernel.StateStopped:   {0x60, 0x60, 0x60},
	kernel.StateReady:     {0x20, 0x80, 0xFF},
	kernel.StateRunning:   {0x20, 0xE0, 0x40},
	kernel.StateSuspended: {0xE0, 0xA0, 0x20},
	kernel.StateSleeping:  {0x80, 0x40, 0xC0},
	kernel.StateCritical:  {0xFF, 0x30, 0x30},
}

const (
	scopeRow    = 12
	scopeBarX   = 120
	scopeHeader = 14
)

// drawScope renders one row per thread: its name, state and a bar for its
// effective priority.
func (s *System) drawScope(n *node, infos []kernel.ThreadInfo) {
	fb := framebuffer(s.h)
	if fb == nil {
		return
	}
	d := fbDisplay{fb: fb}
	white := color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

	fb.ClearRGB(0x10, 0x10, 0x18)
	a, b := n.counts[0].Load(), n.counts[1].Load()
	calls, last := s.RemoteCalls()
	d.text(2, 2, n.b.Name+" tick "+strconv.FormatUint(n.k.Ticks(), 10)+
		" a="+strconv.FormatUint(a, 10)+" b="+strconv.FormatUint(b, 10)+
		" remote="+strconv.FormatUint(uint64(calls), 10)+"/"+strconv.Itoa(int(last))+
		" drop="+strconv.FormatUint(uint64(n.ring.Dropped()), 10), white)

	maxPrio := n.k.Config().MaxPriority
	if maxPrio < 1 {
		maxPrio = 1
	}
	width := fb.Width() - scopeBarX - 4
	for i, ti := range infos {
		y := scopeHeader + i*scopeRow
		if y+scopeRow > fb.Height() {
			break
		}
		d.text(2, int16(y), threadLine(n, ti), white)

		c, ok := stateColors[ti.State]
		if !ok {
			continue
		}
		eff := int64(ti.Priority) + int64(ti.Age)
		w := int(eff * int64(width) / int64(maxPrio))
		if w > width {
			w = width
		}
		if w < 1 {
			w = 1
		}
		hal.FillRectRGB(fb, scopeBarX, y+1, w, scopeRow-3, c.r, c.g, c.b)
	}
	_ = d.Display()
}
