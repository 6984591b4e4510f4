package app

import (
	"image/color"
	"strconv"
	"strings"

	"titan/kernel"
)

// faultScreen reports a kernel fault on the log and the display. It runs in
// handler context just before the core halts.
func (s *System) faultScreen(n *node) func(kernel.Fault) {
	return func(f kernel.Fault) {
		s.fault.CompareAndSwap(nil, &f)

		lines := []string{
			"titan fault on " + n.core.ID().String(),
			f.Error(),
		}
		for _, ti := range n.k.Snapshot(nil) {
			lines = append(lines, threadLine(n, ti))
		}

		if l := s.h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}

		fb := framebuffer(s.h)
		if fb == nil {
			return
		}
		fb.ClearRGB(0x80, 0, 0)
		d := fbDisplay{fb: fb}
		fg := color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

		cols := int16(fb.Width()) / fontWidth
		y := int16(2)
		for _, line := range lines {
			for len(line) > 0 && y+fontHeight <= int16(fb.Height()) {
				chunk, rest := takeRunes(line, cols)
				d.text(2, y, chunk, fg)
				y += fontHeight
				line = strings.TrimLeft(rest, " ")
			}
		}
		_ = d.Display()
	}
}

func threadLine(n *node, ti kernel.ThreadInfo) string {
	name := n.names[ti.Thread.ID()]
	if name == "" {
		name = ti.Thread.String()
	}
	line := name + " " + ti.State.String() + " prio=" + strconv.Itoa(int(ti.Priority)) +
		" age=" + strconv.FormatUint(uint64(ti.Age), 10)
	if !ti.StackOK {
		line += " STACK"
	}
	return line
}
