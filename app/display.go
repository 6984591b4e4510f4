package app

import (
	"image/color"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"

	"titan/hal"
)

var (
	font       = &tinyfont.TomThumb
	fontWidth  = int16(4)
	fontHeight = int16(7)
)

// fbDisplay draws into an RGB565 framebuffer.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = fbDisplay{}

// framebuffer returns the display's framebuffer if it can be drawn on.
func framebuffer(h hal.HAL) hal.Framebuffer {
	disp := h.Display()
	if disp == nil {
		return nil
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Buffer() == nil || fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	return fb
}

func (d fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	hal.SetPixelRGB(d.fb, int(x), int(y), c.R, c.G, c.B)
}

func (d fbDisplay) Display() error { return d.fb.Present() }

// text writes s with its top-left corner at (x, y), clipped to cols
// characters.
func (d fbDisplay) text(x, y int16, s string, fg color.RGBA) {
	line, _ := takeRunes(s, (int16(d.fb.Width())-x)/fontWidth)
	tinyfont.WriteLine(d, font, x, y+fontHeight-1, line, fg)
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
