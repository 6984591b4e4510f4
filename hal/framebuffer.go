package hal

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// SetPixelRGB writes one pixel, ignoring out-of-range coordinates.
func SetPixelRGB(fb Framebuffer, x, y int, r, g, b uint8) {
	if fb == nil || x < 0 || y < 0 || x >= fb.Width() || y >= fb.Height() {
		return
	}
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	if off+1 >= len(buf) {
		return
	}
	p := PackRGB565(r, g, b)
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
}

// FillRectRGB fills a rectangle clipped to the framebuffer.
func FillRectRGB(fb Framebuffer, x, y, w, h int, r, g, b uint8) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			SetPixelRGB(fb, xx, yy, r, g, b)
		}
	}
}

// RGB565 is one packed 16-bit pixel, stored little endian in buffers.
type RGB565 uint16

// PackRGB565 truncates an 8-bit-per-channel colour.
func PackRGB565(r, g, b uint8) RGB565 {
	return RGB565(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

// RGB expands p back to 8 bits per channel.
func (p RGB565) RGB() (r, g, b uint8) {
	r = uint8(uint32(p>>11&0x1F) * 255 / 31)
	g = uint8(uint32(p>>5&0x3F) * 255 / 63)
	b = uint8(uint32(p&0x1F) * 255 / 31)
	return r, g, b
}
