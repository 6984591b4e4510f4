//go:build !tinygo

package hal

import "sync"

// hostFramebuffer is an RGB565 buffer shared between the simulated cores and
// the window. Present bumps a generation counter so the window only uploads
// finished frames.
type hostFramebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	stride int
	buf    []byte
	front  []byte
	gen    uint64
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
		front:  make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.stride }
func (f *hostFramebuffer) Buffer() []byte      { return f.buf }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	pixel := PackRGB565(r, g, b)
	lo := byte(pixel)
	hi := byte(pixel >> 8)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i] = lo
		f.buf[i+1] = hi
	}
}

func (f *hostFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.front, f.buf)
	f.gen++
	return nil
}

// snapshotRGB565 copies the last presented frame into dst if it is newer
// than gen, and returns the frame's generation.
func (f *hostFramebuffer) snapshotRGB565(dst []byte, gen uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		copy(dst, f.front)
	}
	return f.gen
}
