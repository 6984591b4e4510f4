//go:build !tinygo

package hal

import (
	"bytes"
	"io"
	"testing"
)

func TestRGB565(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    RGB565
	}{
		{0, 0, 0, 0x0000},
		{0xFF, 0xFF, 0xFF, 0xFFFF},
		{0xFF, 0, 0, 0xF800},
		{0, 0xFF, 0, 0x07E0},
		{0, 0, 0xFF, 0x001F},
	}
	for _, tt := range tests {
		p := PackRGB565(tt.r, tt.g, tt.b)
		if p != tt.want {
			t.Fatalf("PackRGB565(%d,%d,%d) = %#04x, want %#04x", tt.r, tt.g, tt.b, p, tt.want)
		}
		if r, g, b := p.RGB(); r != tt.r || g != tt.g || b != tt.b {
			t.Fatalf("%#04x.RGB() = %d,%d,%d", p, r, g, b)
		}
	}
}

func TestFramebufferPresent(t *testing.T) {
	fb := newHostFramebuffer(4, 2)
	FillRectRGB(fb, 2, 1, 10, 10, 0xFF, 0, 0)
	SetPixelRGB(fb, -1, 0, 0xFF, 0xFF, 0xFF)

	dst := make([]byte, len(fb.buf))
	if gen := fb.snapshotRGB565(dst, 0); gen != 0 {
		t.Fatalf("snapshot before Present: gen %d", gen)
	}
	if err := fb.Present(); err != nil {
		t.Fatal(err)
	}
	gen := fb.snapshotRGB565(dst, 0)
	if gen != 1 {
		t.Fatalf("gen = %d, want 1", gen)
	}
	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0x00, 0xF8, 0x00, 0xF8,
	}
	if !bytes.Equal(dst, want) {
		t.Fatalf("frame = % x, want % x", dst, want)
	}
}

func TestHostSerial(t *testing.T) {
	var buf bytes.Buffer
	s := &hostSerial{w: &buf}
	if n, err := s.Write([]byte("abc")); n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if buf.String() != "abc" {
		t.Fatalf("wrote %q", buf.String())
	}
	if _, err := s.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("Read err = %v, want EOF", err)
	}

	discard := &hostSerial{}
	if n, err := discard.Write([]byte("xy")); n != 2 || err != nil {
		t.Fatalf("discarding Write = %d, %v", n, err)
	}
}
