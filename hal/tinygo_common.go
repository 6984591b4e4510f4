//go:build tinygo && baremetal

package hal

// tinyGoDisplay reports no framebuffer: the Nucleo board has no panel.
type tinyGoDisplay struct{}

func (tinyGoDisplay) Framebuffer() Framebuffer { return nil }

type uartLogger struct {
	uart *uartSerial
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.writeByte(s[i])
	}
	l.uart.writeByte('\r')
	l.uart.writeByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.writeByte(b[i])
	}
	l.uart.writeByte('\r')
	l.uart.writeByte('\n')
}

type pinLED struct {
	port uintptr
	pin  uint8
}

func (l *pinLED) High() { reg(l.port + gpioBSRR).Set(1 << l.pin) }
func (l *pinLED) Low()  { reg(l.port + gpioBSRR).Set(1 << (l.pin + 16)) }

// uartSerial polls USART3.
type uartSerial struct{}

func (s *uartSerial) writeByte(b byte) {
	isr := reg(usart3 + usartISR)
	for !isr.HasBits(usartISRTXE) {
	}
	reg(usart3 + usartTDR).Set(uint32(b))
}

func (s *uartSerial) Read(p []byte) (int, error) {
	isr := reg(usart3 + usartISR)
	n := 0
	for n < len(p) && isr.HasBits(usartISRRXNE) {
		p[n] = byte(reg(usart3 + usartRDR).Get())
		n++
	}
	return n, nil
}

func (s *uartSerial) Write(p []byte) (int, error) {
	for _, b := range p {
		s.writeByte(b)
	}
	return len(p), nil
}
