//go:build tinygo && baremetal

package hal

// Register addresses on the Nucleo-H745ZI-Q. The ST-LINK virtual COM port
// is USART3 on PD8/PD9, LD1 is PB0.
const (
	rccAHB4ENR  uintptr = 0x580244E0
	rccAPB1LENR uintptr = 0x580244E8

	gpioB uintptr = 0x58020400
	gpioD uintptr = 0x58020C00

	usart3 uintptr = 0x40004800

	gpioMODER = 0x00
	gpioAFRH  = 0x24
	gpioBSRR  = 0x18

	usartCR1 = 0x00
	usartBRR = 0x0C
	usartISR = 0x1C
	usartRDR = 0x24
	usartTDR = 0x28

	usartISRRXNE = 1 << 5
	usartISRTXE  = 1 << 7

	// APB1 runs from the 64 MHz HSI out of reset.
	apb1Clock = 64_000_000
	baudRate  = 115200
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	serial *uartSerial
	core   *mcuCore
}

// New returns the STM32H745 HAL for the core the image runs on.
//
// UART: USART3 on PD8 (TX) / PD9 (RX), 115200 8N1.
func New() HAL {
	reg(rccAHB4ENR).SetBits(1<<1 | 1<<3)
	reg(rccAPB1LENR).SetBits(1 << 18)

	// PB0 output.
	reg(gpioB+gpioMODER).ReplaceBits(0b01, 0b11, 0)
	// PD8/PD9 alternate function 7.
	reg(gpioD+gpioMODER).ReplaceBits(0b1010, 0b1111, 16)
	reg(gpioD+gpioAFRH).ReplaceBits(0x77, 0xFF, 0)

	reg(usart3 + usartBRR).Set(apb1Clock / baudRate)
	// UE | RE | TE
	reg(usart3 + usartCR1).Set(1<<0 | 1<<2 | 1<<3)

	uart := &uartSerial{}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    &pinLED{port: gpioB, pin: 0},
		serial: uart,
		core:   localCore(),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{} }
func (h *tinyGoHAL) Serial() Serial   { return h.serial }
func (h *tinyGoHAL) Cores() []Core    { return []Core{h.core} }

// Boot runs boot on the local core and never returns. Each core of the part
// runs its own image.
func (h *tinyGoHAL) Boot(id CoreID, boot func()) error {
	if id != h.core.id {
		return ErrNoSuchCore
	}
	boot()
	for {
		h.core.WaitForInterrupt()
	}
}
