//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"titan/hal/sim"
)

// HostConfig configures the simulated board behind the host HAL.
type HostConfig struct {
	// TickPeriod is the wall-clock length of one SysTick period. Zero runs
	// the simulated cores as fast as possible.
	TickPeriod time.Duration
	// Serial receives whatever the firmware writes to its UART. Nil
	// discards it.
	Serial io.Writer
	// Quiet drops LED transitions from the log.
	Quiet bool
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	fb     *hostFramebuffer
	serial Serial
	m      *sim.Machine
	cores  []Core
}

// New returns a host HAL backed by a simulated dual-core part running at
// one tick per millisecond.
func New() HAL {
	return NewHost(HostConfig{TickPeriod: time.Millisecond})
}

// NewHost returns a host HAL with explicit settings.
func NewHost(cfg HostConfig) HAL {
	return newHost(cfg)
}

func newHost(cfg HostConfig) *hostHAL {
	logger := &hostLogger{w: os.Stdout}
	m := sim.New(sim.Options{Pace: cfg.TickPeriod})
	h := &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger, quiet: cfg.Quiet},
		fb:     newHostFramebuffer(320, 240),
		serial: &hostSerial{w: cfg.Serial},
		m:      m,
	}
	for _, id := range []CoreID{CoreCM7, CoreCM4} {
		h.cores = append(h.cores, SimCore(m.Core(id)))
	}
	return h
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Serial() Serial   { return h.serial }
func (h *hostHAL) Cores() []Core    { return h.cores }

// Boot starts the reset path of a simulated core and lets it run freely.
func (h *hostHAL) Boot(id CoreID, boot func()) error {
	c := h.m.Core(id)
	if c == nil {
		return fmt.Errorf("boot %v: %w", id, ErrNoSuchCore)
	}
	if err := c.Boot(boot); err != nil {
		if errors.Is(err, sim.ErrBooted) {
			return fmt.Errorf("boot %v: %w", id, ErrAlreadyBooted)
		}
		return err
	}
	c.RunFree()
	return nil
}

// Shutdown stops both simulated cores.
func (h *hostHAL) Shutdown() {
	h.m.Shutdown()
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	quiet  bool
	logger *hostLogger
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	l.on = on
	l.mu.Unlock()
	if l.quiet {
		return
	}
	if on {
		l.logger.WriteLineString("led: HIGH")
	} else {
		l.logger.WriteLineString("led: LOW")
	}
}

// On reports the last level written.
func (l *hostLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// hostSerial is a transmit-only UART. Reads report EOF.
type hostSerial struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *hostSerial) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return len(p), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
