//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrHalted = errors.New("core halted")

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	// Hz is the simulated SysTick rate in wall-clock ticks per second.
	// Zero or less runs unpaced.
	Hz int
	// Ticks stops the run once the first core has seen this many ticks.
	// Zero runs until ctx is cancelled.
	Ticks uint64
	// Refresh is how often the app's step function runs.
	Refresh time.Duration
	Serial  io.Writer
	Quiet   bool
}

func (cfg HeadlessConfig) host() HostConfig {
	hc := HostConfig{Serial: cfg.Serial, Quiet: cfg.Quiet}
	if cfg.Hz > 0 {
		hc.TickPeriod = time.Second / time.Duration(cfg.Hz)
	}
	return hc
}

// RunHeadless boots the app on a simulated board without opening a window.
func RunHeadless(ctx context.Context, newApp func(HAL) (func() error, error), cfg HeadlessConfig) error {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second / 60
	}

	h := newHost(cfg.host())
	defer h.Shutdown()
	step, err := newApp(h)
	if err != nil {
		return err
	}

	t := time.NewTicker(cfg.Refresh)
	defer t.Stop()

	first := h.m.Core(CoreCM7)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			for _, id := range []CoreID{CoreCM7, CoreCM4} {
				if code, halted := h.m.Core(id).Halted(); halted {
					return fmt.Errorf("%v: bkpt 0x%02X: %w", id, code, ErrHalted)
				}
			}
			if cfg.Ticks > 0 && first.Ticks() >= cfg.Ticks {
				return nil
			}
		}
	}
}
