package kernel

import (
	"errors"
	"fmt"

	"titan/hal/armv7m"
)

// MinStackFloor is the smallest stack the kernel can build an initial frame on.
const MinStackFloor = 128

var (
	ErrTickTooFast        = errors.New("tick frequency above half the core clock")
	ErrSchedNotMultiple   = errors.New("scheduler frequency is not a multiple of the tick frequency")
	ErrEmptyPriorityRange = errors.New("priority range is empty")
	ErrStackTooSmall      = errors.New("stack size below kernel floor")
	ErrNoThreads          = errors.New("thread capacity must be positive")
	ErrReloadRange        = errors.New("tick period does not fit SysTick reload")
	ErrRunning            = errors.New("kernel already initialised")
	ErrNilCore            = errors.New("nil core")
)

// Config holds the build-time parameters of a kernel instance.
type Config struct {
	// CPUFreq is the core clock feeding SysTick, in Hz.
	CPUFreq uint32
	// TickFreq is the SysTick interrupt rate, in Hz.
	TickFreq uint32
	// SchedFreq sets the aging period to SchedFreq/TickFreq ticks.
	SchedFreq uint32

	MaxThreads    int
	MinStack      int
	IdleStackSize int

	// Create accepts priorities strictly between MinPriority and MaxPriority.
	MinPriority int32
	MaxPriority int32

	// StrictPriority compares base priority before aging.
	StrictPriority bool
}

// DefaultConfig matches the STM32H745 Cortex-M7 at full speed.
func DefaultConfig() Config {
	return Config{
		CPUFreq:       480_000_000,
		TickFreq:      1_000,
		SchedFreq:     1_000,
		MaxThreads:    8,
		MinStack:      256,
		IdleStackSize: 256,
		MinPriority:   0,
		MaxPriority:   256,
	}
}

// Validate rejects configurations the kernel cannot run with.
func (c Config) Validate() error {
	switch {
	case c.TickFreq == 0 || c.TickFreq > c.CPUFreq/2:
		return fmt.Errorf("kernel: tick %d Hz on %d Hz core: %w", c.TickFreq, c.CPUFreq, ErrTickTooFast)
	case c.SchedFreq < c.TickFreq || c.SchedFreq%c.TickFreq != 0:
		return fmt.Errorf("kernel: sched %d Hz, tick %d Hz: %w", c.SchedFreq, c.TickFreq, ErrSchedNotMultiple)
	case c.CPUFreq/c.TickFreq-1 > armv7m.MaxReload:
		return fmt.Errorf("kernel: reload %d: %w", c.CPUFreq/c.TickFreq-1, ErrReloadRange)
	case int64(c.MaxPriority)-int64(c.MinPriority) < 2:
		return fmt.Errorf("kernel: priorities (%d, %d): %w", c.MinPriority, c.MaxPriority, ErrEmptyPriorityRange)
	case c.MinStack < MinStackFloor:
		return fmt.Errorf("kernel: min stack %d: %w", c.MinStack, ErrStackTooSmall)
	case c.IdleStackSize < MinStackFloor:
		return fmt.Errorf("kernel: idle stack %d: %w", c.IdleStackSize, ErrStackTooSmall)
	case c.MaxThreads <= 0 || c.MaxThreads >= 1<<16-1:
		return fmt.Errorf("kernel: max threads %d: %w", c.MaxThreads, ErrNoThreads)
	}
	return nil
}

func (c Config) reload() uint32 { return c.CPUFreq/c.TickFreq - 1 }

func (c Config) agingPeriod() uint32 { return c.SchedFreq / c.TickFreq }
