//go:build !tinygo

package hal

import "titan/hal/sim"

type simCore struct {
	c *sim.Core
}

// SimCore exposes a simulated core through the Core interface.
func SimCore(c *sim.Core) Core { return simCore{c: c} }

func (s simCore) ID() CoreID         { return s.c.ID() }
func (s simCore) CPU() CPU           { return s.c }
func (s simCore) SCB() SCB           { return s.c }
func (s simCore) SysTick() SysTick   { return s.c }
func (s simCore) NVIC() NVIC         { return s.c }
func (s simCore) Vectors() Vectors   { return s.c }
func (s simCore) Switcher() Switcher { return s.c }
