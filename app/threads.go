package app

import (
	"titan/hal"
	"titan/internal/trace"
	"titan/kernel"
)

// slicesPerTick splits a tick into units of counter work.
const slicesPerTick = 8

func (n *node) counter(i int) kernel.EntryFunc {
	cfg := n.k.Config()
	slice := cfg.CPUFreq / cfg.TickFreq / slicesPerTick
	return func(uintptr) {
		cpu := n.core.CPU()
		for {
			n.counts[i].Add(1)
			cpu.Spin(slice)
		}
	}
}

func (s *System) blinker(n *node) kernel.EntryFunc {
	return func(uintptr) {
		led := s.h.LED()
		for {
			led.High()
			n.blinks.Add(1)
			n.k.Sleep(s.cfg.BlinkTicks)
			led.Low()
			n.k.Sleep(s.cfg.BlinkTicks)
		}
	}
}

// counterValue runs on the Cortex-M7 on behalf of either core.
func (s *System) counterValue(p hal.Core, arg uintptr) int32 {
	n, err := s.node(p.ID())
	if err != nil {
		return -1
	}
	return int32(n.counts[arg&1].Load() & 0x7FFFFFFF)
}

// remote polls the first core's counter through the exclusive bridge.
func (s *System) remote(n *node) kernel.EntryFunc {
	return func(uintptr) {
		for {
			n.k.Sleep(s.cfg.RemoteTicks)
			v := s.readCounter(n.core, 0)
			s.lastRemote.Store(v)
			s.remoteCalls.Add(1)
		}
	}
}

// monitor drains the trace ring, publishes the thread table and redraws
// the scope.
func (s *System) monitor(n *node) kernel.EntryFunc {
	return func(uintptr) {
		var evs []trace.Event
		enc := trace.NewEncoder(s.h.Serial())
		printer := trace.NewPrinter(nil, false)
		for id, name := range n.names {
			printer.Name(id, name)
		}
		for {
			evs = n.ring.Drain(evs[:0])
			for _, ev := range evs {
				if s.cfg.WireTrace {
					enc.Encode(ev)
				}
				if s.cfg.TextTrace {
					s.h.Logger().WriteLineString(printer.Format(ev))
				}
			}

			n.k.EnterCritical()
			n.infos = n.k.Snapshot(n.infos[:0])
			n.k.ExitCritical()
			shown := append([]kernel.ThreadInfo(nil), n.infos...)
			n.shown.Store(&shown)

			if s.cfg.Scope {
				s.drawScope(n, shown)
			}
			n.k.Sleep(s.cfg.MonitorTicks)
		}
	}
}
