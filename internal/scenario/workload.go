package scenario

import (
	"errors"
	"fmt"

	"titan/hal/sim"
	"titan/kernel"
)

var ErrUnknownWorkload = errors.New("unknown workload")

// Workload names what a scenario thread does with its turns.
type Workload string

const (
	// WorkSpin burns cycles forever.
	WorkSpin Workload = "spin"
	// WorkSleep does a slice of work, then sleeps Period ticks.
	WorkSleep Workload = "sleep"
	// WorkYield does a slice of work, then yields.
	WorkYield Workload = "yield"
	// WorkCritical runs Period slices inside a critical section, then one outside.
	WorkCritical Workload = "critical"
	// WorkBurst works for Period ticks, then sleeps Period ticks.
	WorkBurst Workload = "burst"
	// WorkOnce does one slice and returns from its entry function.
	WorkOnce Workload = "once"
)

// slicesPerTick is how many work slices fit in one tick.
const slicesPerTick = 8

func ParseWorkload(s string) (Workload, error) {
	switch w := Workload(s); w {
	case WorkSpin, WorkSleep, WorkYield, WorkCritical, WorkBurst, WorkOnce:
		return w, nil
	case "":
		return WorkSpin, nil
	}
	return "", fmt.Errorf("workload %q: %w", s, ErrUnknownWorkload)
}

// ThreadSpec describes one scenario thread.
type ThreadSpec struct {
	Name     string
	Priority int32
	Stack    int
	Work     Workload
	Period   uint32
	// Start is the tick the thread is started at. Zero starts it at boot.
	Start uint64
}

func (s ThreadSpec) withDefaults(cfg kernel.Config) ThreadSpec {
	if s.Stack == 0 {
		s.Stack = 2 * cfg.MinStack
	}
	if s.Work == "" {
		s.Work = WorkSpin
	}
	if s.Period == 0 {
		s.Period = 1
	}
	return s
}

// worker runs a workload and counts completed iterations.
type worker struct {
	k     *kernel.Kernel
	core  *sim.Core
	spec  ThreadSpec
	slice uint32
	iters uint64
}

func newWorker(k *kernel.Kernel, core *sim.Core, spec ThreadSpec) *worker {
	cfg := k.Config()
	slice := cfg.CPUFreq / cfg.TickFreq / slicesPerTick
	if slice == 0 {
		slice = 1
	}
	return &worker{k: k, core: core, spec: spec, slice: slice}
}

func (w *worker) work(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.core.Step(w.slice)
	}
}

func (w *worker) entry(uintptr) {
	p := w.spec.Period
	switch w.spec.Work {
	case WorkOnce:
		w.work(1)
		w.iters++
		return
	case WorkSleep:
		for {
			w.work(1)
			w.iters++
			w.k.Sleep(p)
		}
	case WorkYield:
		for {
			w.work(1)
			w.iters++
			w.k.Yield()
		}
	case WorkCritical:
		for {
			w.k.EnterCritical()
			w.work(p)
			w.k.ExitCritical()
			w.work(1)
			w.iters++
		}
	case WorkBurst:
		for {
			w.work(p * slicesPerTick)
			w.iters++
			w.k.Sleep(p)
		}
	default:
		for {
			w.work(1)
			w.iters++
		}
	}
}
