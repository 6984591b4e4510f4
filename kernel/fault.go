package kernel

import (
	"strconv"

	"titan/internal/trace"
)

// FaultKind classifies an unrecoverable kernel error.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	// FaultStackOverflow: the guard word at a thread's stack base was overwritten.
	FaultStackOverflow
	// FaultBadExit: a thread returned from its entry function but could not exit.
	FaultBadExit
	// FaultInvariant: a scheduler self-check failed.
	FaultInvariant
)

func (k FaultKind) String() string {
	switch k {
	case FaultStackOverflow:
		return "stack overflow"
	case FaultBadExit:
		return "bad exit"
	case FaultInvariant:
		return "invariant"
	}
	return "fault(" + strconv.Itoa(int(k)) + ")"
}

// Fault describes an unrecoverable kernel error.
type Fault struct {
	Kind   FaultKind
	Thread Thread
	Tick   uint64
	Detail string
}

func (f Fault) Error() string {
	s := "kernel: " + f.Kind.String() + " in " + f.Thread.String() + " at tick " + strconv.FormatUint(f.Tick, 10)
	if f.Detail != "" {
		s += ": " + f.Detail
	}
	return s
}

// BreakpointFault is the BKPT immediate the kernel halts on after a fault.
const BreakpointFault = 0xAB

// fault reports f once and halts the core. It does not return on hardware.
func (k *Kernel) fault(f Fault) {
	f.Tick = k.ticks
	k.emit(trace.KindFault, f.Thread.id, int32(f.Kind))
	if k.faulted.CompareAndSwap(false, true) {
		if k.onFault != nil {
			k.onFault(f)
		} else if k.log != nil {
			k.log.WriteLineString(f.Error())
		}
	}
	k.cpu.Breakpoint(BreakpointFault)
}

// checkInvariants verifies the scheduler state after a selection.
func (k *Kernel) checkInvariants() {
	if !k.checks {
		return
	}
	running := 0
	for i := range k.tcbs {
		c := &k.tcbs[i]
		if c.state == StateRunning {
			running++
		}
		if c != k.idle && c.state != StateNull && c.priority <= k.idle.priority {
			k.fault(Fault{Kind: FaultInvariant, Thread: c.handle(), Detail: "priority at or below idle"})
			return
		}
	}
	switch {
	case running != 1:
		k.fault(Fault{Kind: FaultInvariant, Thread: k.active.handle(), Detail: strconv.Itoa(running) + " running threads"})
	case k.active.state != StateRunning:
		k.fault(Fault{Kind: FaultInvariant, Thread: k.active.handle(), Detail: "active thread is " + k.active.state.String()})
	case k.idle.state != StateRunning && k.idle.state != StateReady:
		k.fault(Fault{Kind: FaultInvariant, Thread: k.idle.handle(), Detail: "idle is " + k.idle.state.String()})
	}
}
