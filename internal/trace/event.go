// Package trace records scheduler events and moves them off-target.
package trace

import (
	"strconv"

	"titan/internal/mailbox"
)

// Kind identifies a scheduler event.
type Kind uint8

const (
	KindNone Kind = iota
	// KindSwitch: Thread is the incoming thread, Arg the outgoing one.
	KindSwitch
	// KindWake: a sleeping thread became ready.
	KindWake
	// KindCreate: Arg is the base priority.
	KindCreate
	KindStart
	KindStop
	KindSuspend
	KindResume
	KindDestroy
	// KindSleep: Arg is the tick count.
	KindSleep
	KindExit
	// KindPriority: Arg is the new base priority.
	KindPriority
	// KindFault: Arg is the fault kind.
	KindFault
	// KindAge: a ready thread aged; Arg is its new age.
	KindAge
	kindCount
)

var kindNames = [...]string{
	KindNone:     "none",
	KindSwitch:   "switch",
	KindWake:     "wake",
	KindCreate:   "create",
	KindStart:    "start",
	KindStop:     "stop",
	KindSuspend:  "suspend",
	KindResume:   "resume",
	KindDestroy:  "destroy",
	KindSleep:    "sleep",
	KindExit:     "exit",
	KindPriority: "priority",
	KindFault:    "fault",
	KindAge:      "age",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Event is one scheduler occurrence, stamped with the kernel tick.
type Event struct {
	Tick   uint32
	Kind   Kind
	Thread int32
	Arg    int32
}

// Sink receives events. Record is called with interrupts masked, possibly
// from handler context, and must not block.
type Sink interface {
	Record(ev Event)
}

// Ring is a Sink backed by a fixed-size mailbox. Events that do not fit are
// counted and dropped.
type Ring struct {
	mb mailbox.Mailbox[Event]
}

func (r *Ring) Record(ev Event) { r.mb.TrySend(ev) }

// Next removes the oldest event.
func (r *Ring) Next() (Event, bool) { return r.mb.TryRecv() }

// Drain appends every queued event to dst.
func (r *Ring) Drain(dst []Event) []Event {
	for {
		ev, ok := r.mb.TryRecv()
		if !ok {
			return dst
		}
		dst = append(dst, ev)
	}
}

// Dropped reports how many events were lost to a full ring.
func (r *Ring) Dropped() uint32 { return r.mb.Dropped() }
