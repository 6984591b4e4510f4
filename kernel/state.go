package kernel

import "strconv"

// State is the lifecycle state of a thread slot.
type State uint8

const (
	StateNull State = iota
	StateStopped
	StateReady
	StateRunning
	StateSuspended
	StateSleeping
	StateCritical
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateStopped:
		return "STOPPED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSuspended:
		return "SUSPENDED"
	case StateSleeping:
		return "SLEEPING"
	case StateCritical:
		return "CRITICAL"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Thread is a handle to a thread slot. The zero value is the null handle.
//
// A handle goes stale once its thread is destroyed; every operation on a
// stale handle fails even if the slot has been reused.
type Thread struct {
	id   int32
	slot uint16
}

// ID returns the thread's unique id, zero for the null handle.
func (t Thread) ID() int32 { return t.id }

// Valid reports whether t is not the null handle. A valid handle may still
// be stale.
func (t Thread) Valid() bool { return t.id > 0 && t.slot > 0 }

// Equal reports whether two handles name the same thread.
func (t Thread) Equal(u Thread) bool { return t == u }

func (t Thread) String() string {
	if !t.Valid() {
		return "thread(null)"
	}
	return "thread(" + strconv.Itoa(int(t.id)) + ")"
}

// EntryFunc is a thread body. Returning from it exits the thread.
type EntryFunc func(arg uintptr)
