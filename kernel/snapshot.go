package kernel

// ThreadInfo is a copy of one slot of the thread table.
type ThreadInfo struct {
	Thread    Thread
	State     State
	Priority  int32
	Age       uint32
	Critical  int32
	StackSize int
	StackOK   bool
	Idle      bool
}

// Snapshot appends every occupied slot to dst. It does not mask interrupts:
// call it from a tick hook, from inside a critical section or while the core
// is halted.
func (k *Kernel) Snapshot(dst []ThreadInfo) []ThreadInfo {
	for i := range k.tcbs {
		c := &k.tcbs[i]
		if c.state == StateNull {
			continue
		}
		dst = append(dst, ThreadInfo{
			Thread:    c.handle(),
			State:     c.state,
			Priority:  c.priority,
			Age:       c.age,
			Critical:  c.critDepth,
			StackSize: len(c.ctx.Stack),
			StackOK:   guardIntact(c.ctx.Stack),
			Idle:      c == k.idle,
		})
	}
	return dst
}
