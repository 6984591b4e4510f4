package trace

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// Usage credits elapsed ticks to whichever thread was switched in.
type Usage struct {
	current  int32
	since    uint32
	started  bool
	ticks    map[int32]uint64
	switches map[int32]uint64
	maxAge   map[int32]uint32
}

func NewUsage() *Usage {
	return &Usage{
		ticks:    make(map[int32]uint64),
		switches: make(map[int32]uint64),
		maxAge:   make(map[int32]uint32),
	}
}

// Add consumes one event. Switches drive the run time, age events the
// longest wait.
func (u *Usage) Add(ev Event) {
	if ev.Kind == KindAge {
		if age := uint32(ev.Arg); age > u.maxAge[ev.Thread] {
			u.maxAge[ev.Thread] = age
		}
		return
	}
	if ev.Kind != KindSwitch {
		return
	}
	if u.started {
		u.ticks[u.current] += uint64(ev.Tick - u.since)
	}
	u.started = true
	u.switches[ev.Thread]++
	u.current = ev.Thread
	u.since = ev.Tick
}

// Close credits the running thread up to now.
func (u *Usage) Close(now uint32) {
	if !u.started {
		return
	}
	u.ticks[u.current] += uint64(now - u.since)
	u.since = now
}

func (u *Usage) Ticks(id int32) uint64    { return u.ticks[id] }
func (u *Usage) Switches(id int32) uint64 { return u.switches[id] }

// MaxAge is the highest age id reached while waiting.
func (u *Usage) MaxAge(id int32) uint32 { return u.maxAge[id] }

// Threads lists every thread seen, ordered by id.
func (u *Usage) Threads() []int32 {
	ids := make([]int32, 0, len(u.ticks)+len(u.switches))
	for id := range u.ticks {
		ids = append(ids, id)
	}
	for id := range u.switches {
		if _, ok := u.ticks[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Fairness summarises how evenly shares are spread: the mean, the
// coefficient of variation and Jain's index (1 is perfectly even).
func Fairness(shares []float64) (mean, cv, jain float64) {
	if len(shares) == 0 {
		return 0, 0, 0
	}
	mean, std := stat.MeanStdDev(shares, nil)
	if mean != 0 {
		cv = std / mean
	}
	var sum, sq float64
	for _, s := range shares {
		sum += s
		sq += s * s
	}
	if sq == 0 {
		return mean, cv, 0
	}
	jain = sum * sum / (float64(len(shares)) * sq)
	if math.IsNaN(cv) {
		cv = 0
	}
	return mean, cv, jain
}
