package kernel

import (
	"testing"

	"titan/hal"
	"titan/hal/armv7m"
	"titan/hal/sim"
	"titan/internal/trace"
)

// testConfig runs SysTick every 64 cycles so workloads stepping 8 cycles get
// eight steps per tick.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CPUFreq = 64_000
	return cfg
}

type rig struct {
	t        *testing.T
	m        *sim.Machine
	core     *sim.Core
	k        *Kernel
	runTicks map[int32]int
	faults   []Fault
}

func newRig(t *testing.T, cfg Config, opts ...Option) *rig {
	t.Helper()

	r := &rig{
		t:        t,
		m:        sim.New(sim.Options{}),
		runTicks: make(map[int32]int),
	}
	t.Cleanup(r.m.Shutdown)
	r.core = r.m.Core(hal.CoreCM7)

	opts = append([]Option{
		WithInvariantChecks(),
		WithTickHook(r.onTick),
		WithFaultHandler(func(f Fault) { r.faults = append(r.faults, f) }),
	}, opts...)
	k, err := New(cfg, hal.SimCore(r.core), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.k = k
	return r
}

func (r *rig) onTick() {
	r.runTicks[r.k.active.id]++
}

// boot initialises the kernel, runs setup inside a critical section of the
// boot context and then idles.
func (r *rig) boot(setup func(k *Kernel)) {
	r.t.Helper()

	err := r.core.Boot(func() {
		if err := r.k.Init(); err != nil {
			r.t.Errorf("Init() error = %v", err)
			return
		}
		r.k.EnterCritical()
		if setup != nil {
			setup(r.k)
		}
		r.k.ExitCritical()
		r.k.Run()
	})
	if err != nil {
		r.t.Fatalf("Boot() error = %v", err)
	}
}

func (r *rig) run(ticks uint64) {
	r.core.RunTicks(ticks)
}

func (r *rig) spawn(k *Kernel, priority int32, fn EntryFunc, arg uintptr) Thread {
	th := k.Create(fn, priority, make([]byte, 512))
	if !th.Valid() {
		r.t.Errorf("Create(priority=%d) returned null handle", priority)
		return th
	}
	if !k.Start(th, arg) {
		r.t.Errorf("Start(%v) = false, want true", th)
	}
	return th
}

func (r *rig) spin(counter *uint64) EntryFunc {
	return func(uintptr) {
		for {
			*counter++
			r.core.Step(8)
		}
	}
}

func (r *rig) info(th Thread) (ThreadInfo, bool) {
	for _, ti := range r.k.Snapshot(nil) {
		if ti.Thread.Equal(th) {
			return ti, true
		}
	}
	return ThreadInfo{}, false
}

func noop(uintptr) {}

func TestNewRejectsInvalidConfig(t *testing.T) {
	m := sim.New(sim.Options{})
	defer m.Shutdown()

	cfg := DefaultConfig()
	cfg.TickFreq = cfg.CPUFreq
	if _, err := New(cfg, hal.SimCore(m.Core(hal.CoreCM7))); err == nil {
		t.Fatalf("New() error = nil, want error")
	}
	if _, err := New(DefaultConfig(), nil); err != ErrNilCore {
		t.Fatalf("New(nil core) error = %v, want %v", err, ErrNilCore)
	}
}

func TestInitConfiguresCore(t *testing.T) {
	r := newRig(t, testConfig())
	r.boot(nil)
	r.run(3)

	if got := r.core.Reload(); got != 63 {
		t.Fatalf("SysTick reload = %d, want 63", got)
	}
	if !r.core.Enabled() {
		t.Fatalf("SysTick not enabled")
	}
	for _, exc := range []armv7m.Exception{armv7m.ExcPendSV, armv7m.ExcSysTick} {
		if got := r.core.HandlerPriority(exc); got != armv7m.LowestPriority {
			t.Fatalf("%v priority = %#x, want %#x", exc, got, armv7m.LowestPriority)
		}
	}
	if got := r.k.Ticks(); got != 3 {
		t.Fatalf("Ticks() = %d, want 3", got)
	}
	if r.k.active != r.k.idle {
		t.Fatalf("active thread is not idle")
	}
	if err := r.k.Init(); err != ErrRunning {
		t.Fatalf("second Init() error = %v, want %v", err, ErrRunning)
	}
}

func TestEqualPrioritiesShareTheCore(t *testing.T) {
	r := newRig(t, testConfig())

	var a, b Thread
	var na, nb uint64
	r.boot(func(k *Kernel) {
		a = r.spawn(k, 100, r.spin(&na), 0)
		b = r.spawn(k, 100, r.spin(&nb), 0)
	})
	r.run(1000)

	ta, tb := r.runTicks[a.ID()], r.runTicks[b.ID()]
	if ta+tb != 1000 {
		t.Fatalf("run ticks A+B = %d, want 1000 (idle ran %d)", ta+tb, r.runTicks[r.k.idle.id])
	}
	diff := ta - tb
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		t.Fatalf("run ticks A=%d B=%d, gap %d, want at most 1", ta, tb, diff)
	}
	if na == 0 || nb == 0 {
		t.Fatalf("spins A=%d B=%d, want both > 0", na, nb)
	}
	spinDiff := int64(na) - int64(nb)
	if spinDiff < 0 {
		spinDiff = -spinDiff
	}
	// One tick is 64 cycles, eight 8-cycle spins; one more may straddle the
	// tick boundary.
	if spinDiff > 9 {
		t.Fatalf("spins A=%d B=%d, gap %d exceeds one tick of work", na, nb, spinDiff)
	}
	if len(r.faults) != 0 {
		t.Fatalf("faults = %v", r.faults)
	}
}

func TestWakerBeatsAgedSpinners(t *testing.T) {
	r := newRig(t, testConfig())

	var na, nb uint64
	var woke []uint64
	r.boot(func(k *Kernel) {
		r.spawn(k, 100, r.spin(&na), 0)
		r.spawn(k, 100, r.spin(&nb), 0)
		r.spawn(k, 150, func(uintptr) {
			k.Sleep(2000)
			woke = append(woke, k.Ticks())
			k.Exit()
		}, 0)
	})
	r.run(2100)

	if len(woke) != 1 || woke[0] != 2000 {
		t.Fatalf("woke at %v, want [2000]", woke)
	}
	for _, ti := range r.k.Snapshot(nil) {
		if !ti.Idle && ti.Age > 1 {
			t.Fatalf("thread %v age = %d, want at most 1", ti.Thread, ti.Age)
		}
	}
}

func TestSleepWakesOnExactTick(t *testing.T) {
	r := newRig(t, testConfig())

	var wakes []uint64
	var spins uint64
	r.boot(func(k *Kernel) {
		r.spawn(k, 100, r.spin(&spins), 0)
		r.spawn(k, 200, func(uintptr) {
			for {
				wakes = append(wakes, k.Ticks())
				k.Sleep(10)
			}
		}, 0)
	})
	r.run(55)

	want := []uint64{0, 10, 20, 30, 40, 50}
	if len(wakes) != len(want) {
		t.Fatalf("wakes = %v, want %v", wakes, want)
	}
	for i := range want {
		if wakes[i] != want[i] {
			t.Fatalf("wakes = %v, want %v", wakes, want)
		}
	}
	if spins == 0 {
		t.Fatalf("low priority thread never ran")
	}
}

func TestHigherPriorityPreemptsImmediately(t *testing.T) {
	r := newRig(t, testConfig())

	var order []string
	var lowState State
	r.boot(func(k *Kernel) {
		var low Thread
		high := k.Create(func(uintptr) {
			order = append(order, "high")
			lowState = k.State(low)
		}, 200, make([]byte, 256))
		low = r.spawn(k, 100, func(uintptr) {
			order = append(order, "low-before")
			k.Start(high, 0)
			order = append(order, "low-after")
			for {
				r.core.Step(8)
			}
		}, 0)
	})
	r.run(5)

	want := []string{"low-before", "high", "low-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if lowState != StateReady {
		t.Fatalf("preempted thread state = %v, want %v", lowState, StateReady)
	}
}

type eventLog []trace.Event

func (l *eventLog) Record(ev trace.Event) { *l = append(*l, ev) }

func TestTickRecordsAging(t *testing.T) {
	var log eventLog
	r := newRig(t, testConfig(), WithTrace(&log))

	var a, b Thread
	var na, nb uint64
	r.boot(func(k *Kernel) {
		a = r.spawn(k, 100, r.spin(&na), 0)
		b = r.spawn(k, 100, r.spin(&nb), 0)
	})
	r.run(10)

	aged := map[int32]int{}
	for _, ev := range log {
		if ev.Kind != trace.KindAge {
			continue
		}
		if ev.Arg != 1 {
			t.Fatalf("age event %+v, want Arg 1", ev)
		}
		aged[ev.Thread]++
	}
	if aged[a.ID()] == 0 || aged[b.ID()] == 0 {
		t.Fatalf("age events per thread = %v, want both spinners", aged)
	}
}
