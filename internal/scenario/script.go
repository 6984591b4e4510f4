package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"titan/internal/board"
)

var ErrCheckFailed = errors.New("check failed")

const (
	defaultBoard = "sim-fast"
	defaultTicks = 1000
)

// Scenario is a loaded Lua script. A script declares its setup through
// globals:
//
//	board "sim-fast"
//	ticks(2000)
//	checks(true)
//	thread { name = "a", priority = 10, work = "spin" }
//	thread { name = "b", priority = 10, work = "sleep", period = 5, start = 100 }
//	function check(r) return r.threads.a.share > 0.4, "a starved" end
type Scenario struct {
	Name    string
	Board   board.Board
	Ticks   uint64
	Checks  bool
	Threads []ThreadSpec

	L     *lua.LState
	check *lua.LFunction
}

// LoadFile loads a scenario script from disk.
func LoadFile(path string) (*Scenario, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Base(path), src)
}

// Load executes src and collects its declarations.
func Load(name string, src []byte) (*Scenario, error) {
	b, err := board.Find(defaultBoard)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{Name: name, Board: b, Ticks: defaultTicks, L: lua.NewState()}

	sc.L.SetGlobal("board", sc.L.NewFunction(sc.luaBoard))
	sc.L.SetGlobal("ticks", sc.L.NewFunction(sc.luaTicks))
	sc.L.SetGlobal("checks", sc.L.NewFunction(sc.luaChecks))
	sc.L.SetGlobal("thread", sc.L.NewFunction(sc.luaThread))

	if err := sc.L.DoString(string(src)); err != nil {
		sc.Close()
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	if fn, ok := sc.L.GetGlobal("check").(*lua.LFunction); ok {
		sc.check = fn
	}
	return sc, nil
}

func (sc *Scenario) luaBoard(L *lua.LState) int {
	b, err := board.Find(L.CheckString(1))
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	sc.Board = b
	return 0
}

func (sc *Scenario) luaTicks(L *lua.LState) int {
	n := L.CheckInt64(1)
	if n <= 0 {
		L.ArgError(1, "tick budget must be positive")
		return 0
	}
	sc.Ticks = uint64(n)
	return 0
}

func (sc *Scenario) luaChecks(L *lua.LState) int {
	sc.Checks = L.OptBool(1, true)
	return 0
}

func (sc *Scenario) luaThread(L *lua.LState) int {
	t := L.CheckTable(1)
	name := lua.LVAsString(t.RawGetString("name"))
	if name == "" {
		L.ArgError(1, "thread needs a name")
		return 0
	}
	work, err := ParseWorkload(lua.LVAsString(t.RawGetString("work")))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	spec := ThreadSpec{
		Name:     name,
		Priority: int32(lua.LVAsNumber(t.RawGetString("priority"))),
		Work:     work,
		Period:   uint32(lua.LVAsNumber(t.RawGetString("period"))),
		Start:    uint64(lua.LVAsNumber(t.RawGetString("start"))),
	}
	switch v := t.RawGetString("stack").(type) {
	case lua.LNumber:
		spec.Stack = int(v)
	case lua.LString:
		size, err := board.ParseSize(string(v))
		if err != nil {
			L.ArgError(1, "stack: "+err.Error())
			return 0
		}
		spec.Stack = size
	}
	sc.Threads = append(sc.Threads, spec)
	return 0
}

// Run boots a session, runs the tick budget and hands the report to the
// script's check function.
func (sc *Scenario) Run(opts Options) (Report, error) {
	opts.Checks = opts.Checks || sc.Checks
	specs := append([]ThreadSpec(nil), sc.Threads...)
	s, err := NewSession(sc.Board, opts, specs...)
	if err != nil {
		return Report{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	defer s.Close()

	s.Run(sc.Ticks)
	r := s.Report()
	return r, sc.Check(&r)
}

// Check hands r to the script's check function, if it defines one.
func (sc *Scenario) Check(r *Report) error {
	if sc.check == nil {
		return nil
	}
	L := sc.L
	err := L.CallByParam(lua.P{Fn: sc.check, NRet: 2, Protect: true}, reportTable(L, r))
	if err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	ok, msg := L.Get(-2), L.Get(-1)
	L.Pop(2)
	if ok == lua.LFalse {
		if msg == lua.LNil {
			return fmt.Errorf("scenario %s: %w", sc.Name, ErrCheckFailed)
		}
		return fmt.Errorf("scenario %s: %w: %s", sc.Name, ErrCheckFailed, lua.LVAsString(msg))
	}
	return nil
}

func reportTable(L *lua.LState, r *Report) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("board", lua.LString(r.Board))
	tbl.RawSetString("ticks", lua.LNumber(r.Ticks))
	tbl.RawSetString("halted", lua.LBool(r.Halted))
	tbl.RawSetString("faults", lua.LNumber(len(r.Faults)))

	fair := L.NewTable()
	fair.RawSetString("mean", lua.LNumber(r.Mean))
	fair.RawSetString("cv", lua.LNumber(r.CV))
	fair.RawSetString("jain", lua.LNumber(r.Jain))
	tbl.RawSetString("fairness", fair)

	threads := L.NewTable()
	list := L.NewTable()
	for _, t := range r.Threads {
		tt := L.NewTable()
		tt.RawSetString("name", lua.LString(t.Name))
		tt.RawSetString("id", lua.LNumber(t.ID))
		tt.RawSetString("priority", lua.LNumber(t.Priority))
		tt.RawSetString("state", lua.LString(t.State.String()))
		tt.RawSetString("work", lua.LString(t.Work))
		tt.RawSetString("ticks", lua.LNumber(t.RunTicks))
		tt.RawSetString("switches", lua.LNumber(t.Switches))
		tt.RawSetString("maxAge", lua.LNumber(t.MaxAge))
		tt.RawSetString("iterations", lua.LNumber(t.Iterations))
		tt.RawSetString("share", lua.LNumber(t.Share))
		threads.RawSetString(t.Name, tt)
		list.Append(tt)
	}
	tbl.RawSetString("threads", threads)
	tbl.RawSetString("list", list)
	return tbl
}

// Close releases the Lua state.
func (sc *Scenario) Close() {
	if sc.L != nil {
		sc.L.Close()
		sc.L = nil
	}
}
