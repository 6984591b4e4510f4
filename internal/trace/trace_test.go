package trace

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func TestParseFrame(t *testing.T) {
	ev := Event{Tick: 1234, Kind: KindSwitch, Thread: 3, Arg: -1}
	frame := AppendFrame(nil, ev)
	if len(frame) != FrameSize {
		t.Fatalf("len(frame) = %d, want %d", len(frame), FrameSize)
	}

	got, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if got != ev {
		t.Fatalf("ParseFrame() = %+v, want %+v", got, ev)
	}
}

func TestParseFrameErrors(t *testing.T) {
	good := AppendFrame(nil, Event{Tick: 1, Kind: KindWake, Thread: 2})

	corrupt := append([]byte(nil), good...)
	corrupt[5] ^= 0xFF
	if _, err := ParseFrame(corrupt); !errors.Is(err, ErrChecksum) {
		t.Fatalf("corrupt frame error = %v, want %v", err, ErrChecksum)
	}
	if _, err := ParseFrame(good[:FrameSize-1]); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("short frame error = %v, want %v", err, ErrShortFrame)
	}
	bad := append([]byte(nil), good...)
	bad[0] = 0
	if _, err := ParseFrame(bad); !errors.Is(err, ErrSync) {
		t.Fatalf("unsynced frame error = %v, want %v", err, ErrSync)
	}
}

func TestDecoderResynchronises(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, Sync, 0x01})
	enc := NewEncoder(&stream)
	want := []Event{
		{Tick: 10, Kind: KindSwitch, Thread: 2, Arg: 1},
		{Tick: 20, Kind: KindSleep, Thread: 2, Arg: 10},
	}
	for _, ev := range want {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
	}

	dec := NewDecoder(&stream)
	for i, w := range want {
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got != w {
			t.Fatalf("Next() #%d = %+v, want %+v", i, got, w)
		}
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("Next() at end error = %v, want EOF", err)
	}
	if dec.Skipped() != 4 {
		t.Fatalf("Skipped() = %d, want 4", dec.Skipped())
	}
}

func TestRingDrain(t *testing.T) {
	var r Ring
	r.Record(Event{Kind: KindStart, Thread: 2})
	r.Record(Event{Kind: KindSwitch, Thread: 2, Arg: 1})

	got := r.Drain(nil)
	if len(got) != 2 || got[0].Kind != KindStart || got[1].Kind != KindSwitch {
		t.Fatalf("Drain() = %+v", got)
	}
	if _, ok := r.Next(); ok {
		t.Fatalf("Next() after Drain ok = true, want false")
	}
}

func TestPrinterFormat(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	p.Name(1, "idle")
	p.Name(2, "blink")

	if err := p.Print(Event{Tick: 42, Kind: KindSwitch, Thread: 2, Arg: 1}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "42 switch") || !strings.HasSuffix(line, "idle -> blink") {
		t.Fatalf("Print() = %q", line)
	}

	p = NewPrinter(&buf, true)
	if got := p.Format(Event{Kind: KindFault, Thread: 9, Arg: 1}); !strings.Contains(got, ansiRed) || !strings.Contains(got, "#9") {
		t.Fatalf("Format() = %q, want red fault for #9", got)
	}
}

func TestUsage(t *testing.T) {
	u := NewUsage()
	for _, ev := range []Event{
		{Tick: 0, Kind: KindSwitch, Thread: 2, Arg: 1},
		{Tick: 3, Kind: KindSwitch, Thread: 3, Arg: 2},
		{Tick: 5, Kind: KindWake, Thread: 4},
		{Tick: 8, Kind: KindSwitch, Thread: 2, Arg: 3},
	} {
		u.Add(ev)
	}
	u.Close(10)

	if got := u.Ticks(2); got != 5 {
		t.Fatalf("Ticks(2) = %d, want 5", got)
	}
	if got := u.Ticks(3); got != 5 {
		t.Fatalf("Ticks(3) = %d, want 5", got)
	}
	if got := u.Switches(2); got != 2 {
		t.Fatalf("Switches(2) = %d, want 2", got)
	}
	ids := u.Threads()
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("Threads() = %v, want [2 3]", ids)
	}
}

func TestUsageMaxAge(t *testing.T) {
	u := NewUsage()
	for _, ev := range []Event{
		{Tick: 1, Kind: KindAge, Thread: 3, Arg: 1},
		{Tick: 2, Kind: KindAge, Thread: 3, Arg: 2},
		{Tick: 3, Kind: KindSwitch, Thread: 3, Arg: 2},
		{Tick: 4, Kind: KindAge, Thread: 3, Arg: 1},
	} {
		u.Add(ev)
	}
	if got := u.MaxAge(3); got != 2 {
		t.Fatalf("MaxAge(3) = %d, want 2", got)
	}
	if got := u.MaxAge(2); got != 0 {
		t.Fatalf("MaxAge(2) = %d, want 0", got)
	}
	if got := u.Switches(3); got != 1 {
		t.Fatalf("Switches(3) = %d, want 1", got)
	}
}

func TestAgeEventOnTheWire(t *testing.T) {
	ev := Event{Tick: 77, Kind: KindAge, Thread: 4, Arg: 3}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(ev); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := NewDecoder(&buf).Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got != ev {
		t.Fatalf("Next() = %+v, want %+v", got, ev)
	}

	p := NewPrinter(nil, false)
	p.Name(4, "spin")
	line := p.Format(got)
	if !strings.Contains(line, "age") || !strings.HasSuffix(line, "spin age=3") {
		t.Fatalf("Format() = %q", line)
	}
	if KindAge.String() != "age" {
		t.Fatalf("KindAge.String() = %q", KindAge.String())
	}
}

func TestFairness(t *testing.T) {
	mean, cv, jain := Fairness([]float64{10, 10, 10, 10})
	if mean != 10 || cv != 0 || jain != 1 {
		t.Fatalf("Fairness(even) = (%v, %v, %v), want (10, 0, 1)", mean, cv, jain)
	}

	_, cv, jain = Fairness([]float64{40, 0, 0, 0})
	if math.Abs(jain-0.25) > 1e-9 {
		t.Fatalf("Fairness(skewed) jain = %v, want 0.25", jain)
	}
	if cv <= 1 {
		t.Fatalf("Fairness(skewed) cv = %v, want > 1", cv)
	}

	if _, cv, _ := Fairness([]float64{5}); cv != 0 {
		t.Fatalf("Fairness(single) cv = %v, want 0", cv)
	}
}
