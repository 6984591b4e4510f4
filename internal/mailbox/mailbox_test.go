package mailbox

import (
	"runtime"
	"sync"
	"testing"
)

func TestMailboxTryRecvEmpty(t *testing.T) {
	var mb Mailbox[int]

	_, ok := mb.TryRecv()
	if ok {
		t.Fatalf("TryRecv() ok = true, want false")
	}
}

func TestMailboxTrySendFull(t *testing.T) {
	var mb Mailbox[int]

	for i := 0; i < Slots; i++ {
		if ok := mb.TrySend(i); !ok {
			t.Fatalf("TrySend() ok = false at slot %d, want true", i)
		}
	}
	if ok := mb.TrySend(-1); ok {
		t.Fatalf("TrySend() ok = true when full, want false")
	}
	if got := mb.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	for i := 0; i < Slots; i++ {
		v, ok := mb.TryRecv()
		if !ok {
			t.Fatalf("TryRecv() ok = false at slot %d, want true", i)
		}
		if v != i {
			t.Fatalf("TryRecv() = %d, want %d", v, i)
		}
	}
	if got := mb.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestMailboxProducerConsumer(t *testing.T) {
	oldProcs := runtime.GOMAXPROCS(2)
	defer runtime.GOMAXPROCS(oldProcs)

	const total = 50_000

	var mb Mailbox[uint32]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < total; i++ {
			mb.Send(i)
		}
	}()

	for want := uint32(0); want < total; {
		v, ok := mb.TryRecv()
		if !ok {
			runtime.Gosched()
			continue
		}
		if v != want {
			t.Fatalf("TryRecv() = %d, want %d", v, want)
		}
		want++
	}
	wg.Wait()
}
