package session

import (
	"sync"
	"testing"

	"smppgw/internal/protocol"
)

func TestSequenceConcurrentDistinct(t *testing.T) {
	seq := NewSequence(1)
	const workers, perWorker = 8, 1000

	var (
		mu   sync.Mutex
		seen = make(map[uint32]bool, workers*perWorker)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, seq.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, n := range local {
				if seen[n] {
					t.Errorf("duplicate sequence %d", n)
				}
				seen[n] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("got %d distinct numbers", len(seen))
	}
}

func TestSequenceWrap(t *testing.T) {
	seq := NewSequence(protocol.MaxSequenceNumber - 1)
	want := []uint32{protocol.MaxSequenceNumber - 1, protocol.MaxSequenceNumber, 1, 2}
	for i, w := range want {
		if got := seq.Next(); got != w {
			t.Fatalf("Next #%d = %d, want %d", i, got, w)
		}
	}
}

func TestSequenceStartZero(t *testing.T) {
	if got := NewSequence(0).Next(); got != 1 {
		t.Fatalf("Next = %d, want 1", got)
	}
}
