package event

import (
	"sync"
	"testing"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for seq := uint64(1); seq <= 5; seq++ {
		b.Emit(Record{Sequence: seq, Type: TypeSupply})
	}

	recs := b.Records()
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Sequence != 3 || recs[2].Sequence != 5 {
		t.Fatalf("wrong window: %d..%d", recs[0].Sequence, recs[2].Sequence)
	}
}

func TestBufferConcurrentEmitAndRead(t *testing.T) {
	b := NewBuffer(64)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for seq := uint64(1); seq <= 2000; seq++ {
			b.Emit(Record{Sequence: seq, Type: TypeBorrow})
		}
	}()

	// Readers must only ever observe fully-committed, in-order records.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				recs := b.Records()
				for i := 1; i < len(recs); i++ {
					if recs[i].Sequence != recs[i-1].Sequence+1 {
						t.Errorf("torn read: %d after %d", recs[i].Sequence, recs[i-1].Sequence)
						return
					}
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}
	wg.Wait()

	recs := b.Records()
	if len(recs) != 64 || recs[len(recs)-1].Sequence != 2000 {
		t.Fatalf("final buffer: %d records ending at %d", len(recs), recs[len(recs)-1].Sequence)
	}
}
