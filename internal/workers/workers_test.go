package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingStore struct {
	sweeps atomic.Int64
	cutoff atomic.Value // time.Time
}

func (s *countingStore) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	s.cutoff.Store(t)
	s.sweeps.Add(1)
	return 1, nil
}

func TestReclamationWorkerSweepsAndStops(t *testing.T) {
	store := &countingStore{}
	grace := time.Hour

	stop := StartReclamationWorker(store, 5*time.Millisecond, grace)

	deadline := time.Now().Add(2 * time.Second)
	for store.sweeps.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never swept")
		}
		time.Sleep(2 * time.Millisecond)
	}
	stop()

	cutoff := store.cutoff.Load().(time.Time)
	if since := time.Since(cutoff.Add(grace)); since < 0 || since > time.Minute {
		t.Errorf("sweep cutoff %v not roughly now minus grace", cutoff)
	}

	// No sweeps after stop. A tick may already be in flight when stop
	// lands, so let it drain before sampling.
	time.Sleep(15 * time.Millisecond)
	n := store.sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	if store.sweeps.Load() != n {
		t.Error("worker kept sweeping after stop")
	}
}
