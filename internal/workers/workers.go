package workers

import (
	"context"
	"log"
	"time"
)

// ExpiredStoryStore is the slice of the repository the sweep needs.
type ExpiredStoryStore interface {
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)
}

// StartReclamationWorker periodically removes story rows whose expiry
// passed more than grace ago. This is storage reclamation only. The
// read-time expires_at filter is the sole correctness mechanism, and no
// caller may assume this sweep has run. The returned stop function ends
// the loop.
func StartReclamationWorker(store ExpiredStoryStore, interval, grace time.Duration) (stop func()) {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweep(store, grace)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func sweep(store ExpiredStoryStore, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := store.DeleteExpiredBefore(ctx, time.Now().UTC().Add(-grace))
	if err != nil {
		log.Printf("Reclamation: sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Reclamation: removed %d expired stories", n)
	}
}
