package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/log"
)

// CleanupManager sweeps expired attempt markers and sessions from backends
// that keep rows after their TTL (memory, SQLite, Firestore)
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a manager; nothing runs until Start
func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start sweeps once immediately, then every interval until ctx is done or
// Stop is called. Start must be called at most once.
func (cm *CleanupManager) Start(ctx context.Context) {
	ctx, cm.cancel = context.WithCancel(ctx)

	log.LogInfoWithFields("cleanup", "Starting storage cleanup", map[string]any{
		"interval": cm.interval.String(),
	})
	go cm.run(ctx)
}

// Stop ends the loop and waits for an in-progress sweep to return. It is
// safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cancel == nil {
			return
		}
		cm.cancel()
		<-cm.done
		log.LogInfoWithFields("cleanup", "Storage cleanup stopped", nil)
	})
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		cm.sweep(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) sweep(ctx context.Context) {
	count, err := cm.sweeper.Sweep(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		// interrupted by shutdown
	case err != nil:
		log.LogErrorWithFields("cleanup", "Failed to sweep expired entries", map[string]any{
			"error": err.Error(),
		})
	case count > 0:
		log.LogDebugWithFields("cleanup", "Swept expired entries", map[string]any{
			"count": count,
		})
	}
}
