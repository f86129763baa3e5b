package reservation

import (
	"context"
	"errors"
	"sync"
	"time"
)

type SweeperConfig struct {
	// Interval between scans for pending bookings whose hold has elapsed.
	Interval time.Duration
	// BatchSize caps the bookings expired per scan.
	BatchSize int
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  5 * time.Second,
		BatchSize: 100,
	}
}

// ExpirySweeper proactively expires bookings nobody has touched since their hold
// elapsed. Reads reconcile expiry on their own, so the sweeper only keeps abandoned
// bookings from lingering as pending.
type ExpirySweeper struct {
	holds  *HoldManager
	config SweeperConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	stats SweeperStats
}

type SweeperStats struct {
	Running          bool      `json:"running"`
	TotalExpired     int64     `json:"totalExpired"`
	LastScanTime     time.Time `json:"lastScanTime"`
	LastExpiredCount int       `json:"lastExpiredCount"`
}

func NewExpirySweeper(holds *HoldManager, config SweeperConfig) *ExpirySweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ExpirySweeper{
		holds:  holds,
		config: config,
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("expiry sweeper already running")
	}

	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)

	w.holds.logger.Info("expiry sweeper started", "interval", w.config.Interval, "batchSize", w.config.BatchSize)

	return nil
}

func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.holds.logger.Info("expiry sweeper stopped")
}

func (w *ExpirySweeper) Stats() SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.Running = w.running
	return stats
}

func (w *ExpirySweeper) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep expires one batch of elapsed pending bookings and returns how many it
// expired. Bookings resolved concurrently are skipped.
func (w *ExpirySweeper) Sweep(ctx context.Context) int {
	now := w.holds.now()

	expired, err := w.holds.bookings.ListExpiredPending(ctx, now, w.config.BatchSize)
	if err != nil {
		w.holds.logger.ErrorContext(ctx, "failed to list expired bookings", "error", err)
		return 0
	}

	count := 0
	for _, booking := range expired {
		_, err := w.holds.Expire(ctx, booking.ID)
		if err != nil {
			w.holds.logger.DebugContext(ctx, "skipped expiring booking", "bookingId", booking.ID, "error", err)
			continue
		}

		count++
	}

	if count > 0 {
		w.holds.logger.InfoContext(ctx, "expired stale bookings", "count", count)
	}

	w.mu.Lock()
	w.stats.TotalExpired += int64(count)
	w.stats.LastScanTime = now
	w.stats.LastExpiredCount = count
	w.mu.Unlock()

	return count
}
