package transitlake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/transitlake/transitlake/storage"
)

const (
	DefaultFlushInterval = 15 * time.Second

	// flushErrorThreshold is the number of consecutive failed
	// ticks before failures surface at error level.
	flushErrorThreshold = 3
)

// Flusher owns the writer connection. Every tick it ages out stale
// rows, drains the delete queues, then drains the insert queues. A
// failed tick leaves undrained items queued for the next one.
type Flusher struct {
	store    storage.Store
	queues   *Queues
	interval time.Duration
	review   time.Duration
	logger   *zap.Logger

	now      func() time.Time
	failures int
}

func NewFlusher(store storage.Store, queues *Queues, review time.Duration, logger *zap.Logger) *Flusher {
	return &Flusher{
		store:    store,
		queues:   queues,
		interval: DefaultFlushInterval,
		review:   review,
		logger:   logger,
		now:      time.Now,
	}
}

// Run flushes on a fixed interval until the context is canceled, then
// performs a final drain so queued mutations are not lost on shutdown.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := f.Flush(); err != nil {
				f.logger.Warn("final flush failed", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := f.Flush(); err != nil {
				f.failures++
				if f.failures >= flushErrorThreshold {
					f.logger.Error("flush failing repeatedly",
						zap.Int("consecutive_failures", f.failures),
						zap.Error(err))
				} else {
					f.logger.Warn("flush failed", zap.Error(err))
				}
			} else {
				f.failures = 0
			}
		}
	}
}

// Flush executes one tick: age-out, deletes, inserts.
func (f *Flusher) Flush() error {
	if err := f.store.AgeOutRealtime(f.now().UTC().Add(-f.review)); err != nil {
		return fmt.Errorf("aging out realtime data: %w", err)
	}

	for {
		item, ok := f.queues.AlertDeletes.Pop()
		if !ok {
			break
		}
		if err := f.store.DeleteServiceAlert(item.Alert.ID); err != nil {
			return fmt.Errorf("deleting service alert: %w", err)
		}
	}

	for {
		item, ok := f.queues.TripDeletes.Pop()
		if !ok {
			break
		}
		if err := f.store.DeleteTripUpdate(item.Update.ID); err != nil {
			return fmt.Errorf("deleting trip update: %w", err)
		}
	}

	for {
		item, ok := f.queues.VehicleDeletes.Pop()
		if !ok {
			break
		}
		if err := f.store.DeleteVehiclePosition(item.ID); err != nil {
			return fmt.Errorf("deleting vehicle position: %w", err)
		}
	}

	for {
		item, ok := f.queues.AlertInserts.Pop()
		if !ok {
			break
		}
		err := f.store.InsertServiceAlert(item.Alert, item.ActivePeriods, item.InformedEntities)
		if err != nil {
			return fmt.Errorf("inserting service alert: %w", err)
		}
	}

	for {
		item, ok := f.queues.TripInserts.Pop()
		if !ok {
			break
		}
		if err := f.store.InsertTripUpdate(item.Update, item.StopTimeUpdates); err != nil {
			return fmt.Errorf("inserting trip update: %w", err)
		}
	}

	for {
		item, ok := f.queues.VehicleInserts.Pop()
		if !ok {
			break
		}
		if err := f.store.InsertVehiclePosition(item); err != nil {
			return fmt.Errorf("inserting vehicle position: %w", err)
		}
	}

	return nil
}
