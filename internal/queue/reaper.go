package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

// Reaper periodically promotes delayed (backed-off) jobs back onto the
// main queue once their redelivery time has elapsed.
type Reaper struct {
	q      *RedisQueue
	logger logger.Interface

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func NewReaper(q *RedisQueue, l logger.Interface, pollInterval time.Duration) *Reaper {
	return &Reaper{q: q, logger: l, pollInterval: pollInterval}
}

func (r *Reaper) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Reaper - Start - already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				n, err := r.q.PromoteDue(r.ctx)
				if err != nil {
					r.logger.Error(err, "Reaper - Start - r.q.PromoteDue")
					continue
				}
				if n > 0 {
					r.logger.Debug("Reaper - promoted delayed jobs, count=%d", n)
				}
			}
		}
	}()

	return nil
}

func (r *Reaper) Shutdown(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
