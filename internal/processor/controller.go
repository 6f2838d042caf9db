package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

// Controller is the worker-pool fleet of C5: it pulls job envelopes off
// the durable queue and fans them out to a fixed set of workers, rate
// limited fleet-wide.
type Controller struct {
	queue    queue.Queue
	pipeline *Pipeline
	logger   logger.Interface

	processTimeout time.Duration
	workers        int
	ratePerSecond  rate.Limit

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func NewController(
	q queue.Queue,
	p *Pipeline,
	l logger.Interface,
	processTimeout time.Duration,
	workers int,
	ratePerSecond float64,
) *Controller {
	return &Controller{
		queue:          q,
		pipeline:       p,
		logger:         l,
		processTimeout: processTimeout,
		workers:        workers,
		ratePerSecond:  rate.Limit(ratePerSecond),
	}
}

func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("processor - Controller - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	limiter := rate.NewLimiter(c.ratePerSecond, c.workers)
	tasks := make(chan []byte, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(tasks)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)

		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				var payload []byte
				ok, err := c.queue.Dequeue(c.ctx, &payload)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						c.logger.Error(err, "processor - Controller - Start - c.queue.Dequeue")
					}
					continue
				}
				if !ok {
					continue
				}

				if err := limiter.Wait(c.ctx); err != nil {
					return
				}

				select {
				case tasks <- payload:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

func (c *Controller) worker(tasks <-chan []byte) {
	defer c.wg.Done()

	for payload := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "processor - Controller - worker - panic")
				}
			}()

			processCtx, processCancel := context.WithTimeout(c.ctx, c.processTimeout)
			defer processCancel()

			if err := c.pipeline.HandleJob(processCtx, payload); err != nil {
				c.logger.Error(err, "processor - Controller - worker - c.pipeline.HandleJob")
			}
		}()
	}
}

func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
