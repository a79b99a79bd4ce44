// Package dispatcher runs ingestion tasks in the background on a bounded
// goroutine pool.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultPoolSize bounds how many tasks may run at once across all users.
const DefaultPoolSize = 64

// ErrSaturated is returned when every pool worker is busy.
var ErrSaturated = errors.New("dispatcher saturated")

// Dispatcher launches fire-and-forget work on an ants pool.
type Dispatcher struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Dispatcher with size workers. Submit never blocks.
func New(size int, logger *zap.Logger) (*Dispatcher, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("dispatcher")
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(rec any) {
			logger.Error("task panicked", zap.Any("panic", rec))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Dispatcher{pool: pool, logger: logger}, nil
}

// Submit schedules fn on the pool.
func (d *Dispatcher) Submit(fn func()) error {
	d.wg.Add(1)
	err := d.pool.Submit(func() {
		defer d.wg.Done()
		fn()
	})
	if err == nil {
		return nil
	}
	d.wg.Done()
	if errors.Is(err, ants.ErrPoolOverload) {
		return ErrSaturated
	}
	return fmt.Errorf("submit task: %w", err)
}

// Running reports the number of busy workers.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Release waits for submitted work to finish, or for ctx to end, then frees
// the pool.
func (d *Dispatcher) Release(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	defer d.pool.Release()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("releasing pool with tasks still running", zap.Int("running", d.pool.Running()))
		return fmt.Errorf("dispatcher release: %w", ctx.Err())
	}
}
