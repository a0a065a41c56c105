package pose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

const (
	// DefaultPoolSize is used when a non-positive size is requested.
	DefaultPoolSize       = 2
	DefaultAcquireTimeout = 5 * time.Second
)

var (
	ErrPoolClosed     = errors.New("detector pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available detector")
)

// Factory creates one detector instance for a pool slot.
type Factory func() (Detector, error)

// Pool hands out exclusive detector instances. It implements Detector and is
// safe for concurrent use.
type Pool struct {
	detectors      chan Detector
	size           int
	acquireTimeout time.Duration
	mu             sync.Mutex
	closed         bool
	metrics        poolMetrics
}

type poolMetrics struct {
	mu              sync.Mutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolMetrics is a snapshot of pool usage.
type PoolMetrics struct {
	Size            int     `json:"pool_size"`
	InUse           int     `json:"detectors_in_use"`
	TotalAcquired   int64   `json:"total_acquired"`
	TotalReleased   int64   `json:"total_released"`
	AcquireFailures int64   `json:"acquire_failures"`
	AverageWaitMs   float64 `json:"average_wait_ms"`
}

// NewPool creates size detectors using factory. If any of them fails, the
// ones already built are closed.
func NewPool(factory Factory, size int, acquireTimeout time.Duration) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	pool := &Pool{
		detectors:      make(chan Detector, size),
		size:           size,
		acquireTimeout: acquireTimeout,
	}

	for i := 0; i < size; i++ {
		detector, err := factory()
		if err != nil {
			closeErr := pool.Close()
			return nil, errors.Join(fmt.Errorf("failed to initialize detector %d: %w", i, err), closeErr)
		}
		pool.detectors <- detector
	}

	return pool, nil
}

// Acquire takes a detector out of the pool. Callers must Release it.
func (p *Pool) Acquire(ctx context.Context) (Detector, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case detector, ok := <-p.detectors:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return detector, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a detector to the pool, or closes it if the pool is gone.
func (p *Pool) Release(detector Detector) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = detector.Close()
		return
	}
	p.detectors <- detector
}

// Detect runs img through the next free detector.
func (p *Pool) Detect(ctx context.Context, img image.Image) (*LandmarkSet, error) {
	detector, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(detector)
	return detector.Detect(ctx, img)
}

// Close closes every idle detector. Detectors still checked out are closed
// when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.detectors)

	var errs []error
	for detector := range p.detectors {
		if err := detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size is the number of detectors the pool was built with.
func (p *Pool) Size() int {
	return p.size
}

// Metrics returns a snapshot of pool usage.
func (p *Pool) Metrics() PoolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	snapshot := PoolMetrics{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
	}
	if attempts := p.metrics.totalAcquired + p.metrics.acquireFailures; attempts > 0 {
		snapshot.AverageWaitMs = float64(p.metrics.waitTime.Microseconds()) / 1000 / float64(attempts)
	}
	return snapshot
}
