package pose

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubDetector struct {
	set    *LandmarkSet
	err    error
	closed atomic.Bool
	active *atomic.Int32
	peak   *atomic.Int32
	delay  time.Duration
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) (*LandmarkSet, error) {
	if s.active != nil {
		n := s.active.Add(1)
		defer s.active.Add(-1)
		for {
			peak := s.peak.Load()
			if n <= peak || s.peak.CompareAndSwap(peak, n) {
				break
			}
		}
	}
	time.Sleep(s.delay)
	return s.set, s.err
}

func (s *stubDetector) Close() error {
	s.closed.Store(true)
	return nil
}

func TestPoolDetectUsesEachInstanceExclusively(t *testing.T) {
	var built []*stubDetector
	factory := func() (Detector, error) {
		d := &stubDetector{
			set:    NewLandmarkSet(map[LandmarkName]Landmark{Nose: {X: 0.5, Y: 0.2}}),
			active: &atomic.Int32{},
			peak:   &atomic.Int32{},
			delay:  5 * time.Millisecond,
		}
		built = append(built, d)
		return d, nil
	}

	pool, err := NewPool(factory, 2, time.Second)
	if err != nil {
		t.Fatalf("expected pool, got error: %v", err)
	}
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := pool.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if set.Len() != 1 {
				t.Errorf("expected one landmark, got %d", set.Len())
			}
		}()
	}
	wg.Wait()

	for i, d := range built {
		if peak := d.peak.Load(); peak > 1 {
			t.Fatalf("detector %d used by %d callers at once", i, peak)
		}
	}

	metrics := pool.Metrics()
	if metrics.TotalAcquired != 8 || metrics.TotalReleased != 8 || metrics.InUse != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestPoolAcquireTimesOut(t *testing.T) {
	pool, err := NewPool(func() (Detector, error) { return &stubDetector{}, nil }, 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected pool, got error: %v", err)
	}
	defer pool.Close()

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected detector, got error: %v", err)
	}
	defer pool.Release(held)

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
	if failures := pool.Metrics().AcquireFailures; failures != 1 {
		t.Fatalf("expected one acquire failure, got %d", failures)
	}
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	pool, err := NewPool(func() (Detector, error) { return &stubDetector{}, nil }, 1, time.Second)
	if err != nil {
		t.Fatalf("expected pool, got error: %v", err)
	}
	defer pool.Close()

	held, _ := pool.Acquire(context.Background())
	defer pool.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPoolCloseClosesDetectors(t *testing.T) {
	var built []*stubDetector
	pool, err := NewPool(func() (Detector, error) {
		d := &stubDetector{}
		built = append(built, d)
		return d, nil
	}, 2, time.Second)
	if err != nil {
		t.Fatalf("expected pool, got error: %v", err)
	}

	held, _ := pool.Acquire(context.Background())
	if err := pool.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	pool.Release(held)

	for i, d := range built {
		if !d.closed.Load() {
			t.Fatalf("detector %d was not closed", i)
		}
	}
	if _, err := pool.Detect(context.Background(), nil); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestNewPoolClosesBuiltDetectorsOnFailure(t *testing.T) {
	first := &stubDetector{}
	calls := 0
	_, err := NewPool(func() (Detector, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errors.New("model missing")
	}, 3, time.Second)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !first.closed.Load() {
		t.Fatal("expected already built detector to be closed")
	}
}
