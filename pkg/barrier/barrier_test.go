package barrier

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitReturnsImmediatelyIfAlreadyApplied(t *testing.T) {
	b := New()
	b.Release(5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	applied, err := b.Wait(ctx, 3)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if applied != 5 {
		t.Errorf("applied = %d, want 5", applied)
	}
}

func TestWaitBlocksUntilReleased(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	wg.Add(1)

	results := make(chan error, 1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := b.Wait(ctx, 10)
		results <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Release(10)
	wg.Wait()

	if err := <-results; err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}

func TestMultipleWaitersShareRelease(t *testing.T) {
	b := New()

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		target := uint64(i + 1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := b.Wait(ctx, target)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	b.Release(n)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	}
}

func TestCloseFailsOutstandingWaiters(t *testing.T) {
	b := New()

	results := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := b.Wait(ctx, 10)
		results <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	if err := <-results; err != ErrClosed {
		t.Fatalf("Wait returned %v, want ErrClosed", err)
	}
}

func TestWaitAfterCloseFailsImmediately(t *testing.T) {
	b := New()
	b.Close()

	_, err := b.Wait(context.Background(), 1)
	if err != ErrClosed {
		t.Fatalf("Wait returned %v, want ErrClosed", err)
	}
}
