package shutdown

import (
	"sync"
	"testing"
)

func TestSignalCounter_Increment(t *testing.T) {
	counter := NewSignalCounter(3, nil)

	for i := 1; i <= 4; i++ {
		if got := counter.Increment(); got != i {
			t.Errorf("Increment() = %d, want %d", got, i)
		}
	}
	if counter.Count() != 4 {
		t.Errorf("Count() = %d, want 4", counter.Count())
	}
}

func TestSignalCounter_ForceOnSecondSignal(t *testing.T) {
	var calls int
	counter := NewSignalCounter(2, func() { calls++ })

	counter.Increment()
	if calls != 0 {
		t.Fatal("force callback ran on first signal")
	}

	counter.Increment()
	if calls != 1 {
		t.Errorf("force callback calls = %d, want 1", calls)
	}

	// Past the threshold every signal forces.
	counter.Increment()
	if calls != 2 {
		t.Errorf("force callback calls = %d, want 2", calls)
	}
}

func TestSignalCounter_Concurrent(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	counter := NewSignalCounter(50, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	const goroutines = 100
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			counter.Increment()
		}()
	}
	wg.Wait()

	if counter.Count() != goroutines {
		t.Errorf("Count() = %d, want %d", counter.Count(), goroutines)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != goroutines-50+1 {
		t.Errorf("force callback calls = %d, want %d", calls, goroutines-50+1)
	}
}
