package colony

import (
	"sync"
	"testing"
)

func TestFoodSourceTake(t *testing.T) {
	src := NewFoodSource(1, 10, 10, 2, 2.5)
	if got := src.Take(1); got != 1 {
		t.Fatalf("take 1: %v", got)
	}
	if got := src.Take(0); got != 0 {
		t.Fatalf("take 0: %v", got)
	}
	if got := src.Take(2); got != 1.5 {
		t.Fatalf("partial take: %v", got)
	}
	if !src.IsDepleted() || src.Remaining() != 0 {
		t.Fatalf("source should be empty: %v", src.Remaining())
	}
	if got := src.Take(1); got != 0 {
		t.Fatalf("take from empty: %v", got)
	}
	if src.Initial != 2.5 {
		t.Fatalf("initial changed: %v", src.Initial)
	}
}

func TestFoodSourceTake_Concurrent(t *testing.T) {
	src := NewFoodSource(1, 0, 0, 1, 100)
	var (
		mu    sync.Mutex
		total float64
		wg    sync.WaitGroup
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got := src.Take(1)
				mu.Lock()
				total += got
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if total != 100 {
		t.Fatalf("taken total: got %v want 100", total)
	}
	if src.Remaining() != 0 {
		t.Fatalf("remaining: %v", src.Remaining())
	}
}

func TestFoodSourceContains(t *testing.T) {
	src := NewFoodSource(1, 20, 50, 1, 10)
	if !src.Contains(19, 50) || !src.Contains(20.5, 50.5) {
		t.Fatalf("points on the patch not contained")
	}
	if src.Contains(18.9, 50) {
		t.Fatalf("point outside the patch contained")
	}
}

func TestNestDeposit_SpawnThreshold(t *testing.T) {
	n := NewNest(50, 50, 2, 3)
	if n.Deposit(2) {
		t.Fatalf("spawn below threshold")
	}
	if !n.Deposit(1.5) {
		t.Fatalf("threshold crossed without spawn")
	}
	st := n.Stats()
	if st.Pending != 0 || st.Delivered != 3.5 {
		t.Fatalf("after spawn: %+v", st)
	}
	if n.Deposit(0) || n.Deposit(-1) {
		t.Fatalf("non-positive deposit spawned")
	}

	plain := NewNest(0, 0, 2, 0)
	for i := 0; i < 10; i++ {
		if plain.Deposit(5) {
			t.Fatalf("nest without threshold spawned")
		}
	}
	if plain.Stats().Delivered != 50 {
		t.Fatalf("delivered: %v", plain.Stats().Delivered)
	}
}

func TestNestReached(t *testing.T) {
	n := NewNest(50, 50, 2, 0)
	if !n.Reached(51.9, 50) {
		t.Fatalf("inside radius not reached")
	}
	if n.Reached(52, 50) {
		t.Fatalf("boundary must not count as reached")
	}
}
