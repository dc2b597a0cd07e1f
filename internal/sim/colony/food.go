package colony

import (
	"sync"

	"antcolony.ai/internal/sim/mathx"
)

// FoodSource is a circular patch holding a finite amount of food.
// Take is safe for concurrent use; every decrement goes through mu.
type FoodSource struct {
	ID      uint64
	X, Y    float64
	Radius  float64
	Initial float64

	mu        sync.Mutex
	remaining float64
}

func NewFoodSource(id uint64, x, y, radius, quantity float64) *FoodSource {
	if quantity < 0 {
		quantity = 0
	}
	return &FoodSource{
		ID:        id,
		X:         x,
		Y:         y,
		Radius:    radius,
		Initial:   quantity,
		remaining: quantity,
	}
}

// Take removes up to amount and returns what was actually removed.
// An empty source returns 0.
func (s *FoodSource) Take(amount float64) float64 {
	if s == nil || !(amount > 0) {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return 0
	}
	taken := amount
	if taken > s.remaining {
		taken = s.remaining
	}
	s.remaining -= taken
	if s.remaining < 0 {
		s.remaining = 0
	}
	return taken
}

func (s *FoodSource) Remaining() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *FoodSource) IsDepleted() bool {
	return s.Remaining() <= 0
}

// Contains reports whether (x, y) lies on the patch.
func (s *FoodSource) Contains(x, y float64) bool {
	return mathx.Dist(s.X, s.Y, x, y) <= s.Radius
}
