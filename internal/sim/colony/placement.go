package colony

import (
	"math"

	"antcolony.ai/internal/sim/mathx"
)

const maxPlacementAttempts = 10000

// insetRange is the span of centre coordinates that keeps a patch of radius r inside size.
// Patches wider than the grid are centred.
func insetRange(r float64, size int) (lo, hi float64) {
	s := float64(size)
	lo, hi = r, s-r
	if hi < lo {
		lo, hi = s/2, s/2
	}
	return lo, hi
}

// farthestPlacement is the largest nest distance any patch of radius r can reach.
func farthestPlacement(c Config, r float64) float64 {
	x0, x1 := insetRange(r, c.GridWidth)
	y0, y1 := insetRange(r, c.GridHeight)
	dx := math.Max(math.Abs(c.NestX-x0), math.Abs(c.NestX-x1))
	dy := math.Max(math.Abs(c.NestY-y0), math.Abs(c.NestY-y1))
	return math.Hypot(dx, dy)
}

// placeFood draws a new source, resampling while it lands closer than MinDistanceFromNest.
// After maxPlacementAttempts it falls back to the admissible corner farthest from the nest.
func (e *Engine) placeFood() *FoodSource {
	cfg := e.cfg
	radius := mathx.Uniform(e.rng.Float64(), cfg.FoodRadiusMin, cfg.FoodRadiusMax)
	qty := mathx.Uniform(e.rng.Float64(), cfg.FoodQuantityMin, cfg.FoodQuantityMax)
	x0, x1 := insetRange(radius, cfg.GridWidth)
	y0, y1 := insetRange(radius, cfg.GridHeight)

	e.nextFoodID++
	id := e.nextFoodID
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		x := mathx.Uniform(e.rng.Float64(), x0, x1)
		y := mathx.Uniform(e.rng.Float64(), y0, y1)
		if mathx.Dist(x, y, cfg.NestX, cfg.NestY) >= cfg.MinDistanceFromNest {
			return NewFoodSource(id, x, y, radius, qty)
		}
	}

	x, y := x0, y0
	best := -1.0
	for _, cx := range []float64{x0, x1} {
		for _, cy := range []float64{y0, y1} {
			if d := mathx.Dist(cx, cy, cfg.NestX, cfg.NestY); d > best {
				best = d
				x, y = cx, cy
			}
		}
	}
	return NewFoodSource(id, x, y, radius, qty)
}
