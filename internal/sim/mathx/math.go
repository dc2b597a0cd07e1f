package mathx

import "math"

const TwoPi = 2 * math.Pi

// WrapAngle reduces a heading into [0, 2pi).
func WrapAngle(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	// -tiny + 2pi rounds up to 2pi.
	if a >= TwoPi {
		a = 0
	}
	return a
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FloorMod is the float analogue of Mod: the result is in [0, b) for b > 0.
func FloorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	if m >= b {
		m = 0
	}
	return m
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func Dist(x0, y0, x1, y1 float64) float64 {
	return math.Hypot(x1-x0, y1-y0)
}

// Cell floors a continuous coordinate to its grid cell.
func Cell(v float64) int {
	return int(math.Floor(v))
}

// Uniform draws from [lo, hi) using u in [0, 1).
func Uniform(u, lo, hi float64) float64 {
	return lo + u*(hi-lo)
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
