package colony

import "antcolony.ai/internal/sim/mathx"

// Nest collects delivered food. When a spawn threshold is configured it also counts
// deliveries toward the next new agent.
type Nest struct {
	X, Y   float64
	Radius float64

	spawnThreshold float64

	delivered float64
	pending   float64
	spawned   int
}

type NestStats struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Delivered float64 `json:"delivered"`
	Pending   float64 `json:"pending"`
	Spawned   int     `json:"spawned"`
}

func NewNest(x, y, radius, spawnThreshold float64) *Nest {
	return &Nest{X: x, Y: y, Radius: radius, spawnThreshold: spawnThreshold}
}

// Deposit adds delivered food. It returns true when the spawn counter crossed the
// threshold; the counter restarts from zero.
func (n *Nest) Deposit(amount float64) bool {
	if !(amount > 0) {
		return false
	}
	n.delivered += amount
	if n.spawnThreshold <= 0 {
		return false
	}
	n.pending += amount
	if n.pending >= n.spawnThreshold {
		n.pending = 0
		return true
	}
	return false
}

// Reached reports whether (x, y) is close enough to drop food.
func (n *Nest) Reached(x, y float64) bool {
	return mathx.Dist(n.X, n.Y, x, y) < n.Radius
}

func (n *Nest) recordSpawn() { n.spawned++ }

func (n *Nest) Stats() NestStats {
	return NestStats{
		X:         n.X,
		Y:         n.Y,
		Radius:    n.Radius,
		Delivered: n.delivered,
		Pending:   n.pending,
		Spawned:   n.spawned,
	}
}
