package colony

import (
	"math"

	"antcolony.ai/internal/sim/mathx"
)

type State uint8

const (
	Exploring State = iota
	ReturningToNest
)

func (s State) String() string {
	switch s {
	case Exploring:
		return "exploring"
	case ReturningToNest:
		return "returning"
	default:
		return "unknown"
	}
}

// Agent is one forager. Trail following is a per-tick decision, not a state.
type Agent struct {
	ID      int
	X, Y    float64
	Heading float64
	State   State

	// Carrying is the amount of food held; > 0 iff State == ReturningToNest.
	Carrying float64

	LastFoodX, LastFoodY int
	HasLastFood          bool

	dropCooldown int
}

type AgentView struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Heading  float64 `json:"heading"`
	Carrying bool    `json:"carrying"`
	Amount   float64 `json:"amount"`
	State    State   `json:"state"`
}

func (a *Agent) view() AgentView {
	return AgentView{
		ID:       a.ID,
		X:        a.X,
		Y:        a.Y,
		Heading:  a.Heading,
		Carrying: a.Carrying > 0,
		Amount:   a.Carrying,
		State:    a.State,
	}
}

// agentResult is what one agent update contributed to the tick.
type agentResult struct {
	picked    float64
	delivered float64
	spawnDue  bool
}

func (e *Engine) jitter(width float64) float64 {
	return (e.rng.Float64()*2 - 1) * width
}

// dropReady consumes the deposit cooldown. With DropInterval 1 every tick is ready.
func (e *Engine) dropReady(a *Agent) bool {
	if a.dropCooldown > 0 {
		a.dropCooldown--
		return false
	}
	a.dropCooldown = e.cfg.DropInterval - 1
	return true
}

func (e *Engine) updateAgent(a *Agent) agentResult {
	if a.Carrying > 0 {
		return e.updateReturning(a)
	}
	return e.updateExploring(a)
}

func (e *Engine) updateReturning(a *Agent) agentResult {
	var res agentResult
	if e.nest.Reached(a.X, a.Y) {
		res.delivered = a.Carrying
		res.spawnDue = e.nest.Deposit(a.Carrying)
		a.Carrying = 0
		a.State = Exploring
		a.HasLastFood = false
		a.Heading = e.rng.Float64() * mathx.TwoPi
		return res
	}

	followed := false
	if e.cfg.ReturnFollowProbability > 0 && e.rng.Float64() < e.cfg.ReturnFollowProbability {
		if dir, _, ok := e.field.StrongestDirection(a.X, a.Y, e.cfg.SenseRadius, ToHome); ok {
			a.Heading = dir + e.jitter(e.cfg.FollowJitter)
			followed = true
		}
	}
	d := mathx.Dist(a.X, a.Y, e.nest.X, e.nest.Y)
	if !followed {
		a.Heading = math.Atan2(e.nest.Y-a.Y, e.nest.X-a.X) + e.jitter(e.cfg.HomeJitter)
	}

	if e.dropReady(a) {
		amount := e.cfg.Deposit.ToFood
		if e.cfg.DepositMode == DepositDistance {
			amount /= 1 + d
		}
		e.field.Deposit(a.X, a.Y, amount, ToFood)
	}
	e.move(a)
	return res
}

func (e *Engine) updateExploring(a *Agent) agentResult {
	var res agentResult
	for _, src := range e.food {
		if !src.Contains(a.X, a.Y) {
			continue
		}
		taken := src.Take(e.cfg.PickupAmount)
		if taken <= 0 {
			continue
		}
		res.picked = taken
		a.Carrying = taken
		a.State = ReturningToNest
		a.LastFoodX, a.LastFoodY = mathx.Cell(a.X), mathx.Cell(a.Y)
		a.HasLastFood = true
		e.field.Mark(a.X, a.Y, e.cfg.Deposit.ToHome, ToHome)
		return res
	}

	if e.cfg.Deposit.Explore > 0 && e.dropReady(a) {
		e.field.Deposit(a.X, a.Y, e.cfg.Deposit.Explore, ToHome)
	}

	followed := false
	if e.rng.Float64() < e.cfg.FollowProbability {
		if dir, _, ok := e.field.StrongestDirection(a.X, a.Y, e.cfg.SenseRadius, ToFood); ok {
			a.Heading = dir + e.jitter(e.cfg.FollowJitter)
			followed = true
		}
	}
	if !followed {
		a.Heading += e.jitter(e.cfg.WanderJitter)
	}
	e.move(a)
	return res
}

func (e *Engine) move(a *Agent) {
	a.Heading = mathx.WrapAngle(a.Heading)
	a.X += e.cfg.AgentSpeed * math.Cos(a.Heading)
	a.Y += e.cfg.AgentSpeed * math.Sin(a.Heading)

	w, h := float64(e.cfg.GridWidth), float64(e.cfg.GridHeight)
	switch e.cfg.Boundary {
	case BoundaryWrap:
		a.X = mathx.FloorMod(a.X, w)
		a.Y = mathx.FloorMod(a.Y, h)
	default:
		if a.X < 0 || a.X >= w {
			a.Heading = math.Pi - a.Heading
			a.X = mathx.Clamp(a.X, 0, w-1)
		}
		if a.Y < 0 || a.Y >= h {
			a.Heading = -a.Heading
			a.Y = mathx.Clamp(a.Y, 0, h-1)
		}
	}
	a.Heading = mathx.WrapAngle(a.Heading)
}
