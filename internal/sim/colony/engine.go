package colony

import (
	"fmt"
	"math/rand"

	"antcolony.ai/internal/sim/mathx"
)

// Engine owns the field, food, nest and agents and advances them one tick at a time.
// It is not safe for concurrent use; Runtime serialises access from other goroutines.
type Engine struct {
	cfg Config
	rng *rand.Rand

	field  *PheromoneField
	nest   *Nest
	food   []*FoodSource
	agents []Agent

	tick       uint64
	nextFoodID uint64

	pickedTotal   float64
	depletedTotal uint64
}

// StepStats summarises one tick.
type StepStats struct {
	Tick               uint64  `json:"tick"`
	FoodCollectedDelta float64 `json:"food_collected_delta"`
	FoodPicked         float64 `json:"food_picked"`
	ActiveAgents       int     `json:"active_agents"`
	Carrying           int     `json:"carrying"`
	Depleted           int     `json:"depleted"`
	Spawned            int     `json:"spawned"`
}

type FoodView struct {
	ID        uint64  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Remaining float64 `json:"remaining"`
	Initial   float64 `json:"initial"`
}

// FieldView is a copy of one pheromone channel, row-major.
type FieldView struct {
	Channel Channel   `json:"channel"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Max     float64   `json:"max"`
	Values  []float64 `json:"values"`
}

func (v FieldView) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= v.Width || y >= v.Height {
		return 0
	}
	return v.Values[x+y*v.Width]
}

func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("colony config: %w", err)
	}
	e := &Engine{cfg: cfg}
	e.init()
	return e, nil
}

func (e *Engine) init() {
	cfg := e.cfg
	e.rng = rand.New(rand.NewSource(cfg.Seed))
	e.field = NewPheromoneField(cfg.GridWidth, cfg.GridHeight, FieldOptions{
		Max:        cfg.MaxConcentration,
		Directions: cfg.SenseDirections,
		Threshold:  cfg.SenseThreshold,
	})
	e.nest = NewNest(cfg.NestX, cfg.NestY, cfg.NestRadius, cfg.SpawnThreshold)
	e.tick = 0
	e.nextFoodID = 0
	e.pickedTotal = 0
	e.depletedTotal = 0

	e.food = make([]*FoodSource, 0, cfg.FoodSourceCount)
	for i := 0; i < cfg.FoodSourceCount; i++ {
		e.food = append(e.food, e.placeFood())
	}
	e.agents = make([]Agent, 0, cfg.AgentCount)
	for i := 0; i < cfg.AgentCount; i++ {
		e.addAgent()
	}
}

// Reset rebuilds the engine as New(cfg) would. On error the engine is left untouched.
func (e *Engine) Reset(cfg Config) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("colony config: %w", err)
	}
	e.cfg = cfg
	e.init()
	return nil
}

func (e *Engine) addAgent() {
	e.agents = append(e.agents, Agent{
		ID:      len(e.agents),
		X:       e.nest.X,
		Y:       e.nest.Y,
		Heading: e.rng.Float64() * mathx.TwoPi,
		State:   Exploring,
	})
}

// Step advances one tick: agents in order, then evaporation and diffusion, then food
// replacement, then nest spawning.
func (e *Engine) Step() StepStats {
	var st StepStats
	spawnDue := 0
	for i := range e.agents {
		res := e.updateAgent(&e.agents[i])
		st.FoodCollectedDelta += res.delivered
		st.FoodPicked += res.picked
		if res.spawnDue {
			spawnDue++
		}
	}
	e.pickedTotal += st.FoodPicked

	e.field.Decay(e.cfg.EvaporationRate)
	e.field.Diffuse(e.cfg.DiffusionRate)

	st.Depleted = e.replaceDepleted()
	e.depletedTotal += uint64(st.Depleted)

	for ; spawnDue > 0; spawnDue-- {
		if e.cfg.MaxAgents > 0 && len(e.agents) >= e.cfg.MaxAgents {
			break
		}
		e.addAgent()
		e.nest.recordSpawn()
		st.Spawned++
	}

	e.tick++
	st.Tick = e.tick
	st.ActiveAgents = len(e.agents)
	for i := range e.agents {
		if e.agents[i].Carrying > 0 {
			st.Carrying++
		}
	}
	return st
}

// replaceDepleted swaps every empty source for a freshly placed one in the same slot.
func (e *Engine) replaceDepleted() int {
	n := 0
	for i, src := range e.food {
		if !src.IsDepleted() {
			continue
		}
		e.food[i] = e.placeFood()
		n++
	}
	return n
}

// RelocateFood replaces every food source with a new placement.
func (e *Engine) RelocateFood() {
	for i := range e.food {
		e.food[i] = e.placeFood()
	}
}

// Tune changes agent speed and trail-follow probability between ticks.
// A nil argument keeps the current value.
func (e *Engine) Tune(speed, follow *float64) error {
	next := e.cfg
	if speed != nil {
		next.AgentSpeed = *speed
	}
	if follow != nil {
		next.FollowProbability = *follow
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("tune: %w", err)
	}
	e.cfg = next
	return nil
}

func (e *Engine) Tick() uint64   { return e.tick }
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Agents() []AgentView {
	out := make([]AgentView, len(e.agents))
	for i := range e.agents {
		out[i] = e.agents[i].view()
	}
	return out
}

func (e *Engine) FieldSample(ch Channel) FieldView {
	return FieldView{
		Channel: ch,
		Width:   e.field.Width(),
		Height:  e.field.Height(),
		Max:     e.field.Max(),
		Values:  e.field.Values(ch),
	}
}

func (e *Engine) FoodSources() []FoodView {
	out := make([]FoodView, len(e.food))
	for i, src := range e.food {
		out[i] = FoodView{
			ID:        src.ID,
			X:         src.X,
			Y:         src.Y,
			Radius:    src.Radius,
			Remaining: src.Remaining(),
			Initial:   src.Initial,
		}
	}
	return out
}

func (e *Engine) NestStats() NestStats { return e.nest.Stats() }

// Totals are run-cumulative counters not covered by NestStats.
type Totals struct {
	Picked   float64 `json:"picked"`
	Depleted uint64  `json:"depleted"`
	ToFood   float64 `json:"to_food_mass"`
	ToHome   float64 `json:"to_home_mass"`
}

func (e *Engine) Totals() Totals {
	return Totals{
		Picked:   e.pickedTotal,
		Depleted: e.depletedTotal,
		ToFood:   e.field.Total(ToFood),
		ToHome:   e.field.Total(ToHome),
	}
}
