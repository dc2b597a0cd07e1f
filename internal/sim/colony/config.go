package colony

import (
	"fmt"
	"math"

	"antcolony.ai/internal/sim/mathx"
)

// Channel selects one of the two pheromone grids.
type Channel uint8

const (
	// ToFood is laid by agents carrying food back to the nest; explorers follow it.
	ToFood Channel = iota
	// ToHome marks the way back to the nest.
	ToHome
)

func (c Channel) String() string {
	switch c {
	case ToFood:
		return "to_food"
	case ToHome:
		return "to_home"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// ParseChannel accepts the names produced by Channel.String.
func ParseChannel(s string) (Channel, bool) {
	switch s {
	case "to_food":
		return ToFood, true
	case "to_home":
		return ToHome, true
	default:
		return 0, false
	}
}

type Boundary string

const (
	BoundaryBounce Boundary = "bounce"
	BoundaryWrap   Boundary = "wrap"
)

type DepositMode string

const (
	// DepositFixed adds Deposit.ToFood each drop.
	DepositFixed DepositMode = "fixed"
	// DepositDistance adds Deposit.ToFood/(1+d) where d is the distance to the nest.
	DepositDistance DepositMode = "distance"
)

type DepositAmounts struct {
	ToFood  float64 `json:"to_food"`
	ToHome  float64 `json:"to_home"`
	Explore float64 `json:"explore"`
}

type Config struct {
	Seed int64 `json:"seed"`

	GridWidth       int `json:"grid_width"`
	GridHeight      int `json:"grid_height"`
	AgentCount      int `json:"agent_count"`
	FoodSourceCount int `json:"food_source_count"`

	EvaporationRate  float64        `json:"evaporation_rate"`
	DiffusionRate    float64        `json:"diffusion_rate"`
	MaxConcentration float64        `json:"max_concentration"`
	Deposit          DepositAmounts `json:"deposit"`
	DepositMode      DepositMode    `json:"deposit_mode"`
	DropInterval     int            `json:"drop_interval"`

	FollowProbability       float64 `json:"follow_probability"`
	ReturnFollowProbability float64 `json:"return_follow_probability"`
	SenseRadius             int     `json:"sense_radius"`
	SenseDirections         int     `json:"sense_directions"`
	SenseThreshold          float64 `json:"sense_threshold"`

	AgentSpeed   float64  `json:"agent_speed"`
	WanderJitter float64  `json:"wander_jitter"`
	FollowJitter float64  `json:"follow_jitter"`
	HomeJitter   float64  `json:"home_jitter"`
	Boundary     Boundary `json:"boundary"`

	NestX      float64 `json:"nest_x"`
	NestY      float64 `json:"nest_y"`
	NestRadius float64 `json:"nest_radius"`

	FoodRadiusMin       float64 `json:"food_radius_min"`
	FoodRadiusMax       float64 `json:"food_radius_max"`
	FoodQuantityMin     float64 `json:"food_quantity_min"`
	FoodQuantityMax     float64 `json:"food_quantity_max"`
	MinDistanceFromNest float64 `json:"min_distance_from_nest"`
	PickupAmount        float64 `json:"pickup_amount"`

	// SpawnThreshold is the delivered amount that adds one agent at the nest. 0 disables spawning.
	SpawnThreshold float64 `json:"spawn_threshold"`
	// MaxAgents caps spawning. 0 means no cap.
	MaxAgents int `json:"max_agents"`
}

// DefaultConfig mirrors the reference colony: a 100x100 grid with the nest in the middle.
func DefaultConfig() Config {
	return Config{
		Seed:            1,
		GridWidth:       100,
		GridHeight:      100,
		AgentCount:      50,
		FoodSourceCount: 3,

		EvaporationRate:  0.005,
		MaxConcentration: 5,
		Deposit:          DepositAmounts{ToFood: 5, ToHome: 5},
		DepositMode:      DepositFixed,
		DropInterval:     1,

		FollowProbability: 0.8,
		SenseRadius:       3,
		SenseDirections:   16,

		AgentSpeed:   1,
		WanderJitter: 0.3,
		FollowJitter: 0.1,
		HomeJitter:   0.2,
		Boundary:     BoundaryBounce,

		NestX:      50,
		NestY:      50,
		NestRadius: 2,

		FoodRadiusMin:       3,
		FoodRadiusMax:       5,
		FoodQuantityMin:     50,
		FoodQuantityMax:     100,
		MinDistanceFromNest: 25,
		PickupAmount:        1,
	}
}

// applyDefaults fills knobs left at zero whose zero value has no useful meaning. Negative
// or otherwise invalid values are left alone so Validate can reject them.
func (c *Config) applyDefaults() {
	if c.MaxConcentration == 0 {
		c.MaxConcentration = 5
	}
	if c.DepositMode == "" {
		c.DepositMode = DepositFixed
	}
	if c.DropInterval == 0 {
		c.DropInterval = 1
	}
	if c.SenseDirections == 0 {
		c.SenseDirections = 16
	}
	if c.Boundary == "" {
		c.Boundary = BoundaryBounce
	}
	if c.NestRadius == 0 {
		c.NestRadius = 2
	}
	if c.PickupAmount == 0 {
		c.PickupAmount = 1
	}
	if c.FoodRadiusMax == 0 {
		c.FoodRadiusMax = c.FoodRadiusMin
	}
	if c.FoodQuantityMax == 0 {
		c.FoodQuantityMax = c.FoodQuantityMin
	}
}

// Normalized returns the config with defaults applied, as New would see it.
func (c Config) Normalized() Config {
	c.applyDefaults()
	return c
}

// Validate reports the first configuration mistake. It never clamps.
func (c Config) Validate() error {
	c.applyDefaults()

	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return fmt.Errorf("grid %dx%d must have positive dimensions", c.GridWidth, c.GridHeight)
	}
	if c.AgentCount <= 0 {
		return fmt.Errorf("agent_count must be > 0 (got %d)", c.AgentCount)
	}
	if c.FoodSourceCount < 0 {
		return fmt.Errorf("food_source_count must be >= 0 (got %d)", c.FoodSourceCount)
	}
	if c.MaxAgents != 0 && c.MaxAgents < c.AgentCount {
		return fmt.Errorf("max_agents %d is below agent_count %d", c.MaxAgents, c.AgentCount)
	}

	for _, r := range []struct {
		name string
		v    float64
	}{
		{"evaporation_rate", c.EvaporationRate},
		{"diffusion_rate", c.DiffusionRate},
		{"follow_probability", c.FollowProbability},
		{"return_follow_probability", c.ReturnFollowProbability},
	} {
		if !(r.v >= 0 && r.v <= 1) {
			return fmt.Errorf("%s must be within [0,1] (got %v)", r.name, r.v)
		}
	}

	for _, r := range []struct {
		name string
		v    float64
	}{
		{"deposit.to_food", c.Deposit.ToFood},
		{"deposit.to_home", c.Deposit.ToHome},
		{"deposit.explore", c.Deposit.Explore},
		{"sense_threshold", c.SenseThreshold},
		{"wander_jitter", c.WanderJitter},
		{"follow_jitter", c.FollowJitter},
		{"home_jitter", c.HomeJitter},
		{"min_distance_from_nest", c.MinDistanceFromNest},
		{"spawn_threshold", c.SpawnThreshold},
	} {
		if !(r.v >= 0) || math.IsInf(r.v, 0) {
			return fmt.Errorf("%s must be a finite value >= 0 (got %v)", r.name, r.v)
		}
	}

	if !(c.AgentSpeed > 0) || math.IsInf(c.AgentSpeed, 0) {
		return fmt.Errorf("agent_speed must be > 0 (got %v)", c.AgentSpeed)
	}
	if c.SenseRadius < 0 {
		return fmt.Errorf("sense_radius must be >= 0 (got %d)", c.SenseRadius)
	}
	if c.SenseDirections < 1 {
		return fmt.Errorf("sense_directions must be >= 1 (got %d)", c.SenseDirections)
	}
	if c.DropInterval < 1 {
		return fmt.Errorf("drop_interval must be >= 1 (got %d)", c.DropInterval)
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"max_concentration", c.MaxConcentration},
		{"nest_radius", c.NestRadius},
		{"pickup_amount", c.PickupAmount},
	} {
		if !(r.v > 0) || math.IsInf(r.v, 0) {
			return fmt.Errorf("%s must be a finite value > 0 (got %v)", r.name, r.v)
		}
	}

	switch c.Boundary {
	case BoundaryBounce, BoundaryWrap:
	default:
		return fmt.Errorf("unknown boundary mode %q", c.Boundary)
	}
	switch c.DepositMode {
	case DepositFixed, DepositDistance:
	default:
		return fmt.Errorf("unknown deposit mode %q", c.DepositMode)
	}

	w, h := float64(c.GridWidth), float64(c.GridHeight)
	if !(c.NestX >= 0 && c.NestX < w && c.NestY >= 0 && c.NestY < h) {
		return fmt.Errorf("nest (%v,%v) outside grid %dx%d", c.NestX, c.NestY, c.GridWidth, c.GridHeight)
	}

	if c.FoodSourceCount > 0 {
		if !(c.FoodRadiusMin > 0) || !mathx.IsFinite(c.FoodRadiusMax) || c.FoodRadiusMax < c.FoodRadiusMin {
			return fmt.Errorf("food radius range [%v,%v] must be positive and ordered", c.FoodRadiusMin, c.FoodRadiusMax)
		}
		if !(c.FoodQuantityMin > 0) || !mathx.IsFinite(c.FoodQuantityMax) || c.FoodQuantityMax < c.FoodQuantityMin {
			return fmt.Errorf("food quantity range [%v,%v] must be positive and ordered", c.FoodQuantityMin, c.FoodQuantityMax)
		}
		if far := farthestPlacement(c, c.FoodRadiusMax); far < c.MinDistanceFromNest {
			return fmt.Errorf("min_distance_from_nest %v unreachable: farthest food position is %.2f from the nest", c.MinDistanceFromNest, far)
		}
	}
	return nil
}
