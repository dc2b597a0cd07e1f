package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"antcolony.ai/internal/sim/colony"
)

// Tuning is the on-disk configuration of a colony server (configs/tuning.yaml).
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int    `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	FieldEveryTicks    int    `yaml:"field_every_ticks"`
	StatsBucketTicks   uint64 `yaml:"stats_bucket_ticks"`
	StatsWindowTicks   uint64 `yaml:"stats_window_ticks"`

	Colony Colony `yaml:"colony"`
}

type Colony struct {
	Seed       int64 `yaml:"seed"`
	GridWidth  int   `yaml:"grid_width"`
	GridHeight int   `yaml:"grid_height"`
	AgentCount int   `yaml:"agent_count"`
	MaxAgents  int   `yaml:"max_agents"`

	Pheromone Pheromone `yaml:"pheromone"`
	Movement  Movement  `yaml:"movement"`
	Nest      Nest      `yaml:"nest"`
	Food      Food      `yaml:"food"`
}

type Pheromone struct {
	EvaporationRate  float64 `yaml:"evaporation_rate"`
	DiffusionRate    float64 `yaml:"diffusion_rate"`
	MaxConcentration float64 `yaml:"max_concentration"`
	DepositToFood    float64 `yaml:"deposit_to_food"`
	DepositToHome    float64 `yaml:"deposit_to_home"`
	DepositExplore   float64 `yaml:"deposit_explore"`
	DepositMode      string  `yaml:"deposit_mode"`
	DropInterval     int     `yaml:"drop_interval"`
}

type Movement struct {
	Speed                   float64 `yaml:"speed"`
	FollowProbability       float64 `yaml:"follow_probability"`
	ReturnFollowProbability float64 `yaml:"return_follow_probability"`
	SenseRadius             int     `yaml:"sense_radius"`
	SenseDirections         int     `yaml:"sense_directions"`
	SenseThreshold          float64 `yaml:"sense_threshold"`
	WanderJitter            float64 `yaml:"wander_jitter"`
	FollowJitter            float64 `yaml:"follow_jitter"`
	HomeJitter              float64 `yaml:"home_jitter"`
	Boundary                string  `yaml:"boundary"`
}

type Nest struct {
	// Pos defaults to the grid centre.
	Pos            *[2]float64 `yaml:"pos"`
	Radius         float64     `yaml:"radius"`
	SpawnThreshold float64     `yaml:"spawn_threshold"`
}

type Food struct {
	Count               int        `yaml:"count"`
	Radius              [2]float64 `yaml:"radius"`
	Quantity            [2]float64 `yaml:"quantity"`
	MinDistanceFromNest float64    `yaml:"min_distance_from_nest"`
	PickupAmount        float64    `yaml:"pickup_amount"`
}

// Defaults is the tuning used when no file is given. Keys missing from a file keep these values.
func Defaults() Tuning {
	c := colony.DefaultConfig()
	return Tuning{
		ProtocolVersion:    "0.1",
		TickRateHz:         20,
		SnapshotEveryTicks: 600,
		FieldEveryTicks:    10,
		StatsBucketTicks:   100,
		StatsWindowTicks:   1000,
		Colony: Colony{
			Seed:       c.Seed,
			GridWidth:  c.GridWidth,
			GridHeight: c.GridHeight,
			AgentCount: c.AgentCount,
			MaxAgents:  c.MaxAgents,
			Pheromone: Pheromone{
				EvaporationRate:  c.EvaporationRate,
				DiffusionRate:    c.DiffusionRate,
				MaxConcentration: c.MaxConcentration,
				DepositToFood:    c.Deposit.ToFood,
				DepositToHome:    c.Deposit.ToHome,
				DepositExplore:   c.Deposit.Explore,
				DepositMode:      string(c.DepositMode),
				DropInterval:     c.DropInterval,
			},
			Movement: Movement{
				Speed:                   c.AgentSpeed,
				FollowProbability:       c.FollowProbability,
				ReturnFollowProbability: c.ReturnFollowProbability,
				SenseRadius:             c.SenseRadius,
				SenseDirections:         c.SenseDirections,
				SenseThreshold:          c.SenseThreshold,
				WanderJitter:            c.WanderJitter,
				FollowJitter:            c.FollowJitter,
				HomeJitter:              c.HomeJitter,
				Boundary:                string(c.Boundary),
			},
			Nest: Nest{
				Radius:         c.NestRadius,
				SpawnThreshold: c.SpawnThreshold,
			},
			Food: Food{
				Count:               c.FoodSourceCount,
				Radius:              [2]float64{c.FoodRadiusMin, c.FoodRadiusMax},
				Quantity:            [2]float64{c.FoodQuantityMin, c.FoodQuantityMax},
				MinDistanceFromNest: c.MinDistanceFromNest,
				PickupAmount:        c.PickupAmount,
			},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in 1..1000, got %d", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.FieldEveryTicks < 0 {
		return fmt.Errorf("field_every_ticks must be >= 0")
	}
	if err := t.ColonyConfig().Validate(); err != nil {
		return fmt.Errorf("colony: %w", err)
	}
	return nil
}

// ColonyConfig maps the colony section onto the engine config.
func (t Tuning) ColonyConfig() colony.Config {
	c := t.Colony
	cfg := colony.Config{
		Seed:            c.Seed,
		GridWidth:       c.GridWidth,
		GridHeight:      c.GridHeight,
		AgentCount:      c.AgentCount,
		MaxAgents:       c.MaxAgents,
		FoodSourceCount: c.Food.Count,

		EvaporationRate:  c.Pheromone.EvaporationRate,
		DiffusionRate:    c.Pheromone.DiffusionRate,
		MaxConcentration: c.Pheromone.MaxConcentration,
		Deposit: colony.DepositAmounts{
			ToFood:  c.Pheromone.DepositToFood,
			ToHome:  c.Pheromone.DepositToHome,
			Explore: c.Pheromone.DepositExplore,
		},
		DepositMode:  colony.DepositMode(c.Pheromone.DepositMode),
		DropInterval: c.Pheromone.DropInterval,

		FollowProbability:       c.Movement.FollowProbability,
		ReturnFollowProbability: c.Movement.ReturnFollowProbability,
		SenseRadius:             c.Movement.SenseRadius,
		SenseDirections:         c.Movement.SenseDirections,
		SenseThreshold:          c.Movement.SenseThreshold,
		AgentSpeed:              c.Movement.Speed,
		WanderJitter:            c.Movement.WanderJitter,
		FollowJitter:            c.Movement.FollowJitter,
		HomeJitter:              c.Movement.HomeJitter,
		Boundary:                colony.Boundary(c.Movement.Boundary),

		NestX:          float64(c.GridWidth) / 2,
		NestY:          float64(c.GridHeight) / 2,
		NestRadius:     c.Nest.Radius,
		SpawnThreshold: c.Nest.SpawnThreshold,

		FoodRadiusMin:       c.Food.Radius[0],
		FoodRadiusMax:       c.Food.Radius[1],
		FoodQuantityMin:     c.Food.Quantity[0],
		FoodQuantityMax:     c.Food.Quantity[1],
		MinDistanceFromNest: c.Food.MinDistanceFromNest,
		PickupAmount:        c.Food.PickupAmount,
	}
	if c.Nest.Pos != nil {
		cfg.NestX, cfg.NestY = c.Nest.Pos[0], c.Nest.Pos[1]
	}
	return cfg
}

// RuntimeConfig returns the host settings for a colony with the given id.
func (t Tuning) RuntimeConfig(id string) colony.RuntimeConfig {
	return colony.RuntimeConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		FieldEveryTicks:    t.FieldEveryTicks,
		StatsBucketTicks:   t.StatsBucketTicks,
		StatsWindowTicks:   t.StatsWindowTicks,
	}
}
