package colony

import "testing"

// quietConfig is a deterministic single-agent colony: no randomness in headings, no
// evaporation, no food unless a test places some.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.AgentCount = 1
	cfg.FoodSourceCount = 0
	cfg.EvaporationRate = 0
	cfg.FollowProbability = 0
	cfg.WanderJitter = 0
	cfg.FollowJitter = 0
	cfg.HomeJitter = 0
	cfg.NestX, cfg.NestY = 90, 90
	return cfg
}

func mustEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func placeAgent(e *Engine, i int, x, y, heading float64) *Agent {
	a := &e.agents[i]
	a.X, a.Y, a.Heading = x, y, heading
	return a
}
