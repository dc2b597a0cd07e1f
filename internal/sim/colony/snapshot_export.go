package colony

import (
	"encoding/json"

	"antcolony.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures the colony for offline inspection. Call it from the loop
// goroutine or while the loop is stopped.
func (r *Runtime) ExportSnapshot(final bool) snapshot.SnapshotV1 {
	return r.exportSnapshot(r.eng.Digest(), final)
}

func (r *Runtime) exportSnapshot(digest string, final bool) snapshot.SnapshotV1 {
	e := r.eng
	cfg := e.Config()
	cfgJSON, _ := json.Marshal(cfg)

	ns := e.NestStats()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			ColonyID: r.cfg.ID,
			Run:      r.run.Load(),
			Tick:     e.Tick(),
			Final:    final,
		},
		Digest:     digest,
		Seed:       cfg.Seed,
		ConfigJSON: cfgJSON,
		Nest: snapshot.NestV1{
			X:         ns.X,
			Y:         ns.Y,
			Radius:    ns.Radius,
			Delivered: ns.Delivered,
			Pending:   ns.Pending,
			Spawned:   ns.Spawned,
		},
		Field: snapshot.FieldV1{
			Width:  e.field.Width(),
			Height: e.field.Height(),
			Max:    e.field.Max(),
			ToFood: e.field.Values(ToFood),
			ToHome: e.field.Values(ToHome),
		},
	}
	for _, f := range e.FoodSources() {
		snap.Food = append(snap.Food, snapshot.FoodV1{
			ID:        f.ID,
			X:         f.X,
			Y:         f.Y,
			Radius:    f.Radius,
			Remaining: f.Remaining,
			Initial:   f.Initial,
		})
	}
	for i := range e.agents {
		a := &e.agents[i]
		snap.Agents = append(snap.Agents, snapshot.AgentV1{
			ID:          a.ID,
			X:           a.X,
			Y:           a.Y,
			Heading:     a.Heading,
			State:       uint8(a.State),
			Carrying:    a.Carrying,
			LastFoodX:   a.LastFoodX,
			LastFoodY:   a.LastFoodY,
			HasLastFood: a.HasLastFood,
		})
	}
	t := e.Totals()
	snap.Stats = snapshot.StatsV1{Picked: t.Picked, Depleted: t.Depleted}
	return snap
}

// ConfigFromSnapshot decodes the colony config stored in a snapshot.
func ConfigFromSnapshot(snap snapshot.SnapshotV1) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(snap.ConfigJSON, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
