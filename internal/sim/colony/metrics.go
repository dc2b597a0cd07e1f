package colony

// Metrics is a thread-safe read-only view of key runtime signals.
// It is updated from the loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Run    uint64 `json:"run"`
	Tick   uint64 `json:"tick"`
	Paused bool   `json:"paused"`

	Agents      int `json:"agents"`
	Carrying    int `json:"carrying"`
	FoodSources int `json:"food_sources"`
	Observers   int `json:"observers"`
	ResetTotal  int `json:"reset_total"`

	Nest   NestStats `json:"nest"`
	Totals Totals    `json:"totals"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`
}

type QueueDepths struct {
	Control  int `json:"control"`
	Observer int `json:"observer"`
}

func (r *Runtime) Metrics() Metrics {
	if r == nil {
		return Metrics{}
	}
	v := r.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}
