package colony

type StatsBucket struct {
	Delivered float64 `json:"delivered"`
	Picked    float64 `json:"picked"`
	Depleted  int     `json:"depleted"`
	Spawned   int     `json:"spawned"`
}

// Stats keeps a rolling window of per-tick foraging counters in fixed-size buckets.
type Stats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket
}

func NewStats(bucketTicks, windowTicks uint64) *Stats {
	if bucketTicks <= 0 {
		bucketTicks = 100
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	if n < 1 {
		n = 1
	}
	return &Stats{
		bucketTicks: bucketTicks,
		windowTicks: uint64(n) * bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *Stats) rotate(nowTick uint64) {
	if s == nil {
		return
	}
	// A long gap clears the whole window at once.
	if nowTick >= s.curBase+s.windowTicks+s.bucketTicks {
		for i := range s.buckets {
			s.buckets[i] = StatsBucket{}
		}
		s.curBase = nowTick - nowTick%s.bucketTicks
		return
	}
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

func (s *Stats) Observe(nowTick uint64, st StepStats) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	b := &s.buckets[s.curIdx]
	b.Delivered += st.FoodCollectedDelta
	b.Picked += st.FoodPicked
	b.Depleted += st.Depleted
	b.Spawned += st.Spawned
}

func (s *Stats) Reset() {
	if s == nil {
		return
	}
	for i := range s.buckets {
		s.buckets[i] = StatsBucket{}
	}
	s.curIdx = 0
	s.curBase = 0
}

func (s *Stats) WindowTicks() uint64 {
	if s == nil {
		return 0
	}
	return s.windowTicks
}

func (s *Stats) Summarize(nowTick uint64) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.Delivered += b.Delivered
		out.Picked += b.Picked
		out.Depleted += b.Depleted
		out.Spawned += b.Spawned
	}
	return out
}
