package colony

import "time"

func (r *Runtime) stepInternal(reqs []ControlRequest) string {
	stepStart := time.Now()

	snapshotReqs := r.applyRequests(reqs)
	if r.paused {
		st := r.idleStats()
		digest := r.eng.Digest()
		r.stepObservers(r.run.Load(), st, nil, true)
		r.handleSnapshotRequests(snapshotReqs, digest)
		r.publishMetrics(st, 0)
		return digest
	}

	// Requests applied while paused are logged with the first step after resuming.
	recorded := r.recorded
	r.recorded = nil

	st := r.eng.Step()
	run := r.run.Load()
	r.tick.Store(st.Tick)
	r.stats.Observe(st.Tick, st)

	digest := r.eng.Digest()
	if r.tickLogger != nil {
		entry := TickLogEntry{Run: run, Tick: st.Tick, Requests: recorded, Stats: st, Digest: digest}
		if r.startPending {
			cfg := r.eng.Config()
			entry.Config = &cfg
		}
		_ = r.tickLogger.WriteTick(entry)
	}
	r.startPending = false

	// Observer stream (read-only).
	r.stepObservers(run, st, recorded, false)

	// Periodic snapshot, counted within the run.
	if r.snapshotSink != nil && r.cfg.SnapshotEveryTicks > 0 && st.Tick%uint64(r.cfg.SnapshotEveryTicks) == 0 {
		select {
		case r.snapshotSink <- r.exportSnapshot(digest, false):
		default:
			// Drop snapshot if sink is backed up.
		}
	}
	r.handleSnapshotRequests(snapshotReqs, digest)

	r.publishMetrics(st, float64(time.Since(stepStart).Microseconds())/1000.0)
	return digest
}

// applyRequests applies control requests at the tick boundary, in arrival order, and
// returns the snapshot requests, which are answered after the step.
func (r *Runtime) applyRequests(reqs []ControlRequest) []ControlRequest {
	var snapshotReqs []ControlRequest
	for _, req := range reqs {
		resp := ControlResponse{Run: r.run.Load(), Tick: r.eng.Tick()}
		switch req.Kind {
		case KindReset:
			if err := r.applyReset(req); err != nil {
				resp.Err = err.Error()
			} else {
				// Everything before the reset is captured by the new run's config.
				r.recorded = r.recorded[:0]
				resp.Run, resp.Tick = r.run.Load(), 0
			}
		case KindRelocate:
			r.eng.RelocateFood()
			r.recorded = append(r.recorded, RecordedRequest{Kind: KindRelocate})
		case KindTune:
			if err := r.eng.Tune(req.Speed, req.Follow); err != nil {
				resp.Err = err.Error()
			} else {
				r.recorded = append(r.recorded, RecordedRequest{Kind: KindTune, Speed: req.Speed, Follow: req.Follow})
			}
		case KindPause:
			r.paused = true
		case KindResume:
			r.paused = false
		case KindSnapshot:
			snapshotReqs = append(snapshotReqs, req)
			continue
		default:
			resp.Err = "unknown request kind: " + string(req.Kind)
		}
		resp.Paused = r.paused
		r.pausedView.Store(r.paused)
		r.cfgView.Store(r.eng.Config())
		r.auditRequest(req, resp)
		reply(req, resp)
	}
	return snapshotReqs
}

// idleStats describes the current state without stepping.
func (r *Runtime) idleStats() StepStats {
	st := StepStats{Tick: r.eng.Tick(), ActiveAgents: len(r.eng.agents)}
	for i := range r.eng.agents {
		if r.eng.agents[i].Carrying > 0 {
			st.Carrying++
		}
	}
	return st
}

func (r *Runtime) publishMetrics(st StepStats, stepMS float64) {
	r.metrics.Store(Metrics{
		Run:         r.run.Load(),
		Tick:        st.Tick,
		Paused:      r.paused,
		Agents:      st.ActiveAgents,
		Carrying:    st.Carrying,
		FoodSources: len(r.eng.food),
		Observers:   len(r.observers),
		ResetTotal:  r.resetTotal,
		Nest:        r.eng.NestStats(),
		Totals:      r.eng.Totals(),
		QueueDepths: QueueDepths{
			Control:  len(r.control),
			Observer: len(r.observerJoin) + len(r.observerSub) + len(r.observerLeave),
		},
		StepMS:           stepMS,
		StatsWindowTicks: r.stats.WindowTicks(),
		StatsWindow:      r.stats.Summarize(st.Tick),
	})
}

// applyReset archives the finished run (when a sink is set) and rebuilds the engine.
func (r *Runtime) applyReset(req ControlRequest) error {
	cfg := r.eng.Config()
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if r.snapshotSink != nil && r.eng.Tick() > 0 {
		select {
		case r.snapshotSink <- r.exportSnapshot(r.eng.Digest(), true):
		default:
			r.log.Printf("run %d: final snapshot dropped (sink full)", r.run.Load())
		}
	}
	if err := r.eng.Reset(cfg); err != nil {
		return err
	}
	run := r.run.Add(1)
	r.tick.Store(0)
	r.stats.Reset()
	r.resetTotal++
	r.startPending = true
	for _, c := range r.observers {
		c.needField = true
	}
	r.log.Printf("run %d started seed=%d agents=%d food=%d", run, cfg.Seed, cfg.AgentCount, cfg.FoodSourceCount)
	return nil
}

func (r *Runtime) handleSnapshotRequests(reqs []ControlRequest, digest string) {
	if len(reqs) == 0 {
		return
	}
	resp := ControlResponse{Run: r.run.Load(), Tick: r.eng.Tick(), Paused: r.paused}
	if r.snapshotSink == nil {
		resp.Err = "snapshot sink not configured"
	} else {
		select {
		case r.snapshotSink <- r.exportSnapshot(digest, false):
		default:
			resp.Err = "snapshot queue full"
		}
	}
	for _, req := range reqs {
		r.auditRequest(req, resp)
		reply(req, resp)
	}
}

func (r *Runtime) auditRequest(req ControlRequest, resp ControlResponse) {
	if r.auditLogger == nil {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "SYSTEM"
	}
	detail := map[string]any{}
	if req.Seed != nil {
		detail["seed"] = *req.Seed
	}
	if req.Speed != nil {
		detail["speed"] = *req.Speed
	}
	if req.Follow != nil {
		detail["follow"] = *req.Follow
	}
	if resp.Err != "" {
		detail["error"] = resp.Err
	}
	if len(detail) == 0 {
		detail = nil
	}
	_ = r.auditLogger.WriteAudit(AuditEntry{
		Run:    resp.Run,
		Tick:   resp.Tick,
		Actor:  actor,
		Action: string(req.Kind),
		Detail: detail,
	})
}
