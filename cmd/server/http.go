package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"time"

	"antcolony.ai/internal/sim/colony"
	"antcolony.ai/internal/transport/observer"
)

type muxConfig struct {
	Runtime *colony.Runtime
	Index   runtimeIndex
	Logger  *log.Logger

	EnableAdmin bool
	EnablePprof bool
	// AllowRemote opens the observer endpoints to non-loopback clients.
	AllowRemote bool
}

func newMux(cfg muxConfig) *http.ServeMux {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rt := cfg.Runtime

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeColonyMetrics(rw, rt)
		if cfg.Index != nil {
			writeIndexMetrics(rw, rt.ID(), cfg.Index)
		}
	})

	obsSrv := observer.NewServer(rt, logger)
	obsSrv.AllowRemote = cfg.AllowRemote
	mux.HandleFunc("/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obsSrv.WSHandler())

	if cfg.EnableAdmin {
		// Local-only admin endpoints. Control requests are recorded in the tick log.
		mux.HandleFunc("/admin/v1/state", adminOnly(http.MethodGet, func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, struct {
				ColonyID string         `json:"colony_id"`
				Run      uint64         `json:"run"`
				Tick     uint64         `json:"tick"`
				Config   colony.Config  `json:"config"`
				Metrics  colony.Metrics `json:"metrics"`
			}{
				ColonyID: rt.ID(),
				Run:      rt.CurrentRun(),
				Tick:     rt.CurrentTick(),
				Config:   rt.Config(),
				Metrics:  rt.Metrics(),
			})
		}))
		mux.HandleFunc("/admin/v1/reset", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			var body struct {
				Seed *int64 `json:"seed"`
			}
			if !decodeOptionalBody(rw, r, &body) {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestReset(ctx, body.Seed)
			writeControlResult(rw, resp, err)
		}))
		mux.HandleFunc("/admin/v1/food/relocate", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestRelocateFood(ctx)
			writeControlResult(rw, resp, err)
		}))
		mux.HandleFunc("/admin/v1/tune", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			var body struct {
				Speed  *float64 `json:"speed"`
				Follow *float64 `json:"follow"`
			}
			if !decodeOptionalBody(rw, r, &body) {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestTune(ctx, body.Speed, body.Follow)
			writeControlResult(rw, resp, err)
		}))
		mux.HandleFunc("/admin/v1/pause", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestPause(ctx)
			writeControlResult(rw, resp, err)
		}))
		mux.HandleFunc("/admin/v1/resume", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestResume(ctx)
			writeControlResult(rw, resp, err)
		}))
		mux.HandleFunc("/admin/v1/snapshot", adminOnly(http.MethodPost, func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			resp, err := rt.RequestSnapshot(ctx)
			writeControlResult(rw, resp, err)
		}))
	} else {
		logger.Printf("admin endpoints disabled (ANTCOLONY_ENABLE_ADMIN_HTTP=false)")
	}

	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func adminOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

// decodeOptionalBody accepts an empty body as "no fields set".
func decodeOptionalBody(rw http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json: " + err.Error()})
	return false
}

func writeControlResult(rw http.ResponseWriter, resp colony.ControlResponse, err error) {
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(rw, status, map[string]any{"ok": false, "run": resp.Run, "tick": resp.Tick, "paused": resp.Paused, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "run": resp.Run, "tick": resp.Tick, "paused": resp.Paused})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeColonyMetrics(rw io.Writer, rt *colony.Runtime) {
	id := rt.ID()
	m := rt.Metrics()
	tick := rt.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP antcolony_run Current run number.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_run gauge\n")
	fmt.Fprintf(rw, "antcolony_run{colony=%q} %d\n", id, rt.CurrentRun())

	fmt.Fprintf(rw, "# HELP antcolony_tick Current tick within the run.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_tick gauge\n")
	fmt.Fprintf(rw, "antcolony_tick{colony=%q} %d\n", id, tick)

	paused := 0
	if rt.Paused() {
		paused = 1
	}
	fmt.Fprintf(rw, "# HELP antcolony_paused 1 while stepping is suspended.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_paused gauge\n")
	fmt.Fprintf(rw, "antcolony_paused{colony=%q} %d\n", id, paused)

	fmt.Fprintf(rw, "# HELP antcolony_agents Current number of agents.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_agents gauge\n")
	fmt.Fprintf(rw, "antcolony_agents{colony=%q} %d\n", id, m.Agents)

	fmt.Fprintf(rw, "# HELP antcolony_agents_carrying Agents currently carrying food.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_agents_carrying gauge\n")
	fmt.Fprintf(rw, "antcolony_agents_carrying{colony=%q} %d\n", id, m.Carrying)

	fmt.Fprintf(rw, "# HELP antcolony_food_sources Active food sources.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_food_sources gauge\n")
	fmt.Fprintf(rw, "antcolony_food_sources{colony=%q} %d\n", id, m.FoodSources)

	fmt.Fprintf(rw, "# HELP antcolony_observers Connected observers.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_observers gauge\n")
	fmt.Fprintf(rw, "antcolony_observers{colony=%q} %d\n", id, m.Observers)

	fmt.Fprintf(rw, "# HELP antcolony_resets_total Resets since process start.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_resets_total counter\n")
	fmt.Fprintf(rw, "antcolony_resets_total{colony=%q} %d\n", id, m.ResetTotal)

	fmt.Fprintf(rw, "# HELP antcolony_food_delivered Food delivered to the nest in this run.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_food_delivered gauge\n")
	fmt.Fprintf(rw, "antcolony_food_delivered{colony=%q} %.6f\n", id, m.Nest.Delivered)

	fmt.Fprintf(rw, "# HELP antcolony_food_picked Food picked up from sources in this run.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_food_picked gauge\n")
	fmt.Fprintf(rw, "antcolony_food_picked{colony=%q} %.6f\n", id, m.Totals.Picked)

	fmt.Fprintf(rw, "# HELP antcolony_sources_depleted Food sources depleted and replaced in this run.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_sources_depleted gauge\n")
	fmt.Fprintf(rw, "antcolony_sources_depleted{colony=%q} %d\n", id, m.Totals.Depleted)

	fmt.Fprintf(rw, "# HELP antcolony_agents_spawned Agents spawned by the nest in this run.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_agents_spawned gauge\n")
	fmt.Fprintf(rw, "antcolony_agents_spawned{colony=%q} %d\n", id, m.Nest.Spawned)

	fmt.Fprintf(rw, "# HELP antcolony_pheromone_mass Sum of all cells per channel.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_pheromone_mass gauge\n")
	fmt.Fprintf(rw, "antcolony_pheromone_mass{colony=%q,channel=%q} %.6f\n", id, colony.ToFood.String(), m.Totals.ToFood)
	fmt.Fprintf(rw, "antcolony_pheromone_mass{colony=%q,channel=%q} %.6f\n", id, colony.ToHome.String(), m.Totals.ToHome)

	fmt.Fprintf(rw, "# HELP antcolony_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_queue_depth gauge\n")
	fmt.Fprintf(rw, "antcolony_queue_depth{colony=%q,queue=%q} %d\n", id, "control", m.QueueDepths.Control)
	fmt.Fprintf(rw, "antcolony_queue_depth{colony=%q,queue=%q} %d\n", id, "observer", m.QueueDepths.Observer)

	fmt.Fprintf(rw, "# HELP antcolony_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_step_ms gauge\n")
	fmt.Fprintf(rw, "antcolony_step_ms{colony=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP antcolony_stats_window Rolling window stats.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_stats_window gauge\n")
	fmt.Fprintf(rw, "antcolony_stats_window{colony=%q,metric=%q} %.6f\n", id, "delivered", m.StatsWindow.Delivered)
	fmt.Fprintf(rw, "antcolony_stats_window{colony=%q,metric=%q} %.6f\n", id, "picked", m.StatsWindow.Picked)
	fmt.Fprintf(rw, "antcolony_stats_window{colony=%q,metric=%q} %d\n", id, "depleted", m.StatsWindow.Depleted)
	fmt.Fprintf(rw, "antcolony_stats_window{colony=%q,metric=%q} %d\n", id, "spawned", m.StatsWindow.Spawned)

	fmt.Fprintf(rw, "# HELP antcolony_stats_window_ticks Rolling window size in ticks.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_stats_window_ticks gauge\n")
	fmt.Fprintf(rw, "antcolony_stats_window_ticks{colony=%q} %d\n", id, m.StatsWindowTicks)
}

func writeIndexMetrics(rw io.Writer, id string, idx runtimeIndex) {
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP antcolony_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "antcolony_index_queue_depth{colony=%q} %d\n", id, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP antcolony_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "antcolony_index_queue_capacity{colony=%q} %d\n", id, s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP antcolony_index_dropped_total Rows dropped because the index writer fell behind.\n")
	fmt.Fprintf(rw, "# TYPE antcolony_index_dropped_total counter\n")
	fmt.Fprintf(rw, "antcolony_index_dropped_total{colony=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "antcolony_index_dropped_total{colony=%q,kind=%q} %d\n", id, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "antcolony_index_dropped_total{colony=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "antcolony_index_dropped_total{colony=%q,kind=%q} %d\n", id, "archive", s.DropArchiveTotal)
}
