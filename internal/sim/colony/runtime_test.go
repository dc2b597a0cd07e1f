package colony

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"antcolony.ai/internal/observerproto"
	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/encoding"
)

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	// Round-trip through JSON like the on-disk log does.
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var cp TickLogEntry
	if err := json.Unmarshal(b, &cp); err != nil {
		return err
	}
	m.entries = append(m.entries, cp)
	return nil
}

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func newTestRuntime(t *testing.T, rc RuntimeConfig) *Runtime {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 5
	cfg.GridWidth, cfg.GridHeight = 40, 40
	cfg.NestX, cfg.NestY = 20, 20
	cfg.MinDistanceFromNest = 10
	cfg.AgentCount = 20
	r, err := NewRuntime(rc, cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return r
}

func TestRuntimeStepOnce_TickLog(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{})
	tl := &memTickLog{}
	r.SetTickLogger(tl)

	var digest string
	for i := 0; i < 3; i++ {
		_, _, digest = r.StepOnce()
	}
	if len(tl.entries) != 3 {
		t.Fatalf("entries: %d", len(tl.entries))
	}
	first := tl.entries[0]
	if first.Run != 1 || first.Tick != 1 || first.Config == nil {
		t.Fatalf("first entry: %+v", first)
	}
	if first.Config.Seed != 5 || first.Config.AgentCount != 20 {
		t.Fatalf("first entry config: %+v", *first.Config)
	}
	if tl.entries[1].Config != nil || tl.entries[2].Config != nil {
		t.Fatalf("config repeated after the first entry")
	}
	if tl.entries[2].Digest != digest || digest != r.Engine().Digest() {
		t.Fatalf("digest mismatch")
	}
	if r.CurrentTick() != 3 {
		t.Fatalf("current tick: %d", r.CurrentTick())
	}
	if m := r.Metrics(); m.Tick != 3 || m.Run != 1 || m.Agents != 20 || m.FoodSources != 3 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestRuntime_ReplayFromTickLog(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{})
	tl := &memTickLog{}
	r.SetTickLogger(tl)

	speed, follow := 1.5, 0.4
	for i := 1; i <= 120; i++ {
		var reqs []ControlRequest
		switch i {
		case 30:
			reqs = append(reqs, ControlRequest{Kind: KindRelocate})
		case 60:
			reqs = append(reqs, ControlRequest{Kind: KindTune, Speed: &speed, Follow: &follow})
		case 90:
			reqs = append(reqs, ControlRequest{Kind: KindRelocate}, ControlRequest{Kind: KindTune, Follow: &speed})
		}
		r.StepOnce(reqs...)
	}

	var e *Engine
	for _, entry := range tl.entries {
		if entry.Config != nil {
			var err error
			if e, err = New(*entry.Config); err != nil {
				t.Fatalf("replay New: %v", err)
			}
		}
		for _, rr := range entry.Requests {
			if err := rr.Apply(e); err != nil {
				t.Fatalf("replay apply %s: %v", rr.Kind, err)
			}
		}
		e.Step()
		if got := e.Digest(); got != entry.Digest {
			t.Fatalf("replay diverged at tick %d", entry.Tick)
		}
	}
	// The tune with follow=1.5 was rejected and must not be recorded.
	if n := len(tl.entries[89].Requests); n != 1 {
		t.Fatalf("tick 90 recorded %d requests, want 1", n)
	}
}

func TestRuntimeReset_StartsNewRun(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{FirstRun: 4})
	tl := &memTickLog{}
	al := &memAuditLog{}
	sink := make(chan snapshot.SnapshotV1, 4)
	r.SetTickLogger(tl)
	r.SetAuditLogger(al)
	r.SetSnapshotSink(sink)

	for i := 0; i < 10; i++ {
		r.StepOnce()
	}
	seed := int64(99)
	resp := make(chan ControlResponse, 1)
	run, tick, _ := r.StepOnce(ControlRequest{Kind: KindReset, Actor: "ADMIN", Seed: &seed, Resp: resp})
	if run != 5 || tick != 1 {
		t.Fatalf("after reset: run=%d tick=%d", run, tick)
	}
	got := <-resp
	if got.Err != "" || got.Run != 5 || got.Tick != 0 {
		t.Fatalf("reset response: %+v", got)
	}

	last := tl.entries[len(tl.entries)-1]
	if last.Run != 5 || last.Tick != 1 || last.Config == nil || last.Config.Seed != 99 {
		t.Fatalf("first entry of new run: %+v", last)
	}

	select {
	case snap := <-sink:
		if !snap.Header.Final || snap.Header.Run != 4 || snap.Header.Tick != 10 {
			t.Fatalf("final snapshot header: %+v", snap.Header)
		}
		cfg, err := ConfigFromSnapshot(snap)
		if err != nil || cfg.Seed != 5 {
			t.Fatalf("final snapshot config: %+v %v", cfg, err)
		}
	default:
		t.Fatalf("no final snapshot")
	}

	if len(al.entries) != 1 || al.entries[0].Action != string(KindReset) || al.entries[0].Detail["seed"] != int64(99) {
		t.Fatalf("audit: %+v", al.entries)
	}
	if m := r.Metrics(); m.ResetTotal != 1 || m.Run != 5 {
		t.Fatalf("metrics after reset: %+v", m)
	}
}

func TestRuntimeSnapshots(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{SnapshotEveryTicks: 5})
	sink := make(chan snapshot.SnapshotV1, 8)
	r.SetSnapshotSink(sink)
	for i := 0; i < 10; i++ {
		r.StepOnce()
	}
	if len(sink) != 2 {
		t.Fatalf("periodic snapshots: %d", len(sink))
	}
	<-sink
	snap := <-sink
	if snap.Header.Tick != 10 || snap.Header.Final || len(snap.Agents) != 20 || len(snap.Field.ToFood) != 40*40 {
		t.Fatalf("snapshot: header=%+v agents=%d", snap.Header, len(snap.Agents))
	}
	if snap.Digest != r.Engine().Digest() {
		t.Fatalf("snapshot digest does not match engine")
	}

	resp := make(chan ControlResponse, 1)
	r.StepOnce(ControlRequest{Kind: KindSnapshot, Resp: resp})
	if got := <-resp; got.Err != "" || got.Tick != 11 {
		t.Fatalf("snapshot response: %+v", got)
	}
	if snap := <-sink; snap.Header.Tick != 11 {
		t.Fatalf("requested snapshot tick: %d", snap.Header.Tick)
	}

	bare := newTestRuntime(t, RuntimeConfig{})
	bare.StepOnce(ControlRequest{Kind: KindSnapshot, Resp: resp})
	if got := <-resp; got.Err == "" {
		t.Fatalf("snapshot without sink must fail")
	}
}

func TestRuntimeObserverStream(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{FieldEveryTicks: 3})
	tickOut := make(chan []byte, 1)
	dataOut := make(chan []byte, 8)
	r.handleObserverJoin(ObserverJoinRequest{SessionID: "obs", TickOut: tickOut, DataOut: dataOut, Channels: []Channel{ToFood}})

	r.StepOnce()
	var tm observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &tm); err != nil {
		t.Fatalf("tick msg: %v", err)
	}
	if tm.Type != "TICK" || tm.Tick != 1 || tm.Run != 1 || len(tm.Agents) != 20 || len(tm.Food) != 3 {
		t.Fatalf("tick msg: %+v", tm)
	}

	if len(dataOut) != 1 {
		t.Fatalf("join must send one FIELD frame per channel, got %d", len(dataOut))
	}
	var fm observerproto.FieldMsg
	if err := json.Unmarshal(<-dataOut, &fm); err != nil {
		t.Fatalf("field msg: %v", err)
	}
	if fm.Type != "FIELD" || fm.Channel != "to_food" || fm.Width != 40 || fm.Height != 40 {
		t.Fatalf("field msg: %+v", fm)
	}
	levels, err := encoding.DecodeRLE(fm.RLE)
	if err != nil || len(levels) != 40*40 {
		t.Fatalf("field rle: n=%d err=%v", len(levels), err)
	}

	r.StepOnce()
	r.StepOnce()
	if len(dataOut) != 1 {
		t.Fatalf("cadence: expected FIELD on tick 3 only, got %d frames", len(dataOut))
	}
	<-dataOut

	r.handleObserverLeave("obs")
	if _, ok := <-tickOut; ok {
		// drain the last TICK
		if _, ok := <-tickOut; ok {
			t.Fatalf("tick channel not closed")
		}
	}
	r.StepOnce()
	if m := r.Metrics(); m.Observers != 0 {
		t.Fatalf("observers: %d", m.Observers)
	}
}

func TestRuntimeRun_ServesControlRequests(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{TickRateHz: 200})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	resp, err := r.RequestReset(reqCtx, nil)
	if err != nil || resp.Run != 2 {
		t.Fatalf("reset: %+v %v", resp, err)
	}
	bad := 3.0
	if _, err := r.RequestTune(reqCtx, nil, &bad); err == nil {
		t.Fatalf("invalid tune accepted")
	}
	if _, err := r.RequestTune(reqCtx, nil, nil); err == nil {
		t.Fatalf("empty tune accepted")
	}
	if _, err := r.RequestRelocateFood(reqCtx); err != nil {
		t.Fatalf("relocate: %v", err)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
	if r.CurrentRun() != 2 {
		t.Fatalf("current run: %d", r.CurrentRun())
	}
}

func TestRuntimePause_HoldsTick(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{})
	tl := &memTickLog{}
	r.SetTickLogger(tl)
	for i := 0; i < 3; i++ {
		r.StepOnce()
	}

	resp := make(chan ControlResponse, 1)
	_, tick, digest := r.StepOnce(ControlRequest{Kind: KindPause, Resp: resp})
	if got := <-resp; got.Err != "" || !got.Paused || got.Tick != 3 {
		t.Fatalf("pause response: %+v", got)
	}
	if tick != 3 || !r.Paused() || digest != r.Engine().Digest() {
		t.Fatalf("pause stepped: tick=%d paused=%v", tick, r.Paused())
	}
	for i := 0; i < 5; i++ {
		if _, tick, d := r.StepOnce(); tick != 3 || d != digest {
			t.Fatalf("paused step %d advanced to tick %d", i, tick)
		}
	}
	if m := r.Metrics(); !m.Paused || m.Tick != 3 || m.Agents != 20 {
		t.Fatalf("paused metrics: %+v", m)
	}
	if len(tl.entries) != 3 {
		t.Fatalf("paused ticks were logged: %d entries", len(tl.entries))
	}

	// Observers joining a paused colony still get the current state.
	tickOut := make(chan []byte, 1)
	dataOut := make(chan []byte, 4)
	r.handleObserverJoin(ObserverJoinRequest{SessionID: "late", TickOut: tickOut, DataOut: dataOut, Channels: []Channel{ToHome}})
	r.StepOnce(ControlRequest{Kind: KindRelocate})
	var tm observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &tm); err != nil || tm.Tick != 3 {
		t.Fatalf("paused tick msg: %+v %v", tm, err)
	}
	if len(dataOut) != 1 {
		t.Fatalf("paused join: %d FIELD frames", len(dataOut))
	}
	<-dataOut
	r.StepOnce()
	if len(tickOut) != 0 || len(dataOut) != 0 {
		t.Fatalf("paused colony kept streaming")
	}

	_, tick, _ = r.StepOnce(ControlRequest{Kind: KindResume, Resp: resp})
	if got := <-resp; got.Paused {
		t.Fatalf("resume response: %+v", got)
	}
	if tick != 4 || r.Paused() || r.Metrics().Paused {
		t.Fatalf("resume: tick=%d paused=%v", tick, r.Paused())
	}
	last := tl.entries[len(tl.entries)-1]
	if last.Tick != 4 || len(last.Requests) != 1 || last.Requests[0].Kind != KindRelocate {
		t.Fatalf("relocate applied while paused not logged on resume: %+v", last)
	}

	var e *Engine
	for _, entry := range tl.entries {
		if entry.Config != nil {
			e = mustEngine(t, *entry.Config)
		}
		for _, rr := range entry.Requests {
			if err := rr.Apply(e); err != nil {
				t.Fatalf("replay apply: %v", err)
			}
		}
		e.Step()
		if e.Digest() != entry.Digest {
			t.Fatalf("replay across pause diverged at tick %d", entry.Tick)
		}
	}
}

func TestRuntimeRun_PauseResume(t *testing.T) {
	r := newTestRuntime(t, RuntimeConfig{TickRateHz: 200})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	resp, err := r.RequestPause(reqCtx)
	if err != nil || !resp.Paused {
		t.Fatalf("pause: %+v %v", resp, err)
	}
	held := r.CurrentTick()
	time.Sleep(50 * time.Millisecond)
	if got := r.CurrentTick(); got != held {
		t.Fatalf("tick advanced while paused: %d -> %d", held, got)
	}
	// Control requests are still served while paused.
	if _, err := r.RequestRelocateFood(reqCtx); err != nil {
		t.Fatalf("relocate while paused: %v", err)
	}

	if _, err := r.RequestResume(reqCtx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for r.CurrentTick() == held {
		if time.Now().After(deadline) {
			t.Fatalf("tick did not advance after resume")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestStatsWindow(t *testing.T) {
	s := NewStats(10, 30)
	for tick := uint64(1); tick < 30; tick++ {
		s.Observe(tick, StepStats{FoodCollectedDelta: 1, Depleted: 1})
	}
	if got := s.Summarize(29); got.Delivered != 29 || got.Depleted != 29 {
		t.Fatalf("window: %+v", got)
	}
	// Ticks 1..9 fall out once tick 30 opens a new bucket.
	if got := s.Summarize(30); got.Delivered != 20 {
		t.Fatalf("rotated window: %+v", got)
	}
	if got := s.Summarize(1000); got.Delivered != 0 {
		t.Fatalf("long gap must clear the window: %+v", got)
	}
	s.Reset()
	if got := s.Summarize(0); got != (StatsBucket{}) {
		t.Fatalf("reset: %+v", got)
	}
}
