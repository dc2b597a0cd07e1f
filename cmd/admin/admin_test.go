package main

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"antcolony.ai/internal/persistence/indexdb"
	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
	"antcolony.ai/internal/sim/tuning"
)

func TestListSnapshotsOrdersByRunThenTick(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{
		"snapshots/run_002/50.snap.zst",
		"snapshots/run_001/600.snap.zst",
		"snapshots/run_001/1200.snap.zst",
		"snapshots/run_001/notes.txt",
		"snapshots/misc/10.snap.zst",
	} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	snaps, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("listSnapshots: %v", err)
	}
	want := []struct{ run, tick uint64 }{{1, 600}, {1, 1200}, {2, 50}}
	if len(snaps) != len(want) {
		t.Fatalf("expected %d snapshots, got %+v", len(want), snaps)
	}
	for i, w := range want {
		if snaps[i].Run != w.run || snaps[i].Tick != w.tick {
			t.Fatalf("snapshot %d: got run=%d tick=%d want %+v", i, snaps[i].Run, snaps[i].Tick, w)
		}
	}
	if got := latestSnapshot(dir); got != filepath.Join(dir, "snapshots", "run_002", "50.snap.zst") {
		t.Fatalf("latest: %s", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("expected no latest snapshot, got %s", got)
	}
}

func TestSummarizeSnapshot(t *testing.T) {
	cfg := colony.DefaultConfig()
	cfgJSON, _ := json.Marshal(cfg)
	snap := snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, ColonyID: "c", Run: 2, Tick: 9},
		Seed:       cfg.Seed,
		ConfigJSON: cfgJSON,
		Agents:     []snapshot.AgentV1{{ID: 0, Carrying: 1}, {ID: 1}},
		Food:       []snapshot.FoodV1{{ID: 1, Remaining: 10}, {ID: 2, Remaining: 5.5}},
		Nest:       snapshot.NestV1{Delivered: 4, Spawned: 1},
	}
	s := summarize("p", snap)
	if s.Agents != 2 || s.Carrying != 1 || s.FoodSources != 2 || s.Remaining != 15.5 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Config == nil || s.Config.GridWidth != cfg.GridWidth {
		t.Fatalf("expected decoded config, got %+v", s.Config)
	}
}

func TestControlRequest(t *testing.T) {
	path, body, err := controlRequest("reset", 7, 0, -1)
	if err != nil || path != "/admin/v1/reset" || string(body) != `{"seed":7}` {
		t.Fatalf("reset: %s %s %v", path, body, err)
	}
	path, body, err = controlRequest("tune", 0, 1.5, 0.25)
	if err != nil || path != "/admin/v1/tune" || string(body) != `{"follow":0.25,"speed":1.5}` {
		t.Fatalf("tune: %s %s %v", path, body, err)
	}
	if _, _, err := controlRequest("tune", 0, 0, -1); err == nil {
		t.Fatalf("expected error for empty tune")
	}
	path, body, err = controlRequest("relocate", 0, 0, -1)
	if err != nil || path != "/admin/v1/food/relocate" || string(body) != `{}` {
		t.Fatalf("relocate: %s %s %v", path, body, err)
	}
	for _, name := range []string{"pause", "resume"} {
		path, body, err = controlRequest(name, 0, 0, -1)
		if err != nil || path != "/admin/v1/"+name || string(body) != `{}` {
			t.Fatalf("%s: %s %s %v", name, path, body, err)
		}
	}
	if _, _, err := controlRequest("nope", 0, 0, -1); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestRunQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colony.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	cfg := colony.DefaultConfig()
	for run := uint64(1); run <= 2; run++ {
		for tick := uint64(1); tick <= 4; tick++ {
			e := colony.TickLogEntry{Run: run, Tick: tick, Digest: "d", Stats: colony.StepStats{Tick: tick, FoodCollectedDelta: 0.5}}
			if tick == 1 {
				e.Config = &cfg
			}
			_ = idx.WriteTick(e)
		}
	}
	_ = idx.WriteAudit(colony.AuditEntry{Run: 2, Tick: 3, Actor: "ADMIN", Action: "TUNE"})
	idx.RecordSnapshot("/s/1/4.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Run: 1, Tick: 4, Final: true}, Digest: "d"})
	idx.RecordRunArchive(1, 4, "/runs/run_001/4.snap.zst", cfg.Seed)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	lr, err := latestRun(db)
	if err != nil || lr != 2 {
		t.Fatalf("latestRun=%d err=%v", lr, err)
	}

	collect := func(q string, run uint64, limit int) []any {
		t.Helper()
		var out []any
		if err := runQuery(db, q, run, limit, func(v any) { out = append(out, v) }); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return out
	}

	runs := collect("runs", 0, 10)
	if len(runs) != 2 {
		t.Fatalf("runs: %+v", runs)
	}
	if r := runs[0].(runRow); r.Run != 2 || r.LastTick != 4 || r.Delivered != 2 {
		t.Fatalf("latest run row: %+v", r)
	}

	ticks := collect("ticks", 2, 3)
	if len(ticks) != 3 || ticks[0].(tickRow).Tick != 4 {
		t.Fatalf("ticks: %+v", ticks)
	}

	snaps := collect("snapshots", 0, 10)
	if len(snaps) != 1 || !snaps[0].(snapshotRow).Final {
		t.Fatalf("snapshots: %+v", snaps)
	}

	audits := collect("audits", 2, 10)
	if len(audits) != 1 || audits[0].(auditRow).Action != "TUNE" {
		t.Fatalf("audits: %+v", audits)
	}

	archives := collect("archives", 0, 10)
	if len(archives) != 1 || archives[0].(archiveRow).EndTick != 4 {
		t.Fatalf("archives: %+v", archives)
	}

	if tn := collect("tuning", 0, 1); len(tn) != 1 || len(tn[0].(tuningRow).Digest) != 64 {
		t.Fatalf("tuning: %+v", tn)
	}

	if err := runQuery(db, "nope", 0, 1, func(any) {}); err == nil {
		t.Fatalf("expected unknown query error")
	}
}
