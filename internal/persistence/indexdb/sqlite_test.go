package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
	"antcolony.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: colony.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(colony.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(colony.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordRunArchive(1, 2, "/tmp/2.snap.zst", 42)

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropArchiveTotal != 1 {
		t.Fatalf("drop counters: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesRunsTicksAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.sqlite")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	cfg := colony.DefaultConfig()
	cfg.Seed = 77
	for run := uint64(3); run <= 4; run++ {
		for tick := uint64(1); tick <= 3; tick++ {
			e := colony.TickLogEntry{Run: run, Tick: tick, Digest: "d", Stats: colony.StepStats{Tick: tick, FoodCollectedDelta: 1, ActiveAgents: 50}}
			if tick == 1 {
				e.Config = &cfg
			}
			_ = idx.WriteTick(e)
		}
	}
	_ = idx.WriteAudit(colony.AuditEntry{Run: 4, Tick: 2, Actor: "ADMIN", Action: "TUNE"})
	_ = idx.WriteAudit(colony.AuditEntry{Run: 4, Tick: 2, Actor: "ADMIN", Action: "RELOCATE_FOOD"})
	idx.RecordSnapshot("/snap/3/3.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Run: 3, Tick: 3, Final: true},
		Seed:   77,
		Agents: make([]snapshot.AgentV1, 50),
		Food:   make([]snapshot.FoodV1, 3),
		Nest:   snapshot.NestV1{Delivered: 3},
		Digest: "d",
	})
	idx.RecordRunArchive(3, 3, "/archive/run_003/final.snap.zst", 77)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	last, err := idx.LastRun(context.Background())
	if err != nil || last != 4 {
		t.Fatalf("LastRun=%d err=%v", last, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var ticks int
	var delivered float64
	if err := db.QueryRow(`SELECT COUNT(*), SUM(delivered) FROM ticks WHERE run=4`).Scan(&ticks, &delivered); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if ticks != 3 || delivered != 3 {
		t.Fatalf("ticks=%d delivered=%v", ticks, delivered)
	}

	var seed int64
	if err := db.QueryRow(`SELECT seed FROM runs WHERE run=3`).Scan(&seed); err != nil || seed != 77 {
		t.Fatalf("runs: seed=%d err=%v", seed, err)
	}

	var maxSeq int
	if err := db.QueryRow(`SELECT MAX(seq) FROM audits WHERE run=4 AND tick=2`).Scan(&maxSeq); err != nil || maxSeq != 1 {
		t.Fatalf("audits: max seq=%d err=%v", maxSeq, err)
	}

	var final, agents int
	if err := db.QueryRow(`SELECT final, agents FROM snapshots WHERE run=3 AND tick=3`).Scan(&final, &agents); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if final != 1 || agents != 50 {
		t.Fatalf("snapshot row: final=%d agents=%d", final, agents)
	}

	var archived string
	if err := db.QueryRow(`SELECT snapshot_path FROM run_archives WHERE run=3`).Scan(&archived); err != nil || archived != "/archive/run_003/final.snap.zst" {
		t.Fatalf("run_archives: %q err=%v", archived, err)
	}

	var digest string
	if err := db.QueryRow(`SELECT digest FROM tuning WHERE name='tuning'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest: %q err=%v", digest, err)
	}
}
