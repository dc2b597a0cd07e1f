package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
)

// SQLiteIndex is a queryable read model of the tick/audit logs and snapshot files.
// Writes are queued and applied by a single writer goroutine; the JSONL logs remain the
// source of truth, so a full queue drops rows instead of stalling the colony.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	tick     colony.TickLogEntry
	audit    colony.AuditEntry
	snapshot snapshotRow
	archive  archiveRow
}

type snapshotRow struct {
	Run         uint64
	Tick        uint64
	Path        string
	Seed        int64
	Final       bool
	Agents      int
	FoodSources int
	Delivered   float64
	Digest      string
}

type archiveRow struct {
	Run        uint64
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

// Stats reports queue pressure on the writer goroutine.
type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropArchiveTotal  uint64 `json:"drop_archive_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// One tick row per tick plus bursts of audits; several minutes of headroom at 20Hz.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run INTEGER PRIMARY KEY,
			seed INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			food_sources INTEGER NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			delivered REAL NOT NULL,
			picked REAL NOT NULL,
			agents INTEGER NOT NULL,
			carrying INTEGER NOT NULL,
			depleted INTEGER NOT NULL,
			spawned INTEGER NOT NULL,
			requests INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action ON audits(action, run, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			final INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			food_sources INTEGER NOT NULL,
			delivered REAL NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS run_archives (
			run INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		drops.Add(1)
	}
}

// WriteTick indexes a tick entry. The first entry of a run also records the run.
func (s *SQLiteIndex) WriteTick(entry colony.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry colony.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Run:         snap.Header.Run,
		Tick:        snap.Header.Tick,
		Path:        path,
		Seed:        snap.Seed,
		Final:       snap.Header.Final,
		Agents:      len(snap.Agents),
		FoodSources: len(snap.Food),
		Delivered:   snap.Nest.Delivered,
		Digest:      snap.Digest,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordRunArchive notes where the final snapshot of a finished run was archived.
func (s *SQLiteIndex) RecordRunArchive(run, endTick uint64, archivedSnapshotPath string, seed int64) {
	if s == nil || s.closed.Load() {
		return
	}
	if run == 0 || archivedSnapshotPath == "" {
		return
	}
	r := archiveRow{
		Run:        run,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqArchive, archive: r}, &s.dropArchive)
}

// UpsertTuning stores the tuning the server actually applies (canonical JSON).
func (s *SQLiteIndex) UpsertTuning(tune any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

// LastRun is the highest run number indexed so far, or 0.
func (s *SQLiteIndex) LastRun(ctx context.Context) (uint64, error) {
	if s == nil {
		return 0, nil
	}
	var run sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(run) FROM runs`).Scan(&run); err != nil {
		return 0, err
	}
	if !run.Valid || run.Int64 < 0 {
		return 0, nil
	}
	return uint64(run.Int64), nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run,seed,agents,food_sources,config_json) VALUES(?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run,tick,digest,delivered,picked,agents,carrying,depleted,spawned,requests,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(run,tick,seq,actor,action,reason,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run,tick,path,seed,final,agents,food_sources,delivered,digest) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO run_archives(run,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertTick, insertAudit, insertSnapshot, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditRun  uint64
		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if e.Config != nil {
				cfgJSON, _ := json.Marshal(e.Config)
				if !exec(insertRun, int64(e.Run), e.Config.Seed, e.Config.AgentCount, e.Config.FoodSourceCount, string(cfgJSON)) {
					continue
				}
			}
			b, _ := json.Marshal(e)
			exec(insertTick,
				int64(e.Run),
				int64(e.Tick),
				e.Digest,
				e.Stats.FoodCollectedDelta,
				e.Stats.FoodPicked,
				e.Stats.ActiveAgents,
				e.Stats.Carrying,
				e.Stats.Depleted,
				e.Stats.Spawned,
				len(e.Requests),
				string(b),
			)

		case reqAudit:
			a := r.audit
			if a.Run != lastAuditRun || a.Tick != lastAuditTick {
				lastAuditRun, lastAuditTick = a.Run, a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Run), int64(a.Tick), seq, a.Actor, a.Action, a.Reason, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			final := 0
			if sn.Final {
				final = 1
			}
			exec(insertSnapshot,
				int64(sn.Run),
				int64(sn.Tick),
				sn.Path,
				sn.Seed,
				final,
				sn.Agents,
				sn.FoodSources,
				sn.Delivered,
				sn.Digest,
			)

		case reqArchive:
			ar := r.archive
			exec(insertArchive, int64(ar.Run), int64(ar.EndTick), ar.Seed, ar.Path, ar.RecordedAt)
		}
		flushIfNeeded()
	}

	commit()
}
