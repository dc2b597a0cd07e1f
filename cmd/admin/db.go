package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir, colonyID := colonyDirFlags(fs)
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	run := fs.Uint64("run", 0, "run (optional; defaults to the latest run for ticks/audits)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "colonies", *colonyID, "index", "colony.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if (q == "ticks" || q == "audits") && *run == 0 {
		lr, err := latestRun(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		if lr == 0 {
			fmt.Fprintln(os.Stderr, "no runs found")
			os.Exit(2)
		}
		*run = lr
	}

	if err := runQuery(db, q, *run, *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-colony ID|-db PATH] [-run N] [-limit N] runs|ticks|snapshots|audits|archives|tuning")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type runRow struct {
	Run         uint64          `json:"run"`
	Seed        int64           `json:"seed"`
	Agents      int             `json:"agents"`
	FoodSources int             `json:"food_sources"`
	LastTick    uint64          `json:"last_tick"`
	Delivered   float64         `json:"delivered"`
	Config      json.RawMessage `json:"config"`
}

type tickRow struct {
	Run       uint64  `json:"run"`
	Tick      uint64  `json:"tick"`
	Digest    string  `json:"digest"`
	Delivered float64 `json:"delivered"`
	Picked    float64 `json:"picked"`
	Agents    int     `json:"agents"`
	Carrying  int     `json:"carrying"`
	Depleted  int     `json:"depleted"`
	Spawned   int     `json:"spawned"`
	Requests  int     `json:"requests"`
}

type snapshotRow struct {
	Run         uint64  `json:"run"`
	Tick        uint64  `json:"tick"`
	Path        string  `json:"path"`
	Seed        int64   `json:"seed"`
	Final       bool    `json:"final"`
	Agents      int     `json:"agents"`
	FoodSources int     `json:"food_sources"`
	Delivered   float64 `json:"delivered"`
	Digest      string  `json:"digest"`
}

type auditRow struct {
	Run    uint64          `json:"run"`
	Tick   uint64          `json:"tick"`
	Seq    int             `json:"seq"`
	Actor  string          `json:"actor"`
	Action string          `json:"action"`
	Reason sql.NullString  `json:"-"`
	Raw    json.RawMessage `json:"entry"`
}

type archiveRow struct {
	Run        uint64 `json:"run"`
	EndTick    uint64 `json:"end_tick"`
	Seed       int64  `json:"seed"`
	Path       string `json:"snapshot_path"`
	RecordedAt string `json:"recorded_at"`
}

type tuningRow struct {
	Name      string          `json:"name"`
	Digest    string          `json:"digest"`
	UpdatedAt string          `json:"updated_at"`
	JSON      json.RawMessage `json:"tuning"`
}

// runQuery runs one named read-model query and hands each row to emit.
func runQuery(db *sql.DB, q string, run uint64, limit int, emit func(any)) error {
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT r.run,r.seed,r.agents,r.food_sources,r.config_json,
			COALESCE(MAX(t.tick),0), COALESCE(SUM(t.delivered),0)
			FROM runs r LEFT JOIN ticks t ON t.run=r.run
			GROUP BY r.run ORDER BY r.run DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r runRow
			var cfg string
			if err := rows.Scan(&r.Run, &r.Seed, &r.Agents, &r.FoodSources, &cfg, &r.LastTick, &r.Delivered); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Config = json.RawMessage(cfg)
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT run,tick,digest,delivered,picked,agents,carrying,depleted,spawned,requests FROM ticks WHERE run=? ORDER BY tick DESC LIMIT ?`, run, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r tickRow
			if err := rows.Scan(&r.Run, &r.Tick, &r.Digest, &r.Delivered, &r.Picked, &r.Agents, &r.Carrying, &r.Depleted, &r.Spawned, &r.Requests); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "snapshots":
		query := `SELECT run,tick,path,seed,final,agents,food_sources,delivered,digest FROM snapshots ORDER BY run DESC, tick DESC LIMIT ?`
		qargs := []any{limit}
		if run != 0 {
			query = `SELECT run,tick,path,seed,final,agents,food_sources,delivered,digest FROM snapshots WHERE run=? ORDER BY tick DESC LIMIT ?`
			qargs = []any{run, limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.Run, &r.Tick, &r.Path, &r.Seed, &r.Final, &r.Agents, &r.FoodSources, &r.Delivered, &r.Digest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "audits":
		rows, err := db.Query(`SELECT run,tick,seq,actor,action,reason,raw_json FROM audits WHERE run=? ORDER BY tick DESC, seq DESC LIMIT ?`, run, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r auditRow
			var raw string
			if err := rows.Scan(&r.Run, &r.Tick, &r.Seq, &r.Actor, &r.Action, &r.Reason, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Raw = json.RawMessage(raw)
			emit(r)
		}
		return rows.Err()

	case "archives":
		rows, err := db.Query(`SELECT run,end_tick,seed,snapshot_path,recorded_at FROM run_archives ORDER BY run DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r archiveRow
			if err := rows.Scan(&r.Run, &r.EndTick, &r.Seed, &r.Path, &r.RecordedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "tuning":
		var r tuningRow
		var raw string
		row := db.QueryRow(`SELECT name,digest,json,updated_at FROM tuning WHERE name='tuning'`)
		if err := row.Scan(&r.Name, &r.Digest, &raw, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		r.JSON = json.RawMessage(raw)
		emit(r)
		return nil

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func latestRun(db *sql.DB) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var r int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(run),0) FROM runs`).Scan(&r); err != nil {
		return 0, err
	}
	if r < 0 {
		return 0, nil
	}
	return uint64(r), nil
}
