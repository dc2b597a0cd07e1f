package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"antcolony.ai/internal/persistence/archive"
	persistlog "antcolony.ai/internal/persistence/log"
	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "list":
			listCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "reset", "relocate", "tune", "snapshot", "pause", "resume":
			controlCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func colonyDirFlags(fs *flag.FlagSet) (dataDir, colonyID *string) {
	dataDir = fs.String("data", "./data", "runtime data directory")
	colonyID = fs.String("colony", "colony_1", "colony id")
	return dataDir, colonyID
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir, colonyID := colonyDirFlags(fs)
	_ = fs.Parse(args)

	snaps, err := listSnapshots(filepath.Join(*dataDir, "colonies", *colonyID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, s := range snaps {
		final := ""
		if h, err := snapshot.ReadHeader(s.Path); err == nil && h.Final {
			final = " final"
		}
		fmt.Printf("run=%d tick=%d%s %s\n", s.Run, s.Tick, final, s.Path)
	}
}

// stateCmd prints the latest snapshot, or the live state when -url is set.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dataDir, colonyID := colonyDirFlags(fs)
	baseURL := fs.String("url", "", "server base url (query the live colony instead of the latest snapshot)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*baseURL) != "" {
		liveStateCmd(*baseURL)
		return
	}

	colonyDir := filepath.Join(*dataDir, "colonies", *colonyID)
	path := latestSnapshot(colonyDir)
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found in", colonyDir)
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(path, snap))
}

type snapshotSummary struct {
	Path        string         `json:"path"`
	ColonyID    string         `json:"colony_id"`
	Run         uint64         `json:"run"`
	Tick        uint64         `json:"tick"`
	Final       bool           `json:"final"`
	Seed        int64          `json:"seed"`
	Digest      string         `json:"digest"`
	Agents      int            `json:"agents"`
	Carrying    int            `json:"carrying"`
	FoodSources int            `json:"food_sources"`
	Remaining   float64        `json:"food_remaining"`
	Delivered   float64        `json:"delivered"`
	Spawned     int            `json:"spawned"`
	Picked      float64        `json:"picked"`
	Depleted    uint64         `json:"depleted"`
	Config      *colony.Config `json:"config,omitempty"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:        path,
		ColonyID:    snap.Header.ColonyID,
		Run:         snap.Header.Run,
		Tick:        snap.Header.Tick,
		Final:       snap.Header.Final,
		Seed:        snap.Seed,
		Digest:      snap.Digest,
		Agents:      len(snap.Agents),
		FoodSources: len(snap.Food),
		Delivered:   snap.Nest.Delivered,
		Spawned:     snap.Nest.Spawned,
		Picked:      snap.Stats.Picked,
		Depleted:    snap.Stats.Depleted,
	}
	for _, a := range snap.Agents {
		if a.Carrying > 0 {
			s.Carrying++
		}
	}
	for _, f := range snap.Food {
		s.Remaining += f.Remaining
	}
	if cfg, err := colony.ConfigFromSnapshot(snap); err == nil {
		s.Config = &cfg
	}
	return s
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir, colonyID := colonyDirFlags(fs)
	_ = fs.Parse(args)

	colonyDir := filepath.Join(*dataDir, "colonies", *colonyID)
	ents, err := os.ReadDir(filepath.Join(colonyDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read runs:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		run, ok := parseRunDir(e.Name())
		if !e.IsDir() || !ok {
			continue
		}
		meta, err := archive.ReadRunMeta(colonyDir, run)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %d: %v\n", run, err)
			continue
		}
		printJSON(meta)
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir, colonyID := colonyDirFlags(fs)
	run := fs.Uint64("run", 0, "run filter (optional)")
	action := fs.String("action", "", "action filter, e.g. RESET or TUNE (optional)")
	_ = fs.Parse(args)

	colonyDir := filepath.Join(*dataDir, "colonies", *colonyID)
	want := strings.ToUpper(strings.TrimSpace(*action))
	err := persistlog.ReadAuditLog(colonyDir, func(e colony.AuditEntry) error {
		if *run != 0 && e.Run != *run {
			return nil
		}
		if want != "" && e.Action != want {
			return nil
		}
		printJSON(e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
}

type snapshotFile struct {
	Path string
	Run  uint64
	Tick uint64
}

// listSnapshots returns the snapshots under colonyDir/snapshots/run_NNN/, ordered by run then tick.
func listSnapshots(colonyDir string) ([]snapshotFile, error) {
	base := filepath.Join(colonyDir, "snapshots")
	runDirs, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []snapshotFile
	for _, rd := range runDirs {
		run, ok := parseRunDir(rd.Name())
		if !rd.IsDir() || !ok {
			continue
		}
		ents, err := os.ReadDir(filepath.Join(base, rd.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
				continue
			}
			tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
			if err != nil {
				continue
			}
			out = append(out, snapshotFile{Path: filepath.Join(base, rd.Name(), name), Run: run, Tick: tick})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Run != out[j].Run {
			return out[i].Run < out[j].Run
		}
		return out[i].Tick < out[j].Tick
	})
	return out, nil
}

func latestSnapshot(colonyDir string) string {
	snaps, err := listSnapshots(colonyDir)
	if err != nil || len(snaps) == 0 {
		return ""
	}
	return snaps[len(snaps)-1].Path
}

func parseRunDir(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "run_") {
		return 0, false
	}
	run, err := strconv.ParseUint(strings.TrimPrefix(name, "run_"), 10, 64)
	if err != nil || run == 0 {
		return 0, false
	}
	return run, true
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
