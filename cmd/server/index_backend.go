package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"antcolony.ai/internal/persistence/indexdb"
	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
)

type runtimeIndex interface {
	colony.TickLogger
	colony.AuditLogger
	Close() error
	UpsertTuning(tune any) error
	LastRun(ctx context.Context) (uint64, error)
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordRunArchive(run, endTick uint64, archivedSnapshotPath string, seed int64)
	Stats() indexdb.Stats
}

func openRuntimeIndex(colonyDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ANTCOLONY_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(colonyDir, "index", "colony.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported ANTCOLONY_INDEX_BACKEND: %s", backend)
	}
}
