package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"antcolony.ai/internal/persistence/archive"
	"antcolony.ai/internal/persistence/snapshot"
)

// snapshotWriter persists snapshots off the loop goroutine. Final snapshots are also
// archived under runs/ so they survive snapshot cleanup.
type snapshotWriter struct {
	colonyDir string
	idx       runtimeIndex
	log       *log.Logger
}

func snapshotPath(colonyDir string, run, tick uint64) string {
	return filepath.Join(colonyDir, "snapshots", fmt.Sprintf("run_%03d", run), fmt.Sprintf("%d.snap.zst", tick))
}

func (w *snapshotWriter) run(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			w.write(snap)
		}
	}
}

func (w *snapshotWriter) write(snap snapshot.SnapshotV1) {
	path := snapshotPath(w.colonyDir, snap.Header.Run, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		w.log.Printf("snapshot write: %v", err)
		return
	}
	if w.idx != nil {
		w.idx.RecordSnapshot(path, snap)
	}

	archivedPath, ok, err := archive.ArchiveRunSnapshot(w.colonyDir, path, snap)
	if err != nil {
		w.log.Printf("archive run snapshot: %v", err)
		return
	}
	if !ok {
		return
	}
	w.log.Printf("archived run=%d end_tick=%d path=%s", snap.Header.Run, snap.Header.Tick, archivedPath)
	if w.idx != nil {
		w.idx.RecordRunArchive(snap.Header.Run, snap.Header.Tick, archivedPath, snap.Seed)
	}
}
