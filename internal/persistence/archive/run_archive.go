package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"antcolony.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	Run       uint64  `json:"run"`
	EndTick   uint64  `json:"end_tick"`
	Seed      int64   `json:"seed"`
	Delivered float64 `json:"delivered"`
	Spawned   int     `json:"spawned"`
	Agents    int     `json:"agents"`
	Digest    string  `json:"digest"`
	Snapshot  string  `json:"snapshot"`
	CreatedAt string  `json:"created_at"`
}

// ArchiveRunSnapshot copies the final snapshot of a run into `colonyDir/runs/run_<NNN>/`.
// Snapshots not marked Final are ignored and reported with archived=false.
func ArchiveRunSnapshot(colonyDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.Header.Final || snap.Header.Run == 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(colonyDir, "runs", fmt.Sprintf("run_%03d", snap.Header.Run))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		Run:       snap.Header.Run,
		EndTick:   snap.Header.Tick,
		Seed:      snap.Seed,
		Delivered: snap.Nest.Delivered,
		Spawned:   snap.Nest.Spawned,
		Agents:    len(snap.Agents),
		Digest:    snap.Digest,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

// ReadRunMeta loads meta.json of an archived run.
func ReadRunMeta(colonyDir string, run uint64) (RunArchiveMeta, error) {
	var meta RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(colonyDir, "runs", fmt.Sprintf("run_%03d", run), "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("run %d meta: %w", run, err)
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
