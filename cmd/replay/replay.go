package main

import (
	"fmt"

	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
)

// replayer re-simulates runs from their tick log entries and checks every digest.
// A run can only be verified from its first entry, which carries the config.
type replayer struct {
	only   uint64
	toTick uint64

	eng *colony.Engine
	run uint64

	lastDigest string
	checked    uint64
	skipped    uint64
	runs       []runSummary
}

type runSummary struct {
	run      uint64
	lastTick uint64
}

func newReplayer(only, toTick uint64) *replayer {
	return &replayer{only: only, toTick: toTick}
}

func (rp *replayer) apply(entry colony.TickLogEntry) error {
	if rp.only != 0 && entry.Run != rp.only {
		return nil
	}
	if entry.Config != nil {
		eng, err := colony.New(*entry.Config)
		if err != nil {
			return fmt.Errorf("run %d: %w", entry.Run, err)
		}
		rp.eng, rp.run = eng, entry.Run
		rp.runs = append(rp.runs, runSummary{run: entry.Run})
	}
	if rp.eng == nil || entry.Run != rp.run {
		rp.skipped++
		return nil
	}
	if rp.toTick != 0 && entry.Tick > rp.toTick {
		return nil
	}

	for _, req := range entry.Requests {
		if err := req.Apply(rp.eng); err != nil {
			return fmt.Errorf("run %d tick %d: %s: %w", entry.Run, entry.Tick, req.Kind, err)
		}
	}
	st := rp.eng.Step()
	if st.Tick != entry.Tick {
		return fmt.Errorf("run %d: tick mismatch: replayed %d, log %d", entry.Run, st.Tick, entry.Tick)
	}
	digest := rp.eng.Digest()
	if digest != entry.Digest {
		return fmt.Errorf("run %d tick %d: digest mismatch: replayed %s, log %s", entry.Run, entry.Tick, digest, entry.Digest)
	}
	rp.lastDigest = digest
	rp.checked++
	rp.runs[len(rp.runs)-1].lastTick = entry.Tick
	return nil
}

func (rp *replayer) verifySnapshot(snap snapshot.SnapshotV1) error {
	if rp.eng == nil || rp.run != snap.Header.Run {
		return fmt.Errorf("run %d not found in tick log", snap.Header.Run)
	}
	if rp.eng.Tick() != snap.Header.Tick {
		return fmt.Errorf("tick log for run %d ends at tick %d before snapshot tick %d", snap.Header.Run, rp.eng.Tick(), snap.Header.Tick)
	}
	if rp.lastDigest != snap.Digest {
		return fmt.Errorf("snapshot digest mismatch at tick %d: replayed %s, snapshot %s", snap.Header.Tick, rp.lastDigest, snap.Digest)
	}
	return nil
}
