package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	ColonyID string `json:"colony_id"`
	Run      uint64 `json:"run"`
	Tick     uint64 `json:"tick"`

	// Final marks the last snapshot of a run, taken right before a reset.
	Final bool `json:"final,omitempty"`
}

// SnapshotV1 is an offline-inspection image of a colony. Colonies are never resumed from it.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Digest string `json:"digest"`
	Seed   int64  `json:"seed"`

	// ConfigJSON is the colony configuration, kept as JSON so this package does not
	// depend on the simulation types.
	ConfigJSON []byte `json:"config_json"`

	Nest   NestV1    `json:"nest"`
	Food   []FoodV1  `json:"food"`
	Agents []AgentV1 `json:"agents"`
	Field  FieldV1   `json:"field"`
	Stats  StatsV1   `json:"stats"`
}

type NestV1 struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Delivered float64 `json:"delivered"`
	Pending   float64 `json:"pending"`
	Spawned   int     `json:"spawned"`
}

type FoodV1 struct {
	ID        uint64  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Remaining float64 `json:"remaining"`
	Initial   float64 `json:"initial"`
}

type AgentV1 struct {
	ID          int     `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Heading     float64 `json:"heading"`
	State       uint8   `json:"state"`
	Carrying    float64 `json:"carrying"`
	LastFoodX   int     `json:"last_food_x"`
	LastFoodY   int     `json:"last_food_y"`
	HasLastFood bool    `json:"has_last_food"`
}

type FieldV1 struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Max    float64   `json:"max"`
	ToFood []float64 `json:"to_food"`
	ToHome []float64 `json:"to_home"`
}

type StatsV1 struct {
	Picked   float64 `json:"picked"`
	Depleted uint64  `json:"depleted"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is duplicated inside the gob body.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
