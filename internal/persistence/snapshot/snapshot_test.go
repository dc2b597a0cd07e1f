package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "40.snap.zst")
	in := SnapshotV1{
		Header:     Header{Version: Version, ColonyID: "c1", Run: 2, Tick: 40, Final: true},
		Digest:     "abc",
		Seed:       7,
		ConfigJSON: []byte(`{"seed":7}`),
		Nest:       NestV1{X: 5, Y: 5, Radius: 2, Delivered: 3, Spawned: 1},
		Food:       []FoodV1{{ID: 1, X: 8, Y: 8, Radius: 1, Remaining: 4, Initial: 10}},
		Agents:     []AgentV1{{ID: 0, X: 1.5, Y: 2.5, Heading: 0.25, State: 1, Carrying: 1}},
		Field: FieldV1{
			Width:  2,
			Height: 1,
			Max:    5,
			ToFood: []float64{0.5, 0},
			ToHome: []float64{0, 5},
		},
		Stats: StatsV1{Picked: 4, Depleted: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header mismatch: got=%+v want=%+v", h, in.Header)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Digest != "abc" || out.Seed != 7 || string(out.ConfigJSON) != `{"seed":7}` {
		t.Fatalf("scalar mismatch: %+v", out)
	}
	if len(out.Agents) != 1 || out.Agents[0].X != 1.5 || out.Agents[0].Carrying != 1 {
		t.Fatalf("agents mismatch: %+v", out.Agents)
	}
	if len(out.Food) != 1 || out.Food[0].Remaining != 4 {
		t.Fatalf("food mismatch: %+v", out.Food)
	}
	if out.Field.ToHome[1] != 5 || out.Field.ToFood[0] != 0.5 {
		t.Fatalf("field mismatch: %+v", out.Field)
	}
	if out.Nest.Delivered != 3 || out.Stats.Depleted != 1 {
		t.Fatalf("nest/stats mismatch: %+v %+v", out.Nest, out.Stats)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99, Tick: 1}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
